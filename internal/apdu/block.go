package apdu

import (
	"errors"
	"fmt"
)

// BinsPerBlock is the number of bins in a run-length encoded block.
const BinsPerBlock = 128

var (
	// ErrRunLengthTotal reports run lengths that do not sum to 128.
	ErrRunLengthTotal = errors.New("apdu: run lengths do not total 128 bins")

	// ErrBlockShort reports a global-block payload too small to decode.
	ErrBlockShort = errors.New("apdu: block payload too short")
)

// Block is a decoded global-block image frame. Non-empty blocks carry 128
// run-length decoded bins; empty blocks carry a bitmap of further empty
// blocks following this one.
type Block struct {
	BlockNumber   int  `json:"block_number"`
	ElementID     int  `json:"element_id"`
	ScaleFactor   int  `json:"scale_factor"`
	Hemisphere    int  `json:"hemisphere"`
	AltitudeLevel int  `json:"altitude_level,omitempty"`

	Bins        []byte `json:"bins,omitempty"`
	EmptyBlocks string `json:"empty_blocks,omitempty"`
}

// DecodeBlock decodes a global-block payload for the given product id.
func DecodeBlock(ba []byte, productID int) (*Block, error) {
	if len(ba) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBlockShort, len(ba))
	}

	b := &Block{
		BlockNumber: int(ba[0]&0x0F)<<16 | int(ba[1])<<8 | int(ba[2]),
		ElementID:   int(ba[0]&0x80) >> 7,
	}

	psBits := int(ba[0]&0x70) >> 4

	switch productID {
	case 63, 64, 84, 103:
		b.ScaleFactor = psBits & 3
		b.Hemisphere = (psBits & 4) >> 2
	case 70, 90:
		// Icing and turbulence products encode their altitude level in
		// the product-specific bits; always medium resolution.
		b.ScaleFactor = 1
		b.AltitudeLevel = psBits*2000 + 2000
	case 71, 91:
		b.ScaleFactor = 1
		b.AltitudeLevel = psBits*2000 + 18000
	}

	if b.ElementID == 0 {
		b.EmptyBlocks = emptyBlockBitmap(ba)
		return b, nil
	}

	runs := ba[3:]
	var bins []byte
	var err error
	switch productID {
	case 63, 64:
		bins, err = nexradRunLengths(runs)
	case 84, 90, 91:
		bins, err = turbRunLengths(runs)
	case 70, 71:
		bins, err = icingRunLengths(runs)
	case 103:
		bins, err = lightningRunLengths(runs)
	}
	if err != nil {
		return nil, err
	}
	b.Bins = bins

	return b, nil
}

// emptyBlockBitmap expands the empty-block run bitmap into a string of '1'
// and '0' characters. The block named by the block number itself is not in
// the bitmap; it is implicitly empty. Bits come out LSB first so the string
// reads west to east.
func emptyBlockBitmap(ba []byte) string {
	bitmapLength := int(ba[3] & 0x0F)

	var out []byte
	appendBits := func(b byte, n int) {
		for i := 0; i < n; i++ {
			if b&1 != 0 {
				out = append(out, '1')
			} else {
				out = append(out, '0')
			}
			b >>= 1
		}
	}

	appendBits(ba[3]>>4, 4)
	for i := 0; i < bitmapLength && 4+i < len(ba); i++ {
		appendBits(ba[4+i], 8)
	}

	return string(out)
}

func appendRun(bins []byte, count int, value byte) ([]byte, error) {
	for i := 0; i < count; i++ {
		if len(bins) >= BinsPerBlock {
			return nil, ErrRunLengthTotal
		}
		bins = append(bins, value)
	}
	return bins, nil
}

// nexradRunLengths decodes radar runs: 5-bit count (+1), 3-bit intensity.
func nexradRunLengths(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, BinsPerBlock)
	var err error
	for _, b := range ba {
		count := int((b&0xF8)>>3) + 1
		bins, err = appendRun(bins, count, b&7)
		if err != nil {
			return nil, err
		}
	}
	if len(bins) != BinsPerBlock {
		return nil, fmt.Errorf("%w: got %d", ErrRunLengthTotal, len(bins))
	}
	return bins, nil
}

// turbRunLengths decodes turbulence and cloud-top runs: one byte with a
// 4-bit count, or two bytes when the high nibble is 0xE (count in the
// second byte).
func turbRunLengths(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, BinsPerBlock)
	var err error
	for i := 0; i < len(ba); i++ {
		hi := ba[i] >> 4
		value := ba[i] & 0x0F
		var count int
		if hi == 0xE {
			i++
			if i >= len(ba) {
				return nil, fmt.Errorf("%w: truncated 2-byte run", ErrRunLengthTotal)
			}
			count = int(ba[i]) + 1
		} else {
			count = int(hi) + 1
		}
		bins, err = appendRun(bins, count, value)
		if err != nil {
			return nil, err
		}
	}
	if len(bins) != BinsPerBlock {
		return nil, fmt.Errorf("%w: got %d", ErrRunLengthTotal, len(bins))
	}
	return bins, nil
}

// icingRunLengths decodes icing runs: first byte count−1, second byte the
// packed {SLD:2, severity:3, probability:3} value.
func icingRunLengths(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, BinsPerBlock)
	var err error
	for i := 0; i+1 < len(ba); i += 2 {
		bins, err = appendRun(bins, int(ba[i])+1, ba[i+1])
		if err != nil {
			return nil, err
		}
	}
	if len(bins) != BinsPerBlock {
		return nil, fmt.Errorf("%w: got %d", ErrRunLengthTotal, len(bins))
	}
	return bins, nil
}

// lightningRunLengths decodes lightning runs: 4-bit count (+1), 1-bit
// polarity, 3-bit strike class. A bin value of 8 (zero strikes, negative
// polarity) stores as 0. The exact byte 0xF8 is a documented irregularity
// expanding to 32 bins.
func lightningRunLengths(ba []byte) ([]byte, error) {
	bins := make([]byte, 0, BinsPerBlock)
	var err error
	for _, b := range ba {
		if len(bins) == BinsPerBlock {
			return nil, fmt.Errorf("%w: bytes remain after 128 bins", ErrRunLengthTotal)
		}
		strikes := b & 7
		polarity := (b & 8) >> 3
		count := int((b&0xF0)>>4) + 1

		value := b & 0x0F
		if value == 8 {
			value = 0
		}

		if strikes == 0 && polarity == 1 && b == 0xF8 {
			count += 16
		}

		bins, err = appendRun(bins, count, value)
		if err != nil {
			return nil, err
		}
	}
	if len(bins) != BinsPerBlock {
		return nil, fmt.Errorf("%w: got %d", ErrRunLengthTotal, len(bins))
	}
	return bins, nil
}
