// Package apdu decodes FIS-B Application Protocol Data Units: the variable
// header, then the product payload (global-block imagery, TWGO text/graphic
// objects, or generic DLAC text).
package apdu

import (
	"encoding/hex"
	"errors"
	"fmt"

	"fisb_decode/internal/dlac"
)

var (
	// ErrBadProductID reports a product id outside the FIS-B product set.
	ErrBadProductID = errors.New("apdu: unknown product id")

	// ErrSUABlocked reports a SUA APDU dropped by configuration.
	ErrSUABlocked = errors.New("apdu: SUA product blocked")
)

// Options controls APDU decoding behavior.
type Options struct {
	// BlockSUA drops product 13 (SUA) APDUs, as the standard recommends.
	BlockSUA bool
}

// APDU is one decoded application protocol data unit. Exactly one of Text,
// TWGO, or Block is set for unsegmented APDUs; segmented APDUs instead carry
// SegmentPayload for the desegmenter.
type APDU struct {
	ProductID int  `json:"product_id"`
	TOpt      int  `json:"t_opt"`
	Month     int  `json:"month,omitempty"`
	Day       int  `json:"day,omitempty"`
	Hour      int  `json:"hour"`
	Minute    int  `json:"minute"`
	Segmented bool `json:"s_flag"`

	// Segmentation triple, present only when Segmented.
	ProductFileID     int `json:"product_file_id,omitempty"`
	ProductFileLength int `json:"product_file_length,omitempty"`
	APDUNumber        int `json:"apdu_number,omitempty"`

	// SegmentPayload is the raw hex payload of a segmented APDU, kept for
	// the desegmenter.
	SegmentPayload string `json:"segment_payload,omitempty"`

	Text  string `json:"text,omitempty"`
	TWGO  *TWGO  `json:"twgo,omitempty"`
	Block *Block `json:"block,omitempty"`
}

// validProductIDs is the FIS-B product set per DO-358B.
var validProductIDs = map[int]bool{
	413: true,
	8:   true, 11: true, 12: true, 13: true, 14: true,
	15: true, 16: true, 17: true,
	63: true, 64: true, 70: true, 71: true,
	84: true, 90: true, 91: true, 103: true,
}

// IsTWGO reports whether the product id carries TWGO records.
func IsTWGO(productID int) bool {
	switch productID {
	case 8, 11, 12, 13, 14, 15, 16, 17:
		return true
	}
	return false
}

// IsBlock reports whether the product id carries global-block imagery.
func IsBlock(productID int) bool {
	switch productID {
	case 63, 64, 70, 71, 84, 90, 91, 103:
		return true
	}
	return false
}

// Decode parses one APDU frame payload.
func Decode(ba []byte, opts Options) (*APDU, error) {
	br := newBitReader(ba)

	// Header: 3 pad/flag bits, 11-bit product id, s flag, 2-bit time
	// option, optional month/day, hour/minute, optional segmentation
	// triple. The payload starts at the next whole byte.
	if _, err := br.readBits(3); err != nil {
		return nil, fmt.Errorf("apdu: header: %w", err)
	}
	productID, err := br.readBits(11)
	if err != nil {
		return nil, fmt.Errorf("apdu: product id: %w", err)
	}

	a := &APDU{ProductID: int(productID)}
	if !validProductIDs[a.ProductID] {
		return nil, fmt.Errorf("%w: %d", ErrBadProductID, a.ProductID)
	}
	if a.ProductID == 13 && opts.BlockSUA {
		return nil, ErrSUABlocked
	}

	sFlag, err := br.readBits(1)
	if err != nil {
		return nil, fmt.Errorf("apdu: s flag: %w", err)
	}
	a.Segmented = sFlag == 1

	tOpt, err := br.readBits(2)
	if err != nil {
		return nil, fmt.Errorf("apdu: t_opt: %w", err)
	}
	a.TOpt = int(tOpt)

	if a.TOpt >= 1 {
		month, err := br.readBits(4)
		if err != nil {
			return nil, fmt.Errorf("apdu: month: %w", err)
		}
		day, err := br.readBits(5)
		if err != nil {
			return nil, fmt.Errorf("apdu: day: %w", err)
		}
		a.Month, a.Day = int(month), int(day)
	}

	hour, err := br.readBits(5)
	if err != nil {
		return nil, fmt.Errorf("apdu: hour: %w", err)
	}
	minute, err := br.readBits(6)
	if err != nil {
		return nil, fmt.Errorf("apdu: minute: %w", err)
	}
	a.Hour, a.Minute = int(hour), int(minute)

	if a.Segmented {
		pfID, err := br.readBits(10)
		if err != nil {
			return nil, fmt.Errorf("apdu: product file id: %w", err)
		}
		pfLen, err := br.readBits(9)
		if err != nil {
			return nil, fmt.Errorf("apdu: product file length: %w", err)
		}
		num, err := br.readBits(9)
		if err != nil {
			return nil, fmt.Errorf("apdu: apdu number: %w", err)
		}
		a.ProductFileID = int(pfID)
		a.ProductFileLength = int(pfLen)
		a.APDUNumber = int(num)

		if a.APDUNumber < 1 || a.APDUNumber > a.ProductFileLength {
			return nil, fmt.Errorf("apdu: segment %d of %d out of range",
				a.APDUNumber, a.ProductFileLength)
		}
	}

	payload := ba[br.byteBoundary():]

	if a.Segmented {
		// Payload is reassembled later; keep it raw.
		a.SegmentPayload = hex.EncodeToString(payload)
		return a, nil
	}

	return a, a.DecodePayload(payload)
}

// DecodePayload fills in the product payload of an unsegmented APDU. The
// desegmenter also calls it on reassembled product files.
func (a *APDU) DecodePayload(payload []byte) error {
	switch {
	case a.ProductID == 413:
		a.Text = dlac.Decode(payload, 0, len(payload))
	case IsTWGO(a.ProductID):
		t, err := DecodeTWGO(payload, a.ProductID)
		if err != nil {
			return err
		}
		a.TWGO = t
	case IsBlock(a.ProductID):
		b, err := DecodeBlock(payload, a.ProductID)
		if err != nil {
			return err
		}
		a.Block = b
	}
	return nil
}
