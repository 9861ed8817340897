package apdu

import "errors"

// ErrInsufficientBits is returned when there are not enough bits to read.
var ErrInsufficientBits = errors.New("apdu: insufficient bits")

// bitReader reads MSB-first bit fields from a byte slice.
type bitReader struct {
	data   []byte
	offset int // current bit offset
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

// readBits reads up to 31 bits from the stream.
func (br *bitReader) readBits(nbits int) (uint32, error) {
	if nbits <= 0 || nbits > 31 {
		return 0, errors.New("apdu: invalid bit count")
	}
	if br.offset+nbits > len(br.data)*8 {
		return 0, ErrInsufficientBits
	}

	byteOffset := br.offset / 8
	bitOffset := br.offset % 8

	var accum uint64
	bytesNeeded := (bitOffset + nbits + 7) / 8
	for i := 0; i < bytesNeeded; i++ {
		accum = (accum << 8) | uint64(br.data[byteOffset+i])
	}

	shift := (bytesNeeded * 8) - bitOffset - nbits
	accum >>= shift
	accum &= (1 << nbits) - 1

	br.offset += nbits
	return uint32(accum), nil
}

// byteBoundary returns the index of the first whole byte after the bits
// consumed so far.
func (br *bitReader) byteBoundary() int {
	return (br.offset-1)/8 + 1
}
