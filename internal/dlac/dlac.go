// Package dlac implements the 6-bit DLAC character encoding used for
// embedded text in FIS-B products.
package dlac

// Character table indexed by 6-bit code. Code 28 is the tab substitution:
// the following 6-bit value is a run length of spaces. Codes shown as '~'
// are unused and stripped from the final text.
const charTable = "~ABCDEFGHIJKLMNOPQRSTUVWXYZ~\t~\n| !\"#$%&'()*+,-./0123456789:;<=>?"

const tabCode = 28

// Decode converts length bytes starting at offset into text. Each group of
// 3 bytes carries 4 characters, 6-bit fields taken MSB first. A trailing
// partial group decodes as many whole 6-bit fields as fit.
func Decode(data []byte, offset, length int) string {
	if offset < 0 || length <= 0 || offset >= len(data) {
		return ""
	}
	end := offset + length
	if end > len(data) {
		end = len(data)
	}

	// Expand all 6-bit codes first, then resolve tab runs.
	var codes []int
	bitAcc := 0
	bitCount := 0
	for i := offset; i < end; i++ {
		bitAcc = (bitAcc << 8) | int(data[i])
		bitCount += 8
		for bitCount >= 6 {
			bitCount -= 6
			codes = append(codes, (bitAcc>>bitCount)&0x3F)
		}
	}

	out := make([]byte, 0, len(codes))
	for i := 0; i < len(codes); i++ {
		c := codes[i]
		if c == tabCode {
			// Next code is a count of spaces.
			if i+1 < len(codes) {
				i++
				for n := 0; n < codes[i]; n++ {
					out = append(out, ' ')
				}
			}
			continue
		}
		ch := charTable[c]
		if ch == '~' {
			continue
		}
		out = append(out, ch)
	}

	return string(out)
}
