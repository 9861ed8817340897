package harvest

import (
	"github.com/paulmach/orb"
)

// Per-resolution bin geometry: bin height and width in arc minutes, and the
// number of blocks in one revolution of longitude. Index is the scale
// factor (0 high, 1 medium, 2 low; low is defined but never transmitted).
var binResolution = [3]struct {
	latMinutes  float64
	longMinutes float64
	columns     int
}{
	{1.0, 1.5, 450},
	{5.0, 7.5, 90},
	{9.0, 13.5, 50},
}

// splitAltBlock splits an alternate block number into its latitude row and
// longitude column.
func splitAltBlock(altBN int) (row, col int) {
	return altBN / 1000, altBN % 1000
}

// blockBound returns the geographic bound of one 4x32 bin block.
func blockBound(altBN, scale int) orb.Bound {
	res := binResolution[scale]
	row, col := splitAltBlock(altBN)

	// Pixel origin is the prime meridian going west and the equator going
	// north; columns count east, so higher columns sit further east.
	west := -(float64((res.columns - col) * 32) * res.longMinutes) / 60.0
	east := west + (32*res.longMinutes)/60.0
	south := (float64(row*4) * res.latMinutes) / 60.0
	north := south + (4*res.latMinutes)/60.0

	return orb.Bound{
		Min: orb.Point{west, south},
		Max: orb.Point{east, north},
	}
}

// binsBound unions the bounds of every block holding data.
func binsBound(bins map[int]binEntry, scale int) orb.Bound {
	var bound orb.Bound
	first := true
	for altBN := range bins {
		b := blockBound(altBN, scale)
		if first {
			bound = b
			first = false
		} else {
			bound = bound.Union(b)
		}
	}
	return bound
}

// bboxSlice renders a bound as [west, south, east, north] with 6-decimal
// coordinates.
func bboxSlice(b orb.Bound) []float64 {
	return []float64{
		round6(b.Min[0]), round6(b.Min[1]),
		round6(b.Max[0]), round6(b.Max[1]),
	}
}
