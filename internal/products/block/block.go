// Package block normalizes the global-block imagery products: regional and
// CONUS NEXRAD, turbulence, icing, cloud tops, and lightning. One frame can
// come out as several records: empty-block runs expand to one record per
// block, and blocks above 60 degrees latitude split in two.
package block

import (
	"fmt"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

type normalizer struct{}

func (n *normalizer) Name() string { return "block" }

func (n *normalizer) Keys() []string {
	return []string{"63", "64", "70", "71", "84", "90", "91", "103"}
}

func (n *normalizer) Priority() int          { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	b := f.APDU.Block
	if b == nil {
		return nil, fmt.Errorf("block: frame has no block contents")
	}

	// Every part of one image shares a single time; a newer time starts a
	// different image. For observations it is the issue time, for
	// forecasts the valid time.
	eventDate := fisbtime.FromHourMinute(f.ReceivedAt, f.APDU.Hour, f.APDU.Minute, true)

	info, err := productInfo(f.APDU.ProductID, b.AltitudeLevel, cfg)
	if err != nil {
		return nil, err
	}
	expiration := eventDate.Add(info.expire)

	if b.ElementID == 0 {
		return emptyBlockRecords(b, info, eventDate, expiration), nil
	}

	altBN := alternateBlockNumber(b.BlockNumber, b.ScaleFactor)
	rec := newRecord(info, eventDate, expiration, altBN, b.ScaleFactor)

	if !above60Degrees(altBN, b.ScaleFactor) {
		rec.Bins = b.Bins
		return []*products.Record{rec}, nil
	}

	// Above 60 degrees only even block numbers are sent, each covering
	// two columns at half resolution. Split into a west and east half and
	// double every bin to keep the column grid uniform.
	west, east := splitHighLatitudeBins(b.Bins)
	rec.Bins = west

	twin := newRecord(info, eventDate, expiration, altBN+1, b.ScaleFactor)
	twin.Bins = east

	return []*products.Record{rec, twin}, nil
}

// blockInfo is the per-product naming and expiration policy.
type blockInfo struct {
	name        string
	abbr        string
	expire      time.Duration
	observation bool
}

func productInfo(productID, altitudeLevel int, cfg *products.Config) (blockInfo, error) {
	switch productID {
	case 63:
		return blockInfo{"NEXRAD_REGIONAL", "NR", cfg.NexradRegionalExpire, true}, nil
	case 64:
		return blockInfo{"NEXRAD_CONUS", "NC", cfg.NexradConusExpire, true}, nil
	case 90, 91:
		return blockInfo{
			fmt.Sprintf("TURBULENCE_%05d", altitudeLevel),
			fmt.Sprintf("T%d", altitudeLevel),
			cfg.TurbulenceExpire, false,
		}, nil
	case 70, 71:
		return blockInfo{
			fmt.Sprintf("ICING_%05d", altitudeLevel),
			fmt.Sprintf("I%d", altitudeLevel),
			cfg.IcingExpire, false,
		}, nil
	case 84:
		return blockInfo{"CLOUD_TOPS", "CT", cfg.CloudTopsExpire, false}, nil
	case 103:
		return blockInfo{"LIGHTNING", "LGT", cfg.LightningExpire, true}, nil
	}
	return blockInfo{}, fmt.Errorf("block: unknown product id %d", productID)
}

func newRecord(info blockInfo, eventDate, expiration time.Time, altBN, scale int) *products.Record {
	rec := &products.Record{
		Type:           info.name,
		UniqueName:     info.abbr + "-" + eventDate.Format(fisbtime.ISO8601),
		AltBlockNumber: intPtr(altBN),
		ScaleFactor:    intPtr(scale),
		ExpirationTime: expiration,
	}
	if info.observation {
		rec.ObservationTime = eventDate
	} else {
		rec.ValidTime = eventDate
	}
	return rec
}

// alternateBlockNumber reinterprets a FIS-B block number as row*1000+col,
// with the row of latitude counted up from the equator and the column of
// longitude counted east from the prime meridian. Standard block numbers
// just increase around the globe, which makes vertical stacking hard to
// see; the alternate form puts same-numbered columns above one another.
func alternateBlockNumber(blockNumber, scaleFactor int) int {
	offset, div := 0, 1
	switch scaleFactor {
	case 1:
		offset, div = 1800, 5
	case 2:
		offset, div = 3600, 9
	}

	row := (blockNumber - offset) / (offset + 450)
	col := (blockNumber - offset) % (offset + 450) / div
	return row*1000 + col
}

// above60Degrees reports whether the alternate block number sits at or
// above 60 degrees latitude, where only even blocks are sent.
func above60Degrees(altBN, scaleFactor int) bool {
	row := altBN / 1000
	switch scaleFactor {
	case 0:
		return row >= 900
	case 1:
		return row >= 180
	default:
		return row >= 100
	}
}

// splitHighLatitudeBins splits a 4x32 high latitude block into its west
// half (columns 0-15) and east half (columns 16-31), doubling each bin to
// restore full column width.
func splitHighLatitudeBins(bins []byte) (west, east []byte) {
	west = make([]byte, 0, apdu.BinsPerBlock)
	east = make([]byte, 0, apdu.BinsPerBlock)
	for row := 0; row < 4; row++ {
		for col := 0; col < 16; col++ {
			w := bins[row*32+col]
			e := bins[row*32+col+16]
			west = append(west, w, w)
			east = append(east, e, e)
		}
	}
	return west, east
}

// emptyBlockRecords expands an empty-block frame into one zero-bin record
// per empty block. The block named in the frame is itself empty, so the
// bitmap gets a leading '1'.
func emptyBlockRecords(b *apdu.Block, info blockInfo, eventDate, expiration time.Time) []*products.Record {
	emptyBins := make([]byte, apdu.BinsPerBlock)

	blockIncr := 1
	switch b.ScaleFactor {
	case 1:
		blockIncr = 5
	case 2:
		blockIncr = 9
	}

	var out []*products.Record
	blockNumber := b.BlockNumber
	for _, c := range "1" + b.EmptyBlocks {
		if c == '1' {
			altBN := alternateBlockNumber(blockNumber, b.ScaleFactor)
			rec := newRecord(info, eventDate, expiration, altBN, b.ScaleFactor)
			rec.Bins = emptyBins
			out = append(out, rec)

			// High latitude blocks cover two columns.
			if above60Degrees(altBN, b.ScaleFactor) {
				twin := newRecord(info, eventDate, expiration, altBN+1, b.ScaleFactor)
				twin.Bins = emptyBins
				out = append(out, twin)
			}
		}

		if blockNumber >= 405000 && b.ScaleFactor == 1 {
			blockNumber += 2
		} else {
			blockNumber += blockIncr
		}
	}

	return out
}

func intPtr(v int) *int { return &v }
