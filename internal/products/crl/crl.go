// Package crl normalizes current report list frames. Each ground station
// sends one CRL per product it carries, listing every report currently in
// transmission; the harvester uses them to mark reports complete.
package crl

import (
	"fmt"
	"strconv"
	"time"

	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

// Reports stuck in the system that never expire; the sigwx normalizer
// ignores their text too.
var badReportsCRL12 = map[string]bool{
	"20-7489": true,
	"20-7676": true,
}

type normalizer struct{}

func (n *normalizer) Name() string           { return "crl" }
func (n *normalizer) Keys() []string         { return []string{"crl"} }
func (n *normalizer) Priority() int          { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	c := f.CRL

	// The CRL expires at twice the nominal transmission interval of its
	// product (DO-358B table C-1).
	var expire time.Duration
	switch c.ProductID {
	case 8, 15, 16, 17:
		expire = 2 * 10 * time.Minute
	case 11, 12, 14:
		expire = 2 * 5 * time.Minute
	default:
		return nil, fmt.Errorf("crl: no CRL defined for product %d", c.ProductID)
	}

	rec := &products.Record{
		Type:           products.TypeCRL,
		UniqueName:     "CRL-" + strconv.Itoa(c.ProductID) + "-" + f.Station,
		Station:        f.Station,
		ProductID:      c.ProductID,
		RangeNM:        c.RangeNM,
		HasOverflow:    c.OFlag == 1,
		NoMsgDigest:    true,
		Reports:        []string{},
		ExpirationTime: f.ReceivedAt.Add(expire),
	}

	for _, r := range c.Reports {
		// For NOTAM-TRA and NOTAM-TMOA the year field is really the
		// report month (DO-358B); the identity format is the same either
		// way.
		name := strconv.Itoa(r.ReportYearOrMonth) + "-" + strconv.Itoa(r.ReportNumber)

		if c.ProductID == 12 && badReportsCRL12[name] {
			continue
		}

		// A report isn't complete until every listed section arrived, so
		// each entry says which parts exist.
		var suffix string
		switch {
		case r.TextFlag == 1 && r.GraphicsFlag == 1:
			suffix = "/TG"
		case r.TextFlag == 0 && r.GraphicsFlag == 1:
			suffix = "/GO"
		case r.TextFlag == 1 && r.GraphicsFlag == 0:
			suffix = "/TO"
		default:
			return nil, fmt.Errorf("crl: report %s has neither text nor graphics", name)
		}

		rec.Reports = append(rec.Reports, name+suffix)
	}

	return []*products.Record{rec}, nil
}
