// Package metar normalizes METAR and SPECI surface observations from the
// generic text product.
package metar

import (
	"fmt"
	"strings"

	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/patterns"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

var formats = patterns.NewCompiler([]patterns.Format{
	{
		Name:    "metar",
		Pattern: `^(?P<kind>METAR|SPECI) (?P<location>{ICAO4}) (?P<obs_time>{DDHHMMANY})`,
	},
}, nil).MustCompile()

type normalizer struct{}

func (n *normalizer) Name() string   { return "metar" }
func (n *normalizer) Keys() []string { return []string{"413"} }
func (n *normalizer) Priority() int  { return 10 }

func (n *normalizer) QuickCheck(text string) bool {
	return strings.HasPrefix(text, "METAR") || strings.HasPrefix(text, "SPECI")
}

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	contents := fisbtime.CleanText(f.APDU.Text)

	m := formats.Parse(contents)
	if m == nil {
		return nil, fmt.Errorf("metar: report did not match template")
	}

	location := m.Captures["location"]
	obs, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["obs_time"])
	if err != nil {
		return nil, fmt.Errorf("metar: observation time: %w", err)
	}

	return []*products.Record{{
		Type:            products.TypeMETAR,
		UniqueName:      location,
		Location:        location,
		Contents:        contents,
		ObservationTime: obs,
		ExpirationTime:  obs.Add(cfg.MetarExpire),
	}}, nil
}
