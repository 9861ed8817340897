// Package taf normalizes terminal aerodrome forecasts from the generic
// text product.
package taf

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

// Naval Air Stations issue TAFs with no Zulu time before the valid period
// (i.e. "TAF KNSE 1815/1915 ..."); the valid period start stands in for the
// issued time.
var formats = patterns.NewCompiler([]patterns.Format{
	{
		Name:    "taf",
		Pattern: `^(?P<kind>TAF|TAF\.AMD|TAF COR) (?P<location>{ICAO4}) (?P<issued>{DDHHMMANY})Z (?P<begin>{DDHH})/(?P<end>{DDHH})`,
	},
	{
		Name:    "taf_naval",
		Pattern: `^(?P<kind>TAF|TAF\.AMD|TAF COR) (?P<location>{ICAO4}) (?P<begin>{DDHH})/(?P<end>{DDHH})`,
	},
}, nil).MustCompile()

type normalizer struct{}

func (n *normalizer) Name() string   { return "taf" }
func (n *normalizer) Keys() []string { return []string{"413"} }
func (n *normalizer) Priority() int  { return 20 }

func (n *normalizer) QuickCheck(text string) bool {
	return strings.HasPrefix(text, "TAF")
}

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	contents := fisbtime.CleanText(f.APDU.Text)

	m := formats.Parse(contents)
	if m == nil {
		return nil, fmt.Errorf("taf: report did not match any template")
	}

	begin, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["begin"])
	if err != nil {
		return nil, fmt.Errorf("taf: valid period begin: %w", err)
	}
	end, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["end"])
	if err != nil {
		return nil, fmt.Errorf("taf: valid period end: %w", err)
	}

	issued := begin
	if m.FormatName == "taf" {
		issued, err = fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["issued"])
		if err != nil {
			return nil, fmt.Errorf("taf: issued time: %w", err)
		}
	}

	location := m.Captures["location"]

	return []*products.Record{{
		Type:                 products.TypeTAF,
		UniqueName:           location,
		Location:             location,
		Contents:             contents,
		IssuedTime:           issued,
		ValidPeriodBeginTime: begin,
		ValidPeriodEndTime:   end,
		ExpirationTime:       end,
	}}, nil
}
