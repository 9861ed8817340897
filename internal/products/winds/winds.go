// Package winds normalizes winds and temperatures aloft forecasts from the
// generic text product.
package winds

import (
	"fmt"
	"strconv"
	"strings"
	"time"

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
		Name:    "winds",
		Pattern: `^(?P<kind>WINDS) (?P<location>{LOC3}) (?P<valid>{DDHHMMANY})Z`,
	},
}, nil).MustCompile()

// The transmission never says which forecast it is. The only clues are the
// valid time in the message and the product available time in the APDU
// header; DO-358B table A-9 maps the pair to the 6, 12, or 24 hour
// forecast. -1 marks pairings that never occur.
//
//	Prod Avail | 0600  1200  1800  0000  <-- Valid Times
//	+----------+-----------------------+
//	|   0200   |   6    12    NA    24 |
//	|   0800   |  24     6    12    NA |
//	|   1400   |  NA    24     6    12 |
//	|   2000   |  12    NA    24     6 |
//	+----------+-----------------------+
var windMatrix = [4][4]int{
	{6, 12, -1, 24},
	{24, 6, 12, -1},
	{-1, 24, 6, 12},
	{12, -1, 24, 6},
}

type normalizer struct{}

func (n *normalizer) Name() string   { return "winds" }
func (n *normalizer) Keys() []string { return []string{"413"} }
func (n *normalizer) Priority() int  { return 30 }

func (n *normalizer) QuickCheck(text string) bool {
	return strings.HasPrefix(text, "WINDS")
}

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	contents := fisbtime.CleanText(f.APDU.Text)

	m := formats.Parse(contents)
	if m == nil {
		return nil, fmt.Errorf("winds: report did not match template")
	}

	// The first line just repeats the altitude header; only the wind
	// values matter once the location and time are decoded.
	lines := strings.SplitN(contents, "\n", 3)
	if len(lines) < 2 {
		return nil, fmt.Errorf("winds: report has no value line")
	}
	values := strings.TrimRight(lines[1], " \t\r")

	hours, err := forecastHours(f.APDU.Hour, m.Captures["valid"])
	if err != nil {
		return nil, err
	}

	// The valid time is the only time with a day attached, so everything
	// else is computed from it.
	valid, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["valid"])
	if err != nil {
		return nil, fmt.Errorf("winds: valid time: %w", err)
	}

	var (
		prodName         string
		issued, modelRun time.Time
		useFrom, useTo   time.Time
		expiration       time.Time
	)
	switch hours {
	case 6:
		prodName = "WINDS_06_HR"
		issued = valid.Add(-4 * time.Hour)
		modelRun = valid.Add(-6 * time.Hour)
		useFrom = valid.Add(-4 * time.Hour)
		useTo = valid.Add(3 * time.Hour)
		// The 6 hour forecast has to stay around until the next one
		// arrives, unlike the longer ranges.
		expiration = useTo.AddDate(0, 0, 1)
	case 12:
		prodName = "WINDS_12_HR"
		issued = valid.Add(-10 * time.Hour)
		modelRun = valid.Add(-12 * time.Hour)
		useFrom = valid.Add(-3 * time.Hour)
		useTo = valid.Add(6 * time.Hour)
		expiration = useTo
	case 24:
		prodName = "WINDS_24_HR"
		issued = valid.Add(-22 * time.Hour)
		modelRun = valid.Add(-24 * time.Hour)
		useFrom = valid.Add(-6 * time.Hour)
		useTo = valid.Add(6 * time.Hour)
		expiration = useTo
	}

	location := m.Captures["location"]

	return []*products.Record{{
		Type:           prodName,
		UniqueName:     location,
		Location:       location,
		Contents:       values,
		IssuedTime:     issued,
		ValidTime:      valid,
		ModelRunTime:   modelRun,
		ForUseFromTime: useFrom,
		ForUseToTime:   useTo,
		ExpirationTime: expiration,
	}}, nil
}

// forecastHours resolves the forecast length from the product available
// hour and the valid time string.
func forecastHours(apduHour int, validTime string) (int, error) {
	var paIdx int
	switch {
	case apduHour >= 1 && apduHour < 3: // 0200
		paIdx = 0
	case apduHour >= 7 && apduHour < 9: // 0800
		paIdx = 1
	case apduHour >= 13 && apduHour < 15: // 1400
		paIdx = 2
	case apduHour >= 19 && apduHour < 21: // 2000
		paIdx = 3
	default:
		return 0, fmt.Errorf("winds: product available hour %d not valid", apduHour)
	}

	hhmm, err := strconv.Atoi(validTime[2:])
	if err != nil {
		return 0, fmt.Errorf("winds: valid time %q: %w", validTime, err)
	}

	var vtIdx int
	switch hhmm {
	case 600:
		vtIdx = 0
	case 1200:
		vtIdx = 1
	case 1800:
		vtIdx = 2
	case 0:
		vtIdx = 3
	default:
		return 0, fmt.Errorf("winds: valid time %q not legal", validTime)
	}

	hours := windMatrix[paIdx][vtIdx]
	if hours == -1 {
		return 0, fmt.Errorf("winds: no forecast for hour %d at valid time %q", apduHour, validTime)
	}
	return hours, nil
}
