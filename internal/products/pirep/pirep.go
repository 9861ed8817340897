// Package pirep normalizes pilot reports from the generic text product.
package pirep

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
		Name:    "pirep",
		Pattern: `^(?P<kind>PIREP) (?P<ov_loc>{WORD}) (?P<report_time>{DDHHMMANY})Z (?P<station>{WORD}) (?P<report_type>UA|UUA) (?P<report>{REST})`,
	},
}, nil).MustCompile()

// Field markers of a PIREP report. The space after /OV prevents a bad
// parse when a remark contains something like '/OVC'.
var fieldMarkers = []string{
	"/OV ", "/TM", "/FL", "/TP", "/TB", "/SK", "/RM",
	"/WX", "/TA", "/WV", "/IC",
}

type normalizer struct{}

func (n *normalizer) Name() string   { return "pirep" }
func (n *normalizer) Keys() []string { return []string{"413"} }
func (n *normalizer) Priority() int  { return 40 }

func (n *normalizer) QuickCheck(text string) bool {
	return strings.HasPrefix(text, "PIREP")
}

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	contents := fisbtime.CleanText(f.APDU.Text)

	// PIREPs have some human input so are more prone to errors.
	m := formats.Parse(contents)
	if m == nil {
		return nil, fmt.Errorf("pirep: report did not match template")
	}

	report := m.Captures["report"]
	fields, err := splitFields(report)
	if err != nil {
		return nil, err
	}

	reportTime, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["report_time"])
	if err != nil {
		return nil, fmt.Errorf("pirep: report time: %w", err)
	}

	// Keying the expiration off the report time is the better option, but
	// the standard only mandates 75 minutes from last reception.
	expireFrom := f.ReceivedAt
	if cfg.PirepUseReportTime {
		expireFrom = reportTime
	}

	// The location ahead of the report type is invented by the FIS-B
	// producer from the /OV field and is not usable; the station after the
	// time is the real reporting location.
	return []*products.Record{{
		Type:           products.TypePIREP,
		UniqueName:     m.Captures["report_type"] + m.Captures["station"] + strings.ReplaceAll(report, " ", ""),
		ReportType:     m.Captures["report_type"],
		Station:        m.Captures["station"],
		Contents:       contents,
		Fields:         fields,
		ReportTime:     reportTime,
		ExpirationTime: expireFrom.Add(cfg.PirepExpire),
	}}, nil
}

// splitFields breaks the report into its slash-delimited fields. A slash
// can also appear inside field contents, so only the known markers split.
func splitFields(report string) (map[string]string, error) {
	for _, marker := range fieldMarkers {
		replacement := "~" + marker[1:3]
		report = strings.ReplaceAll(report, marker, replacement)
	}

	fields := make(map[string]string)
	for _, part := range strings.Split(report, "~") {
		part = strings.TrimSpace(part)

		// The first '~' always generates an empty field.
		if part == "" {
			continue
		}
		if len(part) < 2 {
			return nil, fmt.Errorf("pirep: field %q too short", part)
		}
		fields[strings.ToLower(part[0:2])] = strings.TrimSpace(part[2:])
	}

	return fields, nil
}
