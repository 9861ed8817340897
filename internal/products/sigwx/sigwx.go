// Package sigwx normalizes the significant weather text products: AIRMET
// and SIGMET (11), WST convective sigmets (12), and CWA center weather
// advisories (15). The record type comes from the first token of the
// report itself.
package sigwx

import (
	"fmt"
	"strconv"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/patterns"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

// Some SIGMETs arrive with no station ahead of the time, so a second
// format catches those.
var formats = patterns.NewCompiler([]patterns.Format{
	{
		Name:    "header",
		Pattern: `(?P<report_type>{WORD}) (?P<station>{WORD}) (?P<issued>{DDHHMM})`,
	},
	{
		Name:    "header_no_station",
		Pattern: `(?P<report_type>{WORD}) +(?P<issued>{DDHHMM})`,
	},
}, nil).MustCompile()

// Messages stuck in the system, some for over a year. Until the provider
// clears them they are dropped here and in the CRL.
var badMessages = []string{
	"WST KMKC 062057 CONVECTIVE SIGMET 99C\nFL TN AL MS LA AR TX OK AND FL AL MS LA CSTL WTRS\nFROM 20ENE MEM-20NNW VUZ-110S CEW-50SSW LSU-70NW GGG-10SSW\nFSM-20ENE MEM\nAREA TS MOV LTL. TOPS TO FL410.\n",
	"WST KMKC 170253 CONVECTIVE SIGMET 3E\nNC AND NC SC CSTL WTRS\nFROM 40S ECG-120SE ECG-200SE ILM-120SSE ILM-30WSW ILM-40S ECG\nAREA EMBD TS MOV FROM 17015KT. TOPS TO FL430.\n",
}

type normalizer struct{}

func (n *normalizer) Name() string           { return "sigwx" }
func (n *normalizer) Keys() []string         { return []string{"11", "12", "15"} }
func (n *normalizer) Priority() int          { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	t := f.Text
	if t == nil || len(t.Records) == 0 {
		return nil, fmt.Errorf("sigwx: frame has no text section")
	}
	record := t.Records[0]
	reportID := strconv.Itoa(record.ReportYear) + "-" + strconv.Itoa(record.ReportNumber)

	// A cancelled CWA is the only cancellation these products send.
	if f.APDU.ProductID == 15 && t.RecordFormat == apdu.RecordFormatText &&
		record.ReportStatus == 0 {
		return []*products.Record{{
			Type:           products.TypeCancelCWA,
			UniqueName:     reportID,
			ExpirationTime: f.ReceivedAt.Add(cfg.CancelExpire),
		}}, nil
	}

	for _, bad := range badMessages {
		if record.Text == bad {
			return nil, nil
		}
	}

	if record.Text == "" {
		return nil, fmt.Errorf("sigwx: empty text in TWGO type %d", f.APDU.ProductID)
	}
	text := fisbtime.CleanText(record.Text)

	m := formats.Parse(text)
	if m == nil {
		return nil, fmt.Errorf("sigwx: header did not match: %q", text)
	}

	issued, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["issued"])
	if err != nil {
		return nil, fmt.Errorf("sigwx: issued time: %w", err)
	}

	rec := &products.Record{
		Type:       m.Captures["report_type"],
		UniqueName: reportID,
		Station:    f.Station,
		IssuedTime: issued,
		Contents:   text,
	}

	if f.Graphics != nil && len(f.Graphics.Records) > 0 {
		g0 := f.Graphics.Records[0]
		if g0.GeometryOptions != apdu.GeoPolygonMSL && g0.GeometryOptions != apdu.GeoPolygonAGL {
			return nil, fmt.Errorf("sigwx: overlay geometry %d in TWGO type %d",
				g0.GeometryOptions, f.APDU.ProductID)
		}

		// Some test data has no start and stop times.
		if g0.ApplicabilityOptions == 3 {
			rec.ForUseFromTime = fisbtime.ComponentsReferenced(issued,
				g0.StartMonth, g0.StartDay, g0.StartHour, g0.StartMinute)
			rec.ForUseToTime = fisbtime.ComponentsReferenced(issued,
				g0.StopMonth, g0.StopDay, g0.StopHour, g0.StopMinute)
		}

		geometry, err := products.ProcessGeometry(f.Graphics.Records, issued, f.APDU.ProductID)
		if err != nil {
			return nil, err
		}
		rec.Geometry = geometry
	}

	rec.ExpirationTime = products.TwgoExpiration(cfg, f.ReceivedAt, rec.Geometry, time.Time{})
	return []*products.Record{rec}, nil
}
