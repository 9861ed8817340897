// Package notam normalizes the NOTAM products (8, 16, 17): TFR NOTAMs,
// regular D/FDC notams, the TMOA and TRA airspace notams, and the FIS-B
// product unavailable reports the provider sends under the same product.
package notam

import (
	"fmt"
	"regexp"
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
		Name:    "notam_tfr",
		Pattern: `^NOTAM-TFR (?P<number>{TFRNUM}) `,
	},
	{
		Name:    "fisb_unavailable",
		Pattern: `FIS-B (?P<issued>{DDHHMM})Z (?P<centers>{WORD}) (?P<contents>{REST})`,
	},
}, nil).MustCompile()

// The FIS-B header ahead of a regular NOTAM: subtype, two locations, then
// the NOTAM itself starting with '!'.
var (
	notamRE         = regexp.MustCompile(`NOTAM-(D|FDC|TMOA|TRA) ([^ ]+) ([^ ]+) !([^ ]+) ([^ ]+) ([^ ]+) ([^ ]+)`)
	notamContentsRE = regexp.MustCompile(`(?s)NOTAM-(D|FDC|TMOA|TRA) ([^ ]+) ([^ ]+) (.+)`)

	// Start of activity and end of validity as yymmddhhmm pairs.
	notamTimesRE = regexp.MustCompile(`(\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d)-(\d\d[01]\d[0-3]\d[0-2]\d[0-5]\d|PERM)`)

	fisbProdRE = regexp.MustCompile(`^(.+) PRODUCT`)

	// Altitude clause of an SUA notam, e.g. "SFC-5000FT" or "5000FT UP TO
	// BUT NOT INCLUDING FL180".
	suaAltRE = regexp.MustCompile(`(SFC|FL\d{3}|\d+FT)(?: ?- ?| UP TO (?:BUT NOT INCLUDING )?)(SFC|FL\d{3}|\d+FT)`)
)

type normalizer struct{}

func (n *normalizer) Name() string          { return "notam" }
func (n *normalizer) Keys() []string        { return []string{"8", "16", "17"} }
func (n *normalizer) Priority() int         { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	t := f.Text
	if t == nil {
		return nil, fmt.Errorf("notam: frame has no text section")
	}

	// Should never see a record count other than 1 in a NOTAM text section.
	if len(t.Records) != 1 {
		return nil, fmt.Errorf("notam: %d text records", len(t.Records))
	}
	record := t.Records[0]

	// Report numbers repeat across years (and across months for TMOA and
	// TRA, which the CRL tracks by APDU month), so the identity pairs the
	// number with the year or month.
	var reportID string
	if f.APDU.ProductID == 16 || f.APDU.ProductID == 17 {
		reportID = strconv.Itoa(f.APDU.Month) + "-" + strconv.Itoa(record.ReportNumber)
	} else {
		reportID = strconv.Itoa(record.ReportYear) + "-" + strconv.Itoa(record.ReportNumber)
	}

	if record.ReportStatus == 0 {
		return []*products.Record{{
			Type:           products.TypeCancelNOTAM,
			UniqueName:     reportID,
			ExpirationTime: f.ReceivedAt.Add(cfg.CancelExpire),
		}}, nil
	}

	// Large NOTAMs don't resend the text every time, just the active
	// status.
	if record.Text == "" {
		return nil, nil
	}
	text := fisbtime.CleanText(record.Text)

	switch {
	case strings.HasPrefix(text, "FIS-B"):
		return n.unavailable(f, cfg, reportID, text)
	case strings.HasPrefix(text, "NOTAM-TFR"):
		return n.tfr(f, cfg, reportID, text)
	default:
		return n.notam(f, cfg, t.Location, reportID, text)
	}
}

// unavailable handles the FIS-B product unavailable reports. These come
// from the FIS-B provider, not the FAA.
func (n *normalizer) unavailable(f *reconstruct.Frame, cfg *products.Config, reportID, text string) ([]*products.Record, error) {
	// Old format used only in test data.
	if strings.HasPrefix(text, "FIS-B SERVICE OUTAGE") {
		text = "FIS-B " + text[21:]
	}

	m := formats.Parse(text)
	if m == nil || m.FormatName != "fisb_unavailable" {
		return nil, fmt.Errorf("notam: unavailable report did not match: %q", text)
	}

	issued, err := fisbtime.FromDayHourMinute(f.ReceivedAt, m.Captures["issued"])
	if err != nil {
		return nil, fmt.Errorf("notam: unavailable issued time: %w", err)
	}

	contents := m.Captures["contents"]
	prod := fisbProdRE.FindStringSubmatch(contents)
	if prod == nil {
		return nil, fmt.Errorf("notam: unavailable product did not match: %q", text)
	}

	return []*products.Record{{
		Type:           products.TypeFISBUnavailable,
		UniqueName:     reportID,
		IssuedTime:     issued,
		Contents:       contents,
		Product:        prod[1],
		Centers:        strings.Split(m.Captures["centers"], ","),
		ExpirationTime: f.ReceivedAt.Add(cfg.FISBUnavailableExpire),
	}}, nil
}

// tfr handles NOTAM-TFRs. They come from a different source than real
// notams and are usually a large glob of (INCMPL) text; the only reliable
// times are the start of activity and end of validity, when present.
func (n *normalizer) tfr(f *reconstruct.Frame, cfg *products.Config, reportID, text string) ([]*products.Record, error) {
	m := formats.Parse(text)
	if m == nil || m.FormatName != "notam_tfr" {
		return nil, fmt.Errorf("notam: TFR did not match: %q", text)
	}

	rec := &products.Record{
		Type:       products.TypeNOTAM,
		Subtype:    "TFR",
		UniqueName: reportID,
		Contents:   text,
		Station:    f.Station,
		Number:     m.Captures["number"],
	}
	if err := insertNotamDates(f.ReceivedAt, text, cfg, rec); err != nil {
		return nil, err
	}

	if err := attachGeometry(f, rec); err != nil {
		return nil, err
	}

	rec.ExpirationTime = products.TwgoExpiration(cfg, f.ReceivedAt, rec.Geometry, time.Time{})
	return []*products.Record{rec}, nil
}

// notam handles regular D, FDC, TMOA, and TRA notams.
func (n *normalizer) notam(f *reconstruct.Frame, cfg *products.Config, location, reportID, text string) ([]*products.Record, error) {
	comp := notamRE.FindStringSubmatch(text)
	body := notamContentsRE.FindStringSubmatch(text)
	if comp == nil || body == nil {
		return nil, fmt.Errorf("notam: report did not match: %q", text)
	}

	contents := body[4]
	if contents[0] != '!' {
		return nil, fmt.Errorf("notam: format problem: %q", text)
	}

	subtype := comp[1]
	accountable := comp[4]

	// Test streams reuse report numbers across D notams in a way the real
	// system doesn't. The CRL keys on number and year alone, so only
	// products without a CRL get the location appended.
	if subtype == "D" && location != "" {
		reportID = reportID + "-" + location
	}

	rec := &products.Record{
		Type:        products.TypeNOTAM,
		Subtype:     subtype,
		UniqueName:  reportID,
		Location:    location,
		Contents:    contents,
		Accountable: accountable,
		Affected:    comp[6],
		Keyword:     comp[7],
		Number:      comp[5],
		Station:     f.Station,
	}
	if err := insertNotamDates(f.ReceivedAt, text, cfg, rec); err != nil {
		return nil, err
	}

	// SUA notams (accountable SUAC, SUAE, or SUAW) carry an altitude
	// clause worth surfacing.
	if strings.HasPrefix(accountable, "SUA") {
		rec.Subtype = "D-SUA"
		if low, high, ok := parseAltitudeClause(contents); ok {
			rec.LowAltitude = low
			rec.HighAltitude = high
		}
	}

	if err := attachGeometry(f, rec); err != nil {
		return nil, err
	}

	// The end of validity is the best expiration unless it is PERM, which
	// would hide the station dropping the report.
	var notamExpire time.Time
	if !rec.EndOfValidityTime.IsZero() && !rec.EndOfValidityTime.Equal(cfg.NOTAMPermTime) {
		notamExpire = rec.EndOfValidityTime
	}

	rec.ExpirationTime = products.TwgoExpiration(cfg, f.ReceivedAt, rec.Geometry, notamExpire)
	return []*products.Record{rec}, nil
}

// attachGeometry normalizes the graphic section, if any, referenced to the
// start of activity when known.
func attachGeometry(f *reconstruct.Frame, rec *products.Record) error {
	if f.Graphics == nil {
		return nil
	}

	reference := f.ReceivedAt
	if !rec.StartOfActivityTime.IsZero() {
		reference = rec.StartOfActivityTime
	}

	geometry, err := products.ProcessGeometry(f.Graphics.Records, reference, f.APDU.ProductID)
	if err != nil {
		return err
	}
	rec.Geometry = geometry
	return nil
}

// insertNotamDates pulls the start of activity and end of validity out of
// the canonical yymmddhhmm-yymmddhhmm range. A PERM end of validity maps to
// the configured far-future date.
func insertNotamDates(rcvd time.Time, text string, cfg *products.Config, rec *products.Record) error {
	m := notamTimesRE.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	start, err := fisbtime.FromNOTAMString(rcvd.Year(), m[1])
	if err != nil {
		return fmt.Errorf("notam: start of activity: %w", err)
	}
	rec.StartOfActivityTime = start

	if m[2] == "PERM" {
		rec.EndOfValidityTime = cfg.NOTAMPermTime
		return nil
	}
	end, err := fisbtime.FromNOTAMString(rcvd.Year(), m[2])
	if err != nil {
		return fmt.Errorf("notam: end of validity: %w", err)
	}
	rec.EndOfValidityTime = end
	return nil
}

// parseAltitudeClause reads a low-high altitude pair out of SUA notam text.
// SFC is 0; flight levels convert to feet.
func parseAltitudeClause(contents string) (low, high int, ok bool) {
	m := suaAltRE.FindStringSubmatch(contents)
	if m == nil {
		return 0, 0, false
	}
	return altitudeFeet(m[1]), altitudeFeet(m[2]), true
}

func altitudeFeet(s string) int {
	switch {
	case s == "SFC":
		return 0
	case strings.HasPrefix(s, "FL"):
		fl, _ := strconv.Atoi(s[2:])
		return fl * 100
	default:
		ft, _ := strconv.Atoi(strings.TrimSuffix(s, "FT"))
		return ft
	}
}
