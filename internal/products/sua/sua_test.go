package sua

import (
	"strings"
	"testing"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func frame(status int, fields []string) *reconstruct.Frame {
	return &reconstruct.Frame{
		ReceivedAt: time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC),
		Station:    "42~-71",
		APDU: &apdu.APDU{
			ProductID: 13,
			TWGO: &apdu.TWGO{
				RecordFormat: apdu.RecordFormatText,
				Records: []apdu.TWGORecord{{
					ReportNumber: 55,
					ReportYear:   26,
					ReportStatus: status,
					Text:         strings.Join(fields, "|"),
				}},
			},
		},
	}
}

func report() []string {
	return []string{
		"SUA 241200 SCHED123",
		"R2903B",
		"W",
		"R",
		"PINECASTLE",
		"2608241300",
		"2608241800",
		"0",
		"50",
		"A",
		"Y",
		"R2903B",
		"R-2903B PINECASTLE",
		"",
		"",
	}
}

func TestNormalizeSUA(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	records, err := n.Normalize(frame(1, report()), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Type != products.TypeSUA || r.UniqueName != "26-55" {
		t.Errorf("identity = %+v", r)
	}
	if r.AirspaceID != "R2903B" || r.AirspaceType != "R" || r.AirspaceName != "PINECASTLE" {
		t.Errorf("airspace = %+v", r)
	}
	if r.ScheduleID != "SCHED123" || r.Status != "W" || r.SeparationRule != "A" {
		t.Errorf("schedule = %+v", r)
	}
	// Altitudes transmit in hundreds of feet.
	if r.LowAltitude != 0 || r.HighAltitude != 5000 {
		t.Errorf("altitudes = %d / %d", r.LowAltitude, r.HighAltitude)
	}
	wantStart := time.Date(2026, 8, 24, 13, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 8, 24, 18, 0, 0, 0, time.UTC)
	if !r.StartTime.Equal(wantStart) || !r.EndTime.Equal(wantEnd) {
		t.Errorf("schedule times = %v / %v", r.StartTime, r.EndTime)
	}
	if !r.ExpirationTime.Equal(wantEnd) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
	if r.NFDCID != "R2903B" || r.NFDCName != "R-2903B PINECASTLE" {
		t.Errorf("nfdc = %q / %q", r.NFDCID, r.NFDCName)
	}
}

func TestNormalizeBlankSeparationAndCatalog(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	fields := report()
	fields[fieldSeparationRule] = " "
	fields[fieldNFDCID] = ""
	fields[fieldNFDCName] = ""

	records, err := n.Normalize(frame(1, fields), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	r := records[0]
	if r.SeparationRule != "U" {
		t.Errorf("separation_rule = %q", r.SeparationRule)
	}
	if r.NFDCID != "" || r.NFDCName != "" || r.DAFIFID != "" || r.DAFIFName != "" {
		t.Errorf("catalog fields set: %+v", r)
	}
}

func TestNormalizeRejectsCancellation(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	if _, err := n.Normalize(frame(0, report()), &cfg); err == nil {
		t.Error("cancellation accepted")
	}
}

func TestNormalizeRejectsShortReport(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	if _, err := n.Normalize(frame(1, report()[:8]), &cfg); err == nil {
		t.Error("short report accepted")
	}
}
