package pirep

import (
	"strings"
	"testing"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func frame(text string) *reconstruct.Frame {
	return &reconstruct.Frame{
		ReceivedAt: time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC),
		Station:    "42~-71",
		APDU:       &apdu.APDU{ProductID: 413, Text: text},
	}
}

func TestNormalizePIREP(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	text := "PIREP BOS 241430Z BOS UA /OV KBOS090010 /TM 1430 /FL085 /TP BE20 /TB LGT /RM SMOOTH ABV 080"
	records, err := n.Normalize(frame(text), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Type != products.TypePIREP || r.ReportType != "UA" {
		t.Errorf("identity = %+v", r)
	}
	if r.Station != "BOS" {
		t.Errorf("station = %q", r.Station)
	}

	wantFields := map[string]string{
		"ov": "KBOS090010",
		"tm": "1430",
		"fl": "085",
		"tp": "BE20",
		"tb": "LGT",
		"rm": "SMOOTH ABV 080",
	}
	for key, want := range wantFields {
		if got := r.Fields[key]; got != want {
			t.Errorf("field %s = %q, want %q", key, got, want)
		}
	}

	wantReport := time.Date(2026, 8, 24, 14, 30, 0, 0, time.UTC)
	if !r.ReportTime.Equal(wantReport) {
		t.Errorf("report_time = %v", r.ReportTime)
	}
	// Defaults key the expiration off the report time.
	if !r.ExpirationTime.Equal(wantReport.Add(cfg.PirepExpire)) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}

	if strings.Contains(r.UniqueName, " ") {
		t.Errorf("unique_name has spaces: %q", r.UniqueName)
	}
	if !strings.HasPrefix(r.UniqueName, "UABOS") {
		t.Errorf("unique_name = %q", r.UniqueName)
	}
}

func TestNormalizeExpiresFromReception(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()
	cfg.PirepUseReportTime = false

	text := "PIREP BOS 241430Z BOS UUA /OV KBOS /TM 1430 /FL085 /TP B738 /TB SEV"
	records, err := n.Normalize(frame(text), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	r := records[0]
	if r.ReportType != "UUA" {
		t.Errorf("report_type = %q", r.ReportType)
	}
	rcvd := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	if !r.ExpirationTime.Equal(rcvd.Add(cfg.PirepExpire)) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	if _, err := n.Normalize(frame("PIREP GARBAGE"), &cfg); err == nil {
		t.Error("malformed report normalized")
	}
}

func TestSplitFieldsMarkerInsideRemark(t *testing.T) {
	// '/OVC' inside a remark must not split as an /OV field.
	fields, err := splitFields("/OV KBOS /RM BKN-/OVC LYR")
	if err != nil {
		t.Fatalf("splitFields: %v", err)
	}
	if fields["ov"] != "KBOS" {
		t.Errorf("ov = %q", fields["ov"])
	}
	if fields["rm"] != "BKN-/OVC LYR" {
		t.Errorf("rm = %q", fields["rm"])
	}
}

func TestSplitFieldsShortField(t *testing.T) {
	if _, err := splitFields("X /TM 1430"); err == nil {
		t.Error("short leading field accepted")
	}
}
