package metar

import (
	"testing"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func frame(text string) *reconstruct.Frame {
	return &reconstruct.Frame{
		ReceivedAt: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
		Station:    "42~-71",
		APDU:       &apdu.APDU{ProductID: 413, Text: text},
	}
}

func TestNormalizeMETAR(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	records, err := n.Normalize(frame("METAR KBOS 241154Z 27008KT 10SM FEW250 24/12 A3012\n\n"), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Type != products.TypeMETAR || r.UniqueName != "KBOS" || r.Location != "KBOS" {
		t.Errorf("identity = %+v", r)
	}
	if r.Contents != "METAR KBOS 241154Z 27008KT 10SM FEW250 24/12 A3012" {
		t.Errorf("contents = %q", r.Contents)
	}
	wantObs := time.Date(2026, 8, 24, 11, 54, 0, 0, time.UTC)
	if !r.ObservationTime.Equal(wantObs) {
		t.Errorf("observation_time = %v", r.ObservationTime)
	}
	if !r.ExpirationTime.Equal(wantObs.Add(cfg.MetarExpire)) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
}

func TestNormalizeSPECI(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	records, err := n.Normalize(frame("SPECI KJFK 241225Z 31012G20KT 3SM BR OVC008 18/16 A2995"), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if records[0].UniqueName != "KJFK" {
		t.Errorf("unique_name = %q", records[0].UniqueName)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	if _, err := n.Normalize(frame("METAR KB 241154Z"), &cfg); err == nil {
		t.Error("malformed report normalized")
	}
}

func TestQuickCheck(t *testing.T) {
	n := &normalizer{}
	if !n.QuickCheck("METAR KBOS") || !n.QuickCheck("SPECI KJFK") {
		t.Error("own prefixes rejected")
	}
	if n.QuickCheck("TAF KBOS") {
		t.Error("foreign prefix accepted")
	}
}
