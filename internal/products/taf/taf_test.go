package taf

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

func TestNormalizeTAF(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	text := "TAF KBOS 241130Z 2412/2512 27010KT P6SM FEW250\nFM250000 31005KT P6SM SKC"
	records, err := n.Normalize(frame(text), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Type != products.TypeTAF || r.UniqueName != "KBOS" {
		t.Errorf("identity = %+v", r)
	}

	wantIssued := time.Date(2026, 8, 24, 11, 30, 0, 0, time.UTC)
	wantBegin := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	if !r.IssuedTime.Equal(wantIssued) {
		t.Errorf("issued_time = %v", r.IssuedTime)
	}
	if !r.ValidPeriodBeginTime.Equal(wantBegin) || !r.ValidPeriodEndTime.Equal(wantEnd) {
		t.Errorf("valid period = %v / %v", r.ValidPeriodBeginTime, r.ValidPeriodEndTime)
	}
	if !r.ExpirationTime.Equal(wantEnd) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
}

func TestNormalizeNavalTAF(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	// Naval stations omit the issued time; the valid period start stands in.
	records, err := n.Normalize(frame("TAF KNSE 2415/2515 28008KT 9999 SKC QNH3010INS"), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	r := records[0]
	wantBegin := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	if !r.IssuedTime.Equal(wantBegin) || !r.ValidPeriodBeginTime.Equal(wantBegin) {
		t.Errorf("issued = %v, begin = %v", r.IssuedTime, r.ValidPeriodBeginTime)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	if _, err := n.Normalize(frame("TAF KBOS BROKEN"), &cfg); err == nil {
		t.Error("malformed report normalized")
	}
}
