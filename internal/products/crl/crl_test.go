package crl

import (
	"testing"
	"time"

	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
	"fisb_decode/internal/uplink"
)

var rcvd = time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)

func frame(c *uplink.CRL) *reconstruct.Frame {
	return &reconstruct.Frame{
		ReceivedAt: rcvd,
		Station:    "42~-71",
		CRL:        c,
	}
}

func TestNormalizeCRL(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	c := &uplink.CRL{
		ProductID: 8,
		RangeNM:   100,
		OFlag:     1,
		Reports: []uplink.CRLReport{
			{ReportYearOrMonth: 26, ReportNumber: 100, TextFlag: 1, GraphicsFlag: 1},
			{ReportYearOrMonth: 26, ReportNumber: 101, TextFlag: 1, GraphicsFlag: 0},
			{ReportYearOrMonth: 26, ReportNumber: 102, TextFlag: 0, GraphicsFlag: 1},
		},
	}
	records, err := n.Normalize(frame(c), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Type != products.TypeCRL || r.UniqueName != "CRL-8-42~-71" {
		t.Errorf("identity = %+v", r)
	}
	if r.ProductID != 8 || r.RangeNM != 100 || !r.HasOverflow || !r.NoMsgDigest {
		t.Errorf("fields = %+v", r)
	}
	want := []string{"26-100/TG", "26-101/TO", "26-102/GO"}
	if len(r.Reports) != len(want) {
		t.Fatalf("reports = %+v", r.Reports)
	}
	for i, s := range want {
		if r.Reports[i] != s {
			t.Errorf("report %d = %q, want %q", i, r.Reports[i], s)
		}
	}
	// NOTAM CRLs retransmit every 10 minutes; expire at twice that.
	if !r.ExpirationTime.Equal(rcvd.Add(20 * time.Minute)) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
}

func TestNormalizeEmptyCRL(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	records, err := n.Normalize(frame(&uplink.CRL{ProductID: 12}), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	r := records[0]
	if r.Reports == nil || len(r.Reports) != 0 {
		t.Errorf("reports = %#v", r.Reports)
	}
	// WST CRLs retransmit every 5 minutes.
	if !r.ExpirationTime.Equal(rcvd.Add(10 * time.Minute)) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
}

func TestNormalizeSkipsStuckReports(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	c := &uplink.CRL{
		ProductID: 12,
		Reports: []uplink.CRLReport{
			{ReportYearOrMonth: 20, ReportNumber: 7489, TextFlag: 1},
			{ReportYearOrMonth: 26, ReportNumber: 33, TextFlag: 1},
		},
	}
	records, err := n.Normalize(frame(c), &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	r := records[0]
	if len(r.Reports) != 1 || r.Reports[0] != "26-33/TO" {
		t.Errorf("reports = %+v", r.Reports)
	}
}

func TestNormalizeRejectsUnknownProduct(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	if _, err := n.Normalize(frame(&uplink.CRL{ProductID: 13}), &cfg); err == nil {
		t.Error("product without a CRL accepted")
	}
}

func TestNormalizeRejectsEmptyReportEntry(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	c := &uplink.CRL{
		ProductID: 8,
		Reports:   []uplink.CRLReport{{ReportYearOrMonth: 26, ReportNumber: 1}},
	}
	if _, err := n.Normalize(frame(c), &cfg); err == nil {
		t.Error("report with neither section accepted")
	}
}
