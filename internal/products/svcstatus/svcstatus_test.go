package svcstatus

import (
	"testing"
	"time"

	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
	"fisb_decode/internal/uplink"
)

func TestNormalizeServiceStatus(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	rcvd := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	f := &reconstruct.Frame{
		ReceivedAt: rcvd,
		Station:    "42~-71",
		ServiceStatus: &uplink.ServiceStatus{
			Aircraft: []uplink.ServiceAircraft{
				{Address: "a0b1c2", AddressType: 0},
				{Address: "123456", AddressType: 1},
			},
		},
	}

	records, err := n.Normalize(f, &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %+v", records)
	}
	r := records[0]
	if r.Type != products.TypeServiceStatus || r.UniqueName != "42~-71" {
		t.Errorf("identity = %+v", r)
	}
	if !r.NoMsgDigest {
		t.Error("no_msg_digest not set")
	}
	// Self-assigned addresses carry their qualifier.
	if len(r.Traffic) != 2 || r.Traffic[0] != "a0b1c2" || r.Traffic[1] != "123456/1" {
		t.Errorf("traffic = %+v", r.Traffic)
	}
	if !r.ExpirationTime.Equal(rcvd.Add(cfg.ServiceStatusExpire)) {
		t.Errorf("expiration_time = %v", r.ExpirationTime)
	}
}

func TestNormalizeEmptyServiceStatus(t *testing.T) {
	n := &normalizer{}
	cfg := products.Defaults()

	f := &reconstruct.Frame{
		ReceivedAt:    time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC),
		Station:       "42~-71",
		ServiceStatus: &uplink.ServiceStatus{},
	}
	records, err := n.Normalize(f, &cfg)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(records[0].Traffic) != 0 {
		t.Errorf("traffic = %+v", records[0].Traffic)
	}
}
