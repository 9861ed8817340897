// Package svcstatus normalizes service status frames: the aircraft a
// ground station is currently providing TIS-B service to. Consecutive
// frames may split the aircraft between them, so consumers keeping track
// need to pool addresses across records.
package svcstatus

import (
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

// Non-zero address qualifiers get appended to the ICAO address. The only
// one ever seen is 1, a self-assigned address.
var addrQualifiers = []string{"", "/1", "/2", "/3", "/4", "/5", "/6", "/7"}

type normalizer struct{}

func (n *normalizer) Name() string           { return "service_status" }
func (n *normalizer) Keys() []string         { return []string{"service_status"} }
func (n *normalizer) Priority() int          { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	traffic := make([]string, 0, len(f.ServiceStatus.Aircraft))
	for _, plane := range f.ServiceStatus.Aircraft {
		traffic = append(traffic, plane.Address+addrQualifiers[plane.AddressType&7])
	}

	return []*products.Record{{
		Type:           products.TypeServiceStatus,
		UniqueName:     f.Station,
		Traffic:        traffic,
		NoMsgDigest:    true,
		ExpirationTime: f.ReceivedAt.Add(cfg.ServiceStatusExpire),
	}}, nil
}
