package uplink

import "fmt"

// ServiceStatus is a decoded type 15 frame: the aircraft currently being
// provided TIS-B service by the station.
type ServiceStatus struct {
	Aircraft []ServiceAircraft `json:"contents"`
}

// ServiceAircraft is one 4-byte traffic entry.
type ServiceAircraft struct {
	Address     string `json:"address"`
	AddressType int    `json:"address_type"`
}

// DecodeServiceStatus decodes a type 15 frame payload of 4-byte entries.
func DecodeServiceStatus(ba []byte) (*ServiceStatus, error) {
	s := &ServiceStatus{}

	for off := 0; off+3 < len(ba); off += 4 {
		addr := int(ba[off+1])<<16 | int(ba[off+2])<<8 | int(ba[off+3])
		s.Aircraft = append(s.Aircraft, ServiceAircraft{
			Address:     fmt.Sprintf("%06x", addr),
			AddressType: int(ba[off] & 7),
		})
	}

	return s, nil
}
