// Package uplink parses 978 MHz UAT ground-uplink packets: the 8-byte
// station header, the inner frame walk, and the frame payloads that are not
// APDUs (current report lists, service status). It also carries the
// reception-success-rate accumulator.
package uplink

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"fisb_decode/internal/apdu"
)

// PacketBytes is the fixed ground-uplink packet size after hex decode.
const PacketBytes = 432

// Frame type codes from the ground-uplink frame header.
const (
	FrameTypeAPDU          = 0
	FrameTypeCRL           = 14
	FrameTypeServiceStatus = 15
)

var (
	ErrNotUplink     = errors.New("uplink: not a ground uplink line")
	ErrPacketLength  = errors.New("uplink: packet is not 432 bytes")
	ErrNoTimestamp   = errors.New("uplink: missing t= reception timestamp")
	ErrFrameOverrun  = errors.New("uplink: inner frame overruns packet")
	ErrFrameReserved = errors.New("uplink: reserved frame type")
)

// Packet is one decoded ground-uplink transmission.
type Packet struct {
	ReceivedAt       time.Time `json:"rcvd_time"`
	Station          string    `json:"station"`
	StationLat       float64   `json:"station_lat"`
	StationLon       float64   `json:"station_lon"`
	AppDataValid     bool      `json:"app_data_valid"`
	UTCCoupled       bool      `json:"utc_coupled"`
	SlotID           int       `json:"slot_id"`
	TransmissionSlot int       `json:"transmission_time_slot"`
	MSO              int       `json:"mso"`
	TISBSiteID       int       `json:"tisb_site_id"`
	Frames           []Frame   `json:"frames"`
}

// Frame is one inner frame of a packet. Exactly one payload pointer is set
// for the known frame types; reserved types carry only the raw bytes.
type Frame struct {
	Type   int `json:"frame_type"`
	Length int `json:"length"`

	APDU          *apdu.APDU     `json:"apdu,omitempty"`
	CRL           *CRL           `json:"crl,omitempty"`
	ServiceStatus *ServiceStatus `json:"service_status,omitempty"`
}

// positionFactor converts the 24-bit fixed-point station position.
const positionFactor = 360.0 / (1 << 24)

// ParseLine decodes one demodulator line of the form
// "+<hex>;<meta>;t=<epoch_seconds>". Lines not starting with '+' are not
// ground uplinks and return ErrNotUplink.
func ParseLine(line string, opts apdu.Options) (*Packet, error) {
	if len(line) == 0 || line[0] != '+' {
		return nil, ErrNotUplink
	}

	semi := strings.IndexByte(line, ';')
	if semi < 0 {
		return nil, ErrNoTimestamp
	}

	rcvd, err := receptionTime(line[semi:])
	if err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(line[1:semi])
	if err != nil {
		return nil, fmt.Errorf("uplink: bad hex: %w", err)
	}

	return Parse(raw, rcvd, opts)
}

// receptionTime extracts the t=<epoch.float> field from the metadata tail.
func receptionTime(meta string) (time.Time, error) {
	for _, part := range strings.Split(meta, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "t=") {
			continue
		}
		secs, err := strconv.ParseFloat(part[2:], 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("uplink: bad t= field: %w", err)
		}
		sec := int64(secs)
		nsec := int64((secs - float64(sec)) * 1e9)
		return time.Unix(sec, nsec).UTC(), nil
	}
	return time.Time{}, ErrNoTimestamp
}

// Parse decodes a raw 432-byte ground-uplink packet received at rcvd.
func Parse(raw []byte, rcvd time.Time, opts apdu.Options) (*Packet, error) {
	if len(raw) != PacketBytes {
		return nil, fmt.Errorf("%w: got %d", ErrPacketLength, len(raw))
	}

	rawLat := int(raw[0])<<15 | int(raw[1])<<7 | int(raw[2])>>1
	rawLon := (int(raw[2])&1)<<23 | int(raw[3])<<15 | int(raw[4])<<7 | int(raw[5])>>1

	lat := float64(rawLat) * positionFactor
	lon := float64(rawLon) * positionFactor
	if lon > 180 {
		lon -= 360
	}
	if lat > 90 {
		lat -= 180
	}
	lat = round6(lat)
	lon = round6(lon)

	slotID := int(raw[6] & 0x1F)

	p := &Packet{
		ReceivedAt:       rcvd,
		Station:          FormatStation(lat, lon),
		StationLat:       lat,
		StationLon:       lon,
		AppDataValid:     raw[6]&0x20 != 0,
		UTCCoupled:       raw[6]&0x80 != 0,
		SlotID:           slotID,
		TransmissionSlot: slotID + 1,
		MSO:              slotID * 22,
		TISBSiteID:       int(raw[7]&0xF0) >> 4,
	}

	// Walk the inner frames: 9-bit length then 4-bit frame type. A zero
	// length terminates the walk (fill bytes).
	for off := 8; off < PacketBytes-1; {
		length := int(raw[off])<<1 | int(raw[off+1]&0x80)>>7
		if length == 0 {
			break
		}
		frameType := int(raw[off+1] & 0x0F)
		start := off + 2
		end := start + length
		if end > PacketBytes {
			return nil, fmt.Errorf("%w: offset %d length %d", ErrFrameOverrun, off, length)
		}
		payload := raw[start:end]

		f := Frame{Type: frameType, Length: length}
		var err error
		switch frameType {
		case FrameTypeAPDU:
			f.APDU, err = apdu.Decode(payload, opts)
		case FrameTypeCRL:
			f.CRL, err = DecodeCRL(payload)
		case FrameTypeServiceStatus:
			f.ServiceStatus, err = DecodeServiceStatus(payload)
		default:
			// Reserved frame types are carried but not decoded.
		}
		if err != nil {
			if errors.Is(err, apdu.ErrSUABlocked) {
				off = end
				continue
			}
			return nil, fmt.Errorf("uplink: frame at %d type %d: %w", off, frameType, err)
		}
		p.Frames = append(p.Frames, f)

		off = end
	}

	return p, nil
}

// FormatStation builds the canonical station name from its position.
func FormatStation(lat, lon float64) string {
	return trimFloat(lat) + "~" + trimFloat(lon)
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// ExpectedPacketsPerSecond predicts the transmission tier of a station from
// its TIS-B site id class.
func ExpectedPacketsPerSecond(tisbSiteID int) int {
	switch {
	case tisbSiteID >= 13:
		return 4
	case tisbSiteID >= 10:
		return 3
	case tisbSiteID >= 5:
		return 2
	default:
		return 1
	}
}
