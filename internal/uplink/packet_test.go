package uplink

import (
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"fisb_decode/internal/apdu"
)

// buildPacket assembles a 432-byte ground-uplink packet with the given
// header flags and inner frames, zero-filling the remainder.
func buildPacket(lat, lon int, appValid bool, tisbSiteID int, frames ...[]byte) []byte {
	raw := make([]byte, PacketBytes)

	raw[0] = byte(lat >> 15)
	raw[1] = byte(lat >> 7)
	raw[2] = byte(lat<<1) | byte(lon>>23)&1
	raw[3] = byte(lon >> 15)
	raw[4] = byte(lon >> 7)
	raw[5] = byte(lon << 1)
	if appValid {
		raw[6] |= 0x20
	}
	raw[7] = byte(tisbSiteID << 4)

	off := 8
	for _, f := range frames {
		copy(raw[off:], f)
		off += len(f)
	}
	return raw
}

// frameBytes wraps a payload in the 9-bit length / 4-bit type header.
func frameBytes(frameType int, payload []byte) []byte {
	length := len(payload)
	out := []byte{byte(length >> 1), byte(length<<7) | byte(frameType)}
	return append(out, payload...)
}

func TestParseStationHeader(t *testing.T) {
	// 42.36 N, 71.02 W (288.98 unsigned) in 24-bit fixed point.
	pf := float64(positionFactor)
	rawLat := int(42.36 / pf)
	rawLon := int((360.0 - 71.02) / pf)

	raw := buildPacket(rawLat, rawLon, true, 12)
	p, err := Parse(raw, time.Unix(1756000000, 0).UTC(), apdu.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if p.StationLat < 42.35 || p.StationLat > 42.37 {
		t.Errorf("lat = %v", p.StationLat)
	}
	if p.StationLon > -71.01 || p.StationLon < -71.03 {
		t.Errorf("lon = %v", p.StationLon)
	}
	if !p.AppDataValid {
		t.Error("app_data_valid not set")
	}
	if p.TISBSiteID != 12 {
		t.Errorf("tisb_site_id = %d", p.TISBSiteID)
	}
	if p.Station == "" {
		t.Error("station name empty")
	}
	if len(p.Frames) != 0 {
		t.Errorf("zero-fill decoded %d frames", len(p.Frames))
	}
}

func TestParseSlotDerivedFields(t *testing.T) {
	raw := buildPacket(0, 0, true, 0)
	raw[6] |= 5 // slot id

	p, err := Parse(raw, time.Now().UTC(), apdu.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.SlotID != 5 || p.TransmissionSlot != 6 || p.MSO != 110 {
		t.Errorf("slot = %d tx = %d mso = %d", p.SlotID, p.TransmissionSlot, p.MSO)
	}
}

func TestParseCRLFrame(t *testing.T) {
	// Product 8 CRL, 100 NM, one TFR report.
	payload := []byte{
		0x01, 0x10, 20, // product 8, tfr flag, range 100
		1,              // report count
		26, 0xC0, 0x64, // year 26, text+graphics, number 100
	}
	raw := buildPacket(0, 0, true, 0, frameBytes(FrameTypeCRL, payload))

	p, err := Parse(raw, time.Now().UTC(), apdu.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Frames) != 1 || p.Frames[0].CRL == nil {
		t.Fatalf("frames = %+v", p.Frames)
	}
	crl := p.Frames[0].CRL
	if crl.ProductID != 8 || crl.RangeNM != 100 || crl.TFRNotam != 1 {
		t.Errorf("crl = %+v", crl)
	}
	if len(crl.Reports) != 1 {
		t.Fatalf("reports = %d", len(crl.Reports))
	}
	r := crl.Reports[0]
	if r.ReportYearOrMonth != 26 || r.ReportNumber != 100 || r.TextFlag != 1 || r.GraphicsFlag != 1 {
		t.Errorf("report = %+v", r)
	}
}

func TestParseServiceStatusFrame(t *testing.T) {
	payload := []byte{
		0x01, 0xA0, 0xB1, 0xC2,
		0x00, 0x00, 0x00, 0x01,
	}
	raw := buildPacket(0, 0, true, 0, frameBytes(FrameTypeServiceStatus, payload))

	p, err := Parse(raw, time.Now().UTC(), apdu.Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	ss := p.Frames[0].ServiceStatus
	if ss == nil || len(ss.Aircraft) != 2 {
		t.Fatalf("service status = %+v", ss)
	}
	if ss.Aircraft[0].Address != "a0b1c2" || ss.Aircraft[0].AddressType != 1 {
		t.Errorf("aircraft = %+v", ss.Aircraft[0])
	}
	if ss.Aircraft[1].Address != "000001" {
		t.Errorf("aircraft = %+v", ss.Aircraft[1])
	}
}

func TestParseFrameOverrun(t *testing.T) {
	raw := buildPacket(0, 0, true, 0)
	// Length larger than the remaining packet.
	raw[8] = 0xFF
	raw[9] = 0x80

	if _, err := Parse(raw, time.Now().UTC(), apdu.Options{}); !errors.Is(err, ErrFrameOverrun) {
		t.Errorf("err = %v, want ErrFrameOverrun", err)
	}
}

func TestParseWrongLength(t *testing.T) {
	if _, err := Parse(make([]byte, 100), time.Now().UTC(), apdu.Options{}); !errors.Is(err, ErrPacketLength) {
		t.Errorf("err = %v, want ErrPacketLength", err)
	}
}

func TestParseLine(t *testing.T) {
	raw := buildPacket(0, 0, true, 0)
	line := "+" + hex.EncodeToString(raw) + ";rs=3;t=1756000000.250;"

	p, err := ParseLine(line, apdu.Options{})
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	want := time.Unix(1756000000, 250000000).UTC()
	if !p.ReceivedAt.Equal(want) {
		t.Errorf("rcvd = %v, want %v", p.ReceivedAt, want)
	}
}

func TestParseLineErrors(t *testing.T) {
	if _, err := ParseLine("-0102;t=1", apdu.Options{}); !errors.Is(err, ErrNotUplink) {
		t.Errorf("ADS-B line: err = %v", err)
	}
	if _, err := ParseLine("+0102", apdu.Options{}); !errors.Is(err, ErrNoTimestamp) {
		t.Errorf("no metadata: err = %v", err)
	}
	if _, err := ParseLine("+0102;rs=3", apdu.Options{}); !errors.Is(err, ErrNoTimestamp) {
		t.Errorf("no t= field: err = %v", err)
	}
}

func TestExpectedPacketsPerSecond(t *testing.T) {
	tests := []struct{ id, want int }{
		{0, 1}, {4, 1}, {5, 2}, {9, 2}, {10, 3}, {12, 3}, {13, 4}, {15, 4},
	}
	for _, tt := range tests {
		if got := ExpectedPacketsPerSecond(tt.id); got != tt.want {
			t.Errorf("ExpectedPacketsPerSecond(%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestRSRReports(t *testing.T) {
	rsr := NewRSR(10, 10)
	base := time.Unix(1756000000, 0).UTC()

	// A tier-1 station transmitting every second for the whole window.
	for i := 0; i < 10; i++ {
		rsr.Observe(&Packet{Station: "S1", ReceivedAt: base.Add(time.Duration(i) * time.Second)})
	}
	// A second station at half rate.
	for i := 0; i < 10; i += 2 {
		rsr.Observe(&Packet{Station: "S2", ReceivedAt: base.Add(time.Duration(i) * time.Second)})
	}

	reports := rsr.Tick(base.Add(10*time.Second), map[string]int{"S1": 1, "S2": 1})
	if len(reports) != 2 {
		t.Fatalf("reports = %+v", reports)
	}
	byStation := map[string]int{}
	for _, r := range reports {
		byStation[r.Station] = r.Percent
	}
	if byStation["S1"] != 100 {
		t.Errorf("S1 = %d, want 100", byStation["S1"])
	}
	if byStation["S2"] != 50 {
		t.Errorf("S2 = %d, want 50", byStation["S2"])
	}

	// Inside the stride nothing reports.
	if got := rsr.Tick(base.Add(12*time.Second), nil); got != nil {
		t.Errorf("early tick reported %+v", got)
	}
}

func TestDecodeCRLWithLocation(t *testing.T) {
	// LFlag set carries a 4-character DLAC location before the count.
	// "BOS " packs to 3 bytes.
	payload := []byte{
		0x01, 0xE3, 10, // product 15, o_flag, l_flag, range 50
		0x08, 0xF4, 0xE0, // DLAC "BOS "
		0, // report count
	}
	crl, err := DecodeCRL(payload)
	if err != nil {
		t.Fatalf("DecodeCRL: %v", err)
	}
	if crl.ProductID != 15 || crl.OFlag != 1 || crl.LFlag != 1 || crl.RangeNM != 50 {
		t.Errorf("crl = %+v", crl)
	}
	if crl.Location != "BOS " {
		t.Errorf("location = %q", crl.Location)
	}
	if len(crl.Reports) != 0 {
		t.Errorf("reports = %+v", crl.Reports)
	}
}

func TestDecodeCRLShort(t *testing.T) {
	if _, err := DecodeCRL([]byte{0x01, 0x00}); !errors.Is(err, ErrCRLShort) {
		t.Errorf("err = %v, want ErrCRLShort", err)
	}
	// Count promises more reports than the frame carries.
	if _, err := DecodeCRL([]byte{0x01, 0x00, 10, 2, 26, 0xC0, 0x64}); !errors.Is(err, ErrCRLShort) {
		t.Errorf("truncated reports: err = %v, want ErrCRLShort", err)
	}
}
