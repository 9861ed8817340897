package apdu

import (
	"errors"
	"fmt"
	"math"

	"fisb_decode/internal/dlac"
)

// TWGO record formats.
const (
	RecordFormatText    = 2
	RecordFormatGraphic = 8
)

// Overlay geometry options used by current products.
const (
	GeoPolygonMSL  = 3
	GeoPolygonAGL  = 4
	GeoCircleMSL   = 7
	GeoCircleAGL   = 8
	GeoPointAGL    = 9
	GeoPointMSL    = 10
	GeoPolylineMSL = 11
	GeoPolylineAGL = 12
)

var (
	// ErrTWGOShort reports a TWGO payload too small to decode.
	ErrTWGOShort = errors.New("apdu: TWGO payload too short")

	// ErrOverlayOperator reports the retired NOT/reserved overlay
	// operators.
	ErrOverlayOperator = errors.New("apdu: unimplemented overlay operator")

	// ErrVertexType reports a reserved overlay geometry option.
	ErrVertexType = errors.New("apdu: unknown vertex type")
)

// TWGO is a decoded text-with-graphic-overlay payload.
type TWGO struct {
	RecordFormat         int          `json:"record_format"`
	Location             string       `json:"location,omitempty"`
	RecordReferencePoint int          `json:"record_reference_point"`
	Records              []TWGORecord `json:"records"`
}

// TWGORecord is one inner record. Text records fill the report fields and
// Text; graphic records additionally carry the overlay fields and vertices.
type TWGORecord struct {
	ReportNumber int `json:"report_number"`
	ReportYear   int `json:"report_year"`

	// Text record fields.
	ReportStatus int    `json:"report_status"`
	Text         string `json:"text"`

	// Graphic record fields.
	OverlayRecordLength    int    `json:"overlay_record_length,omitempty"`
	StartApplicabilityYear int    `json:"record_applicability_start_year,omitempty"`
	EndApplicabilityYear   int    `json:"record_applicability_end_year,omitempty"`
	OverlayRecordID        int    `json:"overlay_record_id,omitempty"`
	LabelFlag              int    `json:"label_flag,omitempty"`
	ObjectLabel            string `json:"object_label,omitempty"`
	ElementFlag            int    `json:"element_flag,omitempty"`
	QualFlag               int    `json:"qual_flag,omitempty"`
	ParamFlag              int    `json:"param_flag,omitempty"`
	ObjectElement          int    `json:"object_element,omitempty"`
	ObjectType             int    `json:"object_type,omitempty"`
	ObjectStatus           int    `json:"object_status,omitempty"`
	ObjectQualifiers       []byte `json:"object_qualifiers,omitempty"`
	ApplicabilityOptions   int    `json:"record_applicability_options,omitempty"`
	DateTimeFormat         int    `json:"date_time_format,omitempty"`
	GeometryOptions        int    `json:"overlay_geometry_options,omitempty"`
	OverlayOperator        int    `json:"overlay_operator,omitempty"`

	StartMonth  int `json:"start_month,omitempty"`
	StartDay    int `json:"start_day,omitempty"`
	StartHour   int `json:"start_hour,omitempty"`
	StartMinute int `json:"start_minute,omitempty"`
	StopMonth   int `json:"stop_month,omitempty"`
	StopDay     int `json:"stop_day,omitempty"`
	StopHour    int `json:"stop_hour,omitempty"`
	StopMinute  int `json:"stop_minute,omitempty"`

	// Vertices: [lon, lat, alt] for 6-byte vertices; circular prisms get
	// [lonBot, latBot, lonTop, latTop, zBot, zTop, rMajor, rMinor, alpha].
	Vertices [][]float64 `json:"vertex_list,omitempty"`
}

// Fixed-point conversion factors for vertex coordinates.
const (
	geo18Bits = 360.0 / (1 << 18)
	geo19Bits = 360.0 / (1 << 19)
)

// DecodeTWGO decodes a TWGO payload for the given product id.
func DecodeTWGO(ba []byte, productID int) (*TWGO, error) {
	if len(ba) < 6 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTWGOShort, len(ba))
	}

	t := &TWGO{
		RecordFormat:         int(ba[0]&0xF0) >> 4,
		Location:             dlac.Decode(ba, 2, 3),
		RecordReferencePoint: int(ba[5]),
	}
	recordCount := int(ba[1]&0xF0) >> 4

	var err error
	switch t.RecordFormat {
	case RecordFormatText:
		t.Records, err = textRecords(ba[6:], recordCount)
	case RecordFormatGraphic:
		t.Records, err = graphicRecords(ba[6:], recordCount, productID)
	}
	if err != nil {
		return nil, err
	}

	return t, nil
}

// textRecords decodes recordCount text records starting at ba[0].
func textRecords(ba []byte, recordCount int) ([]TWGORecord, error) {
	var records []TWGORecord

	ros := 0
	for i := 0; i < recordCount; i++ {
		if ros+5 > len(ba) {
			return nil, fmt.Errorf("%w: text record %d at %d", ErrTWGOShort, i, ros)
		}

		// Record length includes the 5 header bytes.
		length := int(ba[ros])<<8 | int(ba[ros+1])

		r := TWGORecord{
			ReportNumber: int(ba[ros+2])<<6 | int(ba[ros+3])>>2,
			ReportYear:   int(ba[ros+3]&0x03)<<5 | int(ba[ros+4]&0xF8)>>3,
			ReportStatus: int(ba[ros+4]&0x04) >> 2,
		}

		// Cancelled reports carry no text.
		if r.ReportStatus == 1 {
			r.Text = dlac.Decode(ba, ros+5, length-5)
		}

		records = append(records, r)
		ros += length
	}

	return records, nil
}

// graphicRecords decodes recordCount overlay records starting at ba[0].
func graphicRecords(ba []byte, recordCount, productID int) ([]TWGORecord, error) {
	var records []TWGORecord

	// os points at the start of the current record; each record's length
	// field advances it.
	os := 0
	for i := 0; i < recordCount; i++ {
		if os+5 > len(ba) {
			return nil, fmt.Errorf("%w: graphic record %d at %d", ErrTWGOShort, i, os)
		}

		r := TWGORecord{
			OverlayRecordLength:    int(ba[os])<<2 | int(ba[os+1]&0xC0)>>6,
			ReportNumber:           int(ba[os+1]&0x3F)<<8 | int(ba[os+2]),
			ReportYear:             int(ba[os+3]) >> 1,
			StartApplicabilityYear: int(ba[os+3]&0x01)<<1 | int(ba[os+4]&0x80)>>7,
			EndApplicabilityYear:   int(ba[os+4]&0x60) >> 5,
			OverlayRecordID:        (int(ba[os+4]&0x1E) >> 1) + 1,
			LabelFlag:              int(ba[os+4] & 0x01),
		}

		ros := os + 5

		// Object label: 2 ignored bytes, or 9 bytes of DLAC airport id.
		if r.LabelFlag == 0 {
			ros += 2
		} else {
			r.ObjectLabel = dlac.Decode(ba, ros, 9)
			ros += 9
		}

		if ros+1 >= len(ba) {
			return nil, fmt.Errorf("%w: graphic record %d object bytes", ErrTWGOShort, i)
		}

		r.ElementFlag = int(ba[ros]&0x80) >> 7
		r.QualFlag = int(ba[ros]&0x40) >> 6
		r.ParamFlag = int(ba[ros]&0x20) >> 5
		r.ObjectElement = int(ba[ros] & 0x1F)
		ros++

		r.ObjectType = int(ba[ros]&0xF0) >> 4
		r.ObjectStatus = int(ba[ros] & 0x0F)
		ros++

		// Qualifier bitmap bytes only appear on G-AIRMET.
		if productID == 14 && r.QualFlag == 1 {
			if ros+3 > len(ba) {
				return nil, fmt.Errorf("%w: graphic record %d qualifiers", ErrTWGOShort, i)
			}
			r.ObjectQualifiers = append([]byte(nil), ba[ros:ros+3]...)
			ros += 3
		}

		// Parameter type/value are retired; skip over them.
		if r.ParamFlag == 1 {
			ros += 2
		}

		if ros >= len(ba) {
			return nil, fmt.Errorf("%w: graphic record %d options", ErrTWGOShort, i)
		}
		r.ApplicabilityOptions = int(ba[ros]&0xC0) >> 6
		r.DateTimeFormat = int(ba[ros]&0x30) >> 4
		r.GeometryOptions = int(ba[ros] & 0x0F)
		ros++

		if ros >= len(ba) {
			return nil, fmt.Errorf("%w: graphic record %d operator", ErrTWGOShort, i)
		}
		r.OverlayOperator = int(ba[ros]&0xC0) >> 6
		if r.OverlayOperator >= 2 {
			return nil, fmt.Errorf("%w: %d", ErrOverlayOperator, r.OverlayOperator)
		}

		verticesCount := 0
		if r.GeometryOptions != 0 {
			verticesCount = int(ba[ros]&0x3F) + 1
		}
		ros++

		var err error
		if r.ApplicabilityOptions == 1 || r.ApplicabilityOptions == 3 {
			ros, err = readTimeFields(ba, ros, r.DateTimeFormat,
				&r.StartMonth, &r.StartDay, &r.StartHour, &r.StartMinute)
			if err != nil {
				return nil, err
			}
		}
		if r.ApplicabilityOptions == 2 || r.ApplicabilityOptions == 3 {
			ros, err = readTimeFields(ba, ros, r.DateTimeFormat,
				&r.StopMonth, &r.StopDay, &r.StopHour, &r.StopMinute)
			if err != nil {
				return nil, err
			}
		}

		for v := 0; v < verticesCount; v++ {
			switch r.GeometryOptions {
			case GeoCircleMSL, GeoCircleAGL:
				if ros+14 > len(ba) {
					return nil, fmt.Errorf("%w: vertex %d", ErrTWGOShort, v)
				}
				r.Vertices = append(r.Vertices, decode14ByteVertex(ba[ros:]))
				ros += 14
			case GeoPolygonMSL, GeoPolygonAGL, GeoPointAGL, GeoPointMSL,
				GeoPolylineMSL, GeoPolylineAGL:
				if ros+6 > len(ba) {
					return nil, fmt.Errorf("%w: vertex %d", ErrTWGOShort, v)
				}
				r.Vertices = append(r.Vertices, decode6ByteVertex(ba[ros:]))
				ros += 6
			default:
				return nil, fmt.Errorf("%w: %d", ErrVertexType, r.GeometryOptions)
			}
		}

		os += r.OverlayRecordLength
		records = append(records, r)
	}

	return records, nil
}

// readTimeFields reads a start or stop time in the given date/time format.
func readTimeFields(ba []byte, ros, format int, month, day, hour, minute *int) (int, error) {
	need := map[int]int{1: 4, 2: 3, 3: 2}[format]
	if need == 0 {
		return ros, nil
	}
	if ros+need > len(ba) {
		return 0, fmt.Errorf("%w: applicability time", ErrTWGOShort)
	}
	switch format {
	case 1:
		*month, *day = int(ba[ros]), int(ba[ros+1])
		*hour, *minute = int(ba[ros+2]), int(ba[ros+3])
	case 2:
		*day, *hour, *minute = int(ba[ros]), int(ba[ros+1]), int(ba[ros+2])
	case 3:
		*hour, *minute = int(ba[ros]), int(ba[ros+1])
	}
	return ros + need, nil
}

// decode6ByteVertex unpacks a 19-bit fixed-point vertex with altitude in
// hundreds of feet.
func decode6ByteVertex(ba []byte) []float64 {
	lonRaw := int(ba[0])<<11 | int(ba[1])<<3 | int(ba[2]&0xE0)>>5
	latRaw := int(ba[2]&0x1F)<<14 | int(ba[3])<<6 | int(ba[4]&0xFC)>>2
	alt := (int(ba[4]&0x03)<<8 | int(ba[5])) * 100

	lon, lat := convertRawLonLat(lonRaw, latRaw, geo19Bits)
	return []float64{lon, lat, float64(alt)}
}

// decode14ByteVertex unpacks an 18-bit fixed-point circular prism vertex.
func decode14ByteVertex(ba []byte) []float64 {
	lonBotRaw := int(ba[0])<<10 | int(ba[1])<<2 | int(ba[2]&0xC0)>>6
	latBotRaw := int(ba[2]&0x3F)<<12 | int(ba[3])<<4 | int(ba[4]&0xF0)>>4
	lonTopRaw := int(ba[4]&0x0F)<<14 | int(ba[5])<<6 | int(ba[6]&0xFC)>>2
	latTopRaw := int(ba[6]&0x03)<<16 | int(ba[7])<<8 | int(ba[8])

	lonBot, latBot := convertRawLonLat(lonBotRaw, latBotRaw, geo18Bits)
	lonTop, latTop := convertRawLonLat(lonTopRaw, latTopRaw, geo18Bits)

	zBot := float64(int(ba[9]&0xFE)>>1) * 500
	zTop := float64(int(ba[9]&0x01)<<6|int(ba[10]&0xFC)>>2) * 500
	rMajor := float64(int(ba[10]&0x03)<<7|int(ba[11]&0xFE)>>1) * 0.2
	rMinor := float64(int(ba[11]&0x01)<<8|int(ba[12])) * 0.2
	alpha := float64(ba[13])

	return []float64{lonBot, latBot, lonTop, latTop, zBot, zTop, rMajor, rMinor, alpha}
}

// convertRawLonLat converts fixed-point coordinates to signed degrees
// rounded to 6 decimal places.
func convertRawLonLat(lonRaw, latRaw int, factor float64) (float64, float64) {
	lon := float64(lonRaw) * factor
	if lon > 180 {
		lon -= 360
	}
	lat := float64(latRaw) * factor
	if lat > 90 {
		lat -= 180
	}
	return round6c(lon), round6c(lat)
}

func round6c(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
