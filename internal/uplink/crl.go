package uplink

import (
	"errors"
	"fmt"

	"fisb_decode/internal/dlac"
)

// ErrCRLShort reports a current report list frame too small to decode.
var ErrCRLShort = errors.New("uplink: CRL frame too short")

// CRL is a decoded current report list frame (frame type 14). It lists
// every report of one product type that the ground station is transmitting.
type CRL struct {
	ProductID int         `json:"product_id"`
	RangeNM   int         `json:"product_range_nm"`
	TFRNotam  int         `json:"tfr_notam"`
	OFlag     int         `json:"o_flag"`
	LFlag     int         `json:"l_flag"`
	Location  string      `json:"location,omitempty"`
	Reports   []CRLReport `json:"reports"`
}

// CRLReport is one identity entry of a CRL.
type CRLReport struct {
	ReportYearOrMonth int `json:"report_year_or_month"`
	ReportNumber      int `json:"report_number"`
	TextFlag          int `json:"text_flag"`
	GraphicsFlag      int `json:"graphics_flag"`
}

// DecodeCRL decodes a type 14 frame payload.
func DecodeCRL(ba []byte) (*CRL, error) {
	if len(ba) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrCRLShort, len(ba))
	}

	c := &CRL{
		ProductID: int(ba[0])<<3 | int(ba[1]&0xE0)>>5,
		RangeNM:   int(ba[2]) * 5,
		TFRNotam:  int(ba[1]&0x10) >> 4,
		OFlag:     int(ba[1]&0x02) >> 1,
		LFlag:     int(ba[1] & 1),
	}

	var count, off int
	if c.LFlag == 1 {
		if len(ba) < 7 {
			return nil, fmt.Errorf("%w: %d bytes with location", ErrCRLShort, len(ba))
		}
		c.Location = dlac.Decode(ba, 3, 3)
		count = int(ba[6])
		off = 7
	} else {
		count = int(ba[3])
		off = 4
	}

	for i := 0; i < count; i++ {
		if off+2 >= len(ba) {
			return nil, fmt.Errorf("%w: report %d at offset %d", ErrCRLShort, i, off)
		}
		c.Reports = append(c.Reports, CRLReport{
			ReportYearOrMonth: int(ba[off] & 0x7F),
			TextFlag:          int(ba[off+1]&0x80) >> 7,
			GraphicsFlag:      int(ba[off+1]&0x40) >> 6,
			ReportNumber:      int(ba[off+1]&0x3F)<<8 | int(ba[off+2]),
		})
		off += 3
	}

	return c, nil
}
