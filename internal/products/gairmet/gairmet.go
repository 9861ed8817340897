// Package gairmet normalizes product 14 (G-AIRMET) graphic reports.
package gairmet

import (
	"fmt"
	"strconv"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/products"
	"fisb_decode/internal/reconstruct"
)

func init() {
	products.Register(&normalizer{})
}

type normalizer struct{}

func (n *normalizer) Name() string           { return "gairmet" }
func (n *normalizer) Keys() []string         { return []string{"14"} }
func (n *normalizer) Priority() int          { return 10 }
func (n *normalizer) QuickCheck(string) bool { return true }

func (n *normalizer) Normalize(f *reconstruct.Frame, cfg *products.Config) ([]*products.Record, error) {
	t := f.APDU.TWGO
	if t == nil || len(t.Records) == 0 {
		return nil, fmt.Errorf("gairmet: frame has no graphic records")
	}

	// Only the vertex list changes between records; everything else
	// decodes from the first.
	r0 := t.Records[0]
	reportID := strconv.Itoa(r0.ReportYear) + "-" + strconv.Itoa(r0.ReportNumber)

	if r0.ObjectStatus == 13 {
		return []*products.Record{{
			Type:           products.TypeCancelGAirmet,
			UniqueName:     reportID,
			ExpirationTime: f.ReceivedAt.Add(cfg.CancelExpire),
		}}, nil
	}

	geoOpts := r0.GeometryOptions
	if r0.ObjectStatus != 15 || r0.DateTimeFormat != 1 ||
		(geoOpts != apdu.GeoPolygonMSL && geoOpts != apdu.GeoPolygonAGL &&
			geoOpts != apdu.GeoPolylineMSL && geoOpts != apdu.GeoPolylineAGL) {
		return nil, fmt.Errorf("gairmet: unexpected report parameters")
	}

	fullYear, err := fisbtime.DoubleDigitYear(f.ReceivedAt.Year(), r0.ReportYear)
	if err != nil {
		return nil, fmt.Errorf("gairmet: report year: %w", err)
	}
	issued := time.Date(fullYear, time.Month(f.APDU.Month), f.APDU.Day,
		f.APDU.Hour, f.APDU.Minute, 0, 0, time.UTC)

	start := fisbtime.ComponentsReferenced(issued,
		r0.StartMonth, r0.StartDay, r0.StartHour, r0.StartMinute)
	stop := fisbtime.ComponentsReferenced(issued,
		r0.StopMonth, r0.StopDay, r0.StopHour, r0.StopMinute)

	fcHour, stop, err := forecastHour(start, stop)
	if err != nil {
		return nil, err
	}

	geometry, err := products.ProcessGeometry(t.Records, issued, f.APDU.ProductID)
	if err != nil {
		return nil, err
	}

	rec := &products.Record{
		Type:           products.TypeGAirmet,
		UniqueName:     reportID,
		Subtype:        strconv.Itoa(fcHour),
		Station:        f.Station,
		IssuedTime:     issued,
		ForUseFromTime: start,
		ForUseToTime:   stop,
		Geometry:       geometry,
	}
	rec.ExpirationTime = products.TwgoExpiration(cfg, f.ReceivedAt, rec.Geometry, time.Time{})
	return []*products.Record{rec}, nil
}

// forecastHour infers which of the 00, 03, or 06 hour forecasts this is.
// The transmission never says; equal start and stop times mean the 6 hour
// forecast (whose stop then moves out 3 hours), and otherwise the stop
// time's three-hour boundary decides, per DO-358B table A-52.
func forecastHour(start, stop time.Time) (int, time.Time, error) {
	if start.Equal(stop) {
		return 6, start.Add(3 * time.Hour), nil
	}
	if stop.Minute() == 0 {
		switch stop.Hour() {
		case 0, 6, 12, 18:
			return 0, stop, nil
		case 3, 9, 15, 21:
			return 3, stop, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("gairmet: no forecast for stop time %s",
		stop.Format(fisbtime.ISO8601))
}
