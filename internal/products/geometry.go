package products

import (
	"errors"
	"fmt"
	"time"

	"fisb_decode/internal/apdu"
	"fisb_decode/internal/fisbtime"
)

var (
	// ErrGeometryOption reports an overlay geometry option with no
	// normalized shape.
	ErrGeometryOption = errors.New("products: geometry option not implemented")

	// ErrOverlayMerge reports a TRA/TMOA overlay operator pair that cannot
	// be merged.
	ErrOverlayMerge = errors.New("products: overlay operator merge failed")

	// ErrVertexAltitudes reports polygon vertexes whose altitude layers do
	// not line up.
	ErrVertexAltitudes = errors.New("products: vertex altitudes do not match")

	// ErrCirclePrism reports a circular prism fancier than a plain circle.
	ErrCirclePrism = errors.New("products: only simple circles are implemented")

	// ErrObjectElement reports an object element code outside the table.
	ErrObjectElement = errors.New("products: unknown object element")
)

// objectElements maps the object element code of a graphic record to its
// abbreviation.
var objectElements = []string{
	"TFR", "TURB", "LLWS", "SFC", "ICING", "FRZLVL", "IFR", "MTN",
}

// Geometry type names.
const (
	ShapePolygon  = "POLYGON"
	ShapePolyline = "POLYLINE"
	ShapeCircle   = "CIRCLE"
	ShapePoint    = "POINT"
)

// shapeForOption maps an overlay geometry option to its altitude reference
// and shape.
func shapeForOption(geoOpts int) (altRef, shape string, err error) {
	switch geoOpts {
	case apdu.GeoPolygonMSL:
		return "MSL", ShapePolygon, nil
	case apdu.GeoPolygonAGL:
		return "AGL", ShapePolygon, nil
	case apdu.GeoCircleMSL:
		return "MSL", ShapeCircle, nil
	case apdu.GeoCircleAGL:
		return "AGL", ShapeCircle, nil
	case apdu.GeoPointAGL:
		return "AGL", ShapePoint, nil
	case apdu.GeoPointMSL:
		return "MSL", ShapePoint, nil
	case apdu.GeoPolylineMSL:
		return "MSL", ShapePolyline, nil
	case apdu.GeoPolylineAGL:
		return "AGL", ShapePolyline, nil
	}
	return "", "", fmt.Errorf("%w: %d", ErrGeometryOption, geoOpts)
}

// qualifierConditions decodes the 3-byte G-AIRMET object qualifiers into
// condition abbreviations. Most of the bits are reserved.
func qualifierConditions(q []byte) []string {
	if len(q) < 3 {
		return nil
	}

	var conditions []string
	if q[0]&0x80 != 0 {
		conditions = append(conditions, "UNSPCFD")
	}
	if q[1]&0x01 != 0 {
		conditions = append(conditions, "ASH")
	}
	for _, bit := range []struct {
		mask byte
		name string
	}{
		{0x80, "DUST"},
		{0x40, "CLOUDS"},
		{0x20, "BLSNOW"},
		{0x10, "SMOKE"},
		{0x08, "HAZE"},
		{0x04, "FOG"},
		{0x02, "MIST"},
		{0x01, "PCPN"},
	} {
		if q[2]&bit.mask != 0 {
			conditions = append(conditions, bit.name)
		}
	}
	return conditions
}

// ProcessGeometry turns the graphic records of a report into normalized
// geometry items. Multi-record polygons and polylines are merged, multi
// vertex circles and points are split apart, and TRA/TMOA altitude overlay
// pairs are collapsed. The reference time fills in the year for start and
// stop applicability times.
func ProcessGeometry(records []apdu.TWGORecord, reference time.Time, productID int) ([]Geometry, error) {
	recs := splitPointsAndCircles(records)
	recs = mergeSpanningShapes(recs)

	var overrideAlts *Altitudes
	if productID == 16 || productID == 17 {
		var err error
		recs, overrideAlts, err = mergeOverlayOperator(recs)
		if err != nil {
			return nil, err
		}
	}

	items := make([]Geometry, 0, len(recs))
	for i, rec := range recs {
		g, err := commonItems(rec, reference)
		if err != nil {
			return nil, err
		}

		switch g.Type {
		case ShapePolygon, ShapePolyline:
			if err := fillPolygonPolyline(&g, rec.Vertices); err != nil {
				return nil, err
			}
		case ShapeCircle:
			if err := fillCircle(&g, rec.Vertices); err != nil {
				return nil, err
			}
		case ShapePoint:
			fillPoint(&g, rec.Vertices)
		}

		// The merged TRA/TMOA altitude envelope replaces the polygon's own.
		if i == 0 && overrideAlts != nil && g.Type == ShapePolygon {
			g.Altitudes = *overrideAlts
		}

		items = append(items, g)
	}

	return items, nil
}

// commonItems builds a geometry item's shape-independent fields.
func commonItems(rec apdu.TWGORecord, reference time.Time) (Geometry, error) {
	altRef, shape, err := shapeForOption(rec.GeometryOptions)
	if err != nil {
		return Geometry{}, err
	}

	g := Geometry{
		Type:      shape,
		Altitudes: Altitudes{HighRef: altRef, LowRef: altRef},
	}

	// Applicability times. Date/time format 1 carries month through minute
	// and is resolved against the reference time; format 3 is an hour of
	// day with no date at all.
	appOpts := rec.ApplicabilityOptions
	if appOpts == 1 || appOpts == 3 {
		switch rec.DateTimeFormat {
		case 1:
			g.StartTime = fisbtime.ComponentsReferenced(reference,
				rec.StartMonth, rec.StartDay, rec.StartHour, rec.StartMinute)
		case 3:
			g.StartHour = fmt.Sprintf("%02d%02d", rec.StartHour, rec.StartMinute)
		}
	}
	if appOpts == 2 || appOpts == 3 {
		switch rec.DateTimeFormat {
		case 1:
			g.StopTime = fisbtime.ComponentsReferenced(reference,
				rec.StopMonth, rec.StopDay, rec.StopHour, rec.StopMinute)
		case 3:
			g.StopHour = fmt.Sprintf("%02d%02d", rec.StopHour, rec.StopMinute)
		}
	}

	if rec.ObjectStatus == 13 {
		g.Cancelled = true
	}
	if rec.ElementFlag != 0 {
		if rec.ObjectElement >= len(objectElements) {
			return Geometry{}, fmt.Errorf("%w: %d", ErrObjectElement, rec.ObjectElement)
		}
		g.Element = objectElements[rec.ObjectElement]
	}
	if rec.LabelFlag == 1 {
		g.AirportID = rec.ObjectLabel
	}
	if rec.QualFlag == 1 {
		g.Conditions = qualifierConditions(rec.ObjectQualifiers)
	}

	return g, nil
}

// splitPointsAndCircles moves each vertex of a multi-vertex circle or point
// record into its own record. Circles with several vertexes show up rarely
// in the wild.
func splitPointsAndCircles(records []apdu.TWGORecord) []apdu.TWGORecord {
	out := make([]apdu.TWGORecord, 0, len(records))
	for _, rec := range records {
		switch rec.GeometryOptions {
		case apdu.GeoCircleMSL, apdu.GeoCircleAGL, apdu.GeoPointAGL, apdu.GeoPointMSL:
			if len(rec.Vertices) <= 1 {
				out = append(out, rec)
				continue
			}
			for _, v := range rec.Vertices {
				dup := rec
				dup.Vertices = [][]float64{v}
				out = append(out, dup)
			}
		default:
			out = append(out, rec)
		}
	}
	return out
}

// mergeSpanningShapes joins polygons and polylines that exceed the 64
// vertex per record limit and arrive as consecutive records of the same
// geometry option.
func mergeSpanningShapes(records []apdu.TWGORecord) []apdu.TWGORecord {
	if len(records) <= 1 {
		return records
	}

	var out []apdu.TWGORecord
	for i := 0; i < len(records); {
		rec := records[i]
		isPolygon := rec.GeometryOptions == apdu.GeoPolygonMSL ||
			rec.GeometryOptions == apdu.GeoPolygonAGL
		isPolyline := rec.GeometryOptions == apdu.GeoPolylineMSL ||
			rec.GeometryOptions == apdu.GeoPolylineAGL

		if (!isPolygon && !isPolyline) || i == len(records)-1 {
			out = append(out, rec)
			i++
			continue
		}

		vertices := rec.Vertices
		j := i + 1
		for ; j < len(records); j++ {
			if records[j].GeometryOptions != rec.GeometryOptions {
				break
			}
			var merged [][]float64
			var ok bool
			if isPolygon {
				merged, ok = appendPolygon(vertices, records[j].Vertices)
			} else {
				merged, ok = appendPolyline(vertices, records[j].Vertices)
			}
			if !ok {
				break
			}
			vertices = merged
		}

		rec.Vertices = vertices
		out = append(out, rec)
		i = j
	}
	return out
}

func sameVertex(a, b []float64) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

// appendPolyline joins two polyline fragments when the tail of the first
// is the head of the second, dropping the shared vertex.
func appendPolyline(cur, next [][]float64) ([][]float64, bool) {
	if !sameVertex(cur[len(cur)-1], next[0]) {
		return nil, false
	}
	merged := make([][]float64, 0, len(cur)-1+len(next))
	merged = append(merged, cur[:len(cur)-1]...)
	merged = append(merged, next...)
	return merged, true
}

// appendPolygon joins two polygon fragments unless the first already forms
// a closed ring. A record can hold several rings at different altitudes, so
// ring detection restarts after each closure.
func appendPolygon(cur, next [][]float64) ([][]float64, bool) {
	start := cur[0]
	complete := false
	for _, v := range cur[1:] {
		if sameVertex(v, start) {
			complete = true
		} else if complete {
			start = v
			complete = false
		}
	}
	if complete {
		return nil, false
	}

	// Some multi-record polygons duplicate the joining vertex the way
	// polylines do.
	if sameVertex(cur[len(cur)-1], next[0]) {
		cur = cur[:len(cur)-1]
	}
	merged := make([][]float64, 0, len(cur)+len(next))
	merged = append(merged, cur...)
	merged = append(merged, next...)
	return merged, true
}

// mergeOverlayOperator collapses a TRA/TMOA overlay operator pair: two
// records describing the bottom and top of one airspace volume. Polygons
// come back with an altitude override; circles are fixed up in place.
func mergeOverlayOperator(records []apdu.TWGORecord) ([]apdu.TWGORecord, *Altitudes, error) {
	if len(records) != 2 || records[0].OverlayOperator != 1 {
		return records, nil, nil
	}

	altRef0, shape0, err := shapeForOption(records[0].GeometryOptions)
	if err != nil {
		return nil, nil, err
	}
	altRef1, shape1, err := shapeForOption(records[1].GeometryOptions)
	if err != nil {
		return nil, nil, err
	}

	if shape0 != shape1 {
		return nil, nil, fmt.Errorf("%w: geometry types differ", ErrOverlayMerge)
	}
	if len(records[0].Vertices) != len(records[1].Vertices) {
		return nil, nil, fmt.Errorf("%w: vertex counts differ", ErrOverlayMerge)
	}

	switch shape0 {
	case ShapePolygon:
		alts := &Altitudes{
			High:    records[0].Vertices[0][2],
			HighRef: altRef0,
			Low:     records[1].Vertices[0][2],
			LowRef:  altRef1,
		}
		return records[:1], alts, nil
	case ShapeCircle:
		records[0].Vertices[0][4] = records[1].Vertices[0][4]
		return records[:1], nil, nil
	}
	return nil, nil, fmt.Errorf("%w: not polygon or circle", ErrOverlayMerge)
}

// fillPoint fills in a point's center and altitude.
func fillPoint(g *Geometry, vertices [][]float64) {
	v := vertices[0]
	g.Altitudes.High = v[2]
	g.Altitudes.Low = 0
	g.Center = []float64{v[0], v[1]}
}

// fillCircle fills in a circle from a 14-byte circular prism vertex. Only a
// plain cylinder is handled: ellipses and tilted prisms have never been
// seen in the wild, even in test data.
func fillCircle(g *Geometry, vertices [][]float64) error {
	if len(vertices) != 1 {
		return fmt.Errorf("%w: %d vertexes", ErrCirclePrism, len(vertices))
	}
	v := vertices[0]
	if v[0] != v[2] || v[1] != v[3] || v[8] != 0 || v[6] != v[7] {
		return ErrCirclePrism
	}

	g.Altitudes.High = v[5]
	g.Altitudes.Low = v[4]
	g.Center = []float64{v[0], v[1]}
	g.RadiusNM = v[6]
	return nil
}

// fillPolygonPolyline factors the per-vertex altitude out of a polygon or
// polyline. When two altitude layers arrive they carry identical
// coordinates, with the higher altitude sent first.
func fillPolygonPolyline(g *Geometry, vertices [][]float64) error {
	byAlt := make(map[float64][][]float64)
	var altOrder []float64

	for _, v := range vertices {
		alt := v[2]
		if _, ok := byAlt[alt]; !ok {
			altOrder = append(altOrder, alt)
		}
		byAlt[alt] = append(byAlt[alt], []float64{v[0], v[1]})
	}

	switch len(altOrder) {
	case 1:
		g.Altitudes.High = altOrder[0]
		g.Altitudes.Low = 0
	case 2:
		g.Altitudes.High = altOrder[0]
		g.Altitudes.Low = altOrder[1]
		if !sameCoordinates(byAlt[altOrder[0]], byAlt[altOrder[1]]) {
			return ErrVertexAltitudes
		}
	default:
		return fmt.Errorf("%w: %d altitudes", ErrVertexAltitudes, len(altOrder))
	}

	g.Coordinates = byAlt[altOrder[0]]
	return nil
}

func sameCoordinates(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i][0] != b[i][0] || a[i][1] != b[i][1] {
			return false
		}
	}
	return true
}
