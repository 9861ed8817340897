package products

import (
	"errors"
	"testing"
	"time"

	"fisb_decode/internal/apdu"
)

var geomReference = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

// polygonRecord builds one polygon graphic record with every vertex at alt.
func polygonRecord(coords [][]float64, alt float64) apdu.TWGORecord {
	r := apdu.TWGORecord{GeometryOptions: apdu.GeoPolygonMSL}
	for _, c := range coords {
		r.Vertices = append(r.Vertices, []float64{c[0], c[1], alt})
	}
	return r
}

// circleVertex builds a plain cylinder vertex for a 14-byte circle record.
func circleVertex(lon, lat, zBot, zTop, radius float64) []float64 {
	return []float64{lon, lat, lon, lat, zBot, zTop, radius, radius, 0}
}

func TestProcessGeometryPolygon(t *testing.T) {
	rec := polygonRecord([][]float64{{-71, 42}, {-70, 42}, {-70, 43}, {-71, 42}}, 5000)
	rec.ApplicabilityOptions = 3
	rec.DateTimeFormat = 1
	rec.StartMonth, rec.StartDay, rec.StartHour, rec.StartMinute = 8, 24, 15, 0
	rec.StopMonth, rec.StopDay, rec.StopHour, rec.StopMinute = 8, 24, 21, 0

	items, err := ProcessGeometry([]apdu.TWGORecord{rec}, geomReference, 8)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	g := items[0]
	if g.Type != ShapePolygon {
		t.Errorf("type = %q", g.Type)
	}
	if g.Altitudes.High != 5000 || g.Altitudes.Low != 0 || g.Altitudes.HighRef != "MSL" {
		t.Errorf("altitudes = %+v", g.Altitudes)
	}
	if len(g.Coordinates) != 4 || g.Coordinates[0][0] != -71 {
		t.Errorf("coordinates = %+v", g.Coordinates)
	}
	wantStart := time.Date(2026, 8, 24, 15, 0, 0, 0, time.UTC)
	wantStop := time.Date(2026, 8, 24, 21, 0, 0, 0, time.UTC)
	if !g.StartTime.Equal(wantStart) || !g.StopTime.Equal(wantStop) {
		t.Errorf("times = %v / %v", g.StartTime, g.StopTime)
	}
}

func TestProcessGeometryTwoAltitudeLayers(t *testing.T) {
	coords := [][]float64{{-71, 42}, {-70, 42}, {-70, 43}}
	high := polygonRecord(coords, 18000)
	low := polygonRecord(coords, 4000)
	high.Vertices = append(high.Vertices, low.Vertices...)

	items, err := ProcessGeometry([]apdu.TWGORecord{high}, geomReference, 8)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	g := items[0]
	if g.Altitudes.High != 18000 || g.Altitudes.Low != 4000 {
		t.Errorf("altitudes = %+v", g.Altitudes)
	}
	if len(g.Coordinates) != 3 {
		t.Errorf("coordinates = %+v", g.Coordinates)
	}
}

func TestProcessGeometryMismatchedLayers(t *testing.T) {
	high := polygonRecord([][]float64{{-71, 42}, {-70, 42}}, 18000)
	low := polygonRecord([][]float64{{-71, 42}, {-69, 42}}, 4000)
	high.Vertices = append(high.Vertices, low.Vertices...)

	if _, err := ProcessGeometry([]apdu.TWGORecord{high}, geomReference, 8); !errors.Is(err, ErrVertexAltitudes) {
		t.Errorf("err = %v, want ErrVertexAltitudes", err)
	}
}

func TestProcessGeometryCircle(t *testing.T) {
	rec := apdu.TWGORecord{
		GeometryOptions: apdu.GeoCircleAGL,
		Vertices:        [][]float64{circleVertex(-71, 42, 0, 4000, 10)},
	}

	items, err := ProcessGeometry([]apdu.TWGORecord{rec}, geomReference, 8)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	g := items[0]
	if g.Type != ShapeCircle || g.RadiusNM != 10 {
		t.Errorf("circle = %+v", g)
	}
	if g.Altitudes.Low != 0 || g.Altitudes.High != 4000 || g.Altitudes.LowRef != "AGL" {
		t.Errorf("altitudes = %+v", g.Altitudes)
	}
	if len(g.Center) != 2 || g.Center[0] != -71 || g.Center[1] != 42 {
		t.Errorf("center = %+v", g.Center)
	}
}

func TestProcessGeometryEllipseRejected(t *testing.T) {
	v := circleVertex(-71, 42, 0, 4000, 10)
	v[7] = 5 // minor axis differs
	rec := apdu.TWGORecord{GeometryOptions: apdu.GeoCircleMSL, Vertices: [][]float64{v}}

	if _, err := ProcessGeometry([]apdu.TWGORecord{rec}, geomReference, 8); !errors.Is(err, ErrCirclePrism) {
		t.Errorf("err = %v, want ErrCirclePrism", err)
	}
}

func TestProcessGeometrySplitsMultiVertexPoints(t *testing.T) {
	rec := apdu.TWGORecord{
		GeometryOptions: apdu.GeoPointAGL,
		Vertices:        [][]float64{{-71, 42, 1000}, {-70, 43, 2000}},
	}

	items, err := ProcessGeometry([]apdu.TWGORecord{rec}, geomReference, 8)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
	if items[0].Center[0] != -71 || items[1].Center[0] != -70 {
		t.Errorf("centers = %+v / %+v", items[0].Center, items[1].Center)
	}
	if items[1].Altitudes.High != 2000 {
		t.Errorf("altitudes = %+v", items[1].Altitudes)
	}
}

func TestProcessGeometryMergesSpanningPolyline(t *testing.T) {
	first := apdu.TWGORecord{
		GeometryOptions: apdu.GeoPolylineMSL,
		Vertices:        [][]float64{{-71, 42, 0}, {-70, 42, 0}, {-69, 43, 0}},
	}
	second := apdu.TWGORecord{
		GeometryOptions: apdu.GeoPolylineMSL,
		Vertices:        [][]float64{{-69, 43, 0}, {-68, 44, 0}},
	}

	items, err := ProcessGeometry([]apdu.TWGORecord{first, second}, geomReference, 14)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	// The shared vertex appears once.
	if len(items[0].Coordinates) != 4 {
		t.Errorf("coordinates = %+v", items[0].Coordinates)
	}
}

func TestProcessGeometryClosedPolygonsStaySeparate(t *testing.T) {
	ring := [][]float64{{-71, 42}, {-70, 42}, {-70, 43}, {-71, 42}}
	first := polygonRecord(ring, 5000)
	second := polygonRecord(ring, 3000)

	items, err := ProcessGeometry([]apdu.TWGORecord{first, second}, geomReference, 8)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %+v", items)
	}
}

func TestProcessGeometryOverlayMerge(t *testing.T) {
	// Top of the volume referenced MSL, bottom AGL.
	coords := [][]float64{{-71, 42}, {-70, 42}, {-70, 43}}
	top := polygonRecord(coords, 8000)
	top.OverlayOperator = 1
	bottom := polygonRecord(coords, 2000)
	bottom.GeometryOptions = apdu.GeoPolygonAGL

	items, err := ProcessGeometry([]apdu.TWGORecord{top, bottom}, geomReference, 17)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %+v", items)
	}
	alts := items[0].Altitudes
	if alts.High != 8000 || alts.HighRef != "MSL" || alts.Low != 2000 || alts.LowRef != "AGL" {
		t.Errorf("altitudes = %+v", alts)
	}
}

func TestProcessGeometryFlags(t *testing.T) {
	rec := polygonRecord([][]float64{{-71, 42}, {-70, 42}, {-70, 43}}, 0)
	rec.ObjectStatus = 13
	rec.ElementFlag = 1
	rec.ObjectElement = 1
	rec.LabelFlag = 1
	rec.ObjectLabel = "KBOS"
	rec.QualFlag = 1
	rec.ObjectQualifiers = []byte{0x00, 0x00, 0x44}

	items, err := ProcessGeometry([]apdu.TWGORecord{rec}, geomReference, 14)
	if err != nil {
		t.Fatalf("ProcessGeometry: %v", err)
	}
	g := items[0]
	if !g.Cancelled || g.Element != "TURB" || g.AirportID != "KBOS" {
		t.Errorf("flags = %+v", g)
	}
	if len(g.Conditions) != 2 || g.Conditions[0] != "CLOUDS" || g.Conditions[1] != "FOG" {
		t.Errorf("conditions = %+v", g.Conditions)
	}
}
