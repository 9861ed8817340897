package harvest

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"fisb_decode/internal/fisbtime"
	"fisb_decode/internal/products"
)

const (
	circlePoints = 32
	metersPerNM  = 1852.001
)

// geometryToGeoJSON converts a record's geometry items into a GeoJSON
// feature collection and drops the original slot. Circles become 32-point
// polygons so every consumer sees plain shapes.
func geometryToGeoJSON(r *products.Record) error {
	if len(r.Geometry) == 0 {
		return nil
	}

	fc := geojson.NewFeatureCollection()
	for _, g := range r.Geometry {
		f, err := featureFrom(&g, r.UniqueName)
		if err != nil {
			return err
		}
		fc.Append(f)
	}

	r.GeoJSON = fc
	r.Geometry = nil
	return nil
}

func featureFrom(g *products.Geometry, uniqueName string) (*geojson.Feature, error) {
	var f *geojson.Feature

	switch g.Type {
	case products.ShapePoint:
		f = geojson.NewFeature(orb.Point{g.Center[0], g.Center[1]})
	case products.ShapePolygon:
		f = geojson.NewFeature(orb.Polygon{toRing(g.Coordinates)})
	case products.ShapePolyline:
		f = geojson.NewFeature(orb.LineString(toPoints(g.Coordinates)))
	case products.ShapeCircle:
		ring := circleToRing(orb.Point{g.Center[0], g.Center[1]}, g.RadiusNM)
		f = geojson.NewFeature(orb.Polygon{ring})
	default:
		return nil, fmt.Errorf("harvest: unknown geometry type %q", g.Type)
	}

	props := f.Properties
	props["id"] = uniqueName
	props["altitudes"] = g.Altitudes
	if !g.StartTime.IsZero() {
		props["start_time"] = g.StartTime.Format(fisbtime.ISO8601)
	}
	if !g.StopTime.IsZero() {
		props["stop_time"] = g.StopTime.Format(fisbtime.ISO8601)
	}
	if g.StartHour != "" {
		props["start_hour"] = g.StartHour
	}
	if g.StopHour != "" {
		props["stop_hour"] = g.StopHour
	}
	if g.Cancelled {
		props["cancelled"] = true
	}
	if g.Element != "" {
		props["element"] = g.Element
	}
	if g.AirportID != "" {
		props["airport_id"] = g.AirportID
	}
	if len(g.Conditions) > 0 {
		props["conditions"] = g.Conditions
	}
	if g.Type == products.ShapeCircle {
		props["radius_nm"] = g.RadiusNM
	}

	return f, nil
}

func toPoints(coords [][]float64) []orb.Point {
	pts := make([]orb.Point, len(coords))
	for i, c := range coords {
		pts[i] = orb.Point{c[0], c[1]}
	}
	return pts
}

func toRing(coords [][]float64) orb.Ring {
	ring := orb.Ring(toPoints(coords))
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring
}

// circleToRing approximates a circle as a closed ring of 32 vertexes on the
// WGS84 ellipsoid, coordinates rounded to 6 decimals.
func circleToRing(center orb.Point, radiusNM float64) orb.Ring {
	ring := make(orb.Ring, 0, circlePoints+1)
	for i := 0; i < circlePoints; i++ {
		bearing := 360.0 / circlePoints * float64(i)
		p := geo.PointAtBearingAndDistance(center, bearing, radiusNM*metersPerNM)
		ring = append(ring, orb.Point{round6(p[0]), round6(p[1])})
	}
	return append(ring, ring[0])
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
