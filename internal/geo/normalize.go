package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// NormalizeOptions controls coordinate processing.
type NormalizeOptions struct {
	// Precision is the number of decimals kept, 0 disables rounding.
	Precision int
	// Region is an optional area where the data is expected to lie.
	// It lets SwapAxes detect swapped pairs that are otherwise valid coordinates.
	Region *orb.Bound
}

// Normalize returns a copy of fc with every coordinate in [lon, lat] order,
// reprojected from Web Mercator when needed, clamped and rounded.
// The input is not modified and Normalize(Normalize(fc)) equals Normalize(fc).
func Normalize(fc *geojson.FeatureCollection, opts NormalizeOptions) *geojson.FeatureCollection {
	if fc == nil {
		return nil
	}

	mercator := IsMercator(fc)

	fix := func(p orb.Point) orb.Point {
		if mercator {
			p = project.Mercator.ToWGS84(p)
		}
		p = SwapAxes(p, opts.Region)
		lon, lat := clampPoint(p[0], p[1])
		return orb.Point{round(lon, opts.Precision), round(lat, opts.Precision)}
	}

	out := geojson.NewFeatureCollection()
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))

	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		nf := &geojson.Feature{
			ID:         f.ID,
			Type:       f.Type,
			Geometry:   mapGeometry(f.Geometry, fix),
			Properties: f.Properties.Clone(),
		}
		if nf.Properties == nil {
			nf.Properties = geojson.Properties{}
		}
		if f.BBox != nil && nf.Geometry != nil {
			nf.BBox = geojson.NewBBox(nf.Geometry.Bound())
		}
		out.Features = append(out.Features, nf)
	}

	if fc.BBox != nil {
		if b, ok := Bound(out); ok {
			out.BBox = geojson.NewBBox(b)
		}
	}

	return out
}

// projectedFloor is the magnitude from which a coordinate is read as meters.
// Degree values past 180 below it are typos and get clamped instead.
const projectedFloor = 1000

// IsMercator reports whether the document looks projected in EPSG:3857 meters:
// more than half of its positions lie far outside any geographic range and
// none leaves the Mercator world.
func IsMercator(fc *geojson.FeatureCollection) bool {
	if fc == nil {
		return false
	}

	total, projected := 0, 0
	outside := false
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		eachPoint(f.Geometry, func(p orb.Point) {
			total++
			largest := math.Max(math.Abs(p[0]), math.Abs(p[1]))
			switch {
			case math.IsNaN(largest) || largest > mercatorExtent*1.01:
				outside = true
			case largest > projectedFloor:
				projected++
			}
		})
	}

	return !outside && projected*2 > total
}

// eachPoint calls fn for every position of g.
func eachPoint(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			eachPoint(ls, fn)
		}
	case orb.Polygon:
		for _, r := range g {
			eachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, poly := range g {
			eachPoint(poly, fn)
		}
	case orb.Collection:
		for _, sub := range g {
			eachPoint(sub, fn)
		}
	case orb.Bound:
		fn(g.Min)
		fn(g.Max)
	}
}

// SwapAxes returns p in [lon, lat] order when it appears to be [lat, lon].
// A pair is swapped when its latitude is impossible but its longitude is a valid
// latitude, or when region is set and only the swapped pair lies inside it.
func SwapAxes(p orb.Point, region *orb.Bound) orb.Point {
	swapped := orb.Point{p[1], p[0]}

	if math.Abs(p[1]) > 90 && math.Abs(p[0]) <= 90 {
		return swapped
	}
	if region != nil && !region.Contains(p) && region.Contains(swapped) {
		return swapped
	}

	return p
}

// mapGeometry rebuilds g applying fn to every position.
func mapGeometry(g orb.Geometry, fn func(orb.Point) orb.Point) orb.Geometry {
	switch g := g.(type) {
	case nil:
		return nil
	case orb.Point:
		return fn(g)
	case orb.MultiPoint:
		return orb.MultiPoint(mapPoints(g, fn))
	case orb.LineString:
		return orb.LineString(mapPoints(g, fn))
	case orb.MultiLineString:
		out := make(orb.MultiLineString, len(g))
		for i, ls := range g {
			out[i] = orb.LineString(mapPoints(ls, fn))
		}
		return out
	case orb.Ring:
		return orb.Ring(mapPoints(g, fn))
	case orb.Polygon:
		return mapPolygon(g, fn)
	case orb.MultiPolygon:
		out := make(orb.MultiPolygon, len(g))
		for i, poly := range g {
			out[i] = mapPolygon(poly, fn)
		}
		return out
	case orb.Collection:
		out := make(orb.Collection, len(g))
		for i, sub := range g {
			out[i] = mapGeometry(sub, fn)
		}
		return out
	case orb.Bound:
		return orb.Bound{Min: fn(g.Min), Max: fn(g.Max)}
	default:
		return g
	}
}

func mapPolygon(poly orb.Polygon, fn func(orb.Point) orb.Point) orb.Polygon {
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		out[i] = orb.Ring(mapPoints(ring, fn))
	}
	return out
}

func mapPoints(ps []orb.Point, fn func(orb.Point) orb.Point) []orb.Point {
	out := make([]orb.Point, len(ps))
	for i, p := range ps {
		out[i] = fn(p)
	}
	return out
}
