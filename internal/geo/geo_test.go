package geo

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const comunaDoc = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"comuna": "7", "nombre": "Comuna 7"},
      "geometry": {
        "type": "Polygon",
        "coordinates": [[[3.45, -76.53], [3.46, -76.53], [3.46, -76.52], [3.45, -76.53]]]
      }
    },
    {
      "type": "Feature",
      "properties": {"nombre": "Sede"},
      "geometry": {"type": "Point", "coordinates": [-76.5312345678, 3.4412345678]}
    }
  ]
}`

var caliRegion = &orb.Bound{Min: orb.Point{-76.7, 3.2}, Max: orb.Point{-76.4, 3.6}}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
	}{
		{name: "valid", data: comunaDoc},
		{name: "empty features", data: `{"type":"FeatureCollection","features":[]}`},
		{name: "truncated", data: `{"type":"FeatureCollection","features":[`, err: ErrSyntax},
		{name: "not json", data: `<html>`, err: ErrSyntax},
		{name: "feature", data: `{"type":"Feature","geometry":null,"properties":{}}`, err: ErrNotFeatureCollection},
		{name: "array", data: `[1, 2]`, err: ErrNotFeatureCollection},
		{name: "missing features", data: `{"type":"FeatureCollection"}`, err: ErrNotFeatureCollection},
		{name: "features object", data: `{"type":"FeatureCollection","features":{}}`, err: ErrNotFeatureCollection},
	}

	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			fc, err := Decode([]byte(test.data))
			if test.err != nil {
				assert.ErrorIs(t, err, test.err)
				assert.Nil(t, fc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "FeatureCollection", fc.Type)
		})
	}
}

func TestNormalizeSwapsWithRegion(t *testing.T) {
	fc, err := Decode([]byte(comunaDoc))
	require.NoError(t, err)

	out := Normalize(fc, NormalizeOptions{Precision: 6, Region: caliRegion})

	poly, ok := out.Features[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-76.53, 3.45}, poly[0][0])

	pt, ok := out.Features[1].Geometry.(orb.Point)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-76.531235, 3.441235}, pt)

	// input untouched
	orig := fc.Features[0].Geometry.(orb.Polygon)
	assert.Equal(t, orb.Point{3.45, -76.53}, orig[0][0])
	assert.Equal(t, "Comuna 7", out.Features[0].Properties["nombre"])
}

func TestNormalizeIdempotent(t *testing.T) {
	docs := map[string]string{
		"swapped": comunaDoc,
		"mercator": `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[-8519228.5, 385000.25]}},
			{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[-8519228.5, 385000.25],[-8510000, 390000]]}}]}`,
		"polar": `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{},"geometry":{"type":"MultiPoint","coordinates":[[10, 89.9], [-179.99999999, -88]]}}]}`,
		"collection": `{"type":"FeatureCollection","bbox":[0,0,1,1],"features":[
			{"type":"Feature","properties":null,"geometry":{"type":"GeometryCollection","geometries":[
				{"type":"Point","coordinates":[1.123456789, 2.987654321]},
				{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}]}}]}`,
	}

	for name, raw := range docs {
		data := raw
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			fc, err := Decode([]byte(data))
			require.NoError(t, err)

			for _, opts := range []NormalizeOptions{
				{Precision: 6},
				{Precision: 6, Region: caliRegion},
				{},
			} {
				once := Normalize(fc, opts)
				twice := Normalize(once, opts)
				assert.Equal(t, once, twice)
			}
		})
	}
}

func TestNormalizeMercator(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{-8519228.5, 385000.25}))
	require.True(t, IsMercator(fc))

	out := Normalize(fc, NormalizeOptions{Precision: 4})
	pt := out.Features[0].Geometry.(orb.Point)
	assert.InDelta(t, -76.53, pt[0], 0.01)
	assert.InDelta(t, 3.45, pt[1], 0.01)
	assert.False(t, IsMercator(out))
}

func TestNormalizeOutlierIsNotMercator(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{-76.53, 3.45}))
	fc.Append(geojson.NewFeature(orb.Point{276.53, 3.45}))
	assert.False(t, IsMercator(fc))

	out := Normalize(fc, NormalizeOptions{Precision: 6})
	assert.Equal(t, orb.Point{-76.53, 3.45}, out.Features[0].Geometry)
	assert.Equal(t, orb.Point{180, 3.45}, out.Features[1].Geometry)

	single := geojson.NewFeatureCollection()
	single.Append(geojson.NewFeature(orb.Point{276.53, 3.45}))
	assert.False(t, IsMercator(single))

	mixed := geojson.NewFeatureCollection()
	mixed.Append(geojson.NewFeature(orb.LineString{{-8519228.5, 385000.25}, {-8518000, 386000}}))
	mixed.Append(geojson.NewFeature(orb.Point{0, 0}))
	assert.True(t, IsMercator(mixed))
}

func TestNormalizeClamps(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	fc.Append(geojson.NewFeature(orb.Point{10, 89.5}))

	out := Normalize(fc, NormalizeOptions{})
	pt := out.Features[0].Geometry.(orb.Point)
	assert.Equal(t, MaxLat, pt[1])
}

func TestSwapAxes(t *testing.T) {
	tests := []struct {
		name   string
		in     orb.Point
		region *orb.Bound
		want   orb.Point
	}{
		{name: "correct order", in: orb.Point{-76.5, 3.4}, want: orb.Point{-76.5, 3.4}},
		{name: "impossible latitude", in: orb.Point{45, 120}, want: orb.Point{120, 45}},
		{name: "ambiguous without region", in: orb.Point{3.4, -76.5}, want: orb.Point{3.4, -76.5}},
		{name: "ambiguous with region", in: orb.Point{3.4, -76.5}, region: caliRegion, want: orb.Point{-76.5, 3.4}},
		{name: "outside region both ways", in: orb.Point{10, 10}, region: caliRegion, want: orb.Point{10, 10}},
	}
	for _, tt := range tests {
		test := tt
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, test.want, SwapAxes(test.in, test.region))
		})
	}
}

func TestBound(t *testing.T) {
	fc, err := Decode([]byte(comunaDoc))
	require.NoError(t, err)
	out := Normalize(fc, NormalizeOptions{Precision: 6, Region: caliRegion})

	b, ok := Bound(out)
	require.True(t, ok)
	assert.InDelta(t, -76.531235, b.Min[0], 1e-9)
	assert.InDelta(t, 3.46, b.Max[1], 1e-9)

	_, ok = Bound(geojson.NewFeatureCollection())
	assert.False(t, ok)
}

func TestPointRecords(t *testing.T) {
	var records []PointRecord
	data := `[
		{"lat": 3.45, "lng": -76.53, "name": "Centro de salud", "status": "En Ejecución"},
		{"lng": -76.5, "name": "Sin latitud"},
		{"latitude": "3.40", "longitude": "-76.50", "properties": {"bpin": "2023001"}}
	]`
	require.NoError(t, json.Unmarshal([]byte(data), &records))
	require.Len(t, records, 3)

	assert.True(t, records[0].HasCoordinates())
	assert.False(t, records[1].HasCoordinates())
	assert.Equal(t, "Sin latitud", records[1].Properties["name"])
	assert.Equal(t, "2023001", records[2].Properties["bpin"])

	valid := WithCoordinates(records)
	assert.Len(t, valid, 2)

	fc := PointsToFeatureCollection(records)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, orb.Point{-76.53, 3.45}, fc.Features[0].Geometry)
	assert.Equal(t, "Centro de salud", fc.Features[0].Properties["name"])
}
