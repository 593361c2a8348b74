package geo

import (
	"encoding/json"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// PointRecord is an entity placed on the map by its latitude and longitude.
// Missing coordinates are nil.
type PointRecord struct {
	Lat        *float64       `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lng        *float64       `json:"lng,omitempty" yaml:"lng,omitempty"`
	Properties map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// NewPointRecord builds a record with both coordinates set.
func NewPointRecord(lat, lng float64, props map[string]any) PointRecord {
	return PointRecord{Lat: &lat, Lng: &lng, Properties: props}
}

// HasCoordinates reports whether both latitude and longitude are present.
func (r PointRecord) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}

// Point returns the record position in [lon, lat] order.
func (r PointRecord) Point() orb.Point {
	if !r.HasCoordinates() {
		return orb.Point{}
	}
	return orb.Point{*r.Lng, *r.Lat}
}

// UnmarshalJSON accepts flat records such as {"lat": 3.4, "lng": -76.5, "name": "..."}.
// lat/latitude and lng/lon/longitude are read as coordinates, every other member
// becomes a property. A "properties" object is merged as well.
func (r *PointRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = PointRecord{Properties: map[string]any{}}
	for key, value := range raw {
		switch key {
		case "lat", "latitude":
			r.Lat = toFloat(value)
		case "lng", "lon", "longitude":
			r.Lng = toFloat(value)
		case "properties":
			if props, ok := value.(map[string]any); ok {
				for k, v := range props {
					r.Properties[k] = v
				}
			}
		default:
			r.Properties[key] = value
		}
	}

	return nil
}

// WithCoordinates returns the records carrying both coordinates, in input order.
func WithCoordinates(records []PointRecord) []PointRecord {
	out := make([]PointRecord, 0, len(records))
	for _, r := range records {
		if r.HasCoordinates() {
			out = append(out, r)
		}
	}
	return out
}

// PointsToFeatureCollection converts records to Point features, skipping
// records without both coordinates.
func PointsToFeatureCollection(records []PointRecord) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range records {
		if !r.HasCoordinates() {
			continue
		}
		f := geojson.NewFeature(r.Point())
		for k, v := range r.Properties {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	return fc
}

func toFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case string:
		parsed, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
