// Package geo handles GeoJSON documents, coordinate normalization and point records.
package geo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var (
	// ErrSyntax is returned when the input is not valid JSON.
	ErrSyntax = errors.New("invalid json")
	// ErrNotFeatureCollection is returned for valid JSON that is not a FeatureCollection.
	ErrNotFeatureCollection = errors.New("not a geojson feature collection")
)

// header is the minimal shape checked before the full decode.
type header struct {
	Type     string          `json:"type"`
	Features json.RawMessage `json:"features"`
}

// Decode parses raw bytes into a FeatureCollection.
// It requires an object with type "FeatureCollection" and a features array.
func Decode(data []byte) (*geojson.FeatureCollection, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFeatureCollection, err)
	}

	if h.Type != "FeatureCollection" {
		return nil, fmt.Errorf("%w: type %q", ErrNotFeatureCollection, h.Type)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(h.Features), []byte("[")) {
		return nil, fmt.Errorf("%w: features is not an array", ErrNotFeatureCollection)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFeatureCollection, err)
	}

	return fc, nil
}

// Bound returns the union of all feature geometry bounds.
// The second value is false when the collection has no geometry.
func Bound(fc *geojson.FeatureCollection) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	if fc == nil {
		return b, false
	}

	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		fb := f.Geometry.Bound()
		if !found {
			b = fb
			found = true
			continue
		}
		b = b.Union(fb)
	}

	return b, found
}
