// Package legend computes choropleth color scales and renders them as images.
package legend

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// DefaultColors is the red sequential ramp used when no colors are configured.
var DefaultColors = []string{"#fee5d9", "#fcae91", "#fb6a4a", "#cb181d"}

// ErrNoValues is returned when a scale has nothing to bin.
var ErrNoValues = errors.New("no numeric values")

// Bin is one class of the scale. To is inclusive for the last bin only.
type Bin struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Color string  `json:"color"`
}

// Scale maps values to colors using equal-interval bins.
type Scale struct {
	Min, Max float64
	colors   []string
	rgba     []color.RGBA
}

// NewScale builds a scale spanning values with one bin per color.
func NewScale(values []float64, colors []string) (*Scale, error) {
	if len(colors) == 0 {
		colors = DefaultColors
	}

	rgba := make([]color.RGBA, len(colors))
	for i, c := range colors {
		parsed, err := ParseHex(c)
		if err != nil {
			return nil, err
		}
		rgba[i] = parsed
	}

	s := &Scale{Min: math.Inf(1), Max: math.Inf(-1), colors: colors, rgba: rgba}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if math.IsInf(s.Min, 1) {
		return nil, ErrNoValues
	}

	return s, nil
}

// Values collects the numeric values of property across the features of fc.
// Numeric strings are accepted, anything else is skipped.
func Values(fc *geojson.FeatureCollection, property string) []float64 {
	if fc == nil {
		return nil
	}
	out := make([]float64, 0, len(fc.Features))
	for _, f := range fc.Features {
		if v, ok := Number(f.Properties[property]); ok {
			out = append(out, v)
		}
	}
	return out
}

// Number converts a decoded JSON value into a finite float.
func Number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (s *Scale) step() float64 {
	return (s.Max - s.Min) / float64(len(s.colors))
}

// Index returns the bin holding v, clamped to the first and last bins.
// NaN falls in the first bin.
func (s *Scale) Index(v float64) int {
	step := s.step()
	if step == 0 || math.IsNaN(v) || v <= s.Min {
		return 0
	}
	if v >= s.Max {
		return len(s.colors) - 1
	}
	i := int((v - s.Min) / step)
	if i >= len(s.colors) {
		i = len(s.colors) - 1
	}
	return i
}

// Color returns the hex color of v.
func (s *Scale) Color(v float64) string {
	return s.colors[s.Index(v)]
}

// RGBA returns the color of v.
func (s *Scale) RGBA(v float64) color.RGBA {
	return s.rgba[s.Index(v)]
}

// Bins returns the classes in ascending order.
func (s *Scale) Bins() []Bin {
	step := s.step()
	bins := make([]Bin, len(s.colors))
	for i, c := range s.colors {
		bins[i] = Bin{
			From:  s.Min + float64(i)*step,
			To:    s.Min + float64(i+1)*step,
			Color: c,
		}
	}
	bins[len(bins)-1].To = s.Max
	return bins
}

// ParseHex parses #rgb or #rrggbb colors.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	n, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}
