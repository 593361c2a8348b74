// Package layers turns loaded documents and point records into renderable layers.
package layers

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/alcaldia-cali/geodash/internal/geo"
)

// Kind is the payload type of a layer.
type Kind string

// Layer kinds.
const (
	KindGeoJSON Kind = "geojson"
	KindPoints  Kind = "points"
)

// Default identity of the points layer.
const (
	DefaultPointsID   = "unidadesProyecto"
	DefaultPointsName = "Unidades de Proyecto"
)

// Layer is one entry of the layer list. Document is shared with the loader and read-only.
type Layer struct {
	ID       string                     `json:"id"`
	Name     string                     `json:"name"`
	Kind     Kind                       `json:"type"`
	Visible  bool                       `json:"visible"`
	Document *geojson.FeatureCollection `json:"data"`
	Points   []geo.PointRecord          `json:"-"`
}

// Input gathers everything a layer list is built from.
type Input struct {
	// Static documents become static-0, static-1, ...
	Static []*geojson.FeatureCollection
	// Dynamic documents keyed by source identifier.
	Dynamic map[string]*geojson.FeatureCollection
	// Order lists dynamic identifiers in display order. Keys missing from it follow, sorted.
	Order []string
	// Visibility overrides the default visible state per layer identifier.
	Visibility map[string]bool

	Points     []geo.PointRecord
	PointsID   string
	PointsName string
}

// Build returns a new layer list. Inputs are never modified.
func Build(in Input) []Layer {
	out := make([]Layer, 0, len(in.Static)+len(in.Dynamic)+1)
	used := make(map[string]struct{}, cap(out))

	add := func(l Layer) {
		if _, dup := used[l.ID]; dup {
			return
		}
		used[l.ID] = struct{}{}
		if v, ok := in.Visibility[l.ID]; ok {
			l.Visible = v
		}
		out = append(out, l)
	}

	for i, doc := range in.Static {
		add(Layer{
			ID:       fmt.Sprintf("static-%d", i),
			Name:     fmt.Sprintf("Capa %d", i+1),
			Kind:     KindGeoJSON,
			Visible:  true,
			Document: doc,
		})
	}

	for _, id := range dynamicOrder(in.Dynamic, in.Order) {
		add(Layer{
			ID:       id,
			Name:     DisplayName(id),
			Kind:     KindGeoJSON,
			Visible:  true,
			Document: in.Dynamic[id],
		})
	}

	if pts := geo.WithCoordinates(in.Points); len(pts) > 0 {
		id, name := in.PointsID, in.PointsName
		if id == "" {
			id = DefaultPointsID
		}
		if name == "" {
			name = DefaultPointsName
		}
		add(Layer{
			ID:       id,
			Name:     name,
			Kind:     KindPoints,
			Visible:  true,
			Document: geo.PointsToFeatureCollection(pts),
			Points:   pts,
		})
	}

	return out
}

func dynamicOrder(docs map[string]*geojson.FeatureCollection, order []string) []string {
	ids := make([]string, 0, len(docs))
	seen := make(map[string]struct{}, len(docs))
	for _, id := range order {
		if _, ok := docs[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	rest := make([]string, 0, len(docs)-len(ids))
	for id := range docs {
		if _, ok := seen[id]; !ok {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)

	return append(ids, rest...)
}

// DisplayName upper-cases the first letter of id.
func DisplayName(id string) string {
	r, size := utf8.DecodeRuneInString(id)
	if r == utf8.RuneError {
		return id
	}
	return string(unicode.ToUpper(r)) + id[size:]
}

// Toggle returns a copy of list with the visibility of id flipped.
func Toggle(list []Layer, id string) []Layer {
	out := make([]Layer, len(list))
	copy(out, list)
	for i := range out {
		if out[i].ID == id {
			out[i].Visible = !out[i].Visible
		}
	}
	return out
}

// Find returns the layer with the given identifier.
func Find(list []Layer, id string) (Layer, bool) {
	for _, l := range list {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// Visible returns the visible layers.
func Visible(list []Layer) []Layer {
	out := make([]Layer, 0, len(list))
	for _, l := range list {
		if l.Visible {
			out = append(out, l)
		}
	}
	return out
}

// Bound returns the union of the visible layer bounds.
func Bound(list []Layer) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, l := range list {
		if !l.Visible || l.Document == nil {
			continue
		}
		lb, ok := geo.Bound(l.Document)
		if !ok {
			continue
		}
		if !found {
			b, found = lb, true
			continue
		}
		b = b.Union(lb)
	}
	return b, found
}

// IDs returns the layer identifiers joined by commas, useful in logs.
func IDs(list []Layer) string {
	ids := make([]string, len(list))
	for i, l := range list {
		ids[i] = l.ID
	}
	return strings.Join(ids, ",")
}
