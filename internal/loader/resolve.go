package loader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alcaldia-cali/geodash/internal/config"
)

// Kind tells which fetcher reads a location.
type Kind string

// Location kinds.
const (
	KindFile    Kind = "file"
	KindHTTP    Kind = "http"
	KindPostGIS Kind = "postgis"
)

// Location is a resolved source.
type Location struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Target string `json:"-"`
}

// Resolver maps source identifiers and aliases to locations.
type Resolver struct {
	locations map[string]Location
	aliases   map[string]string
	order     []string
}

// NewResolver builds the identifier table. Relative paths are joined to dataDir.
func NewResolver(dataDir string, sources []config.Source) *Resolver {
	r := &Resolver{
		locations: make(map[string]Location, len(sources)),
		aliases:   make(map[string]string),
		order:     make([]string, 0, len(sources)),
	}

	for _, s := range sources {
		loc := Location{ID: s.ID, Name: s.Name}
		switch {
		case s.Query != "":
			loc.Kind, loc.Target = KindPostGIS, s.Query
		case s.URL != "":
			loc.Kind, loc.Target = KindHTTP, s.URL
		case strings.HasPrefix(s.Path, "http://") || strings.HasPrefix(s.Path, "https://"):
			loc.Kind, loc.Target = KindHTTP, s.Path
		default:
			loc.Kind, loc.Target = KindFile, s.Path
			if !filepath.IsAbs(s.Path) && dataDir != "" {
				loc.Target = filepath.Join(dataDir, s.Path)
			}
		}

		if _, dup := r.locations[s.ID]; !dup {
			r.order = append(r.order, s.ID)
		}
		r.locations[s.ID] = loc
		for _, a := range s.Aliases {
			r.aliases[a] = s.ID
		}
	}

	return r
}

// Resolve returns the location registered for id or one of its aliases.
func (r *Resolver) Resolve(id string) (Location, error) {
	if loc, ok := r.locations[id]; ok {
		return loc, nil
	}
	if canonical, ok := r.aliases[id]; ok {
		return r.locations[canonical], nil
	}
	return Location{}, fmt.Errorf("%w: %q", ErrUnknownSource, id)
}

// IDs returns the canonical identifiers in configuration order.
func (r *Resolver) IDs() []string {
	return append([]string(nil), r.order...)
}

// Locations returns every location in configuration order.
func (r *Resolver) Locations() []Location {
	out := make([]Location, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.locations[id])
	}
	return out
}
