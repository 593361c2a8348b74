// Package config handles configuration loading and shared data structures.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPrecision  = 6
	defaultTimeout    = 15 * time.Second
	defaultLargeBytes = 4 << 20
	defaultPointsID   = "unidadesProyecto"
	defaultPointsName = "Unidades de Proyecto"
)

// Config represents the root configuration file structure.
type Config struct {
	Attribution string      `yaml:"attribution,omitempty" json:"attribution,omitempty"`
	BaseMap     BaseMap     `yaml:"base_map" json:"base_map"`
	DataDir     string      `yaml:"data_dir" json:"-"`
	Sources     []Source    `yaml:"sources" json:"sources"`
	Cache       Cache       `yaml:"cache" json:"-"`
	HTTP        HTTP        `yaml:"http" json:"-"`
	Normalize   Normalize   `yaml:"normalize" json:"-"`
	Database    Database    `yaml:"database" json:"-"`
	Points      Points      `yaml:"points" json:"points"`
	Map         Map         `yaml:"map" json:"-"`
	Hierarchies Hierarchies `yaml:"hierarchies" json:"-"`
}

// BaseMap is the tile layer drawn under every map.
type BaseMap struct {
	Name        string `yaml:"name" json:"name"`
	URL         string `yaml:"url" json:"url"`
	Attribution string `yaml:"attribution,omitempty" json:"attribution,omitempty"`
}

// Source is one entry of the identifier to location table.
// Exactly one of Path, URL or Query must be set.
type Source struct {
	Index   *int     `yaml:"index,omitempty" json:"index,omitempty"`
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Path    string   `yaml:"path,omitempty" json:"-"`
	URL     string   `yaml:"url,omitempty" json:"-"`
	Query   string   `yaml:"query,omitempty" json:"-"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Cache controls the in-memory document cache.
type Cache struct {
	// Capacity bounds the number of cached documents, 0 keeps everything.
	Capacity   int   `yaml:"capacity"`
	LargeBytes int64 `yaml:"large_bytes"`
}

// HTTP controls remote fetches.
type HTTP struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// Normalize controls coordinate processing.
type Normalize struct {
	Precision int `yaml:"precision"`
	// Region is an optional [minLon, minLat, maxLon, maxLat] hint for axis order detection.
	Region []float64 `yaml:"region,omitempty"`
}

// Database configures PostGIS backed sources.
type Database struct {
	DSN      string `yaml:"dsn,omitempty"`
	MaxConns int32  `yaml:"max_conns,omitempty"`
}

// Points names the layer built from point records.
type Points struct {
	ID   string `yaml:"id,omitempty" json:"id"`
	Name string `yaml:"name,omitempty" json:"name"`
	// Path is an optional JSON file of point records shown as the points layer.
	Path string `yaml:"path,omitempty" json:"-"`
}

// Map overrides the rendering defaults of served maps.
type Map struct {
	Theme         string   `yaml:"theme,omitempty"`
	Height        string   `yaml:"height,omitempty"`
	Property      string   `yaml:"choropleth_property,omitempty"`
	Colors        []string `yaml:"choropleth_colors,omitempty"`
	LegendTitle   string   `yaml:"legend_title,omitempty"`
	PopupTemplate string   `yaml:"popup_template,omitempty"`
}

// Hierarchies overrides the built-in parent to children tables of the filter panel.
type Hierarchies struct {
	Comunas        map[string][]string `yaml:"comunas,omitempty"`
	Corregimientos map[string][]string `yaml:"corregimientos,omitempty"`
	Categories     map[string][]string `yaml:"categorias,omitempty"`
}

// DefaultSources is the built-in identifier table used when the config has none.
func DefaultSources() []Source {
	return []Source{
		{ID: "comunas", Name: "Comunas", Path: "comunas.geojson"},
		{ID: "barrios", Name: "Barrios", Path: "barrios.geojson"},
		{ID: "corregimientos", Name: "Corregimientos", Path: "corregimientos.geojson"},
		{ID: "veredas", Name: "Veredas", Path: "veredas.geojson"},
	}
}

// Load reads and parses the YAML configuration file from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = defaultTimeout
	}
	if c.Normalize.Precision <= 0 {
		c.Normalize.Precision = defaultPrecision
	}
	if c.Cache.LargeBytes <= 0 {
		c.Cache.LargeBytes = defaultLargeBytes
	}
	if c.Points.ID == "" {
		c.Points.ID = defaultPointsID
	}
	if c.Points.Name == "" {
		c.Points.Name = defaultPointsName
	}
	if c.BaseMap.Attribution == "" {
		c.BaseMap.Attribution = c.Attribution
	}
}

// Validate checks identifiers are unique and every source has one location.
func (c *Config) Validate() error {
	seen := make(map[string]string)
	var errs []error

	for i, s := range c.Sources {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: id is required", i))
			continue
		}

		set := 0
		for _, v := range []string{s.Path, s.URL, s.Query} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			errs = append(errs, fmt.Errorf("source %q: exactly one of path, url or query is required", s.ID))
		}
		if s.Query != "" && c.Database.DSN == "" {
			errs = append(errs, fmt.Errorf("source %q: query requires database.dsn", s.ID))
		}

		for _, key := range append([]string{s.ID}, s.Aliases...) {
			if owner, ok := seen[key]; ok {
				errs = append(errs, fmt.Errorf("source %q: identifier %q already used by %q", s.ID, key, owner))
				continue
			}
			seen[key] = s.ID
		}
	}

	if r := c.Normalize.Region; len(r) != 0 && (len(r) != 4 || r[0] >= r[2] || r[1] >= r[3]) {
		errs = append(errs, errors.New("normalize.region must be [minLon, minLat, maxLon, maxLat]"))
	}
	if c.Cache.Capacity < 0 {
		errs = append(errs, errors.New("cache.capacity must not be negative"))
	}

	return errors.Join(errs...)
}

// Source returns the source registered under id or one of its aliases.
func (c *Config) Source(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
		for _, a := range s.Aliases {
			if a == id {
				return s, true
			}
		}
	}
	return Source{}, false
}
