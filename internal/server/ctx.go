package server

import (
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	mjson "github.com/tdewolff/minify/v2/json"

	"github.com/alcaldia-cali/geodash/internal/config"
	"github.com/alcaldia-cali/geodash/internal/filters"
	"github.com/alcaldia-cali/geodash/internal/geo"
	"github.com/alcaldia-cali/geodash/internal/loader"
	"github.com/alcaldia-cali/geodash/internal/mapview"
	"github.com/alcaldia-cali/geodash/internal/metrics"
)

// ServerContext holds dependencies for request handlers.
type ServerContext struct {
	Config      *config.Config
	Loader      *loader.Loader
	Metrics     *metrics.Collector
	Hierarchies filters.Hierarchies
	MapConfig   mapview.Config
	Points      []geo.PointRecord

	sources  []config.Source
	minifier *minify.M
}

// NewServerContext wires the handlers to the loader and reports sources whose files are missing.
func NewServerContext(cfg *config.Config, l *loader.Loader, m *metrics.Collector) *ServerContext {
	log.Info().Int("config_sources_count", len(cfg.Sources)).Msg("Initializing server context")

	sources := make([]config.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		loc, err := l.Resolver().Resolve(s.ID)
		if err != nil {
			log.Warn().
				Str("source", s.ID).
				Err(err).
				Msg("Skipping source: not resolvable")
			continue
		}

		if loc.Kind == loader.KindFile {
			if _, err := os.Stat(loc.Target); err != nil {
				log.Warn().
					Str("source", s.ID).
					Str("path", loc.Target).
					Msg("Source file not found, requests for it will fail until it exists")
			}
		}

		log.Debug().
			Str("source", s.ID).
			Str("kind", string(loc.Kind)).
			Strs("aliases", s.Aliases).
			Msg("Source registered")

		sources = append(sources, s)
	}

	sort.SliceStable(sources, func(i, j int) bool {
		idxI, idxJ := 999999, 999999
		if sources[i].Index != nil {
			idxI = *sources[i].Index
		}
		if sources[j].Index != nil {
			idxJ = *sources[j].Index
		}
		return idxI < idxJ
	})

	mini := minify.New()
	mini.AddFuncRegexp(regexp.MustCompile(`[/+]json$`), mjson.Minify)

	s := &ServerContext{
		Config:      cfg,
		Loader:      l,
		Metrics:     m,
		Hierarchies: filters.FromConfig(cfg.Hierarchies),
		MapConfig:   MapConfig(cfg),
		Points:      loadPoints(cfg.Points.Path),
		sources:     sources,
		minifier:    mini,
	}

	log.Info().
		Int("valid_sources_count", len(sources)).
		Int("points", len(s.Points)).
		Msg("Server context initialized successfully")

	return s
}

// MapConfig derives the rendering options of served maps from cfg.
func MapConfig(cfg *config.Config) mapview.Config {
	mc := mapview.DefaultConfig()
	if cfg.BaseMap.URL != "" {
		mc.BaseMap.URL = cfg.BaseMap.URL
	}
	if cfg.BaseMap.Attribution != "" {
		mc.BaseMap.Attribution = cfg.BaseMap.Attribution
	}
	if cfg.Map.Theme != "" {
		mc.Theme = cfg.Map.Theme
	}
	if cfg.Map.Height != "" {
		mc.Height = cfg.Map.Height
	}
	if cfg.Map.Property != "" {
		mc.Choropleth = mapview.Choropleth{Property: cfg.Map.Property, Colors: cfg.Map.Colors}
		mc.Legend.Enabled = true
		mc.Legend.Title = cfg.Map.LegendTitle
	}
	mc.Popup.Template = cfg.Map.PopupTemplate
	mc.LargeBytes = cfg.Cache.LargeBytes
	return mc
}

func loadPoints(path string) []geo.PointRecord {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Point records not loaded")
		return nil
	}

	var records []geo.PointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Point records file is not a JSON array")
		return nil
	}
	return records
}

// Routes returns the API handler wrapped in the request logger.
func (s *ServerContext) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sources", s.HandleSources)
	mux.HandleFunc("GET /api/geojson/{id}", s.HandleGeoJSON)
	mux.HandleFunc("GET /api/layers", s.HandleLayers)
	mux.HandleFunc("POST /api/filters", s.HandleFilters)
	mux.HandleFunc("GET /api/legend/{file}", s.HandleLegend)
	mux.Handle("GET /metrics", s.Metrics.Handler())

	return RequestLogger(mux)
}
