// Package server handles HTTP requests and middleware.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/alcaldia-cali/geodash/internal/filters"
	"github.com/alcaldia-cali/geodash/internal/legend"
	"github.com/alcaldia-cali/geodash/internal/loader"
	"github.com/alcaldia-cali/geodash/internal/mapview"
)

const etagCap = 64

type sourceInfo struct {
	ID      string      `json:"id"`
	Name    string      `json:"name,omitempty"`
	Kind    loader.Kind `json:"kind"`
	Aliases []string    `json:"aliases,omitempty"`
	Cached  bool        `json:"cached"`
}

// HandleSources serves the configured sources.
func (s *ServerContext) HandleSources(w http.ResponseWriter, r *http.Request) {
	out := make([]sourceInfo, 0, len(s.sources))
	for _, src := range s.sources {
		loc, err := s.Loader.Resolver().Resolve(src.ID)
		if err != nil {
			continue
		}
		_, cached := s.Loader.Entry(src.ID)
		out = append(out, sourceInfo{
			ID:      src.ID,
			Name:    src.Name,
			Kind:    loc.Kind,
			Aliases: src.Aliases,
			Cached:  cached,
		})
	}
	s.writeJSON(w, r, http.StatusOK, "application/json", out)
}

// HandleGeoJSON serves one normalized source document.
func (s *ServerContext) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.PathValue("id"), ".geojson")

	fc, err := s.Loader.Load(r.Context(), id, loader.DefaultOptions)
	if err != nil {
		writeError(w, loadStatus(err), err)
		return
	}

	if entry, ok := s.Loader.Entry(id); ok {
		buf := make([]byte, 0, etagCap)
		buf = append(buf, '"')
		buf = strconv.AppendInt(buf, int64(entry.Size), 16)
		buf = append(buf, '-')
		buf = strconv.AppendInt(buf, entry.FetchedAt.UnixNano(), 16)
		buf = append(buf, '"')
		etag := string(buf)

		// check If-None-Match (client sent ETag)
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, no-cache")
	}

	s.writeJSON(w, r, http.StatusOK, "application/geo+json", fc)
}

// HandleLayers loads the requested sources and serves the resulting map state.
// Query: sources=a,b (all when empty), hidden=b, points=true.
func (s *ServerContext) HandleLayers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	ids := splitList(q.Get("sources"))
	if len(ids) == 0 {
		ids = s.Loader.Resolver().IDs()
	}

	visibility := make(map[string]bool)
	for _, id := range splitList(q.Get("hidden")) {
		visibility[id] = false
	}

	req := mapview.Request{
		Sources:    ids,
		Visibility: visibility,
		Options:    loader.DefaultOptions,
		PointsID:   s.Config.Points.ID,
		PointsName: s.Config.Points.Name,
	}
	if ok, _ := strconv.ParseBool(q.Get("points")); ok {
		req.Points = s.Points
	}

	view, err := mapview.New(s.MapConfig, mapview.Handlers{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if _, err := view.Refresh(r.Context(), s.Loader, req); err != nil {
		status := loadStatus(err)
		if errors.Is(err, mapview.ErrNoLayers) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	view.Ready()

	s.writeJSON(w, r, http.StatusOK, "application/json", view.Snapshot())
}

type filterRequest struct {
	State   *filters.State `json:"state"`
	Action  string         `json:"action"`
	Field   filters.Field  `json:"field"`
	Value   string         `json:"value"`
	Checked bool           `json:"checked"`
}

type filterResponse struct {
	State   filters.State       `json:"state"`
	Active  int                 `json:"active"`
	Options map[string][]string `json:"options"`
}

// HandleFilters applies one filter panel action and returns the new state.
func (s *ServerContext) HandleFilters(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	state := filters.Default()
	if req.State != nil {
		state = *req.State
	}

	var err error
	switch req.Action {
	case "toggle":
		state, err = s.Hierarchies.Toggle(state, req.Field, req.Value, req.Checked)
	case "remove":
		state, err = s.Hierarchies.Remove(state, req.Field, req.Value)
	case "reset":
		state = filters.Reset()
	case "", "sanitize":
		state = s.Hierarchies.Sanitize(state)
	default:
		err = errors.New("unknown action " + strconv.Quote(req.Action))
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp := filterResponse{
		State:   state,
		Active:  state.ActiveCount(),
		Options: make(map[string][]string),
	}
	for _, f := range []filters.Field{filters.FieldBarrios, filters.FieldVeredas, filters.FieldSubcategories} {
		opts, _ := s.Hierarchies.Options(state, f)
		resp.Options[string(f)] = opts
	}

	s.writeJSON(w, r, http.StatusOK, "application/json", resp)
}

// HandleLegend renders the choropleth legend of a source as PNG or WebP.
// Path: /api/legend/{id}.{png|webp}; query: property, title.
func (s *ServerContext) HandleLegend(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	ext := path.Ext(file)
	format, err := legend.ParseFormat(ext)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	id := strings.TrimSuffix(file, ext)

	property := r.URL.Query().Get("property")
	if property == "" {
		property = s.MapConfig.Choropleth.Property
	}
	if property == "" {
		writeError(w, http.StatusBadRequest, errors.New("property is required"))
		return
	}
	title := r.URL.Query().Get("title")
	if title == "" {
		title = s.MapConfig.Legend.Title
	}

	fc, err := s.Loader.Load(r.Context(), id, loader.DefaultOptions)
	if err != nil {
		writeError(w, loadStatus(err), err)
		return
	}

	scale, err := legend.NewScale(legend.Values(fc, property), s.MapConfig.Choropleth.Colors)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	var buf bytes.Buffer
	if err := legend.Render(&buf, legend.Legend{Title: title, Scale: scale}, format); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(buf.Bytes())
}

// writeJSON encodes v, minifies it and gzips it when the client accepts it.
func (s *ServerContext) writeJSON(w http.ResponseWriter, r *http.Request, status int, contentType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if s.minifier != nil {
		if small, err := s.minifier.Bytes(contentType, data); err == nil {
			data = small
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Add("Vary", "Accept-Encoding")

	if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
		w.WriteHeader(status)
		_, _ = w.Write(data)
		return
	}

	w.Header().Set("Content-Encoding", "gzip")
	w.WriteHeader(status)
	gz, err := gzip.NewWriterLevel(w, gzip.BestSpeed)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create gzip writer")
		return
	}
	defer func() { _ = gz.Close() }()
	// Ignoring error as we cannot handle client disconnects
	_, _ = gz.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]any{"error": err.Error()}

	var agg *loader.AggregateError
	if errors.As(err, &agg) {
		failures := make(map[string]string, len(agg.Failures))
		for id, ferr := range agg.Failures {
			failures[id] = ferr.Error()
		}
		body["failures"] = failures
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// loadStatus maps loader errors to HTTP status codes.
// A total failure is a gateway error whatever its per-source causes are.
func loadStatus(err error) int {
	switch {
	case errors.Is(err, loader.ErrAggregateLoadFailed):
		return http.StatusBadGateway
	case errors.Is(err, loader.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, loader.ErrUnknownSource):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
