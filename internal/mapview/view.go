// Package mapview keeps the state of one rendered map: its layers, events and styling.
package mapview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"

	"github.com/alcaldia-cali/geodash/internal/cache"
	"github.com/alcaldia-cali/geodash/internal/geo"
	"github.com/alcaldia-cali/geodash/internal/layers"
	"github.com/alcaldia-cali/geodash/internal/legend"
	"github.com/alcaldia-cali/geodash/internal/loader"
)

var (
	// ErrStale is returned by Refresh when a newer request superseded it.
	ErrStale = errors.New("result superseded by a newer request")
	// ErrNoLayers is returned when a refresh produced nothing to draw.
	ErrNoLayers = errors.New("no layers to display")
	// ErrLayerNotFound is returned for unknown layer identifiers.
	ErrLayerNotFound = errors.New("layer not found")
)

// Handlers are the callbacks a view fires. Nil handlers are skipped.
type Handlers struct {
	OnLayerToggle  func(id string, visible bool)
	OnFeatureClick func(f *geojson.Feature, layer layers.Layer)
	OnMapReady     func(v *View)
	OnError        func(err error)
}

// Loader is the part of loader.Loader a view needs.
type Loader interface {
	LoadMultiple(ctx context.Context, ids []string, opts loader.Options) (*loader.Batch, error)
	Entry(id string) (cache.Entry, bool)
}

// Request is everything a refresh builds layers from.
type Request struct {
	Sources    []string
	Static     []*geojson.FeatureCollection
	Points     []geo.PointRecord
	PointsID   string
	PointsName string
	Visibility map[string]bool
	Options    loader.Options
}

// Signature identifies the inputs of a request.
func (r Request) Signature() string {
	return strings.Join(r.Sources, ",") +
		"|static=" + strconv.Itoa(len(r.Static)) +
		"|points=" + strconv.Itoa(len(r.Points))
}

// Ticket identifies one refresh. Only the latest ticket may apply its result.
type Ticket struct {
	Signature string
	gen       uint64
}

// View is the state of one map. It is safe for concurrent use.
type View struct {
	cfg   Config
	h     Handlers
	popup *template.Template

	mu        sync.Mutex
	gen       uint64
	signature string
	layers    []layers.Layer
	large     map[string]bool
	scales    map[string]*legend.Scale
	failures  map[string]error

	ready sync.Once
}

// New creates a view. The popup template is parsed once here.
func New(cfg Config, h Handlers) (*View, error) {
	text := cfg.Popup.Template
	if text == "" {
		text = DefaultPopupTemplate
	}
	tpl, err := template.New("popup").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("popup template: %w", err)
	}

	return &View{
		cfg:   cfg,
		h:     h,
		popup: tpl,
	}, nil
}

// Config returns the view configuration.
func (v *View) Config() Config { return v.cfg }

// Begin starts a refresh and invalidates every earlier ticket.
func (v *View) Begin(signature string) Ticket {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen++
	return Ticket{Signature: signature, gen: v.gen}
}

// Apply installs list when t is still current and reports whether it did.
func (v *View) Apply(t Ticket, list []layers.Layer) bool {
	return v.apply(t, list, nil, nil)
}

func (v *View) apply(t Ticket, list []layers.Layer, large map[string]bool, failures map[string]error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if t.gen != v.gen {
		log.Debug().
			Str("signature", t.Signature).
			Msg("Discarding stale layer result")
		return false
	}

	v.signature = t.Signature
	v.layers = list
	v.large = large
	v.failures = failures
	v.scales = v.buildScales(list, large)
	return true
}

func (v *View) buildScales(list []layers.Layer, large map[string]bool) map[string]*legend.Scale {
	prop := v.cfg.Choropleth.Property
	if prop == "" {
		return nil
	}
	scales := make(map[string]*legend.Scale)
	for _, l := range list {
		if l.Kind != layers.KindGeoJSON || large[l.ID] {
			continue
		}
		s, err := legend.NewScale(legend.Values(l.Document, prop), v.cfg.Choropleth.Colors)
		if err != nil {
			continue
		}
		scales[l.ID] = s
	}
	return scales
}

// Refresh loads req.Sources, builds the layer list and applies it unless a newer
// refresh started meanwhile. Partial failures keep the loaded subset; OnError
// fires when nothing can be drawn.
func (v *View) Refresh(ctx context.Context, l Loader, req Request) ([]layers.Layer, error) {
	t := v.Begin(req.Signature())

	var (
		batch = &loader.Batch{}
		err   error
	)
	if len(req.Sources) > 0 {
		batch, err = l.LoadMultiple(ctx, req.Sources, req.Options)
		if err != nil && (batch == nil || !errors.Is(err, loader.ErrAggregateLoadFailed)) {
			return nil, v.fail(t, err)
		}
	}

	list := layers.Build(layers.Input{
		Static:     req.Static,
		Dynamic:    batch.Documents,
		Order:      req.Sources,
		Visibility: req.Visibility,
		Points:     req.Points,
		PointsID:   req.PointsID,
		PointsName: req.PointsName,
	})
	if len(list) == 0 {
		if err == nil {
			err = ErrNoLayers
		}
		return nil, v.fail(t, err)
	}

	large := make(map[string]bool)
	for id := range batch.Documents {
		if e, ok := l.Entry(id); ok && e.Large(v.cfg.LargeBytes) {
			large[id] = true
		}
	}

	if !v.apply(t, list, large, batch.Failures) {
		return nil, ErrStale
	}
	return list, nil
}

func (v *View) fail(t Ticket, err error) error {
	v.mu.Lock()
	current := t.gen == v.gen
	v.mu.Unlock()

	if !current {
		return ErrStale
	}
	log.Error().
		Str("signature", t.Signature).
		Err(err).
		Msg("Map has no data to display")
	if v.h.OnError != nil {
		v.h.OnError(err)
	}
	return err
}

// Ready fires OnMapReady once.
func (v *View) Ready() {
	v.ready.Do(func() {
		if v.h.OnMapReady != nil {
			v.h.OnMapReady(v)
		}
	})
}

// Layers returns the current layer list.
func (v *View) Layers() []layers.Layer {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.layers
}

// ToggleLayer flips the visibility of id and fires OnLayerToggle.
func (v *View) ToggleLayer(id string) error {
	v.mu.Lock()
	if _, ok := layers.Find(v.layers, id); !ok {
		v.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	v.layers = layers.Toggle(v.layers, id)
	l, _ := layers.Find(v.layers, id)
	v.mu.Unlock()

	if v.h.OnLayerToggle != nil {
		v.h.OnLayerToggle(id, l.Visible)
	}
	return nil
}

// ClickFeature fires OnFeatureClick for feature index of layer id.
// Clicks are ignored on non-interactive maps.
func (v *View) ClickFeature(id string, index int) (*geojson.Feature, error) {
	v.mu.Lock()
	l, ok := layers.Find(v.layers, id)
	v.mu.Unlock()

	if !ok || l.Document == nil {
		return nil, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	if index < 0 || index >= len(l.Document.Features) {
		return nil, fmt.Errorf("feature %d out of range for layer %q", index, id)
	}

	f := l.Document.Features[index]
	if v.cfg.Interactive && v.h.OnFeatureClick != nil {
		v.h.OnFeatureClick(f, l)
	}
	return f, nil
}

// CenterView returns the bound of the visible layers.
func (v *View) CenterView() (orb.Bound, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return layers.Bound(v.layers)
}

// StyleFor returns the style of f within layer id. Large layers and layers
// without a choropleth scale use the base style.
func (v *View) StyleFor(id string, f *geojson.Feature) Style {
	style := v.cfg.Style

	v.mu.Lock()
	s, ok := v.scales[id]
	v.mu.Unlock()
	if !ok || f == nil {
		return style
	}

	if value, ok := legend.Number(f.Properties[v.cfg.Choropleth.Property]); ok {
		style.FillColor = s.Color(value)
		if style.FillOpacity < 0.7 {
			style.FillOpacity = 0.7
		}
	}
	return style
}

// Popup renders the popup of f. It is empty when popups are disabled.
func (v *View) Popup(f *geojson.Feature) (string, error) {
	if !v.cfg.Popup.Enabled || f == nil {
		return "", nil
	}

	props := map[string]any(f.Properties)
	if props == nil {
		props = map[string]any{}
	}

	var buf bytes.Buffer
	if err := v.popup.Execute(&buf, props); err != nil {
		return "", fmt.Errorf("popup: %w", err)
	}
	return buf.String(), nil
}

// Legend returns the legend of the first visible layer with a color scale.
func (v *View) Legend() (legend.Legend, bool) {
	if !v.cfg.Legend.Enabled {
		return legend.Legend{}, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, l := range v.layers {
		if s, ok := v.scales[l.ID]; ok && l.Visible {
			return legend.Legend{Title: v.cfg.Legend.Title, Scale: s}, true
		}
	}
	return legend.Legend{}, false
}

// Snapshot is the serializable state of a view.
type Snapshot struct {
	Signature string            `json:"signature"`
	Config    Config            `json:"config"`
	Layers    []layers.Layer    `json:"layers"`
	Failures  map[string]string `json:"failures,omitempty"`
	Bounds    []float64         `json:"bounds,omitempty"`
	Large     []string          `json:"large,omitempty"`
	Legend    *LegendSnapshot   `json:"legend,omitempty"`
}

// LegendSnapshot is the legend in serializable form.
type LegendSnapshot struct {
	Title    string       `json:"title"`
	Position string       `json:"position"`
	Bins     []legend.Bin `json:"bins"`
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	lg, hasLegend := v.Legend()
	b, hasBound := v.CenterView()

	v.mu.Lock()
	defer v.mu.Unlock()

	s := Snapshot{
		Signature: v.signature,
		Config:    v.cfg,
		Layers:    v.layers,
	}
	if len(v.failures) > 0 {
		s.Failures = make(map[string]string, len(v.failures))
		for id, err := range v.failures {
			s.Failures[id] = err.Error()
		}
	}
	if hasBound {
		s.Bounds = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	for id := range v.large {
		s.Large = append(s.Large, id)
	}
	sort.Strings(s.Large)
	if hasLegend {
		s.Legend = &LegendSnapshot{
			Title:    lg.Title,
			Position: v.cfg.Legend.Position,
			Bins:     lg.Scale.Bins(),
		}
	}
	return s
}
