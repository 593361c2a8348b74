package loader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcaldia-cali/geodash/internal/config"
	"github.com/alcaldia-cali/geodash/internal/geo"
	"github.com/alcaldia-cali/geodash/internal/metrics"
)

const pointDoc = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"nombre":"%s"},"geometry":{"type":"Point","coordinates":[-76.53,3.45]}}
]}`

// swappedDoc stores Cali in [lat, lon] order.
const swappedDoc = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"nombre":"Sede"},"geometry":{"type":"Point","coordinates":[3.45,-76.53]}}
]}`

var caliRegion = &orb.Bound{Min: orb.Point{-76.7, 3.2}, Max: orb.Point{-76.4, 3.6}}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	payload map[string]string
	failing map[string]error
	// gate, when set, blocks every fetch until it is closed.
	gate    chan struct{}
	started chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:   make(map[string]int),
		payload: make(map[string]string),
		failing: make(map[string]error),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	f.mu.Lock()
	f.calls[loc.ID]++
	f.mu.Unlock()

	if f.started != nil {
		f.started <- loc.ID
	}
	if f.gate != nil {
		<-f.gate
	}

	if err, ok := f.failing[loc.ID]; ok {
		return nil, err
	}
	if p, ok := f.payload[loc.ID]; ok {
		return []byte(p), nil
	}
	return nil, os.ErrNotExist
}

func (f *fakeFetcher) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func testResolver(ids ...string) *Resolver {
	sources := make([]config.Source, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, config.Source{ID: id, Path: id + ".geojson"})
	}
	return NewResolver("data", sources)
}

func TestLoadCachesDocuments(t *testing.T) {
	f := newFakeFetcher()
	f.payload["comunas"] = fmt.Sprintf(pointDoc, "Comuna 1")

	l := New(testResolver("comunas"), f, nil)

	first, err := l.Load(context.Background(), "comunas", DefaultOptions)
	require.NoError(t, err)
	second, err := l.Load(context.Background(), "comunas", DefaultOptions)
	require.NoError(t, err)

	assert.Equal(t, 1, f.Calls("comunas"))
	assert.Same(t, first, second)
	assert.True(t, l.Cache().Has("comunas"))
}

func TestLoadWithoutCacheRefetches(t *testing.T) {
	f := newFakeFetcher()
	f.payload["comunas"] = fmt.Sprintf(pointDoc, "Comuna 1")

	l := New(testResolver("comunas"), f, nil)
	opts := Options{ProcessCoordinates: true}

	_, err := l.Load(context.Background(), "comunas", opts)
	require.NoError(t, err)
	_, err = l.Load(context.Background(), "comunas", opts)
	require.NoError(t, err)

	assert.Equal(t, 2, f.Calls("comunas"))
	assert.Zero(t, l.Cache().Len())
}

func TestLoadCoalescesConcurrentCallers(t *testing.T) {
	f := newFakeFetcher()
	f.payload["barrios"] = fmt.Sprintf(pointDoc, "San Antonio")
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	l := New(testResolver("barrios"), f, nil, WithMetrics(m))

	const callers = 8
	results := make([]*geojson.FeatureCollection, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fc, err := l.Load(context.Background(), "barrios", DefaultOptions)
			assert.NoError(t, err)
			results[i] = fc
		}()
	}

	<-f.started
	close(f.gate)
	wg.Wait()

	assert.Equal(t, 1, f.Calls("barrios"))
	for _, fc := range results {
		assert.Same(t, results[0], fc)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fetches.WithLabelValues("barrios", metrics.OutcomeOK)))
}

func TestLoadCallerCancellationKeepsFlight(t *testing.T) {
	f := newFakeFetcher()
	f.payload["veredas"] = fmt.Sprintf(pointDoc, "La Buitrera")
	f.gate = make(chan struct{})
	f.started = make(chan string, 1)

	l := New(testResolver("veredas"), f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx, "veredas", DefaultOptions)
		errc <- err
	}()

	<-f.started
	cancel()
	err := <-errc
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrFetchFailed)

	done := make(chan *geojson.FeatureCollection, 1)
	go func() {
		fc, err := l.Load(context.Background(), "veredas", DefaultOptions)
		assert.NoError(t, err)
		done <- fc
	}()

	close(f.gate)
	select {
	case fc := <-done:
		require.NotNil(t, fc)
		assert.Len(t, fc.Features, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("load did not complete")
	}
	assert.Equal(t, 1, f.Calls("veredas"))
}

func TestLoadErrors(t *testing.T) {
	f := newFakeFetcher()
	f.payload["broken"] = `{"type":"FeatureCollection","features":[`
	f.payload["feature"] = `{"type":"Feature","geometry":null,"properties":{}}`
	f.failing["offline"] = errors.New("connection refused")

	l := New(testResolver("broken", "feature", "offline"), f, nil)

	tests := []struct {
		id   string
		kind error
	}{
		{id: "broken", kind: ErrParseFailed},
		{id: "feature", kind: ErrInvalidFormat},
		{id: "offline", kind: ErrFetchFailed},
		{id: "missing", kind: ErrFetchFailed},
		{id: "", kind: ErrInvalidInput},
		{id: "  ", kind: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			fc, err := l.Load(context.Background(), tt.id, DefaultOptions)
			assert.Nil(t, fc)
			assert.ErrorIs(t, err, tt.kind)
		})
	}

	_, err := l.Load(context.Background(), "missing", DefaultOptions)
	assert.ErrorIs(t, err, ErrUnknownSource)

	var le *Error
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "missing", le.Source)

	// failures are not cached
	_, _ = l.Load(context.Background(), "offline", DefaultOptions)
	assert.Equal(t, 2, f.Calls("offline"))
	assert.False(t, l.Cache().Has("offline"))
}

func TestLoadNormalizes(t *testing.T) {
	f := newFakeFetcher()
	f.payload["sedes"] = swappedDoc

	l := New(testResolver("sedes"), f, nil, WithNormalize(geo.NormalizeOptions{Precision: 6, Region: caliRegion}))

	raw, err := l.Load(context.Background(), "sedes", Options{Cache: true})
	require.NoError(t, err)
	assert.Equal(t, orb.Point{3.45, -76.53}, raw.Features[0].Geometry)

	fixed, err := l.Load(context.Background(), "sedes", DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-76.53, 3.45}, fixed.Features[0].Geometry)

	// the shared cached document is left untouched
	entry, ok := l.Entry("sedes")
	require.True(t, ok)
	assert.False(t, entry.Normalized)
	assert.Equal(t, orb.Point{3.45, -76.53}, entry.Document.Features[0].Geometry)
	assert.Equal(t, 1, f.Calls("sedes"))
}

func TestLoadAlias(t *testing.T) {
	f := newFakeFetcher()
	f.payload["comunas"] = fmt.Sprintf(pointDoc, "Comuna 2")

	r := NewResolver("", []config.Source{{ID: "comunas", Path: "comunas.geojson", Aliases: []string{"communes"}}})
	l := New(r, f, nil)

	a, err := l.Load(context.Background(), "communes", DefaultOptions)
	require.NoError(t, err)
	b, err := l.Load(context.Background(), "comunas", DefaultOptions)
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, f.Calls("comunas"))
}

func TestLoadMultiple(t *testing.T) {
	f := newFakeFetcher()
	f.payload["a"] = fmt.Sprintf(pointDoc, "a")
	f.payload["c"] = fmt.Sprintf(pointDoc, "c")
	f.failing["b"] = errors.New("timeout")

	l := New(testResolver("a", "b", "c"), f, nil, WithMaxConcurrency(2))

	batch, err := l.LoadMultiple(context.Background(), []string{"a", "b", "c", "a"}, DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, batch.IDs())
	require.Contains(t, batch.Failures, "b")
	assert.ErrorIs(t, batch.Failures["b"], ErrFetchFailed)
	assert.Equal(t, 1, f.Calls("a"))
}

func TestLoadMultipleAllFail(t *testing.T) {
	f := newFakeFetcher()
	f.failing["a"] = errors.New("down")
	f.payload["b"] = "not json"

	l := New(testResolver("a", "b"), f, nil)

	batch, err := l.LoadMultiple(context.Background(), []string{"a", "b"}, DefaultOptions)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAggregateLoadFailed)
	assert.ErrorIs(t, err, ErrParseFailed)

	var agg *AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Failures, 2)
	require.NotNil(t, batch)
	assert.Empty(t, batch.Documents)
	assert.Contains(t, err.Error(), "source a")
}

func TestLoadMultipleInput(t *testing.T) {
	l := New(testResolver("a"), newFakeFetcher(), nil)

	batch, err := l.LoadMultiple(context.Background(), nil, DefaultOptions)
	require.NoError(t, err)
	assert.Empty(t, batch.Documents)
	assert.Empty(t, batch.Failures)

	_, err = l.LoadMultiple(context.Background(), []string{"a", ""}, DefaultOptions)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResolver(t *testing.T) {
	r := NewResolver("/srv/data", []config.Source{
		{ID: "comunas", Path: "comunas.geojson"},
		{ID: "abs", Path: "/tmp/abs.geojson"},
		{ID: "remote", URL: "https://example.org/barrios.geojson"},
		{ID: "legacy", Path: "http://example.org/old.geojson"},
		{ID: "proyectos", Query: "SELECT geom, nombre FROM proyectos;", Aliases: []string{"obras"}},
	})

	tests := []struct {
		id     string
		kind   Kind
		target string
	}{
		{id: "comunas", kind: KindFile, target: filepath.Join("/srv/data", "comunas.geojson")},
		{id: "abs", kind: KindFile, target: "/tmp/abs.geojson"},
		{id: "remote", kind: KindHTTP, target: "https://example.org/barrios.geojson"},
		{id: "legacy", kind: KindHTTP, target: "http://example.org/old.geojson"},
		{id: "obras", kind: KindPostGIS, target: "SELECT geom, nombre FROM proyectos;"},
	}
	for _, tt := range tests {
		loc, err := r.Resolve(tt.id)
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.kind, loc.Kind, tt.id)
		assert.Equal(t, tt.target, loc.Target, tt.id)
	}

	_, err := r.Resolve("nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.Equal(t, []string{"comunas", "abs", "remote", "legacy", "proyectos"}, r.IDs())
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "comunas.geojson")
	require.NoError(t, os.WriteFile(plain, []byte(swappedDoc), 0o600))

	zipped := filepath.Join(dir, "barrios.geojson.gz")
	out, err := os.Create(zipped)
	require.NoError(t, err)
	zw := gzip.NewWriter(out)
	_, err = zw.Write([]byte(swappedDoc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	for _, path := range []string{plain, zipped} {
		data, err := FileFetcher{}.Fetch(context.Background(), Location{ID: "x", Kind: KindFile, Target: path})
		require.NoError(t, err)
		assert.JSONEq(t, swappedDoc, string(data))
	}

	_, err = FileFetcher{}.Fetch(context.Background(), Location{Target: filepath.Join(dir, "none.geojson")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/comunas.geojson":
			w.Header().Set("Content-Type", "application/geo+json")
			_, _ = w.Write([]byte(swappedDoc))
		case "/barrios.geojson":
			w.Header().Set("Content-Encoding", "gzip")
			zw := gzip.NewWriter(w)
			_, _ = zw.Write([]byte(swappedDoc))
			_ = zw.Close()
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := HTTPFetcher{Client: NewHTTPClient(5 * time.Second)}

	for _, p := range []string{"/comunas.geojson", "/barrios.geojson"} {
		data, err := fetcher.Fetch(context.Background(), Location{Kind: KindHTTP, Target: srv.URL + p})
		require.NoError(t, err, p)
		assert.JSONEq(t, swappedDoc, string(data))
	}

	_, err := fetcher.Fetch(context.Background(), Location{Kind: KindHTTP, Target: srv.URL + "/none"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestHTTPFetcherThroughLoader(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewResolver("", []config.Source{{ID: "remote", URL: srv.URL}})
	l := New(r, MultiFetcher{HTTP: HTTPFetcher{Client: srv.Client()}}, nil)

	_, err := l.Load(context.Background(), "remote", DefaultOptions)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.EqualValues(t, 1, hits.Load())
}

func TestMultiFetcherMissingKind(t *testing.T) {
	_, err := MultiFetcher{}.Fetch(context.Background(), Location{ID: "proyectos", Kind: KindPostGIS})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgis")
}

func TestFeatureCollectionQuery(t *testing.T) {
	q := FeatureCollectionQuery("SELECT geom, nombre FROM proyectos;\n")
	assert.Equal(t,
		"SELECT json_build_object('type', 'FeatureCollection', "+
			"'features', COALESCE(json_agg(ST_AsGeoJSON(t.*)::json), '[]'::json))::text "+
			"FROM (SELECT geom, nombre FROM proyectos) AS t",
		q)

	q = FeatureCollectionQuery("SELECT geom FROM proyectos WHERE nombre = 'a;b' ;; \n")
	assert.Contains(t, q, "FROM (SELECT geom FROM proyectos WHERE nombre = 'a;b') AS t")
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "comunas.geojson"), []byte(swappedDoc), 0o600))

	cfg := &config.Config{
		DataDir: dir,
		Sources: config.DefaultSources(),
		Normalize: config.Normalize{
			Precision: 4,
			Region:    []float64{-76.7, 3.2, -76.4, 3.6},
		},
	}
	l := NewFromConfig(cfg, MultiFetcher{File: FileFetcher{}})

	fc, err := l.Load(context.Background(), "comunas", DefaultOptions)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-76.53, 3.45}, fc.Features[0].Geometry)

	_, err = l.Load(context.Background(), "barrios", DefaultOptions)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewFetcherWithoutDatabase(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	f, closeFn, err := NewFetcher(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	m, ok := f.(MultiFetcher)
	require.True(t, ok)
	assert.NotNil(t, m.HTTP)
	assert.Nil(t, m.PostGIS)

	_, err = f.Fetch(context.Background(), Location{ID: "proyectos", Kind: KindPostGIS, Target: "SELECT 1"})
	assert.ErrorContains(t, err, "no fetcher")
}
