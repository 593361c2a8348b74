// Package loader fetches GeoJSON sources by identifier, caching and coalescing the work.
package loader

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/alcaldia-cali/geodash/internal/cache"
	"github.com/alcaldia-cali/geodash/internal/config"
	"github.com/alcaldia-cali/geodash/internal/geo"
	"github.com/alcaldia-cali/geodash/internal/metrics"
)

// Options control a single load.
type Options struct {
	// ProcessCoordinates runs the result through geo.Normalize.
	ProcessCoordinates bool
	// Cache allows reading and writing the document cache.
	Cache bool
}

// DefaultOptions normalizes coordinates and uses the cache.
var DefaultOptions = Options{ProcessCoordinates: true, Cache: true}

// Loader resolves identifiers, fetches, parses and caches documents.
// Concurrent loads of the same source share one fetch.
type Loader struct {
	resolver *Resolver
	fetcher  Fetcher
	cache    *cache.Store
	group    singleflight.Group

	metrics        *metrics.Collector
	normalize      geo.NormalizeOptions
	largeBytes     int64
	timeout        time.Duration
	maxConcurrency int
}

// Option configures a Loader.
type Option func(*Loader)

// WithMetrics records fetch and cache metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Loader) { l.metrics = c }
}

// WithNormalize sets the coordinate processing options.
func WithNormalize(o geo.NormalizeOptions) Option {
	return func(l *Loader) { l.normalize = o }
}

// WithLargeBytes sets the payload size from which documents are logged as large.
func WithLargeBytes(n int64) Option {
	return func(l *Loader) { l.largeBytes = n }
}

// WithFetchTimeout bounds every fetch independently of the callers' contexts.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loader) { l.timeout = d }
}

// WithMaxConcurrency caps parallel fetches started by LoadMultiple, 0 means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(l *Loader) { l.maxConcurrency = n }
}

// New creates a loader. A nil store gets an unbounded cache.
func New(resolver *Resolver, fetcher Fetcher, store *cache.Store, opts ...Option) *Loader {
	if store == nil {
		store = cache.New(0)
	}
	l := &Loader{
		resolver:  resolver,
		fetcher:   fetcher,
		cache:     store,
		normalize: geo.NormalizeOptions{Precision: 6},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewFromConfig creates a loader with the resolver, cache and limits described by cfg.
func NewFromConfig(cfg *config.Config, fetcher Fetcher, opts ...Option) *Loader {
	base := []Option{
		WithNormalize(NormalizeOptions(cfg.Normalize)),
		WithLargeBytes(cfg.Cache.LargeBytes),
		WithFetchTimeout(cfg.HTTP.Timeout),
		WithMaxConcurrency(cfg.HTTP.MaxConcurrency),
	}
	return New(
		NewResolver(cfg.DataDir, cfg.Sources),
		fetcher,
		cache.New(cfg.Cache.Capacity),
		append(base, opts...)...,
	)
}

// NewFetcher returns a fetcher for every location kind cfg uses.
// The close function releases the database pool, if one was opened.
func NewFetcher(ctx context.Context, cfg *config.Config) (Fetcher, func(), error) {
	m := MultiFetcher{
		File: FileFetcher{},
		HTTP: HTTPFetcher{Client: NewHTTPClient(cfg.HTTP.Timeout)},
	}
	if cfg.Database.DSN == "" {
		return m, func() {}, nil
	}

	pool, err := NewPostGISPool(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("postgis: %w", err)
	}
	m.PostGIS = PostGISFetcher{Pool: pool}
	return m, pool.Close, nil
}

// NormalizeOptions converts the configuration block into geo options.
func NormalizeOptions(n config.Normalize) geo.NormalizeOptions {
	o := geo.NormalizeOptions{Precision: n.Precision}
	if len(n.Region) == 4 {
		o.Region = &orb.Bound{
			Min: orb.Point{n.Region[0], n.Region[1]},
			Max: orb.Point{n.Region[2], n.Region[3]},
		}
	}
	return o
}

// Resolver returns the identifier table.
func (l *Loader) Resolver() *Resolver { return l.resolver }

// Cache returns the document store.
func (l *Loader) Cache() *cache.Store { return l.cache }

// Entry returns the cache entry of a source, resolving aliases.
func (l *Loader) Entry(id string) (cache.Entry, bool) {
	loc, err := l.resolver.Resolve(id)
	if err != nil {
		return cache.Entry{}, false
	}
	return l.cache.Get(loc.ID)
}

// Load returns the document for id.
// The returned document is shared with the cache and other callers and must not be mutated.
func (l *Loader) Load(ctx context.Context, id string, opts Options) (*geojson.FeatureCollection, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty source identifier", ErrInvalidInput)
	}

	loc, err := l.resolver.Resolve(id)
	if err != nil {
		l.metrics.Fetch(id, metrics.OutcomeFetchFailed, 0)
		return nil, &Error{Source: id, Kind: ErrFetchFailed, Err: err}
	}

	if opts.Cache {
		if e, ok := l.cache.Get(loc.ID); ok {
			l.metrics.CacheLookup(true)
			return l.finish(e, opts), nil
		}
		l.metrics.CacheLookup(false)
	}

	// Written by the flight goroutine, read after its result is received.
	leader := false
	ch := l.group.DoChan(loc.ID, func() (any, error) {
		leader = true
		return l.fetch(loc, opts)
	})

	select {
	case res := <-ch:
		if !leader {
			l.metrics.Join()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return l.finish(res.Val.(cache.Entry), opts), nil
	case <-ctx.Done():
		return nil, &Error{Source: loc.ID, Kind: ErrFetchFailed, Err: ctx.Err()}
	}
}

// fetch runs inside the flight. It is detached from the callers so one
// cancelled caller does not fail the others.
func (l *Loader) fetch(loc Location, opts Options) (cache.Entry, error) {
	if opts.Cache {
		if e, ok := l.cache.Get(loc.ID); ok {
			return e, nil
		}
	}

	ctx := context.Background()
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := l.fetcher.Fetch(ctx, loc)
	if err != nil {
		l.metrics.Fetch(loc.ID, metrics.OutcomeFetchFailed, time.Since(start))
		log.Warn().
			Str("source", loc.ID).
			Str("kind", string(loc.Kind)).
			Err(err).
			Msg("Fetch failed")
		return cache.Entry{}, &Error{Source: loc.ID, Kind: ErrFetchFailed, Err: err}
	}

	fc, err := geo.Decode(raw)
	if err != nil {
		kind, outcome := ErrInvalidFormat, metrics.OutcomeInvalidFormat
		if errors.Is(err, geo.ErrSyntax) {
			kind, outcome = ErrParseFailed, metrics.OutcomeParseFailed
		}
		l.metrics.Fetch(loc.ID, outcome, time.Since(start))
		log.Warn().
			Str("source", loc.ID).
			Err(err).
			Msg("Source is not a usable FeatureCollection")
		return cache.Entry{}, &Error{Source: loc.ID, Kind: kind, Err: err}
	}

	entry := cache.Entry{Document: fc, Size: len(raw), FetchedAt: time.Now()}
	if opts.ProcessCoordinates {
		entry.Document = geo.Normalize(fc, l.normalize)
		entry.Normalized = true
	}

	took := time.Since(start)
	l.metrics.Fetch(loc.ID, metrics.OutcomeOK, took)

	if opts.Cache {
		l.cache.Put(loc.ID, entry)
		l.metrics.SetCacheEntries(l.cache.Len())
	}

	ev := log.Debug()
	if entry.Large(l.largeBytes) {
		ev = log.Info().Bool("large", true)
	}
	ev.Str("source", loc.ID).
		Int("features", len(entry.Document.Features)).
		Int("bytes", entry.Size).
		Dur("took", took).
		Msg("Source loaded")

	return entry, nil
}

// finish normalizes a private copy when the shared entry was stored raw.
func (l *Loader) finish(e cache.Entry, opts Options) *geojson.FeatureCollection {
	if opts.ProcessCoordinates && !e.Normalized {
		return geo.Normalize(e.Document, l.normalize)
	}
	return e.Document
}
