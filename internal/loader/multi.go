package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Batch is the result of LoadMultiple, keyed by the requested identifiers.
type Batch struct {
	Documents map[string]*geojson.FeatureCollection
	Failures  map[string]error
}

// IDs returns the identifiers that loaded, sorted.
func (b *Batch) IDs() []string {
	ids := make([]string, 0, len(b.Documents))
	for id := range b.Documents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LoadMultiple loads every identifier concurrently and keeps the ones that succeed.
// Failures are reported per identifier. When every source fails the batch is
// returned together with an *AggregateError.
func (l *Loader) LoadMultiple(ctx context.Context, ids []string, opts Options) (*Batch, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: empty source identifier at position %d", ErrInvalidInput, i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	batch := &Batch{
		Documents: make(map[string]*geojson.FeatureCollection, len(unique)),
		Failures:  make(map[string]error),
	}
	if len(unique) == 0 {
		return batch, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if l.maxConcurrency > 0 {
		g.SetLimit(l.maxConcurrency)
	}

	for _, id := range unique {
		g.Go(func() error {
			fc, err := l.Load(ctx, id, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batch.Failures[id] = err
				return nil
			}
			batch.Documents[id] = fc
			return nil
		})
	}
	_ = g.Wait()

	if len(batch.Failures) > 0 {
		log.Warn().
			Strs("loaded", batch.IDs()).
			Int("failed", len(batch.Failures)).
			Msg("Some sources failed to load")
	}

	if len(batch.Documents) == 0 {
		return batch, &AggregateError{Failures: batch.Failures}
	}
	return batch, nil
}
