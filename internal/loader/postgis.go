package loader

import (
	"context"
	"runtime"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostGISFetcher runs a source query and aggregates its rows into a FeatureCollection.
// The query must return a geometry column; other columns become properties.
type PostGISFetcher struct {
	Pool *pgxpool.Pool
}

// FeatureCollectionQuery wraps query so the database returns one GeoJSON document.
// Only trailing statement terminators are removed.
func FeatureCollectionQuery(query string) string {
	q := strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
	return "SELECT json_build_object(" +
		"'type', 'FeatureCollection', " +
		"'features', COALESCE(json_agg(ST_AsGeoJSON(t.*)::json), '[]'::json)" +
		")::text FROM (" + q + ") AS t"
}

// Fetch executes loc.Target.
func (f PostGISFetcher) Fetch(ctx context.Context, loc Location) ([]byte, error) {
	var doc string
	if err := f.Pool.QueryRow(ctx, FeatureCollectionQuery(loc.Target)).Scan(&doc); err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

// NewPostGISPool opens a connection pool sized from the CPU count unless maxConns is set.
func NewPostGISPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	cfg.MinConns = 1
	cfg.MaxConns = int32(2 * runtime.NumCPU())
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	return pgxpool.NewWithConfig(ctx, cfg)
}
