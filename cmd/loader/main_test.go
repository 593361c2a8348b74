package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alcaldia-cali/geodash/internal/config"
)

const comunasDoc = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"nombre":"Comuna 7"},"geometry":{"type":"Point","coordinates":[-76.5312345678,3.4512345678]}}
]}`

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("data_dir: " + dataDir + "\n" +
		"sources:\n" +
		"  - id: comunas\n    path: comunas.geojson\n" +
		"  - id: veredas\n    path: veredas.geojson\n"))
	require.NoError(t, err)
	return cfg
}

func TestRunWritesDocuments(t *testing.T) {
	data, out := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(data, "comunas.geojson"), []byte(comunasDoc), 0o600))

	opts := Options{Out: out, Timeout: time.Minute, Minify: true, Limit: []string{"comunas", "comunas", "nope"}}
	assert.Equal(t, 0, run(opts, testConfig(t, data)))

	raw, err := os.ReadFile(filepath.Join(out, "comunas.geojson"))
	require.NoError(t, err)

	var doc struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Features, 1)
	assert.Equal(t, []float64{-76.531235, 3.451235}, doc.Features[0].Geometry.Coordinates)

	// existing files are kept unless forced
	require.NoError(t, os.WriteFile(filepath.Join(out, "comunas.geojson"), []byte("kept"), 0o600))
	assert.Equal(t, 0, run(opts, testConfig(t, data)))
	raw, err = os.ReadFile(filepath.Join(out, "comunas.geojson"))
	require.NoError(t, err)
	assert.Equal(t, "kept", string(raw))
}

func TestRunAllFailedReturnsError(t *testing.T) {
	opts := Options{Out: t.TempDir(), Timeout: time.Minute, Limit: []string{"veredas"}}
	assert.Equal(t, 1, run(opts, testConfig(t, t.TempDir())))
}
