package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/alcaldia-cali/geodash/internal/config"
	"github.com/alcaldia-cali/geodash/internal/loader"
	"github.com/alcaldia-cali/geodash/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	mjson "github.com/tdewolff/minify/v2/json"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile  string        `short:"c" long:"config"      env:"CONFIG_FILE"  description:"Path to configuration file" default:"config.yaml"`
	EnvFile     string        `short:"e" long:"env-file"    env:"ENV_FILE"     description:"Dotenv file read before the environment" default:".env"`
	Limit       []string      `short:"l" long:"limit"       env:"LIMIT_IDS"    description:"Limit processing to specific source identifiers"`
	Out         string        `short:"o" long:"out"         env:"OUT_DIR"      description:"Directory for normalized documents" default:"dist/geojson"`
	Concurrency int           `short:"p" long:"concurrency" env:"CONCURRENCY"  description:"Parallel fetches, 0 uses the configured limit"`
	Timeout     time.Duration `short:"t" long:"timeout"     env:"LOAD_TIMEOUT" description:"Overall time limit" default:"5m"`
	Raw         bool          `short:"r" long:"raw"         description:"Keep coordinates as fetched"`
	Minify      bool          `short:"m" long:"minify"      description:"Write minified JSON"`
	Force       bool          `short:"f" long:"force"       description:"Force overwrite of existing files"`
}

func parse() Options {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
	return opts
}

func main() {
	opts := parse()
	if err := godotenv.Load(opts.EnvFile); err == nil {
		opts = parse()
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	os.Exit(run(opts, cfg))
}

// run loads and writes the queued sources and returns the process exit code.
func run(opts Options, cfg *config.Config) int {
	if opts.Concurrency > 0 {
		cfg.HTTP.MaxConcurrency = opts.Concurrency
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	fetcher, closeFetcher, err := loader.NewFetcher(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to the database")
		return 1
	}
	defer closeFetcher()

	l := loader.NewFromConfig(cfg, fetcher)

	// Filter sources if limit is set
	ids := l.Resolver().IDs()
	if len(opts.Limit) > 0 {
		ids = make([]string, 0, len(opts.Limit))
		seen := make(map[string]bool)

		for _, limitID := range opts.Limit {
			loc, err := l.Resolver().Resolve(limitID)
			if err != nil {
				log.Error().
					Str("id", limitID).
					Msg("Source specified in --limit not found in configuration")
				continue
			}
			if seen[loc.ID] {
				continue
			}
			seen[loc.ID] = true
			ids = append(ids, loc.ID)
		}
	}

	if err := os.MkdirAll(opts.Out, 0o755); err != nil {
		log.Error().Err(err).Str("dir", opts.Out).Msg("Failed to create output directory")
		return 1
	}

	queued := make([]string, 0, len(ids))
	for _, id := range ids {
		target := outPath(opts.Out, id)
		if _, err := os.Stat(target); err == nil && !opts.Force {
			log.Info().Str("id", id).Str("file", target).Msg("Already exists, skipping")
			continue
		}
		queued = append(queued, id)
	}

	log.Info().
		Int("sources_total", len(cfg.Sources)).
		Int("sources_queued", len(queued)).
		Bool("normalize", !opts.Raw).
		Msg("Starting loader")

	if len(queued) == 0 {
		return 0
	}

	batch, err := l.LoadMultiple(ctx, queued, loader.Options{ProcessCoordinates: !opts.Raw})
	var agg *loader.AggregateError
	if err != nil && !errors.As(err, &agg) {
		log.Error().Err(err).Msg("Load failed")
		return 1
	}

	mini := minify.New()
	mini.AddFunc("application/json", mjson.Minify)

	written := 0
	for _, id := range batch.IDs() {
		var data []byte
		if opts.Minify {
			data, err = json.Marshal(batch.Documents[id])
			if err == nil {
				data, err = mini.Bytes("application/json", data)
			}
		} else {
			data, err = json.MarshalIndent(batch.Documents[id], "", "  ")
		}
		if err != nil {
			log.Error().Err(err).Str("id", id).Msg("Failed to encode document")
			continue
		}

		target := outPath(opts.Out, id)
		if err := os.WriteFile(target, data, 0o644); err != nil {
			log.Error().Err(err).Str("file", target).Msg("Failed to write document")
			continue
		}
		written++

		log.Info().
			Str("id", id).
			Str("file", target).
			Int("features", len(batch.Documents[id].Features)).
			Int("bytes", len(data)).
			Msg("Document written")
	}

	log.Info().
		Int("written", written).
		Int("failed", len(batch.Failures)).
		Msg("Loader finished")

	if agg != nil {
		return 1
	}
	return 0
}

func outPath(dir, id string) string {
	return filepath.Join(dir, id+".geojson")
}
