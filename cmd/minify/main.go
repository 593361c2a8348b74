package main

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/alcaldia-cali/geodash/internal/logger"

	"github.com/jessevdk/go-flags"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/json"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	Dir  string `short:"d" long:"dir"  env:"DATA_DIR" description:"Directory searched for .geojson and .json files" default:"data"`
	Gzip bool   `short:"z" long:"gzip" description:"Also write a .gz copy next to every minified file"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	m := minify.New()
	m.AddFunc("application/json", json.Minify)

	var before, after int64
	files := 0
	err := filepath.WalkDir(opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := strings.ToLower(filepath.Ext(path))
		if d.IsDir() || (ext != ".geojson" && ext != ".json") {
			return nil
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		small, err := m.Bytes("application/json", raw)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to minify, skipping")
			return nil
		}
		if err := os.WriteFile(path, small, 0o644); err != nil {
			return err
		}

		if opts.Gzip {
			if err := writeGzip(path+".gz", small); err != nil {
				return err
			}
		}

		before += int64(len(raw))
		after += int64(len(small))
		files++

		log.Debug().
			Str("file", path).
			Int("bytes_before", len(raw)).
			Int("bytes_after", len(small)).
			Msg("Minified")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Str("dir", opts.Dir).Msg("Minify failed")
	}

	log.Info().
		Int("files", files).
		Int64("bytes_before", before).
		Int64("bytes_after", after).
		Msg("Minify done")
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewWriterLevel(f, gzip.BestCompression)
	if err != nil {
		return err
	}
	if _, err := gz.Write(data); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}
