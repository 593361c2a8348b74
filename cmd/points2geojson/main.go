package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alcaldia-cali/geodash/internal/geo"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input     string `short:"i" long:"in" description:"Input file with an array of point records. Reads from stdin if empty"`
	Output    string `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	InFormat  string `short:"I" long:"in-format" description:"Input format, guessed from the file extension when empty" choice:"json" choice:"yaml"`
	Format    string `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Precision int    `short:"p" long:"precision" description:"Decimals kept in coordinates, 0 keeps them as read" default:"6"`
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

	// Read Input
	var inputData []byte
	var err error

	if opts.Input != "" {
		inputData, err = os.ReadFile(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
	} else {
		inputData, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}
	}

	inFormat := opts.InFormat
	if inFormat == "" {
		inFormat = "json"
		switch strings.ToLower(filepath.Ext(opts.Input)) {
		case ".yaml", ".yml":
			inFormat = "yaml"
		}
	}

	records, err := decodeRecords(inputData, inFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding point records: %v\n", err)
		os.Exit(1)
	}

	fc := geo.PointsToFeatureCollection(records)
	if opts.Precision > 0 {
		fc = geo.Normalize(fc, geo.NormalizeOptions{Precision: opts.Precision})
	}

	// marshal
	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = toYAML(fc)
	} else {
		outputData, err = json.MarshalIndent(fc, "", "  ")
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	skipped := len(records) - len(fc.Features)
	if opts.Output != "" {
		err = os.WriteFile(opts.Output, outputData, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Converted %d records to %s (format: %s, skipped without coordinates: %d)\n",
			len(fc.Features), opts.Output, opts.Format, skipped)
	} else {
		fmt.Println(string(outputData))
	}
}

// decodeRecords reads an array of point records. YAML input goes through JSON so
// both formats accept the same flat record shape.
func decodeRecords(data []byte, format string) ([]geo.PointRecord, error) {
	if format == "yaml" {
		var raw []any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return nil, err
		}
	}

	var records []geo.PointRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// toYAML keeps the GeoJSON member layout, which orb types only define for JSON.
func toYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}
