package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alcaldia-cali/geodash/internal/config"
	"github.com/alcaldia-cali/geodash/internal/loader"
	"github.com/alcaldia-cali/geodash/internal/logger"
	"github.com/alcaldia-cali/geodash/internal/metrics"
	"github.com/alcaldia-cali/geodash/internal/server"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	ConfigFile string `short:"c" long:"config"   env:"CONFIG_FILE"    description:"Path to configuration file" default:"config.yaml"`
	EnvFile    string `short:"e" long:"env-file" env:"ENV_FILE"       description:"Dotenv file read before the environment" default:".env"`
	Addr       string `short:"a" long:"addr"     env:"LISTEN_ADDRESS" description:"Address to listen on"       default:"0.0.0.0"`
	Port       int    `short:"p" long:"port"     env:"LISTEN_PORT"    description:"Port to listen on"          default:"8080"`
	Prefetch   bool   `short:"P" long:"prefetch" env:"PREFETCH"       description:"Load every source into the cache at startup"`
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
	// variables from the dotenv file never override the real environment
	if err := godotenv.Load(opts.EnvFile); err == nil {
		opts = parse()
	}

	opts.Logger.Setup()

	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := metrics.New(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	fetcher, closeFetcher, err := loader.NewFetcher(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer closeFetcher()

	l := loader.NewFromConfig(cfg, fetcher, loader.WithMetrics(collector))
	srvCtx := server.NewServerContext(cfg, l, collector)

	if opts.Prefetch {
		go func() {
			batch, err := l.LoadMultiple(ctx, l.Resolver().IDs(), loader.DefaultOptions)
			if err != nil {
				log.Warn().Err(err).Msg("Prefetch failed")
				return
			}
			log.Info().
				Strs("loaded", batch.IDs()).
				Int("failed", len(batch.Failures)).
				Msg("Prefetch finished")
		}()
	}

	listenAddr := fmt.Sprintf("%s:%d", opts.Addr, opts.Port)
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           srvCtx.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Graceful shutdown failed")
		}
	}()

	log.Info().
		Str("addr", listenAddr).
		Int("sources", len(cfg.Sources)).
		Int("points", len(srvCtx.Points)).
		Msg("Web server started")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Web server stopped")
}
