// Command addrmatch matches free-text addresses and coordinates against a packed
// reference corpus and prints the regions they fall in.
//
// Usage:
//
//	addrmatch pack --in gnaf.psv --delimiter '|' --out ./data/Australia
//	addrmatch address "UNIT 410 GEORGINA CRESCENT KALEEN ACT 2617"
//	addrmatch coords -- -35.2291 149.1067
//	addrmatch regions --name SA1 --operator at-or-above
//
// Settings are read from flags, then ADDRMATCH_* environment variables, then a .env
// file in the working directory.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andreiashu/addrmatcher"
	"github.com/andreiashu/addrmatcher/hierarchies"
	"github.com/andreiashu/addrmatcher/internal/metrics"
)

type globalFlags struct {
	country     string
	dataDir     string
	workers     int
	cacheSize   int
	metricsAddr string
}

func main() {
	_ = godotenv.Load(".env")

	log, err := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := newRootCmd(log).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd(log *zap.Logger) *cobra.Command {
	g := &globalFlags{}
	rootCmd := &cobra.Command{
		Use:           "addrmatch",
		Short:         "Match addresses and coordinates to regions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.country, "country", envString("ADDRMATCH_COUNTRY", "australia"), "Region hierarchy to use")
	pf.StringVar(&g.dataDir, "data-dir", envString("ADDRMATCH_DATA_DIR", ""), "Reference data directory (default ./data/<country>)")
	pf.IntVar(&g.workers, "workers", envInt("ADDRMATCH_WORKERS", 0), "Parallel shard readers (default GOMAXPROCS)")
	pf.IntVar(&g.cacheSize, "cache-size", envInt("ADDRMATCH_CACHE_SIZE", addrmatcher.DefaultShardCacheSize), "Decoded shards kept in memory, 0 to disable")
	pf.StringVar(&g.metricsAddr, "metrics-addr", envString("ADDRMATCH_METRICS_ADDR", ""), "Serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(createAddressCmd(g, log))
	rootCmd.AddCommand(createCoordsCmd(g, log))
	rootCmd.AddCommand(createRegionsCmd(g))
	rootCmd.AddCommand(createPackCmd(g, log))
	return rootCmd
}

// newLogger builds a production (JSON) logger by default and a development
// (console) one when format is "console".
func newLogger(level, format string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
	}
	if level == "" {
		level = "warn"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func hierarchyFor(country string) (*addrmatcher.Hierarchy, error) {
	switch strings.ToLower(strings.TrimSpace(country)) {
	case "australia", "au", "aus":
		return hierarchies.Australia()
	}
	return nil, fmt.Errorf("%w: no hierarchy for country %q", addrmatcher.ErrInvalidArgument, country)
}

// openMatcher opens the matcher for g and, if requested, starts the metrics listener.
func openMatcher(g *globalFlags, log *zap.Logger) (*addrmatcher.GeoMatcher, error) {
	h, err := hierarchyFor(g.country)
	if err != nil {
		return nil, err
	}
	opts := []addrmatcher.Option{
		addrmatcher.WithLogger(log),
		addrmatcher.WithWorkers(g.workers),
		addrmatcher.WithShardCacheSize(g.cacheSize),
	}
	if g.dataDir != "" {
		opts = append(opts, addrmatcher.WithDataDir(g.dataDir))
	}
	if g.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, addrmatcher.WithMetrics(reg))
		serveMetrics(g.metricsAddr, reg, log)
	}
	return addrmatcher.Open(h, opts...)
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics listener stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", addr))
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// exitCode maps error kinds to distinct process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, addrmatcher.ErrInvalidArgument):
		return 2
	case errors.Is(err, addrmatcher.ErrOutOfRange):
		return 3
	case errors.Is(err, addrmatcher.ErrNotFound), errors.Is(err, addrmatcher.ErrSchema):
		return 4
	}
	return 1
}
