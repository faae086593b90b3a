// Package main is the chikai CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/chikai/internal/catalog"
	"github.com/hyperjump/chikai/internal/cli"
	"github.com/hyperjump/chikai/internal/config"
	"github.com/hyperjump/chikai/internal/embedding"
	"github.com/hyperjump/chikai/internal/forest"
	"github.com/hyperjump/chikai/internal/ingest"
	"github.com/hyperjump/chikai/internal/metrics"
	"github.com/hyperjump/chikai/internal/models"
	"github.com/hyperjump/chikai/internal/recommend"
	"github.com/hyperjump/chikai/internal/scheduler"
	"github.com/hyperjump/chikai/internal/server"
	"github.com/hyperjump/chikai/internal/storage"
	"github.com/hyperjump/chikai/internal/vector"
	"github.com/hyperjump/chikai/internal/watcher"
	"github.com/hyperjump/chikai/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/chikai/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if it exists, so running from a project directory
// picks up the project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "import":
		runImport()
	case "build":
		runBuild()
	case "similar":
		runSimilar()
	case "recommend":
		runRecommend()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("chikai version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	components, err := initializeComponents(cfg, logger, reg)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	svc := components.Service

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := svc.Restore(ctx); err != nil {
		logger.Fatal("Failed to restore vectors", zap.Error(err))
	}

	refresher, err := scheduler.NewRefresher(cfg.Refresh.CronSpec, svc.Rebuild, scheduler.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create refresher", zap.Error(err))
	}
	if cfg.Refresh.BuildOnStartOrDefault() {
		if err := refresher.RunNow(ctx); err != nil {
			logger.Warn("initial index build failed", zap.Error(err))
		}
	}
	if cfg.Refresh.Enabled {
		refresher.Start()
	}

	importer := ingest.NewImporter(svc, logger)
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		func(ctx context.Context, path string) {
			if _, err := importer.ImportFile(ctx, path); err != nil {
				logger.Warn("feed import failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	if len(cfg.Watch.Directories) > 0 {
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExistingFiles()
	}

	httpMetrics, err := metrics.NewHTTP(reg)
	if err != nil {
		logger.Fatal("Failed to register HTTP metrics", zap.Error(err))
	}
	srvOpts := []server.Option{
		server.WithRebuild(refresher.RunNow),
		server.WithMetrics(reg, httpMetrics),
	}
	if cfg.Refresh.ManualInterval > 0 {
		srvOpts = append(srvOpts, server.WithBuildLimiter(rate.NewLimiter(rate.Every(cfg.Refresh.ManualInterval), 1)))
	}
	srv := server.NewServer(svc, &cfg.Server, logger, srvOpts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchSvc.Stop()
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := refresher.Stop(shutdownCtx); err != nil {
		logger.Warn("refresher stop timed out", zap.Error(err))
	}
	_ = srv.Stop(shutdownCtx)
}

// buildQueryText joins all positional args with spaces so multi-word text
// works the same with or without shell quoting.
func buildQueryText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse sees them. Go's flag
// package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// parseVector parses a comma-separated list of floats such as "0.1,0.2,0.3".
func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		f, err := strconv.ParseFloat(p, 32)
		if err != nil {
			return nil, fmt.Errorf("vector component %d: %w", i+1, err)
		}
		vec = append(vec, float32(f))
	}
	if len(vec) == 0 {
		return nil, errors.New("vector is empty")
	}
	return vec, nil
}

func parseOutput(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return format
}

// openDirect loads config and initializes components for direct storage mode.
func openDirect(configPath string) (*Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, nil)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return components, logger
}

// prepareIndex loads stored vectors and builds the index. Trees are never
// persisted, so direct-mode queries build their own.
func prepareIndex(ctx context.Context, svc *recommend.Service) error {
	if _, err := svc.Restore(ctx); err != nil {
		return err
	}
	return svc.Rebuild(ctx)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*output)

	if fs.NArg() < 1 {
		fmt.Println("Usage: chikai import [flags] <file> [file...]")
		os.Exit(1)
	}

	var registrar ingest.Registrar
	var logger *zap.Logger
	if *serverURL != "" {
		registrar = newAPIClient(*serverURL)
		logger = zap.NewNop()
	} else {
		components, l := openDirect(*configPath)
		defer components.Close()
		defer l.Sync()
		registrar, logger = components.Service, l
	}

	importer := ingest.NewImporter(registrar, logger)
	ctx := context.Background()
	failed := false
	var results []*ingest.Result
	for _, path := range fs.Args() {
		res, err := importer.ImportFile(ctx, path)
		if err != nil {
			fmt.Printf("Import of %s failed: %v\n", path, err)
			failed = true
			continue
		}
		results = append(results, res)
		if res.Failed > 0 {
			failed = true
		}
		if format != cli.OutputJSON {
			fmt.Printf("%s: %d imported, %d failed\n", res.File, res.Imported, res.Failed)
			for _, e := range res.Errors {
				fmt.Printf("  %s\n", e)
			}
		}
	}
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, results)
	}
	if failed {
		os.Exit(1)
	}
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*output)
	ctx := context.Background()

	var st *models.Status
	var err error
	if *serverURL != "" {
		st, err = newAPIClient(*serverURL).Build(ctx)
	} else {
		components, logger := openDirect(*configPath)
		defer components.Close()
		defer logger.Sync()
		if err = prepareIndex(ctx, components.Service); err == nil {
			st, err = components.Service.Status(ctx)
		}
	}
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteStatus(os.Stdout, st, format)
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	k := fs.Int("k", 0, "number of neighbors (default from config)")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*output)

	if fs.NArg() != 1 {
		fmt.Println("Usage: chikai similar [flags] <event-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	ctx := context.Background()

	var resp *models.NeighborResponse
	var err error
	if *serverURL != "" {
		resp, err = newAPIClient(*serverURL).Similar(ctx, id, *k)
	} else {
		components, logger := openDirect(*configPath)
		defer components.Close()
		defer logger.Sync()
		if err = prepareIndex(ctx, components.Service); err == nil {
			resp, err = components.Service.Neighbors(ctx, &models.NeighborQuery{ID: id, K: *k})
		}
	}
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteNeighbors(os.Stdout, resp, format)
}

func runRecommend() {
	fs := flag.NewFlagSet("recommend", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	k := fs.Int("k", 0, "number of neighbors (default from config)")
	vectorFlag := fs.String("vector", "", "comma-separated query vector instead of text")
	output := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*output)

	q := &models.NeighborQuery{K: *k, Text: buildQueryText(fs.Args())}
	if *vectorFlag != "" {
		vec, err := parseVector(*vectorFlag)
		if err != nil {
			fmt.Printf("Invalid --vector: %v\n", err)
			os.Exit(1)
		}
		q.Vector = vec
	}
	if (q.Text == "") == (len(q.Vector) == 0) {
		fmt.Println("Usage: chikai recommend [flags] <text>  or  chikai recommend --vector 0.1,0.2,...")
		os.Exit(1)
	}
	ctx := context.Background()

	var resp *models.NeighborResponse
	var err error
	if *serverURL != "" {
		resp, err = newAPIClient(*serverURL).Neighbors(ctx, q)
	} else {
		components, logger := openDirect(*configPath)
		defer components.Close()
		defer logger.Sync()
		if err = prepareIndex(ctx, components.Service); err == nil {
			resp, err = components.Service.Neighbors(ctx, q)
		}
	}
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteNeighbors(os.Stdout, resp, format)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	limit := fs.Int("limit", 0, "maximum number of hits (default from config)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseOutput(*output)

	query := buildQueryText(fs.Args())
	if query == "" {
		fmt.Println("Usage: chikai search [flags] <text>")
		os.Exit(1)
	}
	ctx := context.Background()

	var hits []*models.CatalogHit
	var err error
	if *serverURL != "" {
		hits, err = newAPIClient(*serverURL).SearchCatalog(ctx, query, *limit)
	} else {
		components, logger := openDirect(*configPath)
		defer components.Close()
		defer logger.Sync()
		hits, err = components.Service.SearchCatalog(ctx, query, *limit)
	}
	if err != nil {
		fmt.Printf("Search failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteCatalogHits(os.Stdout, hits, format)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() != 1 {
		fmt.Println("Usage: chikai delete [flags] <event-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)
	ctx := context.Background()

	var err error
	if *serverURL != "" {
		err = newAPIClient(*serverURL).Delete(ctx, id)
	} else {
		components, logger := openDirect(*configPath)
		defer components.Close()
		defer logger.Sync()
		err = components.Service.Delete(ctx, id)
	}
	if err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Event deleted: %s\n", id)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseOutput(*output)
	ctx := context.Background()

	var st *models.Status
	var err error
	if *serverURL != "" {
		st, err = newAPIClient(*serverURL).Status(ctx)
	} else {
		components, logger := openDirect(*configPath)
		defer components.Close()
		defer logger.Sync()
		st, err = components.Service.Status(ctx)
	}
	if err != nil {
		fmt.Printf("Status failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteStatus(os.Stdout, st, format)
}

// Components holds initialized services.
type Components struct {
	Storage     storage.Storage
	Embedder    embedding.Embedder
	VectorIndex vector.VectorIndex
	Catalog     catalog.Catalog
	Service     *recommend.Service
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

// forestOptions maps the index config onto forest options. reg may be nil.
func forestOptions(cfg *config.IndexConfig, logger *zap.Logger, reg prometheus.Registerer) ([]forest.Option, error) {
	opts := []forest.Option{
		forest.WithTreeCount(cfg.TreeCount),
		forest.WithMaxDepth(cfg.MaxDepth),
		forest.WithLogger(logger),
	}
	if cfg.Seed != 0 {
		opts = append(opts, forest.WithSeed(cfg.Seed))
	}
	if cfg.Workers > 0 {
		opts = append(opts, forest.WithWorkers(cfg.Workers))
	}
	if reg != nil {
		obs, err := metrics.NewPrometheus(reg)
		if err != nil {
			return nil, fmt.Errorf("failed to register index metrics: %w", err)
		}
		opts = append(opts, forest.WithObserver(obs))
	}
	return opts, nil
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Components, error) {
	c := &Components{}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	c.Embedder = embedding.New(
		cfg.Embedding.ModelPath,
		cfg.Embedding.Dimensions,
		cfg.Embedding.MaxTokens,
		cfg.Embedding.CacheSize,
		logger,
	)

	opts, err := forestOptions(&cfg.Index, logger, reg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.VectorIndex, err = vector.NewVectorIndex(cfg.Index.Type, cfg.Embedding.Dimensions, opts...)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	logger.Info("vector index initialized",
		zap.String("type", c.VectorIndex.Type()),
		zap.Int("dimensions", cfg.Embedding.Dimensions))

	cat, err := catalog.NewBleveCatalog(cfg.Storage.CatalogIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c.Catalog = cat

	c.Service = recommend.NewService(store, c.Embedder, c.VectorIndex, cat, &cfg.Index,
		recommend.WithLogger(logger),
		recommend.WithDiskPaths(cfg.Storage.DatabasePath, cfg.Storage.CatalogIndexPath),
	)
	return c, nil
}

func printUsage() {
	fmt.Println(`chikai - Event recommendations from a random partition forest

Usage:
  chikai server [flags]                 Start the HTTP server
  chikai import [flags] <file...>       Register events from .json/.jsonl feeds
  chikai build [flags]                  Rebuild the neighbor index
  chikai similar [flags] <id>           Events most similar to a registered event
  chikai recommend [flags] <text>       Events nearest to free text
  chikai recommend --vector 0.1,0.2,..  Events nearest to a raw vector
  chikai search [flags] <text>          Find event ids by title, venue, or description
  chikai delete [flags] <id>            Delete an event
  chikai status [flags]                 Show storage/index status
  chikai version                        Show version
  chikai help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/chikai/config.yaml)
  --debug            Enable debug logging

Client Flags (import, build, similar, recommend, search, delete, status):
  --config string    Config file path (for direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "")
                     to work on local storage; queries then rebuild the index first.
  --output string    Output format: text, compact (similar/recommend), or json

Query Flags:
  --k int            Number of neighbors (default: index.default_k)
  --limit int        Maximum catalog hits for search (default: index.default_k)
  --vector string    Comma-separated query vector for recommend

Examples:
  chikai server
  chikai import events.jsonl
  chikai build
  chikai search jazz night
  chikai similar --k 5 jazz-1
  chikai recommend "outdoor concert downtown"
  chikai recommend --output compact --vector 0.1,0.0,0.3
  chikai status --output json`)
}
