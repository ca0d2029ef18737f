// Command plater runs a single-graph PLATER query service: node lookup,
// one-hop traversal, free cypher, and TrAPI queries over one Neo4j-backed
// biomedical knowledge graph.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/kgraph-io/plater-automat/internal/config"
	"github.com/kgraph-io/plater-automat/internal/endpoints"
	"github.com/kgraph-io/plater-automat/internal/graph"
	"github.com/kgraph-io/plater-automat/internal/heartbeat"
	"github.com/kgraph-io/plater-automat/internal/logging"
	"github.com/kgraph-io/plater-automat/internal/metrics"
	"github.com/kgraph-io/plater-automat/internal/middleware"
	"github.com/kgraph-io/plater-automat/internal/overlay"
	"github.com/kgraph-io/plater-automat/internal/validators"
)

func main() {
	var (
		automatURL   = flag.String("a", "", "AUTOMAT base URL to announce this instance to via heartbeat")
		validate     = flag.Bool("v", false, "run the KGX and build-comparison validators before serving")
		resetSummary = flag.Bool("reset-summary", false, "write the current graph summary as the new baseline instead of diffing")
	)
	flag.Parse()

	buildTag := flag.Arg(0)
	if buildTag == "" {
		fmt.Fprintln(os.Stderr, "usage: plater <build_tag> [-a automat_url] [-v] [--reset-summary]")
		os.Exit(2)
	}
	// flag.Parse stops at the first positional argument, so flags that
	// follow the build tag are parsed here.
	_ = flag.CommandLine.Parse(flag.Args()[1:])

	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg, err := config.LoadPlaterConfig(buildTag, *automatURL, *validate, *resetSummary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: %v\n", err)
		os.Exit(2)
	}

	logger := logging.New("plater:"+buildTag, cfg.LogLevel, cfg.LogFormat)
	ctx := logging.WithBuildTag(context.Background(), buildTag)

	driver := graph.NewDriver(cfg.Neo4jHost, cfg.Neo4jPort, cfg.Neo4jUsername, cfg.Neo4jPassword, cfg.Timeouts.GraphConnect, logger)
	if err := driver.Bootstrap(ctx, cfg.EdgeIndexName); err != nil {
		logger.Fatal(ctx, "graph database bootstrap failed", err)
	}
	graphInterface := graph.NewInterface(driver, cfg.EdgeIndexName)

	if cfg.Validate {
		runValidators(ctx, graphInterface, logger, cfg.ResetSummary)
	}

	overlayEngine := overlay.New(graphInterface)
	aboutManifest := loadAboutManifest(buildTag, cfg)
	factory := endpoints.New(graphInterface, overlayEngine, buildTag, aboutManifest, logger)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(0).Handler)

	if limit := config.GetEnvInt("RATE_LIMIT_PER_MINUTE", 0); limit > 0 {
		router.Use(middleware.NewRateLimiter(limit, time.Minute, limit, logger).Handler)
	}

	metricsCollector := metrics.New("plater")
	router.Use(middleware.MetricsMiddleware("plater", metricsCollector))
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if err := factory.RegisterRoutes(ctx, router); err != nil {
		logger.Fatal(ctx, "failed to register routes from graph schema", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebHost, cfg.WebPort),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	var sender *heartbeat.Sender
	if cfg.AutomatHost != "" {
		sender = heartbeat.NewSender(cfg.AutomatHost, cfg.WebHost, fmt.Sprintf("%d", cfg.WebPort), buildTag, cfg.HeartRate, cfg.Timeouts.Heartbeat, logger)
		go sender.Run(ctx)
	}

	go func() {
		logger.WithContext(ctx).Infof("plater %s listening on %s", buildTag, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "server error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(ctx).Info("shutting down")
	if sender != nil {
		sender.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("shutdown error")
	}
}

// loadAboutManifest builds the document served at /about. When
// ABOUT_MANIFEST_FILE names a YAML file, its contents are merged in under
// the base fields describing this build.
func loadAboutManifest(buildTag string, cfg *config.PlaterConfig) map[string]interface{} {
	manifest := map[string]interface{}{
		"build_tag":       buildTag,
		"biolink_url":     cfg.BiolinkURL,
		"edge_index_name": cfg.EdgeIndexName,
	}

	path := config.GetEnv("ABOUT_MANIFEST_FILE", "")
	if path == "" {
		return manifest
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest
	}
	var extra map[string]interface{}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return manifest
	}
	for k, v := range extra {
		manifest[k] = v
	}
	return manifest
}

func runValidators(ctx context.Context, gi *graph.Interface, logger *logging.Logger, resetSummary bool) {
	logDir := config.GetEnv("VALIDATION_LOG_DIR", "./logs")

	kgxValidator := validators.NewKGXValidator(gi, logger)
	report, err := kgxValidator.Validate(ctx, logDir)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("KGX validation failed to run")
	} else if !report.OK() {
		logger.WithContext(ctx).WithFields(map[string]interface{}{
			"node_error_types": len(report.NodeErrors),
			"edge_error_types": len(report.EdgeErrors),
		}).Warn("KGX validation found structural errors")
	}

	buildValidator := validators.NewBuildComparisonValidator(gi, logDir)
	valid, err := buildValidator.Validate(ctx, resetSummary)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("build comparison failed to run")
	} else if !valid {
		logger.WithContext(ctx).Warn("build comparison found a divergence from the previous build's summary")
	}
}
