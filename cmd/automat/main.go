// Command automat runs the federated registry and reverse proxy that fronts
// a fleet of PLATER instances: heartbeat-based liveness tracking, tag-based
// request routing, and concurrent OpenAPI spec aggregation.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kgraph-io/plater-automat/internal/config"
	"github.com/kgraph-io/plater-automat/internal/httputil"
	"github.com/kgraph-io/plater-automat/internal/logging"
	"github.com/kgraph-io/plater-automat/internal/metrics"
	"github.com/kgraph-io/plater-automat/internal/middleware"
	"github.com/kgraph-io/plater-automat/internal/proxy"
	"github.com/kgraph-io/plater-automat/internal/registry"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg := config.LoadAutomatConfig()
	logger := logging.New("automat", cfg.LogLevel, cfg.LogFormat)
	ctx := context.Background()

	reg := registry.New(cfg.RegistryAge, cfg.RegistryWarnThreshold, cfg.RegistryOfflineThreshold, cfg.RegistryDeleteThreshold)
	reverseProxy := proxy.NewRouter(reg, logger)
	aggregator := proxy.NewAggregator(reg, cfg.SpecFetchTimeout, logger)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.NewCORSMiddleware(middleware.DefaultCORSConfig()).Handler)
	router.Use(middleware.NewBodyLimitMiddleware(0).Handler)

	if limit := config.GetEnvInt("RATE_LIMIT_PER_MINUTE", 0); limit > 0 {
		router.Use(middleware.NewRateLimiter(limit, time.Minute, limit, logger).Handler)
	}

	metricsCollector := metrics.New("automat")
	router.Use(middleware.MetricsMiddleware("automat", metricsCollector))
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/heartbeat", heartbeatHandler(reg, metricsCollector)).Methods(http.MethodPost)
	router.HandleFunc("/registry", registryHandler(reg)).Methods(http.MethodGet)
	router.HandleFunc("/openapi.json", openAPIHandler(aggregator)).Methods(http.MethodGet)
	router.HandleFunc("/openapi.yml", openAPIHandler(aggregator)).Methods(http.MethodGet)

	router.PathPrefix("/{tag}{remainder:/.*}").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		reverseProxy.ServeHTTP(w, r, vars["tag"], vars["remainder"])
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.WebHost, cfg.WebPort),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.WithContext(ctx).Infof("automat listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "server error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.WithContext(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Error("shutdown error")
	}
}

type heartbeatRequest struct {
	Host string `json:"host"`
	Port string `json:"port"`
	Tag  string `json:"tag"`
}

func heartbeatHandler(reg *registry.Registry, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteErrorResponse(w, r, err)
			return
		}
		snapshot := reg.Refresh(registry.Heartbeat{Host: req.Host, Port: req.Port, Tag: req.Tag})
		m.SetRegistrySize(len(snapshot))
		httputil.WriteJSON(w, http.StatusOK, snapshot)
	}
}

func registryHandler(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := reg.GetRegistry()
		tags := make([]string, 0, len(snapshot))
		for tag := range snapshot {
			tags = append(tags, tag)
		}
		sort.Strings(tags)
		httputil.WriteJSON(w, http.StatusOK, tags)
	}
}

func openAPIHandler(aggregator *proxy.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := aggregator.Merge(r.Context())
		httputil.WriteJSON(w, http.StatusOK, spec)
	}
}
