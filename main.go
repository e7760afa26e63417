package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"farmgate/internal/audit"
	"farmgate/internal/auth"
	"farmgate/internal/eventing"
	"farmgate/internal/ingestion/application"
	ingestionrepo "farmgate/internal/ingestion/infrastructure/postgres"
	ingestionhttp "farmgate/internal/ingestion/interfaces/http"
	"farmgate/internal/observability/metrics"
	registryapp "farmgate/internal/registry/application"
	registryrepo "farmgate/internal/registry/infrastructure/postgres"
	registryhttp "farmgate/internal/registry/interfaces/http"
	"farmgate/internal/resolution"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	deviceRepo := registryrepo.NewDeviceRepository(db)
	plotRepo := registryrepo.NewPlotRepository(db)
	registryStore, err := registryapp.NewStore(deviceRepo, plotRepo)
	if err != nil {
		logger.Fatalf("registry store error: %v", err)
	}
	if err := registryStore.Refresh(context.Background()); err != nil {
		logger.Fatalf("registry initial load error: %v", err)
	}
	devices, plots, bounded, _ := registryStore.Stats()
	logger.Printf("registry loaded: devices=%d plots=%d bounded=%d", devices, plots, bounded)

	go func() {
		ticker := time.NewTicker(cfg.RegistryRefreshEvery)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := registryStore.Refresh(ctx); err != nil {
				logger.Printf("registry refresh error: %v", err)
			}
			cancel()
		}
	}()

	brokerCfg, err := eventing.LoadBrokerConfig()
	if err != nil {
		logger.Fatalf("broker config error: %v", err)
	}
	brokerClient, err := eventing.NewBrokerConn(context.Background(), brokerCfg, logger)
	if err != nil {
		logger.Fatalf("broker connect error: %v", err)
	}
	publisher, err := eventing.NewPublisher(brokerClient, brokerCfg, logger)
	if err != nil {
		logger.Fatalf("publisher error: %v", err)
	}

	resolver, err := resolution.NewResolver(registryStore)
	if err != nil {
		logger.Fatalf("resolver error: %v", err)
	}

	deadLetterStore := ingestionrepo.NewDeadLetterStore(db)
	pipeline, err := application.NewPipeline(resolver, publisher, deadLetterStore, logger)
	if err != nil {
		logger.Fatalf("pipeline error: %v", err)
	}

	ingestHandler, err := ingestionhttp.NewIngestHandler(pipeline, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	auditHandler, err := audit.NewHandler(deadLetterStore, logger)
	if err != nil {
		logger.Fatalf("audit handler error: %v", err)
	}
	refreshHandler, err := registryhttp.NewRefreshHandler(registryStore, logger)
	if err != nil {
		logger.Fatalf("refresh handler error: %v", err)
	}

	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret))
	adminAuth := auth.NewMiddleware([]byte(cfg.JWTSecret))

	mux := http.NewServeMux()
	mux.Handle("/ingest/readings", ingestAuth.Wrap(ingestHandler))
	mux.Handle("/api/v1/deadletters", adminAuth.Require(auth.RoleViewer, auditHandler))
	mux.Handle("/api/v1/deadletters/", adminAuth.Require(auth.RoleViewer, auditHandler))
	mux.Handle("/api/v1/registry/refresh", adminAuth.Require(auth.RoleOperator, refreshHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL          string
	HTTPAddr             string
	IngestSecret         string
	JWTSecret            string
	RegistryRefreshEvery time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:          getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:             getenvDefault("HTTP_ADDR", ":8080"),
		IngestSecret:         getenvDefault("INGEST_SECRET", ""),
		JWTSecret:            getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RegistryRefreshEvery: getenvDuration("REGISTRY_REFRESH_EVERY", 5*time.Minute),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.IngestSecret == "" {
		log.Fatal("INGEST_SECRET is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
