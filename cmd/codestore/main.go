package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/balaji-balu/codeboard/internal/api"
	"github.com/balaji-balu/codeboard/internal/logger"
	"github.com/balaji-balu/codeboard/internal/metrics"
	"github.com/balaji-balu/codeboard/internal/store"
	"github.com/balaji-balu/codeboard/internal/telemetry"
)

func init() {
	if err := godotenv.Load("./.env"); err != nil {
		log.Println("No .env file found, reading from system environment")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	addr := flag.String("addr", envOr("CODESTORE_ADDR", ":8090"), "HTTP listen address")
	backend := flag.String("backend", envOr("CODESTORE_BACKEND", "memory"), "storage backend: memory or sqlite")
	dbPath := flag.String("db", envOr("CODESTORE_DB", "./data/codes.db"), "sqlite database file")
	env := flag.String("env", envOr("CODESTORE_ENV", "development"), "development, staging or production")
	exporter := flag.String("trace", envOr("CODESTORE_TRACE", "none"), "trace exporter: none, stdout or otlp")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg, err := logger.New(*env, "codestore")
	if err != nil {
		log.Fatalf("can't initialize logger: %v", err)
	}
	defer lg.Sync()
	zap.RedirectStdLog(lg.Zap())

	shutdownTracer, err := telemetry.InitTracer(ctx, "codestore", *exporter, envOr("CODESTORE_OTLP_ENDPOINT", "localhost:4317"))
	if err != nil {
		lg.Error("tracer", err)
		os.Exit(1)
	}
	defer shutdownTracer(context.Background())

	var st store.Store
	switch *backend {
	case "memory":
		st = store.NewMemory()
	case "sqlite":
		st, err = store.OpenSQLite(ctx, *dbPath)
		if err != nil {
			lg.Error("open store", err, zap.String("db", *dbPath))
			os.Exit(1)
		}
	default:
		lg.Error("unknown backend", errors.New(*backend))
		os.Exit(1)
	}
	defer st.Close()

	metrics.Init("store")

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(api.RequestLogger(lg.Named("http")))
	r.Use(gin.Recovery())
	r.Use(metrics.Gin())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	store.NewHandlers(st, lg.Zap()).Register(r)

	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		lg.Info("code store listening", zap.String("addr", *addr), zap.String("backend", *backend))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	case err := <-errc:
		if err != nil {
			lg.Error("HTTP server error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		lg.Error("error shutting down HTTP server", err)
	}
	lg.Info("clean exit")
}
