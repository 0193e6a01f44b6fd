package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustreg/pkg/bus"
	"trustreg/pkg/db"
	"trustreg/pkg/rating"
	trs3 "trustreg/pkg/s3"
	"trustreg/pkg/source"
	"trustreg/pkg/telemetry"
	"trustreg/services/ingestd"
	"trustreg/services/registry"
)

func main() {
	if err := run("ingestd"); err != nil {
		log.New(os.Stderr, "", log.LstdFlags).Fatal(err)
	}
}

func run(serviceName string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	tel, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "%s: telemetry shutdown error: %v\n", serviceName, err)
		}
	}()
	logger := tel.Logger

	cfg, err := ingestd.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return errors.New("DATABASE_URL is required")
	}

	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	orm, err := db.OpenGorm(dsn)
	if err != nil {
		return fmt.Errorf("open orm: %w", err)
	}

	s3Client, err := trs3.NewClientFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("init s3 client: %w", err)
	}

	store := &registry.Store{DB: pool, ORM: orm, S3: s3Client}

	var queue *bus.Queue
	if natsURL := strings.TrimSpace(os.Getenv("NATS_URL")); natsURL != "" {
		queue, err = bus.New(natsURL, bus.Options{})
		if err != nil {
			return fmt.Errorf("connect queue: %w", err)
		}
		defer queue.Close()
	}

	policy := rating.DefaultPolicy()
	if cfg.PolicyPath != "" {
		policy, err = rating.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("load admission policy: %w", err)
		}
	}
	gate := rating.NewGate(rating.Heuristics{})
	gate.Policy = policy

	pipeline := &ingestd.Pipeline{
		Store: store,
		Sources: source.Clients{
			source.KindHuggingFace: source.NewHuggingFace(cfg.HuggingFaceToken),
			source.KindGitHub:      source.NewGitHub(cfg.GitHubToken),
		},
		Gate: gate,
		Archiver: &ingestd.Archiver{
			Uploads: &ingestd.S3Uploader{
				Client:   s3Client,
				Bucket:   cfg.Bucket,
				PartSize: cfg.PartSize,
			},
		},
		Logger:  logger,
		Metrics: ingestd.NewMetrics(),
	}

	worker := &ingestd.Worker{
		Pipeline:         pipeline,
		Queue:            queue,
		Store:            store,
		Logger:           logger,
		Slots:            cfg.Slots,
		PollWait:         cfg.PollWait,
		FallbackInterval: cfg.FallbackInterval,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler)
	mux.HandleFunc("/readyz", readyHandler)
	mux.Handle("/metrics", promhttp.Handler())

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8081"
	}
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "%s: server shutdown error: %v\n", serviceName, err)
		}
	}()
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("ERROR metrics server failed: %v", err)
		}
	}()

	logger.Printf("INFO worker starting with %d slots", cfg.Slots)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
