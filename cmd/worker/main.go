package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/moments/internal/caption"
	"github.com/your-org/moments/internal/config"
	"github.com/your-org/moments/internal/intake"
	"github.com/your-org/moments/internal/match"
	"github.com/your-org/moments/internal/models"
	"github.com/your-org/moments/internal/observability"
	"github.com/your-org/moments/internal/queue"
	"github.com/your-org/moments/internal/storage"
	"github.com/your-org/moments/internal/vision"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting Moments intake worker",
		"workers", cfg.Intake.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	// Initialize ONNX Runtime
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		slog.Error("run migrations", "error", err)
		os.Exit(1)
	}

	// Connect to MinIO
	blobs, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Vision engine
	engine, err := vision.NewEngine(cfg.Vision)
	if err != nil {
		slog.Error("init vision engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	slog.Info("vision engine initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	matchCache := match.NewCache(db)
	matcher := match.NewMatcher(matchCache, cfg.Match)

	generator, err := caption.NewGenerator(ctx, cfg.Caption)
	if err != nil {
		slog.Error("init caption generator", "error", err)
		os.Exit(1)
	}

	orchestrator := intake.NewOrchestrator(db, blobs, engine, matcher, generator, producer, cfg.Intake)

	// Consume intake tasks
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	err = consumer.ConsumeIntake(ctx, "intake-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var task models.IntakeTask
		if err := json.Unmarshal(msg.Data(), &task); err != nil {
			slog.Error("unmarshal intake task", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		if _, err := orchestrator.Reprocess(ctx, task.MediaItemID); err != nil {
			return fmt.Errorf("process media item %s: %w", task.MediaItemID, err)
		}
		return nil
	}, cfg.Intake.WorkerCount)
	if err != nil {
		slog.Error("start intake consumer", "error", err)
		os.Exit(1)
	}

	// Refresh the queue depth gauge
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := producer.QueueDepth(ctx); err != nil {
					slog.Debug("queue depth check", "error", err)
				}
			}
		}
	}()

	// Metrics endpoint
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port+1),
		Handler: promhttp.Handler(),
	}
	go func() {
		slog.Info("metrics server listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down intake worker...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	slog.Info("intake worker stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
