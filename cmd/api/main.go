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
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/moments/internal/api"
	"github.com/your-org/moments/internal/api/ws"
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

	slog.Info("starting Moments API service", "port", cfg.Server.Port)

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
	if err := blobs.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// WebSocket hub for the live feed
	hub := ws.NewHub()
	go hub.Run()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create media event consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeMediaEvents(ctx, "api-media-events", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.MediaPersistedEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.Error("unmarshal media event", "error", err)
			return nil // Don't retry on unmarshal errors
		}
		hub.BroadcastPersisted(&ev)
		return nil
	})
	if err != nil {
		slog.Warn("start media event consumer", "error", err)
	}

	// Vision engine for inline intake and enrollment endpoints
	var engine *vision.Engine
	var encodeFn func(ctx context.Context, imageData []byte) ([]float32, float32, error)

	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed — enrollment and inline intake degraded", "error", err)
	} else {
		engine, err = vision.NewEngine(cfg.Vision)
		if err != nil {
			slog.Warn("vision engine init failed — enrollment and inline intake degraded", "error", err)
		} else {
			encodeFn = engine.EncodeReference
			defer engine.Close()
			defer ort.DestroyEnvironment()
			slog.Info("vision engine ready")
		}
	}

	matchCache := match.NewCache(db)
	matcher := match.NewMatcher(matchCache, cfg.Match)

	generator, err := caption.NewGenerator(ctx, cfg.Caption)
	if err != nil {
		slog.Error("init caption generator", "error", err)
		os.Exit(1)
	}

	orchestrator := intake.NewOrchestrator(db, blobs, visionEngineOrNoop(engine), matcher, generator, producer, cfg.Intake)

	router := api.NewRouter(api.RouterConfig{
		APIKey:       cfg.Server.APIKey,
		DB:           db,
		Blobs:        blobs,
		Producer:     producer,
		Hub:          hub,
		Orchestrator: orchestrator,
		MatchCache:   matchCache,
		EncodeFn:     encodeFn,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// visionEngineOrNoop keeps the pipeline usable when ONNX is unavailable:
// uploads still persist, with zero faces and the recognition flag unset.
func visionEngineOrNoop(engine *vision.Engine) intake.FaceEngine {
	if engine != nil {
		return engine
	}
	return noopEngine{}
}

type noopEngine struct{}

func (noopEngine) DetectFaces(context.Context, []byte) ([]vision.FaceObservation, error) {
	return nil, &vision.DetectionError{Stage: "init", Err: fmt.Errorf("vision engine unavailable")}
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
