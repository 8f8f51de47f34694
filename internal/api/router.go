package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/moments/internal/api/handlers"
	"github.com/your-org/moments/internal/api/ws"
	"github.com/your-org/moments/internal/auth"
	"github.com/your-org/moments/internal/intake"
	"github.com/your-org/moments/internal/match"
	"github.com/your-org/moments/internal/queue"
	"github.com/your-org/moments/internal/storage"
)

type RouterConfig struct {
	APIKey       string
	DB           *storage.PostgresStore
	Blobs        *storage.MinIOStore
	Producer     *queue.Producer
	Hub          *ws.Hub
	Orchestrator *intake.Orchestrator
	MatchCache   *match.Cache
	// EncodeFn extracts a reference signature from image bytes (from the
	// vision pipeline).
	EncodeFn func(ctx context.Context, imageData []byte) ([]float32, float32, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.Blobs, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket live feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Tenants
	tenantH := handlers.NewTenantHandler(cfg.DB)
	v1.POST("/tenants", tenantH.Create)
	v1.GET("/tenants", tenantH.List)
	v1.GET("/tenants/:id", tenantH.Get)
	v1.GET("/tenants/:id/storage", tenantH.Storage)

	// Enrollment
	personH := handlers.NewPersonHandler(cfg.DB, cfg.Blobs, cfg.MatchCache)
	personH.EncodeFn = cfg.EncodeFn
	v1.POST("/persons", personH.Create)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:id", personH.Get)
	v1.POST("/persons/:id/signatures", personH.AddSignature)
	v1.POST("/search", personH.Search)

	// Media intake
	mediaH := handlers.NewMediaHandler(cfg.DB, cfg.Blobs, cfg.Orchestrator, cfg.Producer)
	v1.POST("/media", mediaH.Upload)
	v1.GET("/media", mediaH.List)
	v1.GET("/media/:id", mediaH.Get)
	v1.GET("/media/:id/image", mediaH.Image)
	v1.POST("/media/:id/reprocess", mediaH.Reprocess)
	v1.POST("/media/batch", mediaH.Batch)

	// Activity feed
	activityH := handlers.NewActivityHandler(cfg.DB)
	v1.GET("/activities", activityH.List)

	return r
}
