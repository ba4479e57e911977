package router

import (
	"time"

	"github.com/erp/ledger/internal/interfaces/http/handler"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers are the HTTP handlers served by the ledger API
type Handlers struct {
	Ledger  *handler.LedgerHandler
	Ingest  *handler.IngestHandler
	Run     *handler.RunHandler
	Payment *handler.PaymentHandler
	System  *handler.SystemHandler
}

// RouteConfig holds the per-route limits of the ledger API
type RouteConfig struct {
	// QueryTimeout bounds ledger reads. Zero disables the deadline.
	QueryTimeout time.Duration
	// MaxBodySize applies to JSON writes.
	MaxBodySize int64
	// MaxUploadBytes applies to ingest uploads.
	MaxUploadBytes int64
	// RateLimiter throttles writes per client. Nil disables throttling.
	RateLimiter *middleware.RateLimiter
	Docs        middleware.SwaggerConfig
}

// Setup mounts /health, /swagger and the /api/v1 routes on engine
func Setup(engine *gin.Engine, h Handlers, cfg RouteConfig) {
	engine.GET("/health", h.System.Health)
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Docs),
		ginSwagger.WrapHandler(swaggerFiles.Handler))

	read := middleware.Timeout(cfg.QueryTimeout)
	mountAPI(engine,
		newArea("/system").
			get("/info", h.System.GetSystemInfo).
			get("/ping", h.System.Ping),
		newArea("/ingest").
			post("/:kind", writeChain(cfg, cfg.MaxUploadBytes, h.Ingest.Upload)...),
		newArea("/ledger", read).
			get("/rows", h.Ledger.ListRows).
			get("/rows/recent", h.Ledger.RecentRows).
			get("/rows/:sequence_no", h.Ledger.GetRow).
			get("/exceptions", h.Ledger.ListExceptions).
			get("/summary", h.Ledger.GetSummary).
			get("/status", h.Ledger.GetStatus).
			get("/snapshots", h.Ledger.ListSnapshots),
		newArea("/runs").
			post("", writeChain(cfg, cfg.MaxBodySize, h.Run.Trigger)...).
			get("", read, h.Ledger.ListRuns),
		newArea("/payments").
			post("", writeChain(cfg, cfg.MaxBodySize, h.Payment.Register)...),
		newArea("/batches", read).
			get("", h.Ledger.ListBatches),
	)
}

// writeChain prefixes a write handler with throttling and a body limit
func writeChain(cfg RouteConfig, maxBytes int64, h gin.HandlerFunc) []gin.HandlerFunc {
	chain := make([]gin.HandlerFunc, 0, 3)
	if cfg.RateLimiter != nil {
		chain = append(chain, middleware.RateLimit(cfg.RateLimiter))
	}
	if maxBytes > 0 {
		chain = append(chain, middleware.BodyLimit(maxBytes))
	}
	return append(chain, h)
}
