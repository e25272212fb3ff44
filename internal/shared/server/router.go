package server

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"paydiag-backend/internal/history"
	"paydiag-backend/internal/relay"
	"paydiag-backend/internal/shared/config"
	"paydiag-backend/internal/shared/metrics"
	"paydiag-backend/internal/shared/server/middleware"
	"paydiag-backend/internal/shared/server/respond"
	"paydiag-backend/internal/shared/storage/db"
	"paydiag-backend/internal/upstream/dify"
)

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigin),
		middleware.Auth(),
		middleware.RateLimit(middleware.RateLimitConfig{
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost && c.FullPath() == "/api/analyze" {
					return "ANALYZE"
				}
				return "DEFAULT"
			},
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT": {Rate: 5, Burst: 20},
				"ANALYZE": {Rate: 0.5, Burst: 3},
			},
		}),
	)

	// Dependencies
	var sqlDB *sql.DB
	if cfg.DatabaseURL != "" {
		conn, err := db.Connect(context.Background(), cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
		if err != nil {
			log.Printf("failed to connect database, falling back to memory: %v", err)
		} else {
			if err := db.RunMigrations(context.Background(), conn); err != nil {
				log.Printf("failed to run migrations, falling back to memory: %v", err)
				conn.Close()
				conn = nil
			}
			sqlDB = conn
		}
	}

	var ledger history.Repo
	if sqlDB != nil {
		ledger = &history.PGRepo{DB: sqlDB}
	} else {
		ledger = history.NewMemoryRepo()
	}

	upstream := dify.NewClient(cfg.DifyBaseURL, cfg.DifyAPIKey, cfg.UpstreamTimeout)
	relaySvc := &relay.Service{
		Ledger:       ledger,
		Upstream:     upstream,
		Platforms:    cfg.PlatformTypes,
		MaxPerWindow: cfg.MaxLimit,
		Window:       cfg.QuotaWindow,
	}
	relayHandler := relay.NewHandler(relaySvc)

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	relayHandler.RegisterRoutes(api)

	r.GET("/metrics", metrics.Handler())

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":3000"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
