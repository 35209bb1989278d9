package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/vidledger/internal/api/handler"
	"github.com/timmy/vidledger/internal/api/middleware"
	"github.com/timmy/vidledger/internal/config"
	"github.com/timmy/vidledger/internal/logger"
	"github.com/timmy/vidledger/internal/service"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	ledger *service.LedgerService,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	ledgerHandler := handler.NewLedgerHandler(ledger)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/progress", ledgerHandler.GetProgress)

		v1.GET("/records", ledgerHandler.ListRecords)
		v1.GET("/records/:id", ledgerHandler.GetRecord)

		v1.GET("/stats", ledgerHandler.GetStats)
		v1.GET("/runs", ledgerHandler.ListRuns)
	}

	return r
}
