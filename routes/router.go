package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/linkealabs/linkea/config"
	"github.com/linkealabs/linkea/controllers"
	"github.com/linkealabs/linkea/middleware"
	"github.com/linkealabs/linkea/stats"
	"github.com/linkealabs/linkea/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB, clock stats.Clock) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file so request noise stays out of
	// the application log.
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	statsController := controllers.NewStatsController(db, clock)

	api := r.Group("/api/v1")

	// Public tracking endpoints, fire-and-forget from landing pages.
	tracking := api.Group("")
	tracking.Use(middleware.RateLimitMiddleware(), middleware.BotFilter())
	tracking.POST("/links/:id/trace", statsController.Trace)
	tracking.POST("/landings/:id/track", statsController.TrackView)

	// Owner-facing stats, guarded by tokens from the auth service.
	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.GET("/landings/:id/stats", statsController.Dashboard)
	protected.GET("/links/:id/stats", statsController.LinkStats)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "route not found")
	})

	return r
}
