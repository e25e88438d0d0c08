package handler

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig configures the HTTP router.
type RouterConfig struct {
	ServiceName  string
	AllowOrigins []string
	// RateLimiter throttles seller writes when set.
	RateLimiter *SellerRateLimiter
}

// NewRouter builds the gin engine serving every progression route.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))

	if len(cfg.AllowOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", h.Healthz)

	api := router.Group("/api/v1")
	api.POST("/sellers", h.RegisterSeller)
	api.GET("/leaderboard", h.GetLeaderboard)

	seller := api.Group("/sellers/:sellerId")
	if cfg.RateLimiter != nil {
		seller.Use(cfg.RateLimiter.Middleware())
	}
	{
		seller.GET("/progression", h.GetProgressionState)
		seller.POST("/xp", h.AwardXP)
		seller.POST("/lessons/:lessonId/complete", h.CompleteLesson)
		seller.POST("/rank/advance", h.AdvanceRank)
		seller.POST("/logins", h.ProcessLogin)
		seller.POST("/activities", h.ProcessActivity)
		seller.POST("/challenges/evaluate", h.EvaluateChallenges)
		seller.PUT("/devices/:deviceId/acks/:flag", h.AcknowledgeFlag)
		seller.GET("/devices/:deviceId/acks/:flag", h.GetAcknowledgment)
	}

	return router
}
