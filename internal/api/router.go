package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jengzang/loi-backend-go/internal/config"
	"github.com/jengzang/loi-backend-go/internal/handler"
	"github.com/jengzang/loi-backend-go/internal/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter 设置路由
// ctx bounds background work started by the middleware.
func SetupRouter(ctx context.Context, cfg *config.Config, runs handler.RunService, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Metrics())

	// CORS 中间件
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "LOI Backend API is running",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API 路由组
	api := r.Group("/api/v1")
	api.Use(middleware.RateLimit(middleware.NewRateLimiter(ctx, cfg.Server.RateLimit, cfg.Server.RateWindow)))
	if cfg.Server.JWTSecret != "" {
		api.Use(middleware.Auth(cfg.Server.JWTSecret))
	}
	{
		// 分析运行接口
		h := handler.NewRunHandler(runs)
		runGroup := api.Group("/runs")
		{
			runGroup.POST("", h.CreateRun)
			runGroup.GET("", h.ListRuns)
			runGroup.GET("/:id", h.GetRun)
			runGroup.GET("/:id/stages", h.GetStages)
			runGroup.GET("/:id/locations", h.GetLocations)
			runGroup.GET("/:id/artifacts", h.GetArtifacts)
		}
	}

	return r
}
