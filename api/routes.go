package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"backend/api/handlers/knowledge"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/metrics"
)

// SetupRouter 组装 HTTP 路由
func SetupRouter(cfg *config.Config, service knowledge.Service) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(), CORS(), metrics.GinMiddleware())

	// 健康检查与指标不需要认证
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, "memorykeeper")

	askHandler := knowledge.NewAskHandler(service)
	docHandler := knowledge.NewDocumentHandler(service)

	apiGroup := r.Group("/api", auth.Middleware(jwtService))
	{
		apiGroup.POST("/documents", docHandler.Upload)
		apiGroup.GET("/documents", docHandler.List)
		apiGroup.DELETE("/documents/:id", docHandler.Delete)

		apiGroup.POST("/ask", askHandler.Ask)
		apiGroup.GET("/chat/history", askHandler.History)

		apiGroup.GET("/knowledge/stats", askHandler.Stats)
		apiGroup.DELETE("/knowledge", askHandler.Reset)
	}

	return r
}
