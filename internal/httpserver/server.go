package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/amqp-engine/internal/config"
	"github.com/taoyao-code/amqp-engine/internal/health"
)

// Server HTTP 服务封装（探针与指标，不承载业务）
type Server struct {
	srv *http.Server
}

// New 创建 Gin + HTTP Server。
// metricsHandler 为 nil 时不暴露指标；agg 不为 nil 时注册 /health 详细报告，并作为 /readyz 的判定依据。
func New(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, agg *health.Aggregator) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if agg == nil || agg.Ready(c.Request.Context()) {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if agg != nil {
		health.RegisterHTTPRoutes(r, agg)
	}
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if metricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	return &Server{srv: &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}}
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
