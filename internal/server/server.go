package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"classbazz-backend/config"
	"classbazz-backend/internal/api/feed"
	"classbazz-backend/internal/api/gateway"
	"classbazz-backend/internal/api/media"
	"classbazz-backend/internal/api/user"
	"classbazz-backend/internal/metrics"
	"classbazz-backend/internal/middleware"
	"classbazz-backend/internal/util"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handlers 路由用到的全部处理器
type Handlers struct {
	Auth    *user.AuthHandler
	Feed    *feed.FeedHandler
	Upload  *media.UploadHandler
	Gateway *gateway.Gateway
}

// NewRouter 注册中间件和路由
func NewRouter(cfg config.Config, h Handlers, verify middleware.TokenVerifier, m *metrics.Metrics, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.ErrorMonitorMiddleware(m))
	r.Use(middleware.RecoveryMiddleware())

	// 配置 CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.ClientOrigin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Length",
		"Content-Type",
		"Authorization",
	}
	r.Use(cors.New(corsConfig))

	if cfg.UploadBackend == config.UploadLocal {
		r.Static("/uploads", cfg.LocalStoragePath)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/ws", h.Gateway.ServeWS)

	api := r.Group("/api")
	{
		api.POST("/token", h.Auth.IssueToken)
		api.GET("/posts", h.Feed.ListPosts)
		api.GET("/stats", h.Feed.GetStats)
		api.POST("/upload", h.Upload.Upload)

		// 需要认证的路由
		authorized := api.Group("/")
		authorized.Use(middleware.AuthMiddleware(verify))
		{
			authorized.POST("/posts/:id/reaction", h.Feed.ReactToPost)
			authorized.POST("/posts/:id/comments/:commentId/reaction", h.Feed.ReactToComment)
		}
	}

	if cfg.Debug {
		for _, route := range r.Routes() {
			util.Logger.Debug("路由",
				zap.String("method", route.Method),
				zap.String("path", route.Path))
		}
	}

	return r
}

// CloserFunc 把普通函数当作 io.Closer
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// Server HTTP 服务以及关闭时需要一并释放的资源
type Server struct {
	srv     *http.Server
	closers []io.Closer
}

// New closers 按传入顺序在 HTTP 服务停止后关闭
func New(addr string, handler http.Handler, closers ...io.Closer) *Server {
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		closers: closers,
	}
}

// Start 阻塞运行，正常关闭时返回 nil
func (s *Server) Start() error {
	util.Logger.Info("服务器正在启动", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown 停止接收请求并释放资源，汇总所有关闭错误
func (s *Server) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if err := s.srv.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
