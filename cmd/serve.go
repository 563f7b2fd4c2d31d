package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classbazz-backend/config"
	"classbazz-backend/internal/api/feed"
	"classbazz-backend/internal/api/gateway"
	"classbazz-backend/internal/api/media"
	"classbazz-backend/internal/api/user"
	"classbazz-backend/internal/metrics"
	"classbazz-backend/internal/presence"
	"classbazz-backend/internal/realtime"
	"classbazz-backend/internal/server"
	"classbazz-backend/internal/service"
	"classbazz-backend/internal/storage"
	"classbazz-backend/internal/util"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "serve",
		Short:        "启动 HTTP 和 websocket 服务",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 初始化配置
	config.Init()
	cfg := config.AppConfig

	// 初始化日志
	util.InitLogger(cfg.LogLevel)
	defer util.Logger.Sync()

	util.Logger.Info("应用程序启动", zap.String("driver", cfg.DBDriver))

	// 注册自定义验证器
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		util.RegisterValidations(v)
	}

	postRepo, storeCloser, err := openPostRepository(ctx, cfg)
	if err != nil {
		util.Logger.Fatal("初始化存储失败", zap.Error(err))
	}

	uploader, err := storage.NewUploader(ctx, cfg)
	if err != nil {
		util.Logger.Fatal("初始化上传后端失败", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	hub := realtime.NewHub(realtime.NewZapLoggerAdapter(util.Logger))
	registry := presence.NewRegistry()
	syncService := service.NewSyncService(postRepo, registry, hub, m, service.SyncOptions{
		MaxRetries: cfg.StoreMaxRetries,
	})

	router := server.NewRouter(cfg, server.Handlers{
		Auth:   user.NewAuthHandler(util.GenerateToken),
		Feed:   feed.NewFeedHandler(syncService, cfg.RecentPostsLimit),
		Upload: media.NewUploadHandler(uploader, cfg.UploadFolder, cfg.UploadMaxBytes),
		Gateway: gateway.NewGateway(syncService, hub, util.ValidateToken, gateway.Options{
			AllowedOrigin: cfg.ClientOrigin,
			SendBuffer:    cfg.WSSendBuffer,
			RecentLimit:   cfg.RecentPostsLimit,
		}),
	}, util.ValidateToken, m, reg)

	srv := server.New(cfg.Port, router, hub, storeCloser)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			util.Logger.Error("服务器异常退出", zap.Error(err))
			return err
		}
	case <-quit:
	}
	util.Logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		util.Logger.Error("关闭服务器时出错", zap.Error(err))
		return err
	}

	util.Logger.Info("服务器已优雅关闭")
	return nil
}
