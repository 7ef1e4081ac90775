package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/amqp-engine/internal/config"
	"github.com/taoyao-code/amqp-engine/internal/gateway"
	"github.com/taoyao-code/amqp-engine/internal/health"
	"github.com/taoyao-code/amqp-engine/internal/httpserver"
	"github.com/taoyao-code/amqp-engine/internal/logging"
	"github.com/taoyao-code/amqp-engine/internal/metrics"
	"github.com/taoyao-code/amqp-engine/internal/tcpserver"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 AMQP 网关",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(configPath)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径 (默认: $AMQP_CONFIG 或 ./configs/example.yaml)")
}

func serve(path string) error {
	// 1) 加载配置
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return err
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)

	// 4) TCP 网关
	gw := gateway.New(cfg.AMQP, cfg.TCP.ReadTimeout, log, appm)
	tcpSrv := tcpserver.New(cfg.TCP, log)
	tcpSrv.SetConnHandler(gw.HandleConn)
	tcpSrv.SetMetricsCallbacks(
		appm.TCPAccepted.Inc,
		func(reason string) { appm.TCPRejected.WithLabelValues(reason).Inc() },
		func(n int) { appm.TCPBytesReceived.Add(float64(n)) },
		func(n int) { appm.TCPBytesSent.Add(float64(n)) },
	)

	// 5) 健康检查与 HTTP
	ready := health.New()
	agg := health.NewAggregator(ready, health.NewTCPChecker(tcpSrv))
	var metricsHandler http.Handler
	if cfg.Metrics.Enable {
		metricsHandler = metrics.Handler(reg)
	}
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, agg)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()
	if err := tcpSrv.Start(); err != nil {
		return err
	}
	ready.SetTCPReady(true)
	log.Info("amqp gateway started",
		zap.String("tcp", tcpSrv.Addr().String()),
		zap.String("http", cfg.HTTP.Addr),
		zap.String("container_id", gw.ContainerID()))

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	ready.SetTCPReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	return tcpSrv.Shutdown(ctx)
}
