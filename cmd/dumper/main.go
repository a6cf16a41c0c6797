// Package main 是行情采集程序的入口点。
// 为每个启用的交易所维持一条 WebSocket 连接，把原始收发消息按分钟轮转写入 gzip 日志，
// 并定期写入订单簿快照，使任意一个文件都可以作为回放起点。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"exchange-dumper/internal/config"
	"exchange-dumper/internal/metrics"
	"exchange-dumper/internal/session"
	"exchange-dumper/internal/supervisor"
	"exchange-dumper/internal/util/backoff"
)

func main() {
	var configPath, only string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.StringVar(&only, "exchange", "", "只运行指定交易所（bitfinex/bitflyer/bitmex）")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if only != "" {
		if err := cfg.Only(only); err != nil {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", err)
			os.Exit(1)
		}
	}

	logger := newLogger(cfg.App)
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Dump.Dir, 0o755); err != nil {
		logger.Error("创建输出目录失败", zap.String("dir", cfg.Dump.Dir), zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出（每条连接写入 end 后返回）
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, reg, logger)
	}

	for _, name := range cfg.EnabledExchanges() {
		t, err := newTarget(cfg, name)
		if err != nil {
			logger.Error("初始化交易所失败", zap.String("exchange", name), zap.Error(err))
			os.Exit(1)
		}
		run := sessionRunner(cfg, t, logger, m.For(name))
		sup := supervisor.New(run, supervisor.Options{
			Exchange: name,
			Backoff:  backoff.New(cfg.Reconnect.Base(), cfg.Reconnect.Max(), cfg.Reconnect.StableAfter()),
			Logger:   logger,
			Metrics:  m.For(name),
		})
		logger.Info("启动采集", zap.String("exchange", name), zap.String("url", t.url))
		g.Go(func() error { return sup.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("采集异常退出", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("关闭完成")
}

// sessionRunner 每次调用创建一条全新的连接会话（频道状态随连接重建）
func sessionRunner(cfg *config.Config, t *target, logger *zap.Logger, em *metrics.Exchange) supervisor.Runner {
	return func(ctx context.Context) error {
		s := session.New(session.Config{
			Exchange:  t.name,
			URL:       t.url,
			Dir:       cfg.Dump.Dir,
			Ext:       cfg.Dump.FileExt,
			NewState:  t.newState,
			Subscribe: t.subscribe(ctx),
			Dial:      session.WebsocketDialer(t.handshake),
			Logger:    logger,
			Metrics:   em,
		})
		err := s.Run(ctx)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("会话 %s: %w", s.ID(), err)
		}
		return err
	}
}

// serveMetrics 启动 Prometheus HTTP 端点，ctx 取消时关闭
func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("指标服务已启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("指标服务异常: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// newLogger 创建日志记录器；配置 log_file 时同时写入按大小轮转的日志文件
func newLogger(app config.AppConfig) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(app.LogLevel); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.Lock(os.Stderr), lvl),
	}
	if app.LogFile != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   app.LogFile,
			MaxSize:    app.LogMaxSizeMB,
			MaxBackups: app.LogMaxBackups,
			MaxAge:     app.LogMaxAgeDays,
			Compress:   app.LogCompress,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileWriter), lvl))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Named(app.Name)
}
