// Package main 是行情观察器的入口点。
// 观察器维护到行情服务器的长连接，按配置订阅合约，
// 将解码后的 tick 与连接质量指标以 JSONL 形式落盘。
//
// 凭证通过环境变量提供（支持 .env 文件），不写入配置文件。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"kite-tick-watcher/internal/config"
	"kite-tick-watcher/internal/core/model"
	"kite-tick-watcher/internal/core/store"
	"kite-tick-watcher/internal/feed"
	"kite-tick-watcher/internal/output/jsonl"
	"kite-tick-watcher/internal/util/timeutil"
)

// metricsSnapshot 周期性落盘的指标快照
type metricsSnapshot struct {
	// TsUnixNs 指标采集时间（纳秒）
	TsUnixNs int64 `json:"ts_unix_ns"`
	// State 连接状态
	State string `json:"state"`
	// Reconnecting 是否处于重连中
	Reconnecting bool `json:"reconnecting"`
	// LastBeatUnixNs 最后心跳时间（纳秒），0 表示尚未收到
	LastBeatUnixNs int64 `json:"last_beat_unix_ns"`
	// Feed 连接质量指标
	Feed feed.ConnectionMetrics `json:"feed"`
	// Instruments 已收到行情的合约数
	Instruments int `json:"instruments"`
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 可选，缺失时静默跳过
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "加载 .env 失败: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ResolveCredentials(); err != nil {
		fmt.Fprintf(os.Stderr, "解析行情凭证失败: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.App.LogLevel, cfg.App.LogFile)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 捕获 SIGINT/SIGTERM，触发优雅退出
	sigCh := make(chan os.Signal, 2)
	ossignal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("收到退出信号，开始优雅关闭")
		cancel()
	}()

	var ticksWriter *jsonl.Writer
	var metricsWriter *jsonl.Writer
	if cfg.Output.TicksEnabled {
		ticksWriter, err = jsonl.NewWriter(fmt.Sprintf("%s/ticks.jsonl", cfg.Output.Dir), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建 ticks writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}
	if cfg.Output.MetricsEnabled {
		metricsWriter, err = jsonl.NewWriter(fmt.Sprintf("%s/metrics.jsonl", cfg.Output.Dir), cfg.Output.BufferSize)
		if err != nil {
			logger.Error("创建 metrics writer 失败", zap.Error(err))
			os.Exit(1)
		}
	}

	tickStore := store.New()

	callbacks := feed.Callbacks{
		OnConnect: func() {
			logger.Info("行情连接就绪")
		},
		OnTicks: func(ticks []model.Tick) {
			tickStore.UpdateBatch(ticks)
			if ticksWriter != nil {
				for i := range ticks {
					_ = ticksWriter.Write(&ticks[i])
				}
			}
		},
		OnOrderUpdate: func(pb model.Postback) {
			logger.Info("订单状态更新",
				zap.String("order_id", pb.OrderID),
				zap.String("status", pb.Status),
				zap.String("tradingsymbol", pb.TradingSymbol))
		},
		OnMessage: func(raw string) {
			logger.Info("服务端消息", zap.String("raw", raw))
		},
		OnError: func(code int, message string) {
			logger.Warn("行情错误", zap.Int("code", code), zap.String("message", message))
		},
		OnConnectError: func(err error) {
			logger.Warn("行情建连错误", zap.Error(err))
		},
		OnTryReconnect: func(attempt int) {
			logger.Info("正在尝试重连", zap.Int("attempt", attempt))
		},
		OnReconnectFail: func() {
			logger.Error("重连失败，退出观察器")
			cancel()
		},
		OnClose: func(code int, reason string) {
			logger.Info("行情连接关闭", zap.Int("code", code), zap.String("reason", reason))
		},
	}

	client := feed.NewClient(&cfg.Feed, callbacks, logger)

	startCtx, startCancel := context.WithTimeout(ctx, 10*time.Second)
	defer startCancel()
	if err := client.Connect(startCtx); err != nil {
		logger.Error("行情连接失败", zap.Error(err))
		os.Exit(1)
	}

	if err := subscribeConfigured(client, cfg.Instruments); err != nil {
		logger.Error("订阅失败", zap.Error(err))
		os.Exit(1)
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		client.Run(ctx)
	}()

	metricsInterval := time.Duration(cfg.Output.MetricsIntervalMs) * time.Millisecond
	metricsTicker := time.NewTicker(metricsInterval)
	defer metricsTicker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-runDone:
			// 读取循环已退出（正常关闭或重连耗尽）
			break loop
		case <-metricsTicker.C:
			if metricsWriter == nil {
				continue
			}
			_ = metricsWriter.Write(snapshot(client, tickStore))
			_ = metricsWriter.Flush()
		}
	}

	// 输出最后一条指标快照（便于离线复盘）
	if metricsWriter != nil {
		_ = metricsWriter.Write(snapshot(client, tickStore))
		_ = metricsWriter.Flush()
	}

	logger.Info("本次会话收到行情的合约",
		zap.Int("count", tickStore.Count()),
		zap.Uint32s("tokens", tickStore.Tokens()))

	// 优雅关闭（10s 超时）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		client.Stop()
		if ticksWriter != nil {
			_ = ticksWriter.Close()
		}
		if metricsWriter != nil {
			_ = metricsWriter.Close()
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Warn("关闭超时，强制退出")
	case <-done:
		logger.Info("关闭完成")
	}
}

// subscribeConfigured 按配置订阅合约
// 先整体发送订阅请求，再按配置的模式分组设置模式；
// 未配置模式的合约保持服务端默认（回放时按 quote 处理）。
func subscribeConfigured(client *feed.Client, instruments []config.InstrumentConfig) error {
	if len(instruments) == 0 {
		return nil
	}

	all := make([]uint32, 0, len(instruments))
	byMode := make(map[model.Mode][]uint32)
	for _, inst := range instruments {
		all = append(all, inst.Token)
		if inst.Mode != "" {
			mode := model.Mode(strings.ToLower(inst.Mode))
			byMode[mode] = append(byMode[mode], inst.Token)
		}
	}

	if err := client.Subscribe(all); err != nil {
		return err
	}
	for _, mode := range []model.Mode{model.ModeLTP, model.ModeQuote, model.ModeFull} {
		tokens := byMode[mode]
		if len(tokens) == 0 {
			continue
		}
		if err := client.SetMode(mode, tokens); err != nil {
			return err
		}
	}
	return nil
}

func snapshot(client *feed.Client, tickStore *store.Store) metricsSnapshot {
	var lastBeatNs int64
	if beat := client.LastBeatTime(); !beat.IsZero() {
		lastBeatNs = beat.UnixNano()
	}
	return metricsSnapshot{
		TsUnixNs:       timeutil.NowNano(),
		State:          client.State().String(),
		Reconnecting:   client.IsReconnecting(),
		LastBeatUnixNs: lastBeatNs,
		Feed:           client.Metrics(),
		Instruments:    tickStore.Count(),
	}
}

func newLogger(level, file string) *zap.Logger {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(level); err != nil {
		lvl = zapcore.InfoLevel
	}

	if file == "" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}

	// 指定日志文件时使用滚动写入，避免长时间运行撑爆磁盘
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     7, // 天
		Compress:   true,
	})
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, lvl)
	return zap.New(core)
}
