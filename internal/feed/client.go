// Package feed 实现行情 WebSocket 客户端。
// 连接地址: wss://ws.kite.trade/?api_key={key}&access_token={token}
// 行情通道: 二进制多路复用帧（1 字节帧为心跳）
// 控制通道: JSON 文本帧（订阅/退订/模式，入站订单推送与错误）
// 心跳机制: 协议层 ping/pong + 服务端 1 字节保活帧
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"kite-tick-watcher/internal/config"
	"kite-tick-watcher/internal/core/model"
	"kite-tick-watcher/internal/util/backoff"
	"kite-tick-watcher/internal/util/timeutil"
)

// ErrNotConnected 在无活跃连接时调用订阅类方法
// 注册表不会被修改，调用方可在连接建立后重试
var ErrNotConnected = errors.New("feed: 未连接到行情服务器")

// State 连接生命周期状态
type State int32

const (
	// StateDisconnected 未连接
	StateDisconnected State = iota
	// StateConnecting 正在建立连接
	StateConnecting
	// StateConnected 连接已建立
	StateConnected
	// StateReconnecting 正在重连
	StateReconnecting
	// StateClosed 重连次数耗尽，不再自动重试
	StateClosed
)

// String 获取状态的可读名称
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Callbacks 事件回调槽位
// 所有回调均可选，未设置的回调不会被调用。
// 回调在事件处理 goroutine 内同步派发，回调内不应长时间阻塞。
type Callbacks struct {
	// OnConnect 连接建立（含重连）成功后调用
	OnConnect func()
	// OnTicks 收到解码后的行情 tick 列表时调用
	OnTicks func(ticks []model.Tick)
	// OnOrderUpdate 收到订单状态推送时调用
	OnOrderUpdate func(pb model.Postback)
	// OnMessage 收到通用文本消息时调用（参数为原始全文）
	OnMessage func(raw string)
	// OnError 连接异常关闭或服务端/协议错误时调用
	// 控制通道错误的 code 为 0（通道不携带错误码）
	OnError func(code int, message string)
	// OnConnectError 建连或传输层出错时调用
	OnConnectError func(err error)
	// OnTryReconnect 每次重连尝试前调用，参数为当前尝试次数
	OnTryReconnect func(attempt int)
	// OnReconnectFail 重连次数耗尽时调用（每轮重连至多一次）
	OnReconnectFail func()
	// OnClose 连接关闭时调用
	OnClose func(code int, reason string)
}

// Client 行情 WebSocket 客户端
// 解码、控制消息解析与回调派发都发生在 Run 所在的事件 goroutine；
// Subscribe/Unsubscribe/SetMode 可从应用线程调用，内部已串行化。
type Client struct {
	// cfg 行情连接配置（构造后不可变）
	cfg *config.FeedConfig
	// logger 日志记录器
	logger *zap.Logger
	// parser 二进制帧解码器
	parser *Parser
	// registry 订阅注册表
	registry *Registry
	// cb 事件回调槽位
	cb Callbacks

	// conn WebSocket 连接
	conn *websocket.Conn
	// connMu 连接锁，同时串行化控制帧写入
	connMu sync.Mutex

	// state 生命周期状态（可从应用线程读取）
	state atomic.Int32
	// reconnecting 重连标志，独立暴露给外部状态查询
	reconnecting atomic.Bool
	// stopped Stop() 已被调用
	stopped atomic.Bool

	// backoff 重连退避
	backoff *backoff.Backoff
	// tries 本轮重连已尝试次数（仅事件 goroutine 读写）
	tries int

	// lastBeatNs 最后心跳时间（纳秒），1 字节保活帧或 pong 到达时更新
	lastBeatNs atomic.Int64
	// lastMsgNs 最后消息时间（纳秒）
	lastMsgNs atomic.Int64
	// tickCount 解码 tick 计数（用于计算速率）
	tickCount atomic.Int64

	// metrics 连接指标
	metrics ConnectionMetrics
	// metricsMu 指标锁
	metricsMu sync.RWMutex

	// parseErrSampleCount 解析错误计数（用于采样日志）
	parseErrSampleCount atomic.Uint64
}

// NewClient 创建行情客户端
// 参数 cfg: 行情连接配置，构造后不可变
// 参数 cb: 事件回调槽位，必须在 Connect 之前就位
// 参数 logger: 日志记录器
func NewClient(cfg *config.FeedConfig, cb Callbacks, logger *zap.Logger) *Client {
	initial := time.Duration(cfg.Reconnect.InitialDelayMs) * time.Millisecond
	max := time.Duration(cfg.Reconnect.MaxDelayMs) * time.Millisecond

	return &Client{
		cfg:      cfg,
		logger:   logger.Named("feed"),
		parser:   NewParser(),
		registry: NewRegistry(),
		cb:       cb,
		backoff:  backoff.New(initial, max),
	}
}

// Connect 建立 WebSocket 连接
// 成功后重置退避状态、回放订阅注册表并调用 OnConnect。
// 参数 ctx: 上下文，用于取消建连
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	target, err := c.dialURL()
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	timeout := time.Duration(c.cfg.ConnectTimeoutMs) * time.Millisecond
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("连接行情服务器失败: %w", err)
	}

	readTimeout := time.Duration(c.cfg.ReadTimeoutMs) * time.Millisecond
	if readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	conn.SetPongHandler(func(string) error {
		// 协议层 pong 与 1 字节保活帧共用心跳时间戳
		c.lastBeatNs.Store(timeutil.NowNano())
		if readTimeout > 0 {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		return nil
	})

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	// 连接成功: 退避归零，重连标志清除
	c.backoff.Reset()
	c.tries = 0
	c.reconnecting.Store(false)
	c.lastBeatNs.Store(timeutil.NowNano())
	c.setState(StateConnected)

	c.logger.Info("行情连接成功", zap.String("url", c.cfg.URL))

	if c.registry.Len() > 0 {
		c.resubscribe()
	}
	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}

	return nil
}

// dialURL 构造带凭证查询参数的连线地址
func (c *Client) dialURL() (string, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("解析行情地址失败: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("access_token", c.cfg.AccessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run 启动客户端主循环
// 包含读取循环、心跳发送与指标统计；读取循环在调用方 goroutine 内运行，
// 连接关闭且无需重连（或重连耗尽）时返回。
// 参数 ctx: 上下文，用于取消主循环
func (c *Client) Run(ctx context.Context) {
	go c.pingLoop(ctx)
	go c.metricsLoop(ctx)
	c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	readTimeout := time.Duration(c.cfg.ReadTimeoutMs) * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.stopped.Load() {
			return
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !c.handleDisconnect(ctx, err) {
				return
			}
			continue
		}

		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
		c.lastMsgNs.Store(timeutil.NowNano())

		switch msgType {
		case websocket.BinaryMessage:
			c.handleBinary(data)
		case websocket.TextMessage:
			c.handleText(data)
		}
	}
}

// handleBinary 处理入站二进制帧
// 1 字节帧为服务端心跳，只刷新心跳时间戳，不进入解码器
func (c *Client) handleBinary(data []byte) {
	if len(data) == 1 {
		c.lastBeatNs.Store(timeutil.NowNano())
		return
	}

	ticks, err := c.parser.Parse(data)
	if err != nil {
		c.incParseErrorCount()
		c.maybeLogParseError(err, data)
		return
	}
	if len(ticks) == 0 {
		return
	}

	c.tickCount.Add(int64(len(ticks)))
	if c.cb.OnTicks != nil {
		c.cb.OnTicks(ticks)
	}
}

// handleText 处理入站控制消息
// 解析失败通过错误回调上报（code 0），连接保持不变
func (c *Client) handleText(data []byte) {
	ev, err := ParseControl(data)
	if err != nil {
		c.incParseErrorCount()
		c.logger.Warn("解析控制消息失败", zap.Error(err))
		if c.cb.OnError != nil {
			c.cb.OnError(0, err.Error())
		}
		return
	}

	switch ev.Type {
	case messageTypeOrder:
		if c.cb.OnOrderUpdate != nil && ev.Postback != nil {
			c.cb.OnOrderUpdate(*ev.Postback)
		}
	case messageTypeMessage:
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(ev.Raw)
		}
	case messageTypeError:
		if c.cb.OnError != nil {
			c.cb.OnError(0, ev.ErrorText)
		}
	}
}

// handleDisconnect 处理连接断开
// 返回 true 表示已重连成功，读取循环应继续；false 表示循环应退出。
// 关闭码 1000（正常关闭）只触发 OnClose，不重连；
// 其他关闭码先后触发 OnError 与 OnClose，随后在允许时发起重连；
// 非关闭帧的传输层错误触发 OnConnectError 后进入同样的重连路径。
func (c *Client) handleDisconnect(ctx context.Context, err error) bool {
	c.closeConn()

	stopped := c.stopped.Load()

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if stopped || ce.Code == websocket.CloseNormalClosure {
			c.setState(StateDisconnected)
			if c.cb.OnClose != nil {
				c.cb.OnClose(ce.Code, ce.Text)
			}
			return false
		}

		c.logger.Warn("行情连接异常关闭", zap.Int("code", ce.Code), zap.String("reason", ce.Text))
		if c.cb.OnError != nil {
			c.cb.OnError(ce.Code, ce.Text)
		}
		if c.cb.OnClose != nil {
			c.cb.OnClose(ce.Code, ce.Text)
		}
	} else {
		if stopped {
			// Stop() 主动关闭连接导致的读取错误，视为正常关闭
			c.setState(StateDisconnected)
			if c.cb.OnClose != nil {
				c.cb.OnClose(websocket.CloseNormalClosure, "")
			}
			return false
		}

		c.logger.Warn("行情传输错误", zap.Error(err))
		if c.cb.OnConnectError != nil {
			c.cb.OnConnectError(err)
		}
	}

	if !c.cfg.Reconnect.Enabled {
		c.setState(StateDisconnected)
		return false
	}
	if !c.reconnecting.CompareAndSwap(false, true) {
		// 已有重连在进行中
		return false
	}

	c.setState(StateReconnecting)
	return c.runReconnect(ctx)
}

// runReconnect 执行一轮重连
// 每次尝试: 次数加一，超出上限则触发 OnReconnectFail 并终止；
// 否则等待当前退避延迟（随后翻倍封顶），触发 OnTryReconnect 后重试建连。
// 返回 true 表示重连成功。
func (c *Client) runReconnect(ctx context.Context) bool {
	for {
		if ctx.Err() != nil || c.stopped.Load() {
			c.reconnecting.Store(false)
			c.setState(StateDisconnected)
			return false
		}

		c.tries++
		if c.tries > c.cfg.Reconnect.MaxTries {
			c.logger.Error("重连次数耗尽", zap.Int("max_tries", c.cfg.Reconnect.MaxTries))
			if c.cb.OnReconnectFail != nil {
				c.cb.OnReconnectFail()
			}
			c.reconnecting.Store(false)
			c.setState(StateClosed)
			return false
		}

		delay := c.backoff.Next()
		c.logger.Info("准备重连", zap.Int("attempt", c.tries), zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			c.reconnecting.Store(false)
			c.setState(StateDisconnected)
			return false
		case <-time.After(delay):
		}

		if c.cb.OnTryReconnect != nil {
			c.cb.OnTryReconnect(c.tries)
		}
		c.incReconnectCount()

		if err := c.Connect(ctx); err != nil {
			c.logger.Warn("重连失败", zap.Int("attempt", c.tries), zap.Error(err))
			if c.cb.OnConnectError != nil {
				c.cb.OnConnectError(err)
			}
			// Connect 失败会把状态置回 Disconnected，此处仍处于重连轮内
			c.setState(StateReconnecting)
			continue
		}
		return true
	}
}

// Subscribe 订阅合约
// 未显式指定模式，重连回放时按 quote 处理。
// 无活跃连接时返回 ErrNotConnected，注册表不变。
// 参数 tokens: instrument token 列表
func (c *Client) Subscribe(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	data, err := BuildSubscribe(tokens)
	if err != nil {
		return err
	}
	if err := c.send(data); err != nil {
		return err
	}
	c.registry.Add(tokens, "")
	c.logger.Info("订阅请求已发送", zap.Int("tokens", len(tokens)))
	return nil
}

// Unsubscribe 退订合约
// 无活跃连接时返回 ErrNotConnected，注册表不变。
// 参数 tokens: instrument token 列表
func (c *Client) Unsubscribe(tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	data, err := BuildUnsubscribe(tokens)
	if err != nil {
		return err
	}
	if err := c.send(data); err != nil {
		return err
	}
	c.registry.Remove(tokens)
	c.logger.Info("退订请求已发送", zap.Int("tokens", len(tokens)))
	return nil
}

// SetMode 设置合约的订阅模式
// 无活跃连接时返回 ErrNotConnected，注册表不变。
// 参数 mode: 订阅模式（ltp/quote/full）
// 参数 tokens: instrument token 列表
func (c *Client) SetMode(mode model.Mode, tokens []uint32) error {
	if len(tokens) == 0 {
		return nil
	}
	data, err := BuildSetMode(mode, tokens)
	if err != nil {
		return err
	}
	if err := c.send(data); err != nil {
		return err
	}
	c.registry.Add(tokens, mode)
	c.logger.Info("模式设置已发送", zap.String("mode", string(mode)), zap.Int("tokens", len(tokens)))
	return nil
}

// send 发送一条控制文本帧
// 持有连接锁串行化写入；无连接时返回 ErrNotConnected
func (c *Client) send(data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("发送控制请求失败: %w", err)
	}
	return nil
}

// resubscribe 重连成功后回放订阅注册表
// 每个非空模式组发送一条模式设置消息
func (c *Client) resubscribe() {
	groups := c.registry.GroupByMode()
	for _, mode := range []model.Mode{model.ModeLTP, model.ModeQuote, model.ModeFull} {
		tokens := groups[mode]
		if len(tokens) == 0 {
			continue
		}
		data, err := BuildSetMode(mode, tokens)
		if err != nil {
			c.logger.Warn("构造回放请求失败", zap.String("mode", string(mode)), zap.Error(err))
			continue
		}
		if err := c.send(data); err != nil {
			c.logger.Warn("回放订阅失败", zap.String("mode", string(mode)), zap.Error(err))
			continue
		}
		c.logger.Info("订阅已回放", zap.String("mode", string(mode)), zap.Int("tokens", len(tokens)))
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	intervalMs := c.cfg.PingIntervalMs
	if intervalMs <= 0 {
		intervalMs = 3000
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.stopped.Load() {
				return
			}

			c.connMu.Lock()
			conn := c.conn
			if conn == nil {
				c.connMu.Unlock()
				continue
			}

			// 服务端约定 ping 负载为空
			deadline := time.Now().Add(5 * time.Second)
			err := conn.WriteControl(websocket.PingMessage, nil, deadline)
			c.connMu.Unlock()
			if err != nil {
				c.logger.Warn("发送 ping 失败", zap.Error(err))
			}
		}
	}
}

func (c *Client) metricsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastCount int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.stopped.Load() {
				return
			}

			count := c.tickCount.Load()
			tps := float64(count - lastCount)
			lastCount = count

			var msgAgeMs, beatAgeMs int64
			if lastMsg := c.lastMsgNs.Load(); lastMsg > 0 {
				msgAgeMs = timeutil.NanoToMs(timeutil.NowNano() - lastMsg)
			}
			if lastBeat := c.lastBeatNs.Load(); lastBeat > 0 {
				beatAgeMs = timeutil.NanoToMs(timeutil.NowNano() - lastBeat)
			}

			c.metricsMu.Lock()
			c.metrics.TicksPerSec = tps
			c.metrics.LastMessageAgeMs = msgAgeMs
			c.metrics.LastBeatAgeMs = beatAgeMs
			c.metricsMu.Unlock()
		}
	}
}

// Stop 停止客户端
// 若连接存在则发送正常关闭帧并关闭；不会中断进行中的退避等待。
func (c *Client) Stop() {
	c.stopped.Store(true)

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		deadline := time.Now().Add(time.Second)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		_ = c.conn.Close()
		c.conn = nil
	}
	c.logger.Info("行情客户端已停止")
}

func (c *Client) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// State 获取当前生命周期状态（可从任意 goroutine 调用）
func (c *Client) State() State {
	return State(c.state.Load())
}

// IsConnected 检查当前是否有活跃连接
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// IsReconnecting 检查是否处于重连过程中（可从任意 goroutine 调用）
func (c *Client) IsReconnecting() bool {
	return c.reconnecting.Load()
}

// LastBeatTime 获取最后心跳时间
// 1 字节保活帧或协议层 pong 到达时刷新；
// 消费方可结合 IsConnected 判断连接是否静默失活。
func (c *Client) LastBeatTime() time.Time {
	ns := c.lastBeatNs.Load()
	if ns == 0 {
		return time.Time{}
	}
	return timeutil.NanoToTime(ns)
}

// Registry 获取订阅注册表（只读用途）
func (c *Client) Registry() *Registry {
	return c.registry
}

// Metrics 获取连接指标快照
func (c *Client) Metrics() ConnectionMetrics {
	c.metricsMu.RLock()
	defer c.metricsMu.RUnlock()
	return c.metrics
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) incReconnectCount() {
	c.metricsMu.Lock()
	c.metrics.ReconnectCount++
	c.metricsMu.Unlock()
}

func (c *Client) incParseErrorCount() {
	c.metricsMu.Lock()
	c.metrics.ParseErrorCount++
	c.metricsMu.Unlock()
}

// maybeLogParseError 采样记录解码失败的帧头，避免坏流刷盘
// 采样策略：第 1 次与此后每 100 次错误各记录 1 条。
func (c *Client) maybeLogParseError(err error, data []byte) {
	count := c.parseErrSampleCount.Add(1)
	if count != 1 && count%100 != 0 {
		return
	}

	sample := data
	if len(sample) > 64 {
		sample = sample[:64]
	}
	c.logger.Warn("解码行情帧失败（采样）", zap.Error(err), zap.Binary("head", sample), zap.Int("frame_len", len(data)))
}
