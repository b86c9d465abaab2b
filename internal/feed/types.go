// Package feed 定义行情控制通道消息类型与连接指标。
package feed

import (
	"encoding/json"
)

// 控制通道动作常量
// 出站控制消息的 a 字段固定取这三个值
const (
	// actionSubscribe 订阅合约
	actionSubscribe = "subscribe"
	// actionUnsubscribe 取消订阅合约
	actionUnsubscribe = "unsubscribe"
	// actionMode 设置订阅模式
	actionMode = "mode"
)

// 入站控制消息类型常量
const (
	// messageTypeOrder 订单状态推送
	messageTypeOrder = "order"
	// messageTypeMessage 通用文本消息
	messageTypeMessage = "message"
	// messageTypeError 服务端错误
	messageTypeError = "error"
)

// controlRequest 出站控制消息
// 线上格式: {"a": "<action>", "v": <value>}，无版本字段
type controlRequest struct {
	// A 动作类型: subscribe, unsubscribe, mode
	A string `json:"a"`
	// V 动作参数
	// subscribe/unsubscribe: token 数组
	// mode: [模式字符串, token 数组]
	V any `json:"v"`
}

// controlEnvelope 入站控制消息信封
// 线上格式: {"type": "<type>", "data": <payload>}
type controlEnvelope struct {
	// Type 消息类型: order, message, error
	Type string `json:"type"`
	// Data 消息负载，形状由 Type 决定
	Data json.RawMessage `json:"data"`
}

// ConnectionMetrics 连接质量指标
type ConnectionMetrics struct {
	// ReconnectCount 重连次数
	ReconnectCount int64 `json:"reconnect_count"`
	// ParseErrorCount 解析错误次数（二进制帧与控制消息）
	ParseErrorCount int64 `json:"parse_error_count"`
	// TicksPerSec 每秒解码 tick 数
	TicksPerSec float64 `json:"ticks_per_sec"`
	// LastMessageAgeMs 最后消息距今时间（毫秒）
	LastMessageAgeMs int64 `json:"last_message_age_ms"`
	// LastBeatAgeMs 最后心跳距今时间（毫秒）
	LastBeatAgeMs int64 `json:"last_beat_age_ms"`
}
