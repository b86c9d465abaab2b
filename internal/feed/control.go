// Package feed 控制通道编解码。
// 出站构造订阅/退订/模式设置请求，入站解析订单推送、文本消息与错误。
package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"kite-tick-watcher/internal/core/model"
)

// ErrUnknownMessageType 入站控制消息缺少 type 字段或类型不可识别
var ErrUnknownMessageType = errors.New("feed: 无法识别的控制消息类型")

// BuildSubscribe 构造订阅请求
// 线上格式: {"a":"subscribe","v":[token...]}
// 参数 tokens: 待订阅的 instrument token 列表
func BuildSubscribe(tokens []uint32) ([]byte, error) {
	return marshalRequest(controlRequest{A: actionSubscribe, V: tokens})
}

// BuildUnsubscribe 构造退订请求
// 线上格式: {"a":"unsubscribe","v":[token...]}
// 参数 tokens: 待退订的 instrument token 列表
func BuildUnsubscribe(tokens []uint32) ([]byte, error) {
	return marshalRequest(controlRequest{A: actionUnsubscribe, V: tokens})
}

// BuildSetMode 构造模式设置请求
// 线上格式: {"a":"mode","v":["<mode>",[token...]]}
// 参数 mode: 订阅模式
// 参数 tokens: 应用该模式的 instrument token 列表
func BuildSetMode(mode model.Mode, tokens []uint32) ([]byte, error) {
	if !mode.IsValid() {
		return nil, fmt.Errorf("feed: 非法订阅模式 %q", mode)
	}
	return marshalRequest(controlRequest{A: actionMode, V: []any{mode, tokens}})
}

func marshalRequest(req controlRequest) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化控制请求失败: %w", err)
	}
	return data, nil
}

// ControlEvent 解析后的入站控制消息
// Type 决定哪个负载字段有效
type ControlEvent struct {
	// Type 消息类型: order, message, error
	Type string
	// Postback 订单状态更新（Type == order）
	Postback *model.Postback
	// Raw 原始消息全文（Type == message）
	Raw string
	// ErrorText 服务端错误文本（Type == error）
	ErrorText string
}

// ParseControl 解析入站控制消息
// 要求消息为带 type 字段的 JSON 对象；type 缺失或不可识别时
// 返回 ErrUnknownMessageType，调用方应通过错误回调上报而非断开连接。
// 参数 data: 原始文本帧
func ParseControl(data []byte) (*ControlEvent, error) {
	var env controlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("解析控制消息失败: %w", err)
	}

	switch env.Type {
	case messageTypeOrder:
		var pb model.Postback
		if err := json.Unmarshal(env.Data, &pb); err != nil {
			return nil, fmt.Errorf("解析订单推送失败: %w", err)
		}
		return &ControlEvent{Type: env.Type, Postback: &pb}, nil

	case messageTypeMessage:
		// 消息回调收到的是原始全文，而非 data 字段
		return &ControlEvent{Type: env.Type, Raw: string(data)}, nil

	case messageTypeError:
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			// data 非字符串时退化为原样文本
			text = string(env.Data)
		}
		return &ControlEvent{Type: env.Type, ErrorText: text}, nil

	case "":
		return nil, fmt.Errorf("%w: type 字段缺失", ErrUnknownMessageType)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}
