// Package backoff 实现指数退避重连机制。
// 用于行情 WebSocket 断线重连时的延迟计算，避免频繁重连导致服务端拒绝。
// 协议约定延迟序列固定（初始值逐次翻倍，封顶于最大值），因此不加抖动。
package backoff

import (
	"time"
)

// Backoff 指数退避计算器
// 每次调用 Next() 返回本次重试应等待的时间，随后内部延迟翻倍。
// 延迟序列单调不减，达到最大值后保持恒定；连接成功后必须 Reset。
type Backoff struct {
	// initial 初始等待时间
	initial time.Duration
	// max 最大等待时间
	max time.Duration
	// delay 下一次 Next() 返回的等待时间
	delay time.Duration
	// attempt 当前重试次数
	attempt int
}

// New 创建新的退避计算器
// 参数 initial: 初始等待时间（协议默认 2s）
// 参数 max: 最大等待时间（协议默认 60s）
func New(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{
		initial: initial,
		max:     max,
		delay:   initial,
	}
}

// Next 获取本次重试的等待时间并推进内部状态
// 返回序列: initial, initial*2, initial*4, ... 封顶于 max
func (b *Backoff) Next() time.Duration {
	delay := b.delay

	// 翻倍并封顶，供下次调用使用
	next := b.delay * 2
	if next > b.max {
		next = b.max
	}
	b.delay = next
	b.attempt++

	return delay
}

// Reset 重置退避计算器
// 在连接成功后调用，延迟回到初始值，重试次数归零
func (b *Backoff) Reset() {
	b.delay = b.initial
	b.attempt = 0
}

// Attempt 获取当前重试次数
func (b *Backoff) Attempt() int {
	return b.attempt
}
