// Package feed 订阅注册表。
package feed

import (
	"sync"

	"kite-tick-watcher/internal/core/model"
)

// Registry 订阅注册表
// 记录每个 instrument token 请求的订阅模式，重连成功后整表回放。
// token 为集合语义（一个 token 仅一条记录，后写覆盖）。
// 应用线程与事件循环可能并发读写，内部用互斥锁保护。
type Registry struct {
	mu sync.Mutex
	// modes token -> 请求模式
	// 空字符串表示订阅时未显式指定模式，回放时归一化为 quote
	modes map[uint32]model.Mode
}

// NewRegistry 创建订阅注册表
func NewRegistry() *Registry {
	return &Registry{
		modes: make(map[uint32]model.Mode),
	}
}

// Add 登记订阅
// 参数 tokens: instrument token 列表
// 参数 mode: 请求模式，空字符串表示未指定
func (r *Registry) Add(tokens []uint32, mode model.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range tokens {
		r.modes[tok] = mode
	}
}

// Remove 移除订阅
// 参数 tokens: instrument token 列表，未登记的 token 忽略
func (r *Registry) Remove(tokens []uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range tokens {
		delete(r.modes, tok)
	}
}

// Len 获取当前登记的 token 数
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modes)
}

// GroupByMode 按模式分组当前订阅
// 未显式指定模式的 token 归入 quote 组。
// 返回的 map 对三种模式均有键（可能为空组），组内顺序不保证。
func (r *Registry) GroupByMode() map[model.Mode][]uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	groups := map[model.Mode][]uint32{
		model.ModeLTP:   nil,
		model.ModeQuote: nil,
		model.ModeFull:  nil,
	}

	for tok, mode := range r.modes {
		if mode == "" {
			mode = model.ModeQuote
		}
		groups[mode] = append(groups[mode], tok)
	}

	return groups
}
