// Package store 维护每个合约的最新 tick 状态。
package store

import (
	"sync"

	"kite-tick-watcher/internal/core/model"
)

// Store 最新 tick 缓存
// 写入发生在行情回调 goroutine，读取来自指标快照等应用线程，
// 内部以读写锁保护。
type Store struct {
	// mu 保护 ticks
	mu sync.RWMutex
	// ticks 按 instrument token 缓存最新 tick
	ticks map[uint32]*model.Tick
}

// New 创建新的 tick 缓存
func New() *Store {
	return &Store{
		ticks: make(map[uint32]*model.Tick),
	}
}

// Update 更新缓存
// 较低粒度的 tick 不会清空此前较高粒度的字段以外的数据——
// 整条覆盖，消费方按 Mode 判断字段有效性。
// 参数 t: 解码后的 tick
func (s *Store) Update(t *model.Tick) {
	if t == nil || t.InstrumentToken == 0 {
		return
	}
	s.mu.Lock()
	s.ticks[t.InstrumentToken] = t
	s.mu.Unlock()
}

// UpdateBatch 批量更新缓存
// 参数 ticks: 一帧解码出的 tick 列表，按线上顺序覆盖
func (s *Store) UpdateBatch(ticks []model.Tick) {
	for i := range ticks {
		s.Update(&ticks[i])
	}
}

// Get 获取指定合约的最新 tick
// 返回值可能为 nil；返回的指针应视为只读。
func (s *Store) Get(token uint32) *model.Tick {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticks[token]
}

// Count 获取已缓存的合约数
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticks)
}

// Tokens 获取已缓存的全部 instrument token（顺序不保证）
func (s *Store) Tokens() []uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := make([]uint32, 0, len(s.ticks))
	for tok := range s.ticks {
		tokens = append(tokens, tok)
	}
	return tokens
}
