// Package store tick 缓存测试
package store

import (
	"sort"
	"sync"
	"testing"

	"kite-tick-watcher/internal/core/model"
)

// TestStore_UpdateAndGet 测试最新 tick 覆盖语义
func TestStore_UpdateAndGet(t *testing.T) {
	s := New()

	if s.Get(408065) != nil {
		t.Fatal("空缓存应返回 nil")
	}

	s.Update(&model.Tick{InstrumentToken: 408065, Mode: model.ModeQuote, LastPrice: 1420.5})
	s.Update(&model.Tick{InstrumentToken: 408065, Mode: model.ModeLTP, LastPrice: 1421.0})

	got := s.Get(408065)
	if got == nil {
		t.Fatal("缓存应命中")
	}
	// 整条覆盖: 较低粒度的 tick 也完全替换此前的记录
	if got.Mode != model.ModeLTP || got.LastPrice != 1421.0 {
		t.Errorf("tick = %+v", got)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d, want 1", s.Count())
	}
}

// TestStore_IgnoreInvalid 测试 nil 与零 token 被忽略
func TestStore_IgnoreInvalid(t *testing.T) {
	s := New()
	s.Update(nil)
	s.Update(&model.Tick{InstrumentToken: 0, LastPrice: 1})
	if s.Count() != 0 {
		t.Errorf("Count = %d, want 0", s.Count())
	}
}

// TestStore_UpdateBatch 测试批量更新与 token 枚举
func TestStore_UpdateBatch(t *testing.T) {
	s := New()
	s.UpdateBatch([]model.Tick{
		{InstrumentToken: 1, LastPrice: 10},
		{InstrumentToken: 2, LastPrice: 20},
		{InstrumentToken: 1, LastPrice: 11}, // 同帧内后到覆盖先到
	})

	if s.Count() != 2 {
		t.Fatalf("Count = %d, want 2", s.Count())
	}
	if got := s.Get(1); got.LastPrice != 11 {
		t.Errorf("token 1 LastPrice = %f, want 11", got.LastPrice)
	}

	tokens := s.Tokens()
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	if len(tokens) != 2 || tokens[0] != 1 || tokens[1] != 2 {
		t.Errorf("Tokens = %v", tokens)
	}
}

// TestStore_ConcurrentReadWrite 测试行情回调写入与指标快照读取并发
// 写入发生在行情 goroutine，Count/Get/Tokens 来自应用线程；
// 在 -race 下运行验证读写锁保护。
func TestStore_ConcurrentReadWrite(t *testing.T) {
	s := New()

	const rounds = 1000
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			s.UpdateBatch([]model.Tick{
				{InstrumentToken: uint32(i%16 + 1), LastPrice: float64(i)},
				{InstrumentToken: uint32(i%16 + 17), LastPrice: float64(i)},
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_ = s.Count()
			_ = s.Get(uint32(i%32 + 1))
			_ = s.Tokens()
		}
	}()

	wg.Wait()
	if s.Count() != 32 {
		t.Errorf("Count = %d, want 32", s.Count())
	}
}
