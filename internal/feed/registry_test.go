// Package feed 订阅注册表测试
package feed

import (
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"kite-tick-watcher/internal/core/model"
)

func sortedTokens(tokens []uint32) []uint32 {
	out := append([]uint32(nil), tokens...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalTokens(a, b []uint32) bool {
	a, b = sortedTokens(a), sortedTokens(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestRegistry_RoundTrip 测试订阅登记与分组的往返
func TestRegistry_RoundTrip(t *testing.T) {
	r := NewRegistry()

	r.Add([]uint32{1}, model.ModeLTP)
	r.Add([]uint32{2}, model.ModeQuote)

	groups := r.GroupByMode()
	if !equalTokens(groups[model.ModeLTP], []uint32{1}) {
		t.Errorf("ltp 组 = %v, want [1]", groups[model.ModeLTP])
	}
	if !equalTokens(groups[model.ModeQuote], []uint32{2}) {
		t.Errorf("quote 组 = %v, want [2]", groups[model.ModeQuote])
	}
	if len(groups[model.ModeFull]) != 0 {
		t.Errorf("full 组 = %v, want 空", groups[model.ModeFull])
	}

	r.Remove([]uint32{1})
	groups = r.GroupByMode()
	if len(groups[model.ModeLTP]) != 0 {
		t.Errorf("移除后 ltp 组 = %v, want 空", groups[model.ModeLTP])
	}
	if !equalTokens(groups[model.ModeQuote], []uint32{2}) {
		t.Errorf("移除后 quote 组 = %v, want [2]", groups[model.ModeQuote])
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

// TestRegistry_DefaultMode 测试未指定模式归一化为 quote
func TestRegistry_DefaultMode(t *testing.T) {
	r := NewRegistry()
	r.Add([]uint32{10, 20}, "")

	groups := r.GroupByMode()
	if !equalTokens(groups[model.ModeQuote], []uint32{10, 20}) {
		t.Errorf("未指定模式应归入 quote 组, got %v", groups[model.ModeQuote])
	}
}

// TestRegistry_SetSemantics 测试集合语义（重复登记覆盖模式）
func TestRegistry_SetSemantics(t *testing.T) {
	r := NewRegistry()
	r.Add([]uint32{1, 1, 1}, model.ModeLTP)
	if r.Len() != 1 {
		t.Fatalf("重复 token 应只保留一条, Len() = %d", r.Len())
	}

	// 后写覆盖: 同一 token 改为 full
	r.Add([]uint32{1}, model.ModeFull)
	groups := r.GroupByMode()
	if len(groups[model.ModeLTP]) != 0 || !equalTokens(groups[model.ModeFull], []uint32{1}) {
		t.Errorf("模式覆盖失败: ltp=%v full=%v", groups[model.ModeLTP], groups[model.ModeFull])
	}
}

// TestRegistry_GroupPartition 测试分组是当前订阅的一个划分
// 属性: 三组 token 之并等于登记集合，且组间无重叠
func TestRegistry_GroupPartition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	modeOf := func(n uint8) model.Mode {
		switch n % 4 {
		case 0:
			return model.ModeLTP
		case 1:
			return model.ModeQuote
		case 2:
			return model.ModeFull
		default:
			return "" // 未指定
		}
	}

	properties.Property("分组为订阅集合的划分", prop.ForAll(
		func(tokens []uint32, modes []uint8) bool {
			r := NewRegistry()
			expect := make(map[uint32]bool)
			for i, tok := range tokens {
				if tok == 0 {
					continue
				}
				var m model.Mode
				if i < len(modes) {
					m = modeOf(modes[i])
				}
				r.Add([]uint32{tok}, m)
				expect[tok] = true
			}

			groups := r.GroupByMode()
			seen := make(map[uint32]bool)
			total := 0
			for _, toks := range groups {
				for _, tok := range toks {
					if seen[tok] {
						return false // 组间重叠
					}
					seen[tok] = true
					if !expect[tok] {
						return false // 幽灵 token
					}
					total++
				}
			}
			return total == len(expect)
		},
		gen.SliceOf(gen.UInt32()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
