// Package feed 行情二进制帧解码。
// 帧格式: uint16 包数量 + N 组 (uint16 长度前缀 + 子包负载)，全部大端。
// 子包按字节长度区分记录形状:
//
//	8   字节: 仅最新价 (ltp)
//	28  字节: 指数 quote（无时间戳）
//	32  字节: 指数 full（含时间戳）
//	44  字节: quote 全字段（无深度）
//	184 字节: full 全字段 + 10 档深度
package feed

import (
	"errors"
	"fmt"

	"kite-tick-watcher/internal/core/model"
	"kite-tick-watcher/internal/util/binread"
)

// ErrMalformedFrame 帧声明的包数量或长度前缀超出实际字节数
// 整帧丢弃，不产生任何 tick
var ErrMalformedFrame = errors.New("feed: 行情帧格式错误")

// 子包长度类别（字节）
const (
	packetLenLTP       = 8
	packetLenIndex     = 28
	packetLenIndexFull = 32
	packetLenQuote     = 44
	packetLenFull      = 184
)

// 184 字节 full 包的深度区布局
const (
	depthStart  = 64
	depthStride = 12
	depthLevels = 10
)

// Parser 行情二进制帧解码器
// 无内部状态，可安全复用
type Parser struct{}

// NewParser 创建行情帧解码器
func NewParser() *Parser {
	return &Parser{}
}

// Parse 解码一个行情帧
// 参数 frame: 完整的入站二进制帧（1 字节心跳帧由上层处理，不应传入）
// 返回: 按线上顺序排列的 tick 列表（可能为空）
// 声明长度越过帧尾时返回 ErrMalformedFrame，整帧丢弃
func (p *Parser) Parse(frame []byte) ([]model.Tick, error) {
	r := binread.New(frame)

	count, err := r.Uint16At(0)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取包数量: %v", ErrMalformedFrame, err)
	}

	ticks := make([]model.Tick, 0, count)
	off := 2
	for i := 0; i < int(count); i++ {
		length, err := r.Uint16At(off)
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 个长度前缀越界", ErrMalformedFrame, i+1)
		}
		off += 2

		payload, err := r.Bytes(off, int(length))
		if err != nil {
			return nil, fmt.Errorf("%w: 第 %d 个子包声明 %d 字节越过帧尾", ErrMalformedFrame, i+1, length)
		}
		off += int(length)

		tick, ok, err := p.parsePacket(payload)
		if err != nil {
			return nil, err
		}
		if ok {
			ticks = append(ticks, tick)
		}
	}

	return ticks, nil
}

// parsePacket 解码单个子包
// 长度不属于任何已知类别时返回 ok=false（子包跳过，帧内其余子包不受影响）
func (p *Parser) parsePacket(payload []byte) (model.Tick, bool, error) {
	f := newFieldReader(payload)

	token := f.uint32At(0)
	segment := model.Segment(token)
	divisor := model.PriceDivisor(segment)

	tick := model.Tick{
		InstrumentToken: token,
		IsTradable:      segment != model.SegmentIndices,
	}

	switch len(payload) {
	case packetLenLTP:
		tick.Mode = model.ModeLTP
		tick.LastPrice = f.priceAt(4, divisor)

	case packetLenIndex, packetLenIndexFull:
		// 指数包: OHLC 顺序为 高/低/开/收，净变动直接取线上值
		if len(payload) == packetLenIndex {
			tick.Mode = model.ModeQuote
		} else {
			tick.Mode = model.ModeFull
		}
		tick.LastPrice = f.priceAt(4, divisor)
		tick.OHLC.High = f.priceAt(8, divisor)
		tick.OHLC.Low = f.priceAt(12, divisor)
		tick.OHLC.Open = f.priceAt(16, divisor)
		tick.OHLC.Close = f.priceAt(20, divisor)
		tick.NetChange = f.priceAt(24, divisor)
		if len(payload) == packetLenIndexFull {
			tick.Timestamp = f.int32At(28)
		}

	case packetLenQuote, packetLenFull:
		if len(payload) == packetLenQuote {
			tick.Mode = model.ModeQuote
		} else {
			tick.Mode = model.ModeFull
		}
		tick.LastPrice = f.priceAt(4, divisor)
		tick.LastTradedQuantity = f.int32At(8)
		tick.AverageTradePrice = f.priceAt(12, divisor)
		tick.VolumeTraded = f.int32At(16)
		tick.TotalBuyQuantity = f.int32At(20)
		tick.TotalSellQuantity = f.int32At(24)
		tick.OHLC.Open = f.priceAt(28, divisor)
		tick.OHLC.High = f.priceAt(32, divisor)
		tick.OHLC.Low = f.priceAt(36, divisor)
		tick.OHLC.Close = f.priceAt(40, divisor)

		// 净变动由最新价与昨收推导；昨收为 0（如盘前合约）时定义为 0
		if tick.OHLC.Close != 0 {
			tick.NetChange = (tick.LastPrice - tick.OHLC.Close) * 100 / tick.OHLC.Close
		}

		if len(payload) == packetLenFull {
			tick.LastTradeTime = f.int32At(44)
			tick.OI = f.int32At(48)
			tick.OIDayHigh = f.int32At(52)
			tick.OIDayLow = f.int32At(56)
			tick.Timestamp = f.int32At(60)

			// 10 档深度: 前 5 档买盘，后 5 档卖盘，均保持线上顺序
			for i := 0; i < depthLevels; i++ {
				base := depthStart + i*depthStride
				level := model.DepthLevel{
					Quantity: f.int32At(base),
					Price:    f.priceAt(base+4, divisor),
					Orders:   f.int16At(base + 8),
				}
				if i < 5 {
					tick.Depth.Buy = append(tick.Depth.Buy, level)
				} else {
					tick.Depth.Sell = append(tick.Depth.Sell, level)
				}
			}
		}

	default:
		// 未知长度类别，子包无可用字段，跳过
		return model.Tick{}, false, nil
	}

	if err := f.Err(); err != nil {
		return model.Tick{}, false, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return tick, true, nil
}

// fieldReader 累积错误的字段读取器
// 首个越界错误被记录后，后续读取返回零值，
// 调用方在全部字段读取完后统一检查 Err()。
type fieldReader struct {
	r   *binread.Reader
	err error
}

func newFieldReader(buf []byte) *fieldReader {
	return &fieldReader{r: binread.New(buf)}
}

func (f *fieldReader) uint32At(off int) uint32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.Uint32At(off)
	if err != nil {
		f.err = err
		return 0
	}
	return v
}

func (f *fieldReader) int32At(off int) int32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.Int32At(off)
	if err != nil {
		f.err = err
		return 0
	}
	return v
}

func (f *fieldReader) int16At(off int) int16 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.Int16At(off)
	if err != nil {
		f.err = err
		return 0
	}
	return v
}

// priceAt 读取 int32 并按分段除数缩放
func (f *fieldReader) priceAt(off int, divisor float64) float64 {
	return float64(f.int32At(off)) / divisor
}

// Err 获取首个读取错误
func (f *fieldReader) Err() error {
	return f.err
}
