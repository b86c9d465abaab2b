// Package model 定义行情客户端使用的核心数据结构。
// 包含行情 Tick、盘口深度、订阅模式、市场分段常量等核心类型。
package model

import (
	"time"
)

// Mode 订阅/行情粒度模式
// 取值为控制通道的线上字符串，发送与接收共用
type Mode string

const (
	// ModeLTP 最小粒度，仅最新成交价
	ModeLTP Mode = "ltp"
	// ModeQuote 报价粒度，含量价统计与 OHLC
	ModeQuote Mode = "quote"
	// ModeFull 完整粒度，含时间戳、持仓量与五档深度
	ModeFull Mode = "full"
)

// IsValid 检查模式是否为合法的线上取值
func (m Mode) IsValid() bool {
	return m == ModeLTP || m == ModeQuote || m == ModeFull
}

// 市场分段常量
// instrument token 的低字节编码市场分段。
// 只有 SegmentCDS（价格缩放）与 SegmentIndices（不可交易）影响解码逻辑，
// 其余常量用于消费方识别 token 来源。
const (
	// SegmentNSE NSE 股票
	SegmentNSE = 1
	// SegmentNFO NSE 期货期权
	SegmentNFO = 2
	// SegmentCDS 货币衍生品，价格除数为 10000000
	SegmentCDS = 3
	// SegmentBSE BSE 股票
	SegmentBSE = 4
	// SegmentBFO BSE 期货期权
	SegmentBFO = 5
	// SegmentBSECDS BSE 货币衍生品
	SegmentBSECDS = 6
	// SegmentMCX MCX 商品
	SegmentMCX = 7
	// SegmentMCXSX MCX 股票
	SegmentMCXSX = 8
	// SegmentIndices 指数，不可交易
	SegmentIndices = 9
)

// Segment 提取 instrument token 低字节中的市场分段编码
// 参数 token: 32 位 instrument token
func Segment(token uint32) int {
	return int(token & 0xFF)
}

// PriceDivisor 获取分段对应的价格除数
// 货币衍生品分段为 10000000，其余分段为 100
func PriceDivisor(segment int) float64 {
	if segment == SegmentCDS {
		return 10000000.0
	}
	return 100.0
}

// OHLC 当日开高低收参考价
type OHLC struct {
	// Open 开盘价
	Open float64 `json:"open"`
	// High 最高价
	High float64 `json:"high"`
	// Low 最低价
	Low float64 `json:"low"`
	// Close 昨收价
	Close float64 `json:"close"`
}

// DepthLevel 盘口深度档位
type DepthLevel struct {
	// Quantity 档位数量
	Quantity int32 `json:"quantity"`
	// Price 档位价格
	Price float64 `json:"price"`
	// Orders 档位订单数
	Orders int16 `json:"orders"`
}

// MarketDepth 五档盘口快照
// Buy/Sell 均按线上顺序排列（买一在前）
type MarketDepth struct {
	// Buy 买盘五档
	Buy []DepthLevel `json:"buy,omitempty"`
	// Sell 卖盘五档
	Sell []DepthLevel `json:"sell,omitempty"`
}

// Tick 一条解码后的行情更新
// Mode 表示本条 tick 实际携带的粒度（由包长决定，而非订阅请求），
// 未携带的字段保持零值，消费方必须先判断 Mode 再读取对应字段。
type Tick struct {
	// Mode 本条 tick 的实际粒度
	Mode Mode `json:"mode"`
	// InstrumentToken 合约唯一标识，低字节为市场分段
	InstrumentToken uint32 `json:"instrument_token"`
	// IsTradable 是否可交易（指数分段为 false）
	IsTradable bool `json:"is_tradable"`

	// LastPrice 最新成交价（所有模式）
	LastPrice float64 `json:"last_price"`
	// NetChange 相对昨收的净变动
	// 指数包直接取线上值；quote/full 包由 (LastPrice-Close)*100/Close 计算
	NetChange float64 `json:"net_change"`
	// OHLC 当日开高低收
	OHLC OHLC `json:"ohlc"`

	// LastTradedQuantity 最新成交数量（quote/full）
	LastTradedQuantity int32 `json:"last_traded_quantity,omitempty"`
	// AverageTradePrice 当日成交均价（quote/full）
	AverageTradePrice float64 `json:"average_trade_price,omitempty"`
	// VolumeTraded 当日成交量（quote/full）
	VolumeTraded int32 `json:"volume_traded,omitempty"`
	// TotalBuyQuantity 买方委托总量（quote/full）
	TotalBuyQuantity int32 `json:"total_buy_quantity,omitempty"`
	// TotalSellQuantity 卖方委托总量（quote/full）
	TotalSellQuantity int32 `json:"total_sell_quantity,omitempty"`

	// LastTradeTime 最新成交时间（Unix 秒，仅 full）
	LastTradeTime int32 `json:"last_trade_time,omitempty"`
	// OI 持仓量（仅 full）
	OI int32 `json:"oi,omitempty"`
	// OIDayHigh 当日持仓量最高值（仅 full）
	OIDayHigh int32 `json:"oi_day_high,omitempty"`
	// OIDayLow 当日持仓量最低值（仅 full）
	OIDayLow int32 `json:"oi_day_low,omitempty"`
	// Timestamp 交易所时间戳（Unix 秒，指数 full 与 full）
	Timestamp int32 `json:"timestamp,omitempty"`
	// Depth 五档盘口（仅 full）
	Depth MarketDepth `json:"depth,omitempty"`
}

// LastTradeAt 获取最新成交时间的 time.Time 表示
// 若无成交时间返回零值
func (t *Tick) LastTradeAt() time.Time {
	if t.LastTradeTime == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t.LastTradeTime), 0)
}

// ExchangeTime 获取交易所时间戳的 time.Time 表示
// 若无时间戳返回零值
func (t *Tick) ExchangeTime() time.Time {
	if t.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t.Timestamp), 0)
}

// Postback 控制通道推送的订单状态更新
// 字段与服务端 order postback JSON 一一对应
type Postback struct {
	// OrderID 订单号
	OrderID string `json:"order_id"`
	// ExchangeOrderID 交易所订单号
	ExchangeOrderID string `json:"exchange_order_id"`
	// PlacedBy 下单账户
	PlacedBy string `json:"placed_by"`
	// Status 订单状态
	Status string `json:"status"`
	// StatusMessage 状态描述
	StatusMessage string `json:"status_message"`

	// TradingSymbol 交易代码
	TradingSymbol string `json:"tradingsymbol"`
	// Exchange 交易所
	Exchange string `json:"exchange"`
	// OrderType 订单类型
	OrderType string `json:"order_type"`
	// TransactionType 买卖方向
	TransactionType string `json:"transaction_type"`
	// Validity 有效期
	Validity string `json:"validity"`
	// Product 产品类型
	Product string `json:"product"`

	// AveragePrice 成交均价
	AveragePrice float64 `json:"average_price"`
	// Price 委托价格
	Price float64 `json:"price"`
	// Quantity 委托数量
	Quantity int `json:"quantity"`
	// FilledQuantity 已成交数量
	FilledQuantity int `json:"filled_quantity"`
	// UnfilledQuantity 未成交数量
	UnfilledQuantity int `json:"unfilled_quantity"`
	// TriggerPrice 触发价格
	TriggerPrice float64 `json:"trigger_price"`
	// UserID 用户标识
	UserID string `json:"user_id"`
	// OrderTimestamp 下单时间
	OrderTimestamp string `json:"order_timestamp"`
	// ExchangeTimestamp 交易所时间
	ExchangeTimestamp string `json:"exchange_timestamp"`
	// Checksum 校验和
	Checksum string `json:"checksum"`
}
