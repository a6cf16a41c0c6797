// Package bitfinex 定义 Bitfinex 交易所消息类型。
package bitfinex

import (
	"github.com/shopspring/decimal"
)

// DefaultURL Bitfinex 公共 WebSocket 地址
const DefaultURL = "wss://api-pub.bitfinex.com/ws/2"

// SubscribeRequest Bitfinex 订阅请求
// 示例: {"event":"subscribe","channel":"book","symbol":"tBTCUSD","prec":"R0","len":"100"}
type SubscribeRequest struct {
	// Event 固定为 subscribe
	Event string `json:"event"`
	// Channel 频道: trades, book
	Channel string `json:"channel"`
	// Symbol 交易对: tBTCUSD
	Symbol string `json:"symbol"`
	// Prec 精度，R0 表示逐单（raw）订单簿
	Prec string `json:"prec,omitempty"`
	// Len 订单簿深度
	Len string `json:"len,omitempty"`
}

// EventMessage Bitfinex 事件消息（对象形式）
// 示例: {"event":"subscribed","channel":"book","symbol":"tBTCUSD","chanId":5}
type EventMessage struct {
	// Event 事件类型: subscribed, info, error, conf
	Event string `json:"event"`
	// Channel 频道名称
	Channel string `json:"channel,omitempty"`
	// Symbol 交易对
	Symbol string `json:"symbol,omitempty"`
	// ChanID 频道 ID，之后的数组消息以它开头
	ChanID int64 `json:"chanId,omitempty"`
}

// order 逐单订单簿中的一条委托
type order struct {
	price  decimal.Decimal
	amount decimal.Decimal
}
