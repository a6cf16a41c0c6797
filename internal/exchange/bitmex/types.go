// Package bitmex 定义 BitMEX 实时推送消息类型。
package bitmex

import (
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// DefaultTopics 连接地址中直接订阅的主题
var DefaultTopics = []string{
	"announcement", "chat", "connected", "funding", "instrument", "insurance",
	"liquidation", "orderBookL2", "publicNotifications", "settlement", "trade",
}

// DefaultURL 携带默认订阅主题的 BitMEX 实时地址
var DefaultURL = "wss://www.bitmex.com/realtime?subscribe=" + strings.Join(DefaultTopics, ",")

// 表名
const (
	TableOrderBookL2 = "orderBookL2"
	TableInstrument  = "instrument"
)

// 动作类型
const (
	ActionPartial = "partial"
	ActionInsert  = "insert"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
)

// 买卖方向
const (
	SideBuy  = "Buy"
	SideSell = "Sell"
)

// Message BitMEX 入站消息
// 表推送: {"table":"orderBookL2","action":"insert","data":[...]}
// 订阅响应: {"success":true,"subscribe":"orderBookL2"}
// 欢迎信息: {"info":"Welcome to the BitMEX Realtime API.","version":"..."}
type Message struct {
	// Table 表名
	Table string `json:"table,omitempty"`
	// Action 动作: partial, insert, update, delete
	Action string `json:"action,omitempty"`
	// Data 行数据
	Data []json.RawMessage `json:"data,omitempty"`
	// Success 订阅是否成功
	Success *bool `json:"success,omitempty"`
	// Subscribe 订阅的主题
	Subscribe string `json:"subscribe,omitempty"`
	// Info 欢迎信息
	Info string `json:"info,omitempty"`
	// Error 错误信息
	Error string `json:"error,omitempty"`
}

// L2Row orderBookL2 行
// update 行不携带 price
type L2Row struct {
	Symbol string           `json:"symbol"`
	ID     int64            `json:"id"`
	Side   string           `json:"side"`
	Size   *decimal.Decimal `json:"size,omitempty"`
	Price  *decimal.Decimal `json:"price,omitempty"`
}

// instrumentRow 只解析 symbol，其余字段原样保存
type instrumentRow struct {
	Symbol string `json:"symbol"`
}
