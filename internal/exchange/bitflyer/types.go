// Package bitflyer 定义 bitFlyer Lightning JSON-RPC 消息类型。
package bitflyer

import (
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// DefaultURL bitFlyer Lightning JSON-RPC WebSocket 地址
const DefaultURL = "wss://ws.lightstream.bitflyer.com/json-rpc"

// 频道前缀（每个产品订阅一组）
const (
	PrefixExecutions    = "lightning_executions_"
	PrefixBoardSnapshot = "lightning_board_snapshot_"
	PrefixBoard         = "lightning_board_"
	PrefixTicker        = "lightning_ticker_"
)

// ChannelPrefixes 订阅时使用的频道前缀，按顺序发送
var ChannelPrefixes = []string{
	PrefixExecutions,
	PrefixBoardSnapshot,
	PrefixBoard,
	PrefixTicker,
}

// SubscribeRequest JSON-RPC 订阅请求
// 示例: {"method":"subscribe","params":{"channel":"lightning_board_BTC_JPY"},"id":1}
type SubscribeRequest struct {
	// Method 固定为 subscribe
	Method string `json:"method"`
	// Params 订阅参数
	Params ChannelParams `json:"params"`
	// ID RPC 请求 ID，订阅响应只携带此 ID
	ID *int64 `json:"id,omitempty"`
}

// ChannelParams 频道参数
type ChannelParams struct {
	// Channel 频道名称
	Channel string `json:"channel"`
	// Message 频道推送内容（仅 channelMessage）
	Message json.RawMessage `json:"message,omitempty"`
}

// RPCMessage 入站 JSON-RPC 消息
// 频道推送: {"jsonrpc":"2.0","method":"channelMessage","params":{"channel":"...","message":{...}}}
// 订阅响应: {"jsonrpc":"2.0","id":1,"result":true}
type RPCMessage struct {
	// JSONRPC 协议版本
	JSONRPC string `json:"jsonrpc,omitempty"`
	// Method 推送方法
	Method string `json:"method,omitempty"`
	// Params 推送参数
	Params *ChannelParams `json:"params,omitempty"`
	// ID 响应对应的请求 ID
	ID *int64 `json:"id,omitempty"`
	// Result 订阅结果
	Result *bool `json:"result,omitempty"`
	// Error 错误详情
	Error json.RawMessage `json:"error,omitempty"`
}

// BoardMessage 订单簿推送（快照与增量格式相同）
type BoardMessage struct {
	// MidPrice 中间价
	MidPrice json.RawMessage `json:"mid_price,omitempty"`
	// Bids 买盘
	Bids []BoardLevel `json:"bids"`
	// Asks 卖盘
	Asks []BoardLevel `json:"asks"`
}

// BoardLevel 单个价格档位
type BoardLevel struct {
	// Price 价格，0 表示成交标记（不修改订单簿）
	Price decimal.Decimal `json:"price"`
	// Size 数量，0 表示删除该价位
	Size decimal.Decimal `json:"size"`
}
