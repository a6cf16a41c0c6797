// Package metadata 负责通过 REST 获取订阅所需的交易对列表。
package metadata

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// 默认 REST 地址
const (
	// DefaultBitfinexTickersURL Bitfinex 全量 ticker
	DefaultBitfinexTickersURL = "https://api.bitfinex.com/v2/tickers?symbols=ALL"
	// DefaultBitflyerMarketsURL bitFlyer 产品列表
	DefaultBitflyerMarketsURL = "https://api.bitflyer.com/v1/markets"
)

// BitfinexTicker Bitfinex ticker（数组格式）
// API: GET /v2/tickers?symbols=ALL
// 交易对 ticker: [SYMBOL, BID, BID_SIZE, ASK, ASK_SIZE, DAILY_CHANGE, DAILY_CHANGE_RELATIVE, LAST_PRICE, VOLUME, HIGH, LOW]
// 资金 ticker（f 开头）字段不同，不参与排序
type BitfinexTicker struct {
	// Symbol 交易对，如 tBTCUSD
	Symbol string
	// LastPrice 最新价（index 7）
	LastPrice float64
	// Volume 24 小时成交量，以基础币计（index 8）
	Volume float64
}

// UnmarshalJSON 解析数组格式的 ticker
func (t *BitfinexTicker) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("解析 Bitfinex ticker 失败: %w", err)
	}
	if len(fields) == 0 {
		return fmt.Errorf("Bitfinex ticker 为空")
	}
	if err := json.Unmarshal(fields[0], &t.Symbol); err != nil {
		return fmt.Errorf("解析 Bitfinex ticker symbol 失败: %w", err)
	}
	if !IsTradingPair(t.Symbol) || len(fields) < 9 {
		return nil
	}
	// 字段可能为 null
	_ = json.Unmarshal(fields[7], &t.LastPrice)
	_ = json.Unmarshal(fields[8], &t.Volume)
	return nil
}

// IsTradingPair 判断是否为交易对（t 开头），资金币种以 f 开头
func IsTradingPair(symbol string) bool {
	return len(symbol) > 0 && symbol[0] == 't'
}

// BitflyerMarket bitFlyer 产品
// API: GET /v1/markets
type BitflyerMarket struct {
	// ProductCode 产品代码，如 BTC_JPY
	ProductCode string `json:"product_code"`
	// MarketType 市场类型: Spot, FX, Futures
	MarketType string `json:"market_type,omitempty"`
}
