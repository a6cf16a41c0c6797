package metadata

import (
	"sort"
)

// RankedSymbol 按 USD 成交额排序后的交易对
type RankedSymbol struct {
	// Symbol 交易对，如 tETHBTC
	Symbol string
	// VolumeUSD 折算为 USD 的 24 小时成交额
	VolumeUSD float64
	// Priced 是否找到 t<BASE>USD 用于折算
	Priced bool
}

// RankByUSDVolume 将 Bitfinex 交易对按 USD 成交额降序排序
// tXXXYYY 的成交量以 XXX 计，若存在 tXXXUSD 则成交额 = volume * last(tXXXUSD)，否则为 0
func RankByUSDVolume(tickers []BitfinexTicker) []RankedSymbol {
	prices := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		if IsTradingPair(t.Symbol) {
			prices[t.Symbol] = t.LastPrice
		}
	}

	ranked := make([]RankedSymbol, 0, len(tickers))
	for _, t := range tickers {
		if !IsTradingPair(t.Symbol) {
			continue
		}
		r := RankedSymbol{Symbol: t.Symbol}
		if len(t.Symbol) >= 4 {
			if px, ok := prices["t"+t.Symbol[1:4]+"USD"]; ok {
				r.VolumeUSD = t.Volume * px
				r.Priced = true
			}
		}
		ranked = append(ranked, r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].VolumeUSD > ranked[j].VolumeUSD
	})
	return ranked
}

// TopSymbols 取成交额最高的 n 个交易对
func TopSymbols(ranked []RankedSymbol, n int) []string {
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, 0, n)
	for _, r := range ranked[:n] {
		out = append(out, r.Symbol)
	}
	return out
}

// ProductCodes 提取 bitFlyer 产品代码
func ProductCodes(markets []BitflyerMarket) []string {
	out := make([]string, 0, len(markets))
	for _, m := range markets {
		if m.ProductCode != "" {
			out = append(out, m.ProductCode)
		}
	}
	return out
}
