package main

import (
	"context"
	"fmt"
	"time"

	"exchange-dumper/internal/channel"
	"exchange-dumper/internal/config"
	"exchange-dumper/internal/exchange/bitfinex"
	"exchange-dumper/internal/exchange/bitflyer"
	"exchange-dumper/internal/exchange/bitmex"
	"exchange-dumper/internal/metadata"
	"exchange-dumper/internal/session"
)

// target 单个交易所的连接参数与协作者
type target struct {
	name      string
	url       string
	handshake time.Duration
	newState  func() channel.State
	// subscribe 返回本次连接使用的订阅回调；元数据在连接打开后获取，失败视为订阅失败
	subscribe func(ctx context.Context) session.SubscribeFunc
}

// newTarget 按交易所名称选择频道状态实现与订阅方式
func newTarget(cfg *config.Config, name string) (*target, error) {
	switch name {
	case config.ExchangeBitfinex:
		c := cfg.Exchanges.Bitfinex
		fetcher := metadata.NewHTTPFetcher(c.TimeoutMs)
		tickersURL := orDefault(c.TickersURL, metadata.DefaultBitfinexTickersURL)
		return &target{
			name:      name,
			url:       orDefault(c.URL, bitfinex.DefaultURL),
			handshake: time.Duration(c.HandshakeTimeoutMs) * time.Millisecond,
			newState:  func() channel.State { return bitfinex.NewState() },
			subscribe: func(ctx context.Context) session.SubscribeFunc {
				return func(send func(string) error) error {
					symbols, err := bitfinexSymbols(ctx, fetcher, tickersURL, c.ChannelLimit)
					if err != nil {
						return err
					}
					return bitfinex.NewSubscriber(symbols, c.BookLen)(send)
				}
			},
		}, nil

	case config.ExchangeBitflyer:
		c := cfg.Exchanges.Bitflyer
		fetcher := metadata.NewHTTPFetcher(c.TimeoutMs)
		marketsURL := orDefault(c.MarketsURL, metadata.DefaultBitflyerMarketsURL)
		return &target{
			name:      name,
			url:       orDefault(c.URL, bitflyer.DefaultURL),
			handshake: time.Duration(c.HandshakeTimeoutMs) * time.Millisecond,
			newState:  func() channel.State { return bitflyer.NewState() },
			subscribe: func(ctx context.Context) session.SubscribeFunc {
				return func(send func(string) error) error {
					markets, err := fetcher.FetchBitflyerMarkets(ctx, marketsURL)
					if err != nil {
						return err
					}
					return bitflyer.NewSubscriber(metadata.ProductCodes(markets))(send)
				}
			},
		}, nil

	case config.ExchangeBitmex:
		c := cfg.Exchanges.Bitmex
		return &target{
			name:      name,
			url:       orDefault(c.URL, bitmex.DefaultURL),
			handshake: time.Duration(c.HandshakeTimeoutMs) * time.Millisecond,
			newState:  func() channel.State { return bitmex.NewState() },
			// 订阅主题包含在连接地址中
			subscribe: func(context.Context) session.SubscribeFunc { return nil },
		}, nil
	}
	return nil, fmt.Errorf("未知交易所: %s", name)
}

// bitfinexSymbols 取成交额最高的交易对，每个交易对占用 trades 与 book 两个频道
func bitfinexSymbols(ctx context.Context, f metadata.Fetcher, url string, channelLimit int) ([]string, error) {
	tickers, err := f.FetchBitfinexTickers(ctx, url)
	if err != nil {
		return nil, err
	}
	symbols := metadata.TopSymbols(metadata.RankByUSDVolume(tickers), channelLimit/2)
	if len(symbols) == 0 {
		return nil, fmt.Errorf("没有可订阅的 Bitfinex 交易对")
	}
	return symbols, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
