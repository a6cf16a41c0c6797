package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"exchange-dumper/internal/channel"
	"exchange-dumper/internal/config"
	"exchange-dumper/internal/exchange/bitmex"
	"exchange-dumper/internal/session"
)

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestNewTarget_BitfinexSubscribesTopSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[["tBTCUSD",100,1,101,1,0,0,100,10,0,0],["tETHUSD",10,1,11,1,0,0,10,50,0,0],["tLTCUSD",1,1,1,1,0,0,1,1,0,0]]`))
	}))
	defer srv.Close()

	cfg := testConfig(t, `
exchanges:
  bitfinex:
    enabled: true
    tickers_url: `+srv.URL+`
    channel_limit: 4
`)
	tg, err := newTarget(cfg, config.ExchangeBitfinex)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(tg.url, "wss://") {
		t.Fatalf("url = %s", tg.url)
	}

	var sent []string
	sub := tg.subscribe(context.Background())
	if err := sub(func(p string) error { sent = append(sent, p); return nil }); err != nil {
		t.Fatal(err)
	}
	// channel_limit 4 -> 2 个交易对 × (trades + book)
	if len(sent) != 4 {
		t.Fatalf("sent = %v", sent)
	}
	if !strings.Contains(sent[0], "tBTCUSD") || !strings.Contains(sent[1], "tETHUSD") {
		t.Fatalf("应按成交额排序: %v", sent)
	}
}

func TestNewTarget_MetadataFailureFailsSubscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(t, `
exchanges:
  bitflyer:
    enabled: true
    markets_url: `+srv.URL+`
`)
	tg, err := newTarget(cfg, config.ExchangeBitflyer)
	if err != nil {
		t.Fatal(err)
	}
	if err := tg.subscribe(context.Background())(func(string) error { return nil }); err == nil {
		t.Fatal("元数据获取失败应导致订阅失败")
	}
}

func TestNewTarget_BitmexUsesURLTopics(t *testing.T) {
	cfg := testConfig(t, "exchanges:\n  bitmex:\n    enabled: true\n")
	tg, err := newTarget(cfg, config.ExchangeBitmex)
	if err != nil {
		t.Fatal(err)
	}
	if tg.url != bitmex.DefaultURL {
		t.Fatalf("url = %s", tg.url)
	}
	if tg.subscribe(context.Background()) != nil {
		t.Fatal("BitMEX 不需要订阅回调")
	}
	if _, err := newTarget(cfg, "kraken"); err == nil {
		t.Fatal("未知交易所应返回错误")
	}
}

func TestSessionRunner_ErrorCarriesSessionID(t *testing.T) {
	cfg := testConfig(t, "exchanges:\n  bitmex:\n    enabled: true\n")
	cfg.Dump.Dir = t.TempDir()
	tg := &target{
		name:      config.ExchangeBitmex,
		url:       "ws://127.0.0.1:1/realtime",
		handshake: time.Second,
		newState:  func() channel.State { return bitmex.NewState() },
		subscribe: func(context.Context) session.SubscribeFunc { return nil },
	}

	err := sessionRunner(cfg, tg, zap.NewNop(), nil)(context.Background())
	if err == nil || !strings.HasPrefix(err.Error(), "会话 ") {
		t.Fatalf("err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sessionRunner(cfg, tg, zap.NewNop(), nil)(ctx); !errors.Is(err, context.Canceled) || strings.HasPrefix(err.Error(), "会话 ") {
		t.Fatalf("取消时应原样返回: %v", err)
	}
}
