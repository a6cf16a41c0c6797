package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// Fetcher 元数据获取器接口
type Fetcher interface {
	// FetchBitfinexTickers 获取 Bitfinex 全量 ticker
	FetchBitfinexTickers(ctx context.Context, url string) ([]BitfinexTicker, error)
	// FetchBitflyerMarkets 获取 bitFlyer 产品列表
	FetchBitflyerMarkets(ctx context.Context, url string) ([]BitflyerMarket, error)
}

// HTTPFetcher HTTP 元数据获取器
type HTTPFetcher struct {
	// client HTTP 客户端
	client *http.Client
}

// NewHTTPFetcher 创建 HTTP 元数据获取器
// 参数 timeoutMs: HTTP 请求超时时间（毫秒）
func NewHTTPFetcher(timeoutMs int) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: time.Duration(timeoutMs) * time.Millisecond,
		},
	}
}

// FetchBitfinexTickers 获取 Bitfinex 全量 ticker
func (f *HTTPFetcher) FetchBitfinexTickers(ctx context.Context, url string) ([]BitfinexTicker, error) {
	body, err := f.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("请求 Bitfinex ticker 失败: %w", err)
	}

	var tickers []BitfinexTicker
	if err := json.Unmarshal(body, &tickers); err != nil {
		return nil, fmt.Errorf("解析 Bitfinex ticker 失败: %w", err)
	}
	return tickers, nil
}

// FetchBitflyerMarkets 获取 bitFlyer 产品列表
func (f *HTTPFetcher) FetchBitflyerMarkets(ctx context.Context, url string) ([]BitflyerMarket, error) {
	body, err := f.doRequest(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("请求 bitFlyer 产品列表失败: %w", err)
	}

	var markets []BitflyerMarket
	if err := json.Unmarshal(body, &markets); err != nil {
		return nil, fmt.Errorf("解析 bitFlyer 产品列表失败: %w", err)
	}
	return markets, nil
}

// doRequest 执行 HTTP GET 请求
// 参数 ctx: 上下文
// 参数 url: 请求地址
// 返回: 响应体字节数组
func (f *HTTPFetcher) doRequest(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("User-Agent", "exchange-dumper/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	return body, nil
}
