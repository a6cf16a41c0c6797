package bitfinex

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ChannelLimit Bitfinex 单连接最多允许订阅的频道数
const ChannelLimit = 30

// NewSubscriber 创建订阅回调
// 先为每个交易对订阅 trades，再订阅逐单订单簿（prec=R0）
// 参数 symbols: 交易对列表（已按成交额排序并截断）
// 参数 bookLen: 订单簿深度
func NewSubscriber(symbols []string, bookLen string) func(send func(string) error) error {
	return func(send func(string) error) error {
		for _, sym := range symbols {
			if err := sendJSON(send, SubscribeRequest{Event: "subscribe", Channel: "trades", Symbol: sym}); err != nil {
				return err
			}
		}
		for _, sym := range symbols {
			req := SubscribeRequest{Event: "subscribe", Channel: "book", Symbol: sym, Prec: "R0", Len: bookLen}
			if err := sendJSON(send, req); err != nil {
				return err
			}
		}
		return nil
	}
}

func sendJSON(send func(string) error, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化 Bitfinex 订阅请求失败: %w", err)
	}
	if err := send(string(b)); err != nil {
		return fmt.Errorf("发送 Bitfinex 订阅请求失败: %w", err)
	}
	return nil
}
