package bitflyer

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// NewSubscriber 创建订阅回调
// 每个产品依次订阅 ChannelPrefixes 中的频道，RPC ID 从 1 开始递增
// 参数 productCodes: 产品代码列表（来自 /v1/markets）
func NewSubscriber(productCodes []string) func(send func(string) error) error {
	return func(send func(string) error) error {
		var id int64 = 1
		for _, code := range productCodes {
			for _, prefix := range ChannelPrefixes {
				reqID := id
				req := SubscribeRequest{
					Method: "subscribe",
					Params: ChannelParams{Channel: prefix + code},
					ID:     &reqID,
				}
				id++

				b, err := json.Marshal(req)
				if err != nil {
					return fmt.Errorf("序列化 bitFlyer 订阅请求失败: %w", err)
				}
				if err := send(string(b)); err != nil {
					return fmt.Errorf("发送 bitFlyer 订阅请求失败: %w", err)
				}
			}
		}
		return nil
	}
}
