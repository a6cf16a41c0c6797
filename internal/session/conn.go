package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn 单条 WebSocket 连接（*websocket.Conn 满足该接口）
// ReadMessage 只在会话协程中调用；WriteMessage 由会话串行化。
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc 建立连接
type DialFunc func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer 基于 gorilla/websocket 的连接函数
// 参数 handshakeTimeout: 握手超时，0 表示不限制
func WebsocketDialer(handshakeTimeout time.Duration) DialFunc {
	return func(ctx context.Context, url string) (Conn, error) {
		header := http.Header{}
		header.Set("User-Agent", "exchange-dumper/1.0")

		dialer := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			ReadBufferSize:   1 << 16,
		}
		conn, _, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			return nil, fmt.Errorf("连接 WebSocket 失败: %w", err)
		}
		return conn, nil
	}
}
