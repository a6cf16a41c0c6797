// Package session 驱动单条 WebSocket 连接的完整生命周期。
// 打开 -> 订阅 -> 读取循环 -> 关闭；每条入站/出站消息都经写入队列落盘。
// 连接级回调（打开、消息、错误、关闭）只在 Run 所在的协程中执行。
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"exchange-dumper/internal/channel"
	"exchange-dumper/internal/metrics"
	"exchange-dumper/internal/output/logfile"
	"exchange-dumper/internal/output/queue"
	"exchange-dumper/internal/util/timeutil"
)

// ErrNotConnected 连接尚未建立或已关闭
var ErrNotConnected = errors.New("WebSocket 未连接")

// SubscribeFunc 订阅回调，连接打开后调用一次
// 参数 send: 发送出站消息（写入线路并记录 send）
type SubscribeFunc func(send func(string) error) error

// Config 会话参数
type Config struct {
	// Exchange 交易所名称（日志文件前缀）
	Exchange string
	// URL 连接地址
	URL string
	// Dir 输出目录
	Dir string
	// Ext 日志文件扩展名
	Ext string
	// NewState 为每条连接创建全新的频道状态
	NewState func() channel.State
	// Subscribe 订阅回调，可为 nil
	Subscribe SubscribeFunc
	// Dial 建立连接
	Dial DialFunc
	// Logger 日志记录器
	Logger *zap.Logger
	// Metrics 指标，可为 nil
	Metrics *metrics.Exchange
	// Now 时间源，默认 timeutil.NowNano
	Now func() int64
}

// Session 单条连接
type Session struct {
	cfg    Config
	id     string
	logger *zap.Logger

	q     *queue.Queue
	state channel.State

	connMu sync.Mutex
	conn   Conn
}

// New 创建会话
func New(cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = timeutil.NowNano
	}
	if cfg.Dial == nil {
		cfg.Dial = WebsocketDialer(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Session{
		cfg:    cfg,
		id:     id,
		logger: logger.Named("session").With(zap.String("exchange", cfg.Exchange), zap.String("session_id", id)),
	}
}

// ID 会话 ID
func (s *Session) ID() string {
	return s.id
}

// State 本次连接的频道状态；只能在 Run 返回后读取
func (s *Session) State() channel.State {
	return s.state
}

// Run 运行会话直到连接关闭
// 返回: 取消时返回 ctx.Err()；否则返回导致连接结束的错误（传输、订阅或写入故障）
func (s *Session) Run(ctx context.Context) error {
	s.state = s.cfg.NewState()
	writer := logfile.NewWriter(logfile.Options{
		Dir:         s.cfg.Dir,
		Prefix:      s.cfg.Exchange,
		URL:         s.cfg.URL,
		Ext:         s.cfg.Ext,
		Snapshotter: s.state,
		Logger:      s.logger,
		Metrics:     s.cfg.Metrics,
	})
	s.q = queue.New(queue.Options{State: s.state, Writer: writer, Logger: s.logger, Metrics: s.cfg.Metrics})

	conn, err := s.cfg.Dial(ctx, s.cfg.URL)
	if err != nil {
		s.logger.Warn("连接失败", zap.Error(err))
		return s.finish(ctx, err)
	}
	s.setConn(conn)
	s.logger.Info("连接成功", zap.String("url", s.cfg.URL))

	stop := make(chan struct{})
	defer close(stop)
	go s.watch(ctx, stop)

	if s.cfg.Subscribe != nil {
		if err := s.cfg.Subscribe(s.Send); err != nil {
			s.logger.Error("订阅失败，关闭连接", zap.Error(err))
			return s.finish(ctx, fmt.Errorf("订阅失败: %w", err))
		}
	}

	return s.finish(ctx, s.readLoop(conn))
}

// readLoop 读取循环，返回导致退出的错误
func (s *Session) readLoop(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		ts := s.cfg.Now()
		if err != nil {
			return err
		}
		if err := s.q.Msg(ts, string(data)); err != nil {
			return fmt.Errorf("写入队列故障: %w", err)
		}
	}
}

// watch 取消或写入故障时关闭连接，使阻塞中的读取返回
func (s *Session) watch(ctx context.Context, stop <-chan struct{}) {
	select {
	case <-ctx.Done():
		s.logger.Info("收到停止信号，关闭连接")
	case <-s.q.Done():
		if s.q.Fault() == nil {
			return
		}
		s.logger.Error("写入故障，关闭连接", zap.Error(s.q.Fault()))
	case <-stop:
		return
	}
	s.closeConn()
}

// finish 记录错误与 end，关闭连接并等待写入协程结束
func (s *Session) finish(ctx context.Context, cause error) error {
	canceled := ctx.Err() != nil
	if cause != nil && !canceled && s.q.Fault() == nil {
		if err := s.q.Err(s.cfg.Now(), cause.Error()); err != nil {
			s.logger.Warn("记录错误失败", zap.Error(err))
		}
	}
	s.closeConn()

	if err := s.q.End(s.cfg.Now()); err != nil && !errors.Is(err, queue.ErrQueueClosed) {
		s.logger.Warn("记录 end 失败", zap.Error(err))
	}
	werr := s.q.Wait()

	if canceled {
		return ctx.Err()
	}
	if werr != nil && !errors.Is(cause, werr) {
		return multierr.Append(cause, fmt.Errorf("写入故障: %w", werr))
	}
	return cause
}

// Send 发送出站消息：先写入线路，再记录 send
// 写入队列故障时关闭连接并返回故障。
func (s *Session) Send(payload string) error {
	s.connMu.Lock()
	conn := s.conn
	if conn == nil {
		s.connMu.Unlock()
		return ErrNotConnected
	}
	err := conn.WriteMessage(websocket.TextMessage, []byte(payload))
	s.connMu.Unlock()
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}

	if err := s.q.Send(s.cfg.Now(), payload); err != nil {
		s.closeConn()
		return fmt.Errorf("写入队列故障: %w", err)
	}
	return nil
}

func (s *Session) setConn(conn Conn) {
	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
}

func (s *Session) closeConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug("关闭连接", zap.Error(err))
		}
		s.conn = nil
	}
}
