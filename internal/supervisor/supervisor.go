// Package supervisor 循环运行连接会话，按会话存活时间决定重连等待。
// 会话存活不超过稳定阈值（默认 5 分钟）时等待 wait 后重连并将 wait 翻倍（上限 60 秒）；
// 否则将 wait 重置为 1 秒并立即重连。只有取消会终止循环。
package supervisor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"exchange-dumper/internal/metrics"
	"exchange-dumper/internal/util/backoff"
)

// Runner 运行一次连接会话直到结束
type Runner func(ctx context.Context) error

// Options 监督器参数
type Options struct {
	// Exchange 交易所名称（仅用于日志）
	Exchange string
	// Backoff 重连退避，默认 backoff.NewDefault()
	Backoff *backoff.Backoff
	// Logger 日志记录器
	Logger *zap.Logger
	// Metrics 指标，可为 nil
	Metrics *metrics.Exchange
	// Now 时间源，默认 time.Now
	Now func() time.Time
	// Sleep 可取消的等待，默认基于 time.Timer
	Sleep func(ctx context.Context, d time.Duration) error
}

// Supervisor 重连监督器
type Supervisor struct {
	run     Runner
	backoff *backoff.Backoff
	logger  *zap.Logger
	metrics *metrics.Exchange
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// New 创建监督器
// 参数 run: 每次连接调用一次，通常是 session.New(cfg).Run
func New(run Runner, opts Options) *Supervisor {
	if opts.Backoff == nil {
		opts.Backoff = backoff.NewDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		run:     run,
		backoff: opts.Backoff,
		logger:  logger.Named("supervisor").With(zap.String("exchange", opts.Exchange)),
		metrics: opts.Metrics,
		now:     opts.Now,
		sleep:   opts.Sleep,
	}
}

// Run 运行直到 ctx 被取消
// 会话错误只记录日志并触发重连；返回值总是取消错误。
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.metrics.Reconnect()
		started := s.now()
		err := s.runOnce(ctx)
		lived := s.now().Sub(started)
		s.metrics.SessionEnded(lived)

		if ctxErr := ctx.Err(); ctxErr != nil && (err == nil || errors.Is(err, ctxErr)) {
			s.logger.Info("停止重连", zap.Duration("lived", lived))
			return ctxErr
		}

		wait := s.backoff.Observe(lived)
		s.logger.Warn("连接已结束，准备重连",
			zap.Error(err),
			zap.Duration("lived", lived),
			zap.Duration("wait", wait),
			zap.Int("attempt", s.backoff.Attempt()))

		if wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// runOnce 运行一次会话，会话内的 panic 转为错误
func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("会话 panic", zap.Any("panic", r), zap.Stack("stack"))
			err = panicError{value: r}
		}
	}()
	return s.run(ctx)
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return "会话 panic"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
