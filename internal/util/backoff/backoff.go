// Package backoff 实现重连等待策略。
// 连接存活时间过短时按指数增长等待时间（1s、2s、4s ... 上限 60s），
// 连接存活足够久后重置为基础值并立即重连。
package backoff

import (
	"time"
)

const (
	// DefaultBase 默认基础等待时间
	DefaultBase = time.Second
	// DefaultMax 默认最大等待时间
	DefaultMax = 60 * time.Second
	// DefaultStableAfter 连接存活超过此时长视为稳定连接
	DefaultStableAfter = 5 * time.Minute
)

// Backoff 重连等待计算器
// 每次连接结束后调用 Observe()，返回本次应等待的时间
type Backoff struct {
	// base 基础等待时间
	base time.Duration
	// max 最大等待时间
	max time.Duration
	// stableAfter 稳定连接阈值
	stableAfter time.Duration
	// wait 下一次短连接后的等待时间
	wait time.Duration
	// attempt 连续短连接次数
	attempt int
}

// New 创建新的等待计算器
// 参数 base: 基础等待时间（建议 1s）
// 参数 max: 最大等待时间（建议 60s）
// 参数 stableAfter: 稳定连接阈值（建议 5min）
func New(base, max, stableAfter time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBase
	}
	if max < base {
		max = base
	}
	return &Backoff{
		base:        base,
		max:         max,
		stableAfter: stableAfter,
		wait:        base,
	}
}

// NewDefault 创建默认配置的等待计算器
func NewDefault() *Backoff {
	return New(DefaultBase, DefaultMax, DefaultStableAfter)
}

// Observe 根据本次连接存活时长计算等待时间
// 存活 <= stableAfter: 返回当前等待时间，并将下次等待时间翻倍（不超过 max）
// 存活 > stableAfter: 重置等待时间，返回 0（立即重连）
func (b *Backoff) Observe(lived time.Duration) time.Duration {
	if lived > b.stableAfter {
		b.Reset()
		return 0
	}

	delay := b.wait
	b.wait *= 2
	if b.wait > b.max {
		b.wait = b.max
	}
	b.attempt++
	return delay
}

// Reset 重置等待时间为基础值
func (b *Backoff) Reset() {
	b.wait = b.base
	b.attempt = 0
}

// Attempt 获取连续短连接次数
func (b *Backoff) Attempt() int {
	return b.attempt
}

// Peek 查看下一次短连接后的等待时间（不修改状态）
func (b *Backoff) Peek() time.Duration {
	return b.wait
}
