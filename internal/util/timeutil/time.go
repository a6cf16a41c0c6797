// Package timeutil 提供时间相关的工具函数。
// 主要用于记录时间戳与日志轮转分桶。
package timeutil

import (
	"time"
)

var (
	// baseTime 基准时间点（包含单调时钟读数）
	baseTime = time.Now()
	// baseUnixNs 基准时间点对应的 Unix 纳秒时间戳
	baseUnixNs = baseTime.UnixNano()
)

// NowNano 获取当前时间的纳秒时间戳
// 使用“单调时钟 + 启动时 Unix 时间”组合实现：
// NowNano = baseUnixNs + time.Since(baseTime).Nanoseconds()
// 系统时间跳变（NTP/手动调整）时记录时间仍保持单调。
// 返回: 当前时间的 Unix 纳秒时间戳
func NowNano() int64 {
	return baseUnixNs + time.Since(baseTime).Nanoseconds()
}

// MinuteOf 计算纳秒时间戳所在的 Unix 分钟序号
// 公式: ns // 1_000_000_000 // 60
// 参数 ns: 纳秒时间戳
// 返回: 分钟序号（用作日志轮转桶）
func MinuteOf(ns int64) int64 {
	return ns / 1_000_000_000 / 60
}

// NanoToTime 将纳秒时间戳转换为 time.Time
func NanoToTime(ns int64) time.Time {
	return time.Unix(0, ns)
}
