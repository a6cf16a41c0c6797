// Package channel 定义交易所频道状态机的能力集合。
// 每个交易所实现 State：对出站/入站消息分类，维护订单簿等有状态频道，
// 并在任意时刻输出可独立加载的完整快照。
//
// State 只在单个 goroutine 中使用，不做任何同步。
package channel

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// 保留频道标识
const (
	// Unknown 无法分类的消息
	Unknown = "unknown"
	// Subscribed 已确认订阅的频道列表
	Subscribed = "subscribed"
	// Heartbeat 心跳消息，不修改状态也不告警
	Heartbeat = "heartbeat"
	// Info 交易所信息消息
	Info = "info"
	// Pending 已发送但尚未确认的出站请求，加载快照时按出站消息重放
	Pending = "pending"
)

// ErrUnclassified 消息无法匹配到任何频道
var ErrUnclassified = errors.New("无法识别的消息频道")

// Entry 快照中的一条记录
type Entry struct {
	// Channel 频道标识
	Channel string
	// Payload 频道状态（单行 JSON）
	Payload string
}

// State 交易所频道状态机
type State interface {
	// ClassifyAndApply 按到达顺序分类入站消息，并更新有状态频道
	ClassifyAndApply(payload string) (string, error)
	// Snapshot 输出当前所有常驻状态
	Snapshot() ([]Entry, error)
}

// OutboundClassifier 可选能力：对出站消息分类
// 交易所不在发送消息中携带频道名时可以不实现。
type OutboundClassifier interface {
	// ClassifyOutbound 在消息发送前分类，记录请求 ID 与频道的对应关系，不修改订单簿状态
	ClassifyOutbound(payload string) (string, error)
}

// SubscriptionLog 已确认订阅的频道列表（仅追加，连接级生命周期）
type SubscriptionLog struct {
	channels []string
}

// Add 追加一个已确认订阅的频道
func (l *SubscriptionLog) Add(ch string) {
	l.channels = append(l.channels, ch)
}

// Channels 返回已确认订阅的频道列表副本
func (l *SubscriptionLog) Channels() []string {
	out := make([]string, len(l.channels))
	copy(out, l.channels)
	return out
}

// Replace 用快照中的列表替换当前订阅列表
func (l *SubscriptionLog) Replace(chs []string) {
	l.channels = append(l.channels[:0:0], chs...)
}

// Entry 渲染为快照记录
func (l *SubscriptionLog) Entry() (Entry, error) {
	chs := l.channels
	if chs == nil {
		chs = []string{}
	}
	b, err := json.Marshal(chs)
	if err != nil {
		return Entry{}, fmt.Errorf("序列化订阅列表失败: %w", err)
	}
	return Entry{Channel: Subscribed, Payload: string(b)}, nil
}

// SubscriptionHolder 暴露订阅列表，供快照加载使用
type SubscriptionHolder interface {
	Subscriptions() *SubscriptionLog
}

// Restore 将快照加载到一个全新的 State 中
// subscribed 记录替换订阅列表，pending 记录按出站消息重放，其余记录按入站消息重放。
// 快照中 subscribed 记录总在最后，因此重放产生的订阅确认会被其覆盖。
func Restore(s State, entries []Entry) error {
	for _, e := range entries {
		if e.Channel == Pending {
			oc, ok := s.(OutboundClassifier)
			if !ok {
				continue
			}
			if _, err := oc.ClassifyOutbound(e.Payload); err != nil {
				return fmt.Errorf("加载未确认请求失败: %w", err)
			}
			continue
		}
		if e.Channel == Subscribed {
			holder, ok := s.(SubscriptionHolder)
			if !ok {
				continue
			}
			var chs []string
			if err := json.Unmarshal([]byte(e.Payload), &chs); err != nil {
				return fmt.Errorf("解析订阅列表失败: %w", err)
			}
			holder.Subscriptions().Replace(chs)
			continue
		}
		if _, err := s.ClassifyAndApply(e.Payload); err != nil {
			return fmt.Errorf("加载快照频道 %s 失败: %w", e.Channel, err)
		}
	}
	return nil
}

// SafeClassify 调用分类函数并捕获 panic
// 任何失败都降级为 Unknown 频道，错误原样返回供调用方记录。
func SafeClassify(fn func(string) (string, error), payload string) (ch string, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch = Unknown
			err = fmt.Errorf("频道分类 panic: %v", r)
		}
	}()
	ch, err = fn(payload)
	if err != nil {
		return Unknown, err
	}
	if ch == "" {
		return Unknown, ErrUnclassified
	}
	return ch, nil
}
