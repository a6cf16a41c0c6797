// Package bitmex 实现 BitMEX 频道分类与状态重建。
// 频道标识为表名；orderBookL2 与 instrument 为有状态频道。
// BitMEX 通过连接地址订阅，不需要出站分类。
package bitmex

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"exchange-dumper/internal/channel"
)

// State BitMEX 频道状态机
type State struct {
	book        *book
	instruments *instruments
	subs        channel.SubscriptionLog
}

// NewState 创建 BitMEX 频道状态机
func NewState() *State {
	return &State{
		book:        newBook(),
		instruments: newInstruments(),
	}
}

// Subscriptions 返回订阅列表
func (s *State) Subscriptions() *channel.SubscriptionLog {
	return &s.subs
}

// ClassifyAndApply 入站消息分类并更新 orderBookL2 / instrument
func (s *State) ClassifyAndApply(payload string) (string, error) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return channel.Unknown, fmt.Errorf("解析 BitMEX 消息失败: %w", err)
	}

	switch {
	case msg.Table != "":
		var err error
		switch msg.Table {
		case TableOrderBookL2:
			err = s.book.apply(msg.Action, msg.Data)
		case TableInstrument:
			err = s.instruments.apply(msg.Action, msg.Data)
		}
		if err != nil {
			return channel.Unknown, err
		}
		return msg.Table, nil
	case msg.Subscribe != "":
		if msg.Success != nil && *msg.Success {
			s.subs.Add(msg.Subscribe)
		}
		return msg.Subscribe, nil
	case msg.Info != "":
		return channel.Info, nil
	default:
		return channel.Unknown, nil
	}
}

// Snapshot 输出 orderBookL2 与 instrument 的 partial 推送，订阅列表最后输出
func (s *State) Snapshot() ([]channel.Entry, error) {
	entries := make([]channel.Entry, 0, 3)
	if s.book.seen {
		entries = append(entries, channel.Entry{Channel: TableOrderBookL2, Payload: s.book.render()})
	}
	if s.instruments.seen {
		payload, err := s.instruments.render()
		if err != nil {
			return nil, err
		}
		entries = append(entries, channel.Entry{Channel: TableInstrument, Payload: payload})
	}
	subs, err := s.subs.Entry()
	if err != nil {
		return nil, err
	}
	return append(entries, subs), nil
}

// Level 返回常驻档位的价格与数量
func (s *State) Level(symbol, side string, id int64) (price, size decimal.Decimal, ok bool) {
	lv, ok := s.book.symbols[symbol][levelKey{side: side, id: id}]
	return lv.price, lv.size, ok
}

// Instrument 返回交易对的常驻字段表副本
func (s *State) Instrument(symbol string) map[string]json.RawMessage {
	rec, ok := s.instruments.records[symbol]
	if !ok {
		return nil
	}
	out := make(map[string]json.RawMessage, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
