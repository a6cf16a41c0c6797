// Package bitflyer 实现 bitFlyer 频道分类与“快照 + 增量”订单簿重建。
// 订单簿以 (产品, 方向, 价格) 为键：
//   - lightning_board_snapshot_*: 整体替换该产品的买卖盘
//   - lightning_board_*: size>0 写入，size==0 删除，price==0 为成交标记（忽略）
package bitflyer

import (
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"exchange-dumper/internal/channel"
)

// board 单个产品的订单簿
type board struct {
	// midPrice 最近一次推送的中间价（原样保存）
	midPrice json.RawMessage
	// bids 价格 -> 买盘档位
	bids map[string]BoardLevel
	// asks 价格 -> 卖盘档位
	asks map[string]BoardLevel
}

func newBoard() *board {
	return &board{
		bids: make(map[string]BoardLevel),
		asks: make(map[string]BoardLevel),
	}
}

// State bitFlyer 频道状态机
type State struct {
	// rpcChannels 未确认的 RPC 请求 ID -> 频道名称（订阅响应只携带 ID）
	rpcChannels map[int64]string
	// boards 产品代码 -> 订单簿
	boards map[string]*board
	// subs 已确认订阅的频道
	subs channel.SubscriptionLog
}

// NewState 创建 bitFlyer 频道状态机
func NewState() *State {
	return &State{
		rpcChannels: make(map[int64]string),
		boards:      make(map[string]*board),
	}
}

// Subscriptions 返回订阅列表
func (s *State) Subscriptions() *channel.SubscriptionLog {
	return &s.subs
}

// ClassifyOutbound 记录 RPC ID 与频道的对应关系
func (s *State) ClassifyOutbound(payload string) (string, error) {
	var req SubscribeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return channel.Unknown, fmt.Errorf("解析 bitFlyer 出站消息失败: %w", err)
	}
	if req.Params.Channel == "" {
		return channel.Unknown, nil
	}
	if req.ID != nil {
		s.rpcChannels[*req.ID] = req.Params.Channel
	}
	return req.Params.Channel, nil
}

// ClassifyAndApply 入站消息分类并更新订单簿
func (s *State) ClassifyAndApply(payload string) (string, error) {
	var msg RPCMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return channel.Unknown, fmt.Errorf("解析 bitFlyer 消息失败: %w", err)
	}

	if msg.Method != "" {
		if msg.Method != "channelMessage" || msg.Params == nil {
			return channel.Unknown, nil
		}
		name := msg.Params.Channel
		if err := s.apply(name, msg.Params.Message); err != nil {
			return channel.Unknown, err
		}
		return name, nil
	}

	// 订阅响应
	if msg.ID == nil {
		return channel.Unknown, nil
	}
	name, ok := s.rpcChannels[*msg.ID]
	if !ok {
		return channel.Unknown, fmt.Errorf("未知的 bitFlyer RPC ID: %d", *msg.ID)
	}
	delete(s.rpcChannels, *msg.ID)
	if msg.Result != nil && *msg.Result && len(msg.Error) == 0 {
		s.subs.Add(name)
	}
	return name, nil
}

// apply 根据频道前缀更新订单簿
// 注意 lightning_board_snapshot_ 同时以 lightning_board_ 开头，必须先判断
func (s *State) apply(name string, raw json.RawMessage) error {
	switch {
	case strings.HasPrefix(name, PrefixBoardSnapshot):
		var m BoardMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("解析 bitFlyer 订单簿快照失败: %w", err)
		}
		b := newBoard()
		b.midPrice = m.MidPrice
		applyLevels(b.bids, m.Bids)
		applyLevels(b.asks, m.Asks)
		s.boards[strings.TrimPrefix(name, PrefixBoardSnapshot)] = b
	case strings.HasPrefix(name, PrefixBoard):
		var m BoardMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("解析 bitFlyer 订单簿增量失败: %w", err)
		}
		code := strings.TrimPrefix(name, PrefixBoard)
		b, ok := s.boards[code]
		if !ok {
			b = newBoard()
			s.boards[code] = b
		}
		if len(m.MidPrice) > 0 {
			b.midPrice = m.MidPrice
		}
		applyLevels(b.bids, m.Bids)
		applyLevels(b.asks, m.Asks)
	}
	return nil
}

// applyLevels 按价位写入/删除
func applyLevels(side map[string]BoardLevel, levels []BoardLevel) {
	for _, lv := range levels {
		if lv.Price.IsZero() {
			continue
		}
		key := lv.Price.String()
		if lv.Size.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lv
	}
}

// Snapshot 每个产品输出一条 lightning_board_snapshot_ 推送，
// 之后按 ID 升序输出未确认的订阅请求，订阅列表最后输出
func (s *State) Snapshot() ([]channel.Entry, error) {
	codes := make([]string, 0, len(s.boards))
	for code := range s.boards {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	entries := make([]channel.Entry, 0, len(codes)+len(s.rpcChannels)+1)
	for _, code := range codes {
		name := PrefixBoardSnapshot + code
		msg := renderBoard(s.boards[code])
		payload, err := json.Marshal(RPCMessage{
			JSONRPC: "2.0",
			Method:  "channelMessage",
			Params:  &ChannelParams{Channel: name, Message: msg},
		})
		if err != nil {
			return nil, fmt.Errorf("序列化 bitFlyer 订单簿快照失败: %w", err)
		}
		entries = append(entries, channel.Entry{Channel: name, Payload: string(payload)})
	}

	pending, err := s.pendingRequests()
	if err != nil {
		return nil, err
	}
	entries = append(entries, pending...)

	subs, err := s.subs.Entry()
	if err != nil {
		return nil, err
	}
	return append(entries, subs), nil
}

// pendingRequests 把未确认的 RPC ID 渲染为订阅请求
func (s *State) pendingRequests() ([]channel.Entry, error) {
	ids := make([]int64, 0, len(s.rpcChannels))
	for id := range s.rpcChannels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]channel.Entry, 0, len(ids))
	for _, id := range ids {
		reqID := id
		b, err := json.Marshal(SubscribeRequest{
			Method: "subscribe",
			Params: ChannelParams{Channel: s.rpcChannels[id]},
			ID:     &reqID,
		})
		if err != nil {
			return nil, fmt.Errorf("序列化 bitFlyer 未确认请求失败: %w", err)
		}
		out = append(out, channel.Entry{Channel: channel.Pending, Payload: string(b)})
	}
	return out, nil
}

// renderBoard 买盘按价格降序、卖盘按价格升序
func renderBoard(b *board) json.RawMessage {
	var sb strings.Builder
	sb.WriteByte('{')
	if len(b.midPrice) > 0 {
		sb.WriteString(`"mid_price":`)
		sb.Write(b.midPrice)
		sb.WriteByte(',')
	}
	sb.WriteString(`"bids":`)
	writeLevels(&sb, b.bids, true)
	sb.WriteString(`,"asks":`)
	writeLevels(&sb, b.asks, false)
	sb.WriteByte('}')
	return json.RawMessage(sb.String())
}

func writeLevels(sb *strings.Builder, side map[string]BoardLevel, desc bool) {
	levels := make([]BoardLevel, 0, len(side))
	for _, lv := range side {
		levels = append(levels, lv)
	}
	sort.Slice(levels, func(i, j int) bool {
		if desc {
			return levels[i].Price.GreaterThan(levels[j].Price)
		}
		return levels[i].Price.LessThan(levels[j].Price)
	})

	sb.WriteByte('[')
	for i, lv := range levels {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(`{"price":`)
		sb.WriteString(lv.Price.String())
		sb.WriteString(`,"size":`)
		sb.WriteString(lv.Size.String())
		sb.WriteByte('}')
	}
	sb.WriteByte(']')
}

// Side 返回产品某一方向的常驻价位副本（价格 -> 数量）
// 参数 bid: true 为买盘，false 为卖盘
func (s *State) Side(code string, bid bool) map[string]decimal.Decimal {
	b, ok := s.boards[code]
	if !ok {
		return nil
	}
	side := b.asks
	if bid {
		side = b.bids
	}
	out := make(map[string]decimal.Decimal, len(side))
	for k, lv := range side {
		out[k] = lv.Size
	}
	return out
}
