// Package bitfinex 实现 Bitfinex 频道分类与逐单订单簿重建。
// 订单簿以 (频道, 订单 ID) 为键：price≠0 时写入 {price, amount}，price==0 时删除。
package bitfinex

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"exchange-dumper/internal/channel"
)

// State Bitfinex 频道状态机
type State struct {
	// channels chanId -> 频道标识（如 book_tBTCUSD）
	channels map[int64]EventMessage
	// books chanId -> 订单 ID -> 委托
	books map[int64]map[int64]order
	// subs 已确认订阅的频道
	subs channel.SubscriptionLog
}

// NewState 创建 Bitfinex 频道状态机
func NewState() *State {
	return &State{
		channels: make(map[int64]EventMessage),
		books:    make(map[int64]map[int64]order),
	}
}

// Subscriptions 返回订阅列表
func (s *State) Subscriptions() *channel.SubscriptionLog {
	return &s.subs
}

// ClassifyOutbound 出站订阅请求分类为 <channel>_<symbol>
func (s *State) ClassifyOutbound(payload string) (string, error) {
	var req SubscribeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return channel.Unknown, fmt.Errorf("解析 Bitfinex 出站消息失败: %w", err)
	}
	if req.Channel == "" {
		return channel.Unknown, nil
	}
	return channelName(req.Channel, req.Symbol), nil
}

// ClassifyAndApply 入站消息分类并更新订单簿
func (s *State) ClassifyAndApply(payload string) (string, error) {
	data := bytes.TrimSpace([]byte(payload))
	if len(data) == 0 {
		return channel.Unknown, channel.ErrUnclassified
	}

	if data[0] == '{' {
		return s.applyEvent(data)
	}
	return s.applyArray(data)
}

// applyEvent 处理对象形式的事件消息
func (s *State) applyEvent(data []byte) (string, error) {
	var ev EventMessage
	if err := json.Unmarshal(data, &ev); err != nil {
		return channel.Unknown, fmt.Errorf("解析 Bitfinex 事件失败: %w", err)
	}

	switch ev.Event {
	case "subscribed":
		name := channelName(ev.Channel, ev.Symbol)
		s.channels[ev.ChanID] = ev
		s.subs.Add(name)
		return name, nil
	case "info":
		return channel.Info, nil
	default:
		return channel.Unknown, nil
	}
}

// applyArray 处理数组形式的频道消息
// 形如 [chanId, "hb"]、[chanId, [[id, price, amount], ...]]、[chanId, [id, price, amount]]、[chanId, "te", [...]]
func (s *State) applyArray(data []byte) (string, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return channel.Unknown, fmt.Errorf("解析 Bitfinex 数组消息失败: %w", err)
	}
	if len(arr) < 2 {
		return channel.Unknown, fmt.Errorf("Bitfinex 数组消息长度不足: %d", len(arr))
	}

	chanID, err := strconv.ParseInt(string(bytes.TrimSpace(arr[0])), 10, 64)
	if err != nil {
		return channel.Unknown, fmt.Errorf("解析 Bitfinex chanId 失败: %w", err)
	}
	ev, ok := s.channels[chanID]
	if !ok {
		return channel.Unknown, fmt.Errorf("未订阅的 Bitfinex chanId: %d", chanID)
	}
	name := channelName(ev.Channel, ev.Symbol)

	body := bytes.TrimSpace(arr[1])
	if len(body) > 0 && body[0] == '"' {
		var tag string
		if err := json.Unmarshal(body, &tag); err == nil && tag == "hb" {
			return channel.Heartbeat, nil
		}
		// 成交推送、校验和等，不影响订单簿
		return name, nil
	}

	if ev.Channel != "book" {
		return name, nil
	}

	orders, err := parseOrders(body)
	if err != nil {
		return channel.Unknown, err
	}

	book, ok := s.books[chanID]
	if !ok {
		book = make(map[int64]order)
		s.books[chanID] = book
	}
	for _, o := range orders {
		if o.price.IsZero() {
			delete(book, o.id)
			continue
		}
		book[o.id] = order{price: o.price, amount: o.amount}
	}
	return name, nil
}

type rawOrder struct {
	id     int64
	price  decimal.Decimal
	amount decimal.Decimal
}

// parseOrders 解析订单列表
// 只有一条委托时 Bitfinex 省略外层数组
func parseOrders(body []byte) ([]rawOrder, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("解析 Bitfinex 订单列表失败: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	first := bytes.TrimSpace(items[0])
	if len(first) == 0 || first[0] != '[' {
		o, err := parseOrder(items)
		if err != nil {
			return nil, err
		}
		return []rawOrder{o}, nil
	}

	out := make([]rawOrder, 0, len(items))
	for _, item := range items {
		var fields []json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			return nil, fmt.Errorf("解析 Bitfinex 订单失败: %w", err)
		}
		o, err := parseOrder(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// parseOrder 解析 [id, price, amount]
func parseOrder(fields []json.RawMessage) (rawOrder, error) {
	if len(fields) < 3 {
		return rawOrder{}, fmt.Errorf("Bitfinex 订单字段不足: %d", len(fields))
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(fields[0])), 10, 64)
	if err != nil {
		return rawOrder{}, fmt.Errorf("解析订单 ID 失败: %w", err)
	}
	price, err := decimal.NewFromString(string(bytes.TrimSpace(fields[1])))
	if err != nil {
		return rawOrder{}, fmt.Errorf("解析订单价格失败: %w", err)
	}
	amount, err := decimal.NewFromString(string(bytes.TrimSpace(fields[2])))
	if err != nil {
		return rawOrder{}, fmt.Errorf("解析订单数量失败: %w", err)
	}
	return rawOrder{id: id, price: price, amount: amount}, nil
}

// Snapshot 输出所有频道的订阅确认与订单簿
// 每个频道先输出订阅确认（恢复 chanId 映射），订单簿按价格排序，订阅列表最后输出。
func (s *State) Snapshot() ([]channel.Entry, error) {
	ids := make([]int64, 0, len(s.channels))
	for id := range s.channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	entries := make([]channel.Entry, 0, len(ids)*2+1)
	for _, id := range ids {
		ev := s.channels[id]
		name := channelName(ev.Channel, ev.Symbol)

		ack, err := json.Marshal(EventMessage{Event: "subscribed", Channel: ev.Channel, Symbol: ev.Symbol, ChanID: id})
		if err != nil {
			return nil, fmt.Errorf("序列化 Bitfinex 订阅确认失败: %w", err)
		}
		entries = append(entries, channel.Entry{Channel: name, Payload: string(ack)})

		if book, ok := s.books[id]; ok {
			entries = append(entries, channel.Entry{Channel: name, Payload: renderBook(id, book)})
		}
	}

	subs, err := s.subs.Entry()
	if err != nil {
		return nil, err
	}
	return append(entries, subs), nil
}

// renderBook 渲染为 [chanId, [[id, price, amount], ...]]，按价格升序
func renderBook(chanID int64, book map[int64]order) string {
	ids := make([]int64, 0, len(book))
	for id := range book {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := book[ids[i]].price, book[ids[j]].price
		if c := pi.Cmp(pj); c != 0 {
			return c < 0
		}
		return ids[i] < ids[j]
	})

	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(strconv.FormatInt(chanID, 10))
	sb.WriteString(",[")
	for i, id := range ids {
		if i > 0 {
			sb.WriteByte(',')
		}
		o := book[id]
		sb.WriteByte('[')
		sb.WriteString(strconv.FormatInt(id, 10))
		sb.WriteByte(',')
		sb.WriteString(o.price.String())
		sb.WriteByte(',')
		sb.WriteString(o.amount.String())
		sb.WriteByte(']')
	}
	sb.WriteString("]]")
	return sb.String()
}

// Book 返回频道的常驻订单簿副本（订单 ID -> [price, amount]）
func (s *State) Book(name string) map[int64][2]decimal.Decimal {
	for id, ev := range s.channels {
		if channelName(ev.Channel, ev.Symbol) != name {
			continue
		}
		out := make(map[int64][2]decimal.Decimal, len(s.books[id]))
		for oid, o := range s.books[id] {
			out[oid] = [2]decimal.Decimal{o.price, o.amount}
		}
		return out
	}
	return nil
}

func channelName(ch, symbol string) string {
	return ch + "_" + symbol
}
