// Package bitflyer 频道状态机测试
package bitflyer

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"exchange-dumper/internal/channel"
)

func channelMessage(ch, message string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"channelMessage","params":{"channel":%q,"message":%s}}`, ch, message)
}

func TestState_SubscribeAck(t *testing.T) {
	s := NewState()

	var sent []string
	if err := NewSubscriber([]string{"BTC_JPY"})(func(p string) error { sent = append(sent, p); return nil }); err != nil {
		t.Fatal(err)
	}
	if len(sent) != len(ChannelPrefixes) {
		t.Fatalf("sent %d, want %d", len(sent), len(ChannelPrefixes))
	}
	for i, p := range sent {
		ch, err := s.ClassifyOutbound(p)
		if err != nil {
			t.Fatal(err)
		}
		if ch != ChannelPrefixes[i]+"BTC_JPY" {
			t.Fatalf("outbound[%d] = %s", i, ch)
		}
	}

	ch, err := s.ClassifyAndApply(`{"jsonrpc":"2.0","id":3,"result":true}`)
	if err != nil {
		t.Fatal(err)
	}
	if ch != "lightning_board_BTC_JPY" {
		t.Fatalf("ack channel = %s", ch)
	}
	if _, err := s.ClassifyAndApply(`{"jsonrpc":"2.0","id":42,"result":true}`); err == nil {
		t.Fatal("未知 RPC ID 应返回错误")
	}
	if got := s.subs.Channels(); !reflect.DeepEqual(got, []string{"lightning_board_BTC_JPY"}) {
		t.Fatalf("subscriptions = %v", got)
	}
}

func TestState_SnapshotThenDelta(t *testing.T) {
	s := NewState()
	apply := func(p string) {
		t.Helper()
		if _, err := s.ClassifyAndApply(p); err != nil {
			t.Fatal(err)
		}
	}

	apply(channelMessage("lightning_board_snapshot_BTC_JPY",
		`{"mid_price":100,"bids":[{"price":99,"size":1},{"price":98,"size":2}],"asks":[{"price":101,"size":3}]}`))
	apply(channelMessage("lightning_board_BTC_JPY",
		`{"mid_price":100,"bids":[{"price":99,"size":0},{"price":97,"size":5},{"price":0,"size":7}],"asks":[{"price":102,"size":0.5}]}`))

	bids := s.Side("BTC_JPY", true)
	if _, ok := bids["99"]; ok {
		t.Fatal("size=0 应删除价位 99")
	}
	if len(bids) != 2 || bids["97"].String() != "5" || bids["98"].String() != "2" {
		t.Fatalf("bids = %v", bids)
	}
	if _, ok := bids["0"]; ok {
		t.Fatal("price=0 为成交标记，不应写入")
	}
	if asks := s.Side("BTC_JPY", false); len(asks) != 2 {
		t.Fatalf("asks = %v", asks)
	}

	// 新快照整体替换
	apply(channelMessage("lightning_board_snapshot_BTC_JPY", `{"mid_price":200,"bids":[{"price":199,"size":1}],"asks":[]}`))
	if bids := s.Side("BTC_JPY", true); len(bids) != 1 || bids["199"].String() != "1" {
		t.Fatalf("快照替换后 bids = %v", bids)
	}
	if asks := s.Side("BTC_JPY", false); len(asks) != 0 {
		t.Fatalf("快照替换后 asks = %v", asks)
	}
}

func TestState_SnapshotRender(t *testing.T) {
	s := NewState()
	if _, err := s.ClassifyAndApply(channelMessage("lightning_board_BTC_JPY",
		`{"mid_price":100,"bids":[{"price":98,"size":1},{"price":99,"size":2}],"asks":[{"price":102,"size":1},{"price":101,"size":2}]}`)); err != nil {
		t.Fatal(err)
	}
	entries, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[1].Channel != channel.Subscribed {
		t.Fatalf("entries = %v", entries)
	}
	if entries[0].Channel != "lightning_board_snapshot_BTC_JPY" {
		t.Fatalf("channel = %s", entries[0].Channel)
	}
	want := `"bids":[{"price":99,"size":2},{"price":98,"size":1}],"asks":[{"price":101,"size":2},{"price":102,"size":1}]`
	if !strings.Contains(entries[0].Payload, want) {
		t.Fatalf("payload = %s", entries[0].Payload)
	}
}

func TestState_Classify(t *testing.T) {
	s := NewState()
	tests := []struct {
		payload string
		want    string
	}{
		{channelMessage("lightning_executions_BTC_JPY", `[{"id":1,"side":"BUY","price":100,"size":0.1}]`), "lightning_executions_BTC_JPY"},
		{channelMessage("lightning_ticker_BTC_JPY", `{"product_code":"BTC_JPY"}`), "lightning_ticker_BTC_JPY"},
		{`{"jsonrpc":"2.0","method":"other","params":{}}`, channel.Unknown},
	}
	for _, tt := range tests {
		got, err := s.ClassifyAndApply(tt.payload)
		if err != nil {
			t.Fatalf("%s: %v", tt.payload, err)
		}
		if got != tt.want {
			t.Fatalf("channel = %s, want %s", got, tt.want)
		}
	}
}

// event 重放用的一条收发消息
type event struct {
	outbound bool
	payload  string
}

func replay(s *State, events []event) error {
	for _, e := range events {
		var err error
		if e.outbound {
			_, err = s.ClassifyOutbound(e.payload)
		} else {
			_, err = s.ClassifyAndApply(e.payload)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// TestState_SnapshotRoundTrip 属性: 连续重放与经快照中断后恢复重放得到相同状态
// 订阅请求与确认可能分别落在快照两侧
func TestState_SnapshotRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("快照往返等价", prop.ForAll(
		func(prices []int, sizes []int, ackAt []int, split int) bool {
			var events []event
			_ = NewSubscriber([]string{"ETH_JPY"})(func(p string) error {
				events = append(events, event{outbound: true, payload: p})
				return nil
			})
			events = append(events, event{payload: channelMessage("lightning_board_snapshot_ETH_JPY",
				`{"mid_price":50,"bids":[{"price":49,"size":1}],"asks":[{"price":51,"size":1}]}`)})
			for i := range prices {
				side := "bids"
				if prices[i] > 50 {
					side = "asks"
				}
				events = append(events, event{payload: channelMessage("lightning_board_ETH_JPY",
					fmt.Sprintf(`{"mid_price":50,"%s":[{"price":%d,"size":%d}]}`, side, prices[i], sizes[i]))})
			}
			// 确认插入在全部请求之后的任意位置
			for i, at := range ackAt {
				ack := event{payload: fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, i+1)}
				pos := len(ChannelPrefixes) + at%(len(events)-len(ChannelPrefixes)+1)
				events = append(events[:pos], append([]event{ack}, events[pos:]...)...)
			}
			if split > len(events) {
				split = len(events)
			}

			continuous := NewState()
			if err := replay(continuous, events); err != nil {
				return false
			}

			head := NewState()
			if err := replay(head, events[:split]); err != nil {
				return false
			}
			snap, err := head.Snapshot()
			if err != nil {
				return false
			}
			resumed := NewState()
			if err := channel.Restore(resumed, snap); err != nil {
				return false
			}
			if err := replay(resumed, events[split:]); err != nil {
				return false
			}

			a, errA := continuous.Snapshot()
			b, errB := resumed.Snapshot()
			return errA == nil && errB == nil && reflect.DeepEqual(a, b) &&
				len(continuous.subs.Channels()) == len(ChannelPrefixes)
		},
		gen.SliceOfN(30, gen.IntRange(40, 60)),
		gen.SliceOfN(30, gen.IntRange(0, 3)),
		gen.SliceOfN(4, gen.IntRange(0, 40)),
		gen.IntRange(1, 39),
	))

	properties.TestingRun(t)
}

func TestState_PendingRequestSurvivesSnapshot(t *testing.T) {
	s := NewState()
	if _, err := s.ClassifyOutbound(`{"method":"subscribe","params":{"channel":"lightning_board_BTC_JPY"},"id":1}`); err != nil {
		t.Fatal(err)
	}
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 || snap[0].Channel != channel.Pending {
		t.Fatalf("snapshot = %v", snap)
	}

	resumed := NewState()
	if err := channel.Restore(resumed, snap); err != nil {
		t.Fatal(err)
	}
	ch, err := resumed.ClassifyAndApply(`{"jsonrpc":"2.0","id":1,"result":true}`)
	if err != nil {
		t.Fatal(err)
	}
	if ch != "lightning_board_BTC_JPY" {
		t.Fatalf("ack channel = %s", ch)
	}
	if got := resumed.subs.Channels(); !reflect.DeepEqual(got, []string{"lightning_board_BTC_JPY"}) {
		t.Fatalf("subscriptions = %v", got)
	}

	// 已确认的请求不再出现在快照中
	snap, _ = resumed.Snapshot()
	for _, e := range snap {
		if e.Channel == channel.Pending {
			t.Fatalf("snapshot = %v", snap)
		}
	}
}
