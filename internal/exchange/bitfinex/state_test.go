// Package bitfinex 频道状态机测试
package bitfinex

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"exchange-dumper/internal/channel"
)

const bookAck = `{"event":"subscribed","channel":"book","symbol":"tBTCUSD","chanId":5}`

func mustApply(t *testing.T, s *State, payload string) string {
	t.Helper()
	ch, err := s.ClassifyAndApply(payload)
	if err != nil {
		t.Fatalf("ClassifyAndApply(%s): %v", payload, err)
	}
	return ch
}

// TestState_InsertThenDeleteByZeroPrice 订阅确认 -> 插入 -> price=0 删除后订单簿为空
func TestState_InsertThenDeleteByZeroPrice(t *testing.T) {
	s := NewState()

	if ch := mustApply(t, s, bookAck); ch != "book_tBTCUSD" {
		t.Fatalf("ack channel = %s", ch)
	}
	if ch := mustApply(t, s, `[5,[[1,100.0,2.0]]]`); ch != "book_tBTCUSD" {
		t.Fatalf("book channel = %s", ch)
	}
	if got := len(s.Book("book_tBTCUSD")); got != 1 {
		t.Fatalf("插入后订单数 = %d, want 1", got)
	}
	mustApply(t, s, `[5,[[1,0,2.0]]]`)
	if got := len(s.Book("book_tBTCUSD")); got != 0 {
		t.Fatalf("删除后订单数 = %d, want 0", got)
	}
}

func TestState_Classify(t *testing.T) {
	s := NewState()
	mustApply(t, s, bookAck)
	mustApply(t, s, `{"event":"subscribed","channel":"trades","symbol":"tETHUSD","chanId":7}`)

	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"info", `{"event":"info","version":2}`, channel.Info, false},
		{"heartbeat", `[5,"hb"]`, channel.Heartbeat, false},
		{"trade", `[7,"te",[1,1700000000000,0.1,2000]]`, "trades_tETHUSD", false},
		{"trade snapshot", `[7,[[1,1700000000000,0.1,2000]]]`, "trades_tETHUSD", false},
		{"single order", `[5,[2,101,-1.5]]`, "book_tBTCUSD", false},
		{"checksum", `[5,"cs",12345]`, "book_tBTCUSD", false},
		{"unknown event", `{"event":"error","msg":"x"}`, channel.Unknown, false},
		{"unknown chanId", `[99,[[1,1,1]]]`, channel.Unknown, true},
		{"malformed", `[5,`, channel.Unknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ClassifyAndApply(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("channel = %s, want %s", got, tt.want)
			}
		})
	}

	if got := s.subs.Channels(); !reflect.DeepEqual(got, []string{"book_tBTCUSD", "trades_tETHUSD"}) {
		t.Fatalf("subscriptions = %v", got)
	}
	if got := len(s.Book("book_tBTCUSD")); got != 1 {
		t.Fatalf("单条委托缩写未写入, 订单数 = %d", got)
	}
}

func TestState_ClassifyOutbound(t *testing.T) {
	s := NewState()
	got, err := s.ClassifyOutbound(`{"event":"subscribe","channel":"book","symbol":"tBTCUSD","prec":"R0","len":"100"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got != "book_tBTCUSD" {
		t.Fatalf("outbound channel = %s", got)
	}
}

func TestNewSubscriber_Order(t *testing.T) {
	var sent []string
	sub := NewSubscriber([]string{"tBTCUSD", "tETHUSD"}, "100")
	if err := sub(func(p string) error { sent = append(sent, p); return nil }); err != nil {
		t.Fatal(err)
	}
	want := []string{
		`{"event":"subscribe","channel":"trades","symbol":"tBTCUSD"}`,
		`{"event":"subscribe","channel":"trades","symbol":"tETHUSD"}`,
		`{"event":"subscribe","channel":"book","symbol":"tBTCUSD","prec":"R0","len":"100"}`,
		`{"event":"subscribe","channel":"book","symbol":"tETHUSD","prec":"R0","len":"100"}`,
	}
	if !reflect.DeepEqual(sent, want) {
		t.Fatalf("sent = %v", sent)
	}
}

func orderMsg(id int64, price int) string {
	return fmt.Sprintf(`[5,[[%d,%d,1.5]]]`, id, price)
}

// TestState_ZeroPriceAlwaysDeletes 属性: price=0 总是删除，非零价格总是写入
func TestState_ZeroPriceAlwaysDeletes(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("price=0 删除，price≠0 写入", prop.ForAll(
		func(ids []int64, prices []int) bool {
			s := NewState()
			if _, err := s.ClassifyAndApply(bookAck); err != nil {
				return false
			}
			for i := range ids {
				if _, err := s.ClassifyAndApply(orderMsg(ids[i], prices[i])); err != nil {
					return false
				}
				_, resident := s.Book("book_tBTCUSD")[ids[i]]
				if prices[i] == 0 && resident {
					return false
				}
				if prices[i] != 0 && !resident {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(40, gen.Int64Range(1, 10)),
		gen.SliceOfN(40, gen.IntRange(0, 4)),
	))

	properties.TestingRun(t)
}

// TestState_SnapshotRoundTrip 属性: 连续重放与经快照中断后恢复重放得到相同状态
func TestState_SnapshotRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("快照往返等价", prop.ForAll(
		func(ids []int64, prices []int, split int) bool {
			msgs := []string{bookAck, `{"event":"subscribed","channel":"trades","symbol":"tBTCUSD","chanId":6}`}
			for i := range ids {
				msgs = append(msgs, orderMsg(ids[i], prices[i]))
			}
			if split > len(msgs) {
				split = len(msgs)
			}

			continuous := NewState()
			for _, m := range msgs {
				if _, err := continuous.ClassifyAndApply(m); err != nil {
					return false
				}
			}

			head := NewState()
			for _, m := range msgs[:split] {
				if _, err := head.ClassifyAndApply(m); err != nil {
					return false
				}
			}
			snap, err := head.Snapshot()
			if err != nil {
				return false
			}
			resumed := NewState()
			if err := channel.Restore(resumed, snap); err != nil {
				return false
			}
			for _, m := range msgs[split:] {
				if _, err := resumed.ClassifyAndApply(m); err != nil {
					return false
				}
			}

			a, errA := continuous.Snapshot()
			b, errB := resumed.Snapshot()
			return errA == nil && errB == nil && reflect.DeepEqual(a, b)
		},
		gen.SliceOfN(30, gen.Int64Range(1, 8)),
		gen.SliceOfN(30, gen.IntRange(0, 5)),
		gen.IntRange(2, 32),
	))

	properties.TestingRun(t)
}
