package supervisor

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

// fakeClock 手动推进的时钟
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// script 依次返回会话存活时间；用完后取消 ctx
func script(clock *fakeClock, cancel context.CancelFunc, lifetimes ...time.Duration) (Runner, *int) {
	calls := 0
	return func(ctx context.Context) error {
		if calls >= len(lifetimes) {
			cancel()
			return ctx.Err()
		}
		clock.Advance(lifetimes[calls])
		calls++
		return errors.New("connection closed")
	}, &calls
}

func TestSupervisor_WaitSequence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	run, calls := script(clock, cancel, 10*time.Second, 10*time.Second, 6*time.Minute, 10*time.Second)

	var waits []time.Duration
	s := New(run, Options{
		Exchange: "bitmex",
		Now:      clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			clock.Advance(d)
			return nil
		},
	})

	err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if *calls != 4 {
		t.Fatalf("sessions = %d, want 4", *calls)
	}
	// 10s, 10s -> 1s, 2s；6min 后立即重连；再次 10s -> 1s
	want := []time.Duration{time.Second, 2 * time.Second, time.Second}
	if !reflect.DeepEqual(waits, want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
}

func TestSupervisor_WaitCappedAtMax(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	lifetimes := make([]time.Duration, 9)
	run, _ := script(clock, cancel, lifetimes...)

	var waits []time.Duration
	s := New(run, Options{
		Now: clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})
	_ = s.Run(ctx)

	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60, 60}
	for i := range want {
		want[i] *= time.Second
	}
	if !reflect.DeepEqual(waits, want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
}

func TestSupervisor_CancelDuringSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run := func(ctx context.Context) error { return errors.New("refused") }
	s := New(run, Options{
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestSupervisor_PanicTriggersReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	run := func(ctx context.Context) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		cancel()
		return ctx.Err()
	}
	s := New(run, Options{Sleep: func(context.Context, time.Duration) error { return nil }})
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestSleepCtx(t *testing.T) {
	if err := sleepCtx(context.Background(), time.Millisecond); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepCtx(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepCtx = %v", err)
	}
}
