package timeutil

import (
	"testing"
	"time"
)

func TestMinuteOf(t *testing.T) {
	tests := []struct {
		ns   int64
		want int64
	}{
		{0, 0},
		{59_999_999_999, 0},
		{60_000_000_000, 1},
		{int64(600) * int64(time.Second), 10},
		{1_700_000_000_000_000_000, 28_333_333},
	}
	for _, tt := range tests {
		if got := MinuteOf(tt.ns); got != tt.want {
			t.Errorf("MinuteOf(%d) = %d, want %d", tt.ns, got, tt.want)
		}
	}
}

func TestNowNano_Monotonic(t *testing.T) {
	prev := NowNano()
	for i := 0; i < 1000; i++ {
		now := NowNano()
		if now < prev {
			t.Fatalf("NowNano 回退: %d < %d", now, prev)
		}
		prev = now
	}
}
