package chess

import "testing"

func testAllocator() Allocator {
	return NewAllocator(defaultMoveOverheadMs, defaultMinCushionMs)
}

func TestAllocateAmpleTime(t *testing.T) {
	a := testAllocator()
	got := a.Allocate(500_000, 5000, 5)
	// 500000/38 + 2500, x1.2 opening, minus 500 overhead
	if got != 18289 {
		t.Fatalf("Allocate(500000, 5000, 5) = %d, want 18289", got)
	}
	if got < 1500 || got >= 500_000 {
		t.Fatalf("budget %d outside the ample band", got)
	}
}

func TestAllocateLowTime(t *testing.T) {
	a := testAllocator()
	for _, inc := range []int64{0, 1000, 2000} {
		got := a.Allocate(8_000, inc, 40)
		if got < 1 || got > 800 {
			t.Fatalf("Allocate(8000, %d, 40) = %d, want a small panic budget", inc, got)
		}
		if got > 8_000-a.Cushion(8_000) {
			t.Fatalf("budget %d breaks the cushion", got)
		}
	}
	if got := a.Allocate(8_000, 0, 40); got != 100 {
		t.Fatalf("Allocate(8000, 0, 40) = %d, want floor 100", got)
	}
}

func TestAllocateNeverExceedsCushion(t *testing.T) {
	a := testAllocator()
	for _, inc := range []int64{0, 2000, 30_000} {
		for _, n := range []int{0, 9, 10, 29, 30, 80} {
			for remaining := int64(1); remaining <= 700_000; remaining += 97 {
				got := a.Allocate(remaining, inc, n)
				if limit := remaining - a.Cushion(remaining); got > limit {
					t.Fatalf("Allocate(%d, %d, %d) = %d > %d", remaining, inc, n, got, limit)
				}
				if got < 1 {
					t.Fatalf("Allocate(%d, %d, %d) = %d, want positive", remaining, inc, n, got)
				}
			}
		}
	}
}

func TestAllocateNearlyFlaggedKeepsHalf(t *testing.T) {
	a := testAllocator()
	cases := []struct {
		remaining int64
		want      int64
	}{
		{remaining: 100, want: 50},
		{remaining: 40, want: 20},
		{remaining: 3, want: 1},
		{remaining: 1, want: 1},
		{remaining: 0, want: 1},
	}
	for _, tc := range cases {
		if got := a.Allocate(tc.remaining, 0, 50); got != tc.want {
			t.Fatalf("Allocate(%d) = %d, want %d", tc.remaining, got, tc.want)
		}
	}
	if got := a.Allocate(101, 0, 50); got != 100 {
		t.Fatalf("Allocate(101) = %d, want 100", got)
	}
}

func TestAllocateMonotoneUnderPressure(t *testing.T) {
	a := testAllocator()
	for _, inc := range []int64{0, 1000, 5000} {
		for _, n := range []int{0, 15, 40} {
			prev := a.Allocate(700_000, inc, n)
			for remaining := int64(700_000); remaining > 0; remaining -= 53 {
				got := a.Allocate(remaining, inc, n)
				if got > prev {
					t.Fatalf("budget grew from %d to %d as clock fell to %d (inc=%d n=%d)", prev, got, remaining, inc, n)
				}
				prev = got
			}
		}
	}
}

func TestAllocateClampsInsaneClock(t *testing.T) {
	a := testAllocator()
	huge := a.Allocate(5_000_000_000, 0, 10)
	capped := a.Allocate(MaxClockMs, 0, 10)
	if huge != capped {
		t.Fatalf("insane clock gave %d, capped clock gave %d", huge, capped)
	}
	if huge > 90_000 {
		t.Fatalf("budget %d above the 90s ceiling", huge)
	}
	if got := SanitizeClock(-5); got != 0 {
		t.Fatalf("SanitizeClock(-5) = %d", got)
	}
}

func TestClockStateFor(t *testing.T) {
	c := ClockState{WhiteMs: 60_000, BlackMs: 2_000_000_000, WhiteIncMs: 1000, BlackIncMs: 2000}
	if rem, inc := c.For(White); rem != 60_000 || inc != 1000 {
		t.Fatalf("white = %d/%d", rem, inc)
	}
	if rem, inc := c.For(Black); rem != MaxClockMs || inc != 2000 {
		t.Fatalf("black = %d/%d", rem, inc)
	}
}
