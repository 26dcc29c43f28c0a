package limiter

import "testing"

func TestConsumeWithinCapacity(t *testing.T) {
	l := New(3, 0, 100)
	if err := l.AdvanceTo(0); err != nil {
		t.Fatalf("AdvanceTo failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		ok, err := l.Consume()
		if err != nil {
			t.Fatalf("Consume error: %v", err)
		}
		if !ok {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	ok, err := l.Consume()
	if err != nil {
		t.Fatalf("Consume error: %v", err)
	}
	if ok {
		t.Fatalf("expected 4th consume to be denied")
	}
}

func TestRefillOverTicks(t *testing.T) {
	l := New(5, 1, 100)
	_ = l.AdvanceTo(0)
	for i := 0; i < 5; i++ {
		l.Consume()
	}
	if l.Tokens() != 0 {
		t.Fatalf("expected tokens exhausted, got %d", l.Tokens())
	}
	if err := l.AdvanceTo(3); err != nil {
		t.Fatalf("AdvanceTo failed: %v", err)
	}
	if l.Tokens() != 3 {
		t.Fatalf("expected 3 tokens refilled after 3 ticks at rate 1, got %d", l.Tokens())
	}
}

func TestRefillClampsAtMaxTokens(t *testing.T) {
	l := New(5, 10, 100)
	_ = l.AdvanceTo(0)
	_ = l.AdvanceTo(100)
	if l.Tokens() != 5 {
		t.Fatalf("expected tokens clamped at maxTokens=5, got %d", l.Tokens())
	}
}

func TestTickRollbackIsFatal(t *testing.T) {
	l := New(5, 1, 100)
	_ = l.AdvanceTo(10)
	err := l.AdvanceTo(5)
	if err == nil {
		t.Fatalf("expected tick rollback to return an overflow error")
	}
}

func TestWindowResetsAfterWidth(t *testing.T) {
	l := New(100, 0, 10)
	_ = l.AdvanceTo(0)
	l.Consume()
	l.Consume()
	if l.AttemptsInWindow() != 2 {
		t.Fatalf("expected 2 attempts in window, got %d", l.AttemptsInWindow())
	}
	_ = l.AdvanceTo(10) // now >= startTick + windowTicks
	if l.AttemptsInWindow() != 0 {
		t.Fatalf("expected window to reset at boundary tick, got %d attempts", l.AttemptsInWindow())
	}
}

func TestWindowLeftClosedRightOpen(t *testing.T) {
	l := New(100, 0, 10)
	_ = l.AdvanceTo(0)
	_ = l.AdvanceTo(9) // still inside [0,10)
	l.Consume()
	if l.AttemptsInWindow() != 1 {
		t.Fatalf("expected window still open at tick 9")
	}
	_ = l.AdvanceTo(10) // window boundary, right-open means this rolls
	if l.AttemptsInWindow() != 0 {
		t.Fatalf("expected window to have rolled at tick 10")
	}
}

func TestAttemptsInWindowSaturationIsFatal(t *testing.T) {
	l := New(1_000_000, 0, 100)
	_ = l.AdvanceTo(0)
	l.attemptsInWindow = ^uint32(0) // force saturation without looping 4B times
	_, err := l.Consume()
	if err == nil {
		t.Fatalf("expected saturated attemptsInWindow to be fatal")
	}
}

func TestRefillMultiplicationOverflowIsFatal(t *testing.T) {
	l := New(^uint64(0), ^uint64(0), 100)
	_ = l.AdvanceTo(0)
	err := l.AdvanceTo(2) // delta=2, refillRatePerTick=max uint64: overflow
	if err == nil {
		t.Fatalf("expected refill multiplication overflow to be fatal")
	}
}

func TestConsumeIncrementsAttemptsEvenWhenDenied(t *testing.T) {
	l := New(0, 0, 100)
	_ = l.AdvanceTo(0)
	ok, err := l.Consume()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected denial with zero tokens")
	}
	if l.AttemptsInWindow() != 1 {
		t.Fatalf("expected attemptsInWindow to increment even on denial, got %d", l.AttemptsInWindow())
	}
}
