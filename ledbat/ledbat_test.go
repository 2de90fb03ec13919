package ledbat

import (
	"testing"
	"time"

	"github.com/tilinna/clock"
)

func newTestController(mock *clock.Mock) *Controller {
	cfg := DefaultConfig(1500)
	cfg.TargetMs = 50
	cfg.Gain = 1
	cfg.InitCwnd = 2
	cfg.MinCwnd = 2
	cfg.Clock = mock
	return New(cfg)
}

func TestTargetTracking(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	c := newTestController(mock)

	minCwnd := c.cfg.MinCwnd * c.cfg.MSS

	for i := 0; i < 40; i++ {
		mock.Add(10 * time.Millisecond)
		ok, _ := c.TrySend(1500)
		if !ok {
			t.Fatalf("round %d: TrySend refused unexpectedly", i)
		}
		c.OnAck(1500, []time.Duration{50 * time.Millisecond}, []time.Duration{50 * time.Millisecond})

		if c.CWND() < minCwnd {
			t.Fatalf("round %d: cwnd %d below MIN_CWND*MSS %d", i, c.CWND(), minCwnd)
		}
		if c.Flightsize() > c.CWND() {
			// not a strict spec requirement but sanity: flightsize should
			// never run away unbounded relative to cwnd over many rounds
			t.Fatalf("round %d: flightsize %d exceeds cwnd %d", i, c.Flightsize(), c.CWND())
		}
		if qd := c.QueuingDelay(); qd > time.Millisecond {
			t.Fatalf("round %d: queuing delay = %v, want <= 1ms", i, qd)
		}
	}
}

func TestMinCwndFloorAlwaysWins(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	c := newTestController(mock)
	minCwnd := c.cfg.MinCwnd * c.cfg.MSS

	// Large one-way delay vastly exceeding target drives off_target very
	// negative; cwnd must never fall below the floor regardless.
	for i := 0; i < 10; i++ {
		mock.Add(time.Second)
		c.OnAck(1500, []time.Duration{5 * time.Second}, []time.Duration{time.Second})
		if c.CWND() < minCwnd {
			t.Fatalf("round %d: cwnd %d fell below floor %d", i, c.CWND(), minCwnd)
		}
	}
}

func TestFlightsizeNeverNegative(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	c := newTestController(mock)
	c.OnAck(10_000_000, []time.Duration{50 * time.Millisecond}, nil)
	if c.Flightsize() != 0 {
		t.Fatalf("flightsize = %d, want 0 (clamped, never negative)", c.Flightsize())
	}
}

func TestCTODoublesOnMissingAck(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	c := newTestController(mock)

	ok, _ := c.TrySend(100)
	if !ok {
		t.Fatalf("first send must always be allowed")
	}
	c.OnAck(100, []time.Duration{10 * time.Millisecond}, []time.Duration{10 * time.Millisecond})
	initialCTO := c.CTO()

	mock.Add(initialCTO + time.Second)
	ok, reason := c.TrySend(100)
	if ok {
		t.Fatalf("expected CTO refusal after silence exceeding cto")
	}
	if reason != ReasonCTO {
		t.Fatalf("reason = %v, want ReasonCTO", reason)
	}
	if c.CTO() <= initialCTO {
		t.Fatalf("cto did not double: before=%v after=%v", initialCTO, c.CTO())
	}
	if c.CWND() != c.cfg.MSS {
		t.Fatalf("cwnd on CTO entry = %d, want MSS %d", c.CWND(), c.cfg.MSS)
	}
}

func TestOnDataLossHalvesCwndAtMostOncePerRTT(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	c := newTestController(mock)
	c.cwnd = 10000

	c.OnDataLoss(true, 0)
	afterFirst := c.CWND()
	if afterFirst >= 10000 {
		t.Fatalf("cwnd not halved on first loss: %d", afterFirst)
	}

	// Immediately signal loss again: must be a no-op within the same RTT.
	c.OnDataLoss(true, 0)
	if c.CWND() != afterFirst {
		t.Fatalf("cwnd changed on second loss within same RTT: %d -> %d", afterFirst, c.CWND())
	}
}
