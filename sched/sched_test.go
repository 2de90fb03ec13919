package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/tilinna/clock"
)

func TestEveryFiresRepeatedlyUntilStopped(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	var n int32
	task := Every(mock, 10*time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	for i := 0; i < 5; i++ {
		mock.Add(10 * time.Millisecond)
	}
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&n) < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	task.Stop()
	if got := atomic.LoadInt32(&n); got < 5 {
		t.Fatalf("fired %d times, want >= 5", got)
	}

	before := atomic.LoadInt32(&n)
	mock.Add(100 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if atomic.LoadInt32(&n) != before {
		t.Fatalf("task fired after Stop: before=%d after=%d", before, atomic.LoadInt32(&n))
	}
}

func TestLoopHonorsReturnedDelay(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	var n int32
	task := Loop(mock, time.Millisecond, func() time.Duration {
		atomic.AddInt32(&n, 1)
		return 0 // floored to 1ms, exercises the busy-spin guard
	})
	defer task.Stop()

	mock.Add(time.Millisecond)
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&n) < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&n) < 1 {
		t.Fatalf("loop never fired")
	}

	deadline = time.Now().Add(time.Second)
	for atomic.LoadInt32(&n) < 2 && time.Now().Before(deadline) {
		mock.Add(time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&n) < 2 {
		t.Fatalf("loop did not re-fire after the floored 1ms delay")
	}
}
