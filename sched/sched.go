// Copyright 2019 The Swarm Authors
// This file is part of the Swarm library.
//
// The Swarm library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The Swarm library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the Swarm library. If not, see <http://www.gnu.org/licenses/>.

// Package sched provides the cancellable periodic/rescheduled task
// scaffolding the peer send-scheduler and handshake idle timeout are built
// from (spec §5:
// "every scheduled task ... is tracked by a handle on its owning object;
// destroying the object cancels all handles"). No example repo in the
// retrieved pack offers a sub-second general-purpose interval scheduler
// (the closest, robfig/cron, models cron-expression schedules and is the
// wrong shape for 10 ms/1 s/3 s/15 s intervals), so this builds directly on
// the injectable clock already wired for LEDBAT.
package sched

import (
	"sync"
	"time"

	"github.com/tilinna/clock"
)

// Task is a cancellable handle to a running timer-driven loop.
type Task struct {
	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}
}

// Stop cancels the task. Safe to call more than once and safe to call from
// any goroutine.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stopCh)
}

// Every runs fn every d until the returned Task is stopped.
func Every(c clock.Clock, d time.Duration, fn func()) *Task {
	return Loop(c, d, func() time.Duration {
		fn()
		return d
	})
}

// After runs fn once after d elapses, unless the returned Task is stopped
// first.
func After(c clock.Clock, d time.Duration, fn func()) *Task {
	t := &Task{stopCh: make(chan struct{})}
	timer := c.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-t.stopCh:
			return
		case <-timer.C:
			fn()
		}
	}()
	return t
}

// Loop runs fn repeatedly: the first run fires after initial, and fn's
// return value is the delay before the next run. A non-positive return
// value is floored to 1 ms to avoid a busy spin; this is how the send-
// scheduler's "reschedule immediately when candidates remain" rule (spec
// §4.6) is expressed without starving the runtime.
func Loop(c clock.Clock, initial time.Duration, fn func() time.Duration) *Task {
	t := &Task{stopCh: make(chan struct{})}
	timer := c.NewTimer(initial)
	go func() {
		defer timer.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-timer.C:
				next := fn()
				if next <= 0 {
					next = time.Millisecond
				}
				timer.Reset(next)
			}
		}
	}()
	return t
}
