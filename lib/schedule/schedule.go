/*
 * Vaultkeeper
 * Copyright (C) 2025  Gravitational, Inc.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package schedule provides the one-shot trigger scheduler used for session
// renewal and certificate rotation, and the shared renewal-delay policy.
// Time is always taken from an injected clock so tests can drive schedules
// deterministically.
package schedule

import (
	"sync"
	"time"

	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
)

// Trigger yields the instant a scheduled task should fire next. One-shot
// triggers return ok=false after their first firing, which ends the
// schedule.
type Trigger interface {
	NextFire(now time.Time) (at time.Time, ok bool)
}

// OneShotDelay returns a trigger that fires once, d from the time it is
// scheduled.
func OneShotDelay(d time.Duration) Trigger {
	return &oneShot{delay: d}
}

// OneShotAt returns a trigger that fires once at the given instant.
func OneShotAt(at time.Time) Trigger {
	return &oneShot{at: at, absolute: true}
}

type oneShot struct {
	mu       sync.Mutex
	fired    bool
	delay    time.Duration
	at       time.Time
	absolute bool
}

func (o *oneShot) NextFire(now time.Time) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fired {
		return time.Time{}, false
	}
	o.fired = true
	if o.absolute {
		return o.at, true
	}
	return now.Add(o.delay), true
}

// Config configures a Scheduler.
type Config struct {
	// Clock provides the current time. Defaults to the real clock.
	Clock clockwork.Clock
}

// CheckAndSetDefaults checks the configuration and sets default values.
func (cfg *Config) CheckAndSetDefaults() error {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// Scheduler runs tasks at the instants their triggers yield. After a task
// returns, the trigger is consulted again; one-shot triggers end the
// schedule there, recurring triggers re-arm it.
type Scheduler struct {
	clock clockwork.Clock
}

// NewScheduler creates a scheduler from the given configuration.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	return &Scheduler{clock: cfg.Clock}, nil
}

// Schedule arms task against trig and returns a cancellation handle. The
// task runs on the scheduler's timer goroutine; long-running work should be
// handed off by the task itself.
func (s *Scheduler) Schedule(task func(), trig Trigger) *Handle {
	h := &Handle{}
	s.arm(h, task, trig)
	return h
}

func (s *Scheduler) arm(h *Handle, task func(), trig Trigger) {
	now := s.clock.Now()
	at, ok := trig.NextFire(now)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.timer = s.clock.AfterFunc(at.Sub(now), func() {
		if h.isCancelled() {
			return
		}
		task()
		s.arm(h, task, trig)
	})
}

// Handle cancels a scheduled task. Cancellation is race-free: a task
// observing a cancelled handle returns without work even if its timer
// already fired.
type Handle struct {
	mu        sync.Mutex
	timer     clockwork.Timer
	cancelled bool
}

// Cancel stops the schedule. It is safe to call more than once and from
// concurrent goroutines.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *Handle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}
