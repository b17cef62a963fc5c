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

package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestRenewalDelayBounds(t *testing.T) {
	rnd := NewRand()
	thresholds := []time.Duration{time.Second, 5 * time.Second, time.Minute}
	gaps := []time.Duration{
		0, time.Second, 4 * time.Second, 10 * time.Second,
		11 * time.Second, 2 * time.Minute, time.Hour,
	}

	for _, threshold := range thresholds {
		for _, gap := range gaps {
			for range 100 {
				delay := RenewalDelay(gap, threshold, rnd)
				require.GreaterOrEqual(t, delay, time.Duration(0),
					"gap=%v threshold=%v", gap, threshold)
				require.LessOrEqual(t, delay, gap,
					"gap=%v threshold=%v", gap, threshold)
				if gap > 2*threshold {
					require.GreaterOrEqual(t, delay, gap-2*threshold+time.Second,
						"gap=%v threshold=%v", gap, threshold)
				}
			}
		}
	}
}

func TestRenewalDelayNoJitterInsideDoubleThreshold(t *testing.T) {
	// gap == 2*threshold leaves no jitter room: the delay is exact.
	delay := RenewalDelay(10*time.Second, 5*time.Second, NewRand())
	require.Equal(t, 5*time.Second, delay)

	// A gap below the threshold fires immediately.
	require.Equal(t, time.Duration(0), RenewalDelay(3*time.Second, 5*time.Second, NewRand()))
}

func TestSchedulerOneShot(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := NewScheduler(Config{Clock: clock})
	require.NoError(t, err)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) }, OneShotDelay(5*time.Second))

	clock.Advance(4 * time.Second)
	require.Equal(t, int32(0), fired.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)

	// One-shot triggers do not re-arm.
	clock.Advance(time.Minute)
	require.Equal(t, int32(1), fired.Load())
}

func TestSchedulerCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := NewScheduler(Config{Clock: clock})
	require.NoError(t, err)

	var fired atomic.Int32
	h := s.Schedule(func() { fired.Add(1) }, OneShotDelay(5*time.Second))
	h.Cancel()
	h.Cancel() // idempotent

	clock.Advance(time.Minute)
	require.Equal(t, int32(0), fired.Load())
}

func TestSchedulerCancelledHandleSkipsFiredTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := NewScheduler(Config{Clock: clock})
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	var fired atomic.Int32

	h := s.Schedule(func() { fired.Add(1) }, OneShotDelay(0))
	_ = h

	// A second task whose handle is cancelled before the timer callback
	// observes it must not run.
	h2 := s.Schedule(func() {
		close(started)
		<-release
	}, OneShotDelay(time.Hour))
	h2.Cancel()
	clock.Advance(2 * time.Hour)

	select {
	case <-started:
		t.Fatal("cancelled task ran")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
}

func TestOneShotAt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s, err := NewScheduler(Config{Clock: clock})
	require.NoError(t, err)

	var fired atomic.Int32
	s.Schedule(func() { fired.Add(1) }, OneShotAt(clock.Now().Add(30*time.Second)))

	clock.Advance(29 * time.Second)
	require.Equal(t, int32(0), fired.Load())
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
}
