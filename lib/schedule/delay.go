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
	"math/rand/v2"
	"time"
)

// Rand is the subset of [math/rand/v2.Rand] used to draw renewal jitter.
type Rand interface {
	Int64N(n int64) int64
}

// NewRand returns an auto-seeded jitter source.
func NewRand() Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// RenewalDelay computes how long to wait before renewing a credential that
// expires gap from now, aiming for threshold ahead of expiry. When the gap
// leaves room (gap > 2*threshold), a jitter uniformly drawn from
// [1s, threshold) is added so that fleets do not renew in lockstep. The
// result is clamped to [0, gap].
func RenewalDelay(gap, threshold time.Duration, rnd Rand) time.Duration {
	if gap <= 0 {
		return 0
	}
	delay := gap - threshold
	if gap > 2*threshold {
		delay += Jitter(threshold, rnd)
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// Jitter draws a duration uniformly from [1s, threshold). Thresholds of one
// second or less leave no room and yield zero.
func Jitter(threshold time.Duration, rnd Rand) time.Duration {
	if threshold <= time.Second || rnd == nil {
		return 0
	}
	return time.Second + time.Duration(rnd.Int64N(int64(threshold-time.Second)))
}
