// Copyright 2026 The Neutrino Authors
// This file is part of Neutrino.
//
// Neutrino is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Neutrino is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Neutrino. If not, see <http://www.gnu.org/licenses/>.

package heap

import "math/rand"

// Fuzzer forces extra collections between genuinely-needed ones so GC
// bugs that only manifest under relocation surface in ordinary test
// runs instead of waiting for a real heap to fill up.
type Fuzzer struct {
	rng         *rand.Rand
	min         int
	mean        int
	allocations int
	nextTrigger int
}

// NewFuzzer builds a fuzzer that triggers a collection on average once
// every meanFrequency allocation attempts (never closer together than
// minFrequency), seeded deterministically so a failure is reproducible.
func NewFuzzer(minFrequency, meanFrequency int, seed uint64) *Fuzzer {
	f := &Fuzzer{
		rng:  rand.New(rand.NewSource(int64(seed))),
		min:  minFrequency,
		mean: meanFrequency,
	}
	f.scheduleNext()
	return f
}

func (f *Fuzzer) scheduleNext() {
	// min + uniform(0, 2*(mean-min)) keeps the expected interval at
	// mean while never firing below min.
	spread := 2 * (f.mean - f.min)
	if spread <= 0 {
		f.nextTrigger = f.min
		return
	}
	f.nextTrigger = f.min + f.rng.Intn(spread)
}

// ShouldFuzz is consulted on every allocation attempt; it returns true
// at most once per scheduled interval.
func (f *Fuzzer) ShouldFuzz() bool {
	f.allocations++
	if f.allocations < f.nextTrigger {
		return false
	}
	f.allocations = 0
	f.scheduleNext()
	return true
}
