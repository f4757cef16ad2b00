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

import (
	"go.uber.org/zap"

	"github.com/neutrino-rt/neutrino/value"
)

// Heap owns the two semispaces and everything the collector needs to
// move live data from one to the other: the object tracker list and an
// optional fuzzer that forces early collections while testing.
type Heap struct {
	to, from   *Space
	trackers   *trackerList
	fuzzer     *Fuzzer
	fuzzPaused bool
	log        *zap.Logger

	// pins are transient native-side roots, see Pin.
	pins []*value.Value

	// RootProvider lets the collector discover the runtime's root set
	// without heap importing runtime (which would be a cycle); it is
	// set once by runtime.NewRuntime before first use. Each returned
	// pointer is a live Value slot (a tracker's address box, a stack
	// frame's local, a global variable cell) the collector overwrites
	// in place with the relocated reference.
	RootProvider func() []*value.Value
}

func NewHeap(spaceWords int, fuzzer *Fuzzer, log *zap.Logger) *Heap {
	if log == nil {
		log = zap.NewNop()
	}
	return &Heap{
		to:       NewSpace(spaceWords),
		from:     NewSpace(spaceWords),
		trackers: newTrackerList(),
		fuzzer:   fuzzer,
		log:      log,
	}
}

func (h *Heap) active() *Space { return h.to }

// Allocate reserves n words for a new object. It consults the
// fuzzer first (forcing a collection even with room to spare), then
// falls back to a real collection on genuine exhaustion, and only
// returns a HeapExhausted condition if a post-collection retry still
// doesn't fit — the one-retry-after-GC policy.
func (h *Heap) Allocate(n int) (value.Address, value.Value) {
	if h.fuzzer != nil && !h.fuzzPaused && h.fuzzer.ShouldFuzz() {
		h.Collect()
	}
	if addr, ok := h.to.TryAllocate(n); ok {
		return addr, value.Value(0)
	}
	h.Collect()
	if addr, ok := h.to.TryAllocate(n); ok {
		return addr, value.Value(0)
	}
	return 0, value.NewHeapExhausted()
}

func (h *Heap) Get(addr value.Address) value.Value { return h.to.Get(addr) }

func (h *Heap) Set(addr value.Address, v value.Value) { h.to.Set(addr, v) }

func (h *Heap) Slice(addr value.Address, n int) []value.Value { return h.to.Slice(addr, n) }

func (h *Heap) BytesUsed() int { return int(h.to.Used()) * 8 }

func (h *Heap) Capacity() int { return h.to.Capacity() }

// SetFuzzerPaused suspends or resumes fuzz-induced collections. Used
// around bootstrap (native code holds raw references while wiring the
// species graph) and the one post-exhaustion retry, which the error
// policy requires to run without fuzz interference.
func (h *Heap) SetFuzzerPaused(paused bool) { h.fuzzPaused = paused }

// Pin registers slots as temporary GC roots until the returned release
// function runs. Native code that must hold heap references across an
// allocation (which may collect) pins them so the collector rewrites
// the Go-side slots in place — the lightweight, scoped sibling of a
// full object tracker.
func (h *Heap) Pin(slots ...*value.Value) func() {
	h.pins = append(h.pins, slots...)
	n := len(slots)
	return func() { h.pins = h.pins[:len(h.pins)-n] }
}

// Track registers addr with the given tracker flags so the collector's
// post-process-weak-trackers pass can find it.
func (h *Heap) Track(addr value.Address, flags TrackerFlags) *Tracker {
	return h.trackers.add(addr, flags)
}

// Untrack removes a tracker registered with Track; the object it held
// is collectible again on the next collection (unless reachable some
// other way).
func (h *Heap) Untrack(t *Tracker) { h.trackers.remove(t) }
