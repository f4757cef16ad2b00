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

package object

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// PromiseState tracks where a promise is in its one-way lifecycle.
// Transitions only go Pending -> Fulfilled or Pending -> Rejected; a
// settled promise never changes again.
type PromiseState int64

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

const (
	promiseFieldState = heap.HeaderWords + 0
	promiseFieldValue = heap.HeaderWords + 1
	promiseWords      = heap.HeaderWords + 2
)

func NewPromise(h *heap.Heap, species value.Value) (value.Value, value.Value) {
	addr, cond := h.Allocate(promiseWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+promiseFieldState, value.NewInteger(int64(PromisePending)))
	h.Set(addr+promiseFieldValue, value.Nothing)
	return value.NewHeapObject(addr), value.Value(0)
}

func PromiseGetState(h *heap.Heap, v value.Value) PromiseState {
	return PromiseState(h.Get(v.HeapAddress() + promiseFieldState).Int64())
}

func PromiseValue(h *heap.Heap, v value.Value) value.Value {
	return h.Get(v.HeapAddress() + promiseFieldValue)
}

// PromiseFulfill settles a pending promise with result. Settling twice
// is an invalid mode change, not a silent overwrite.
func PromiseFulfill(h *heap.Heap, v value.Value, result value.Value) value.Value {
	return settle(h, v, PromiseFulfilled, result)
}

func PromiseReject(h *heap.Heap, v value.Value, err value.Value) value.Value {
	return settle(h, v, PromiseRejected, err)
}

func settle(h *heap.Heap, v value.Value, state PromiseState, result value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	if PromiseGetState(h, v) != PromisePending {
		return value.NewInvalidModeChange()
	}
	h.Set(v.HeapAddress()+promiseFieldState, value.NewInteger(int64(state)))
	h.Set(v.HeapAddress()+promiseFieldValue, result)
	return value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyPromise,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			s := PromiseState(h.Get(addr + promiseFieldState).Int64())
			if s < PromisePending || s > PromiseRejected {
				return fmt.Errorf("promise at %d has invalid state %d", addr, s)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			switch PromiseState(h.Get(addr + promiseFieldState).Int64()) {
			case PromiseFulfilled:
				return "#<promise fulfilled>"
			case PromiseRejected:
				return "#<promise rejected>"
			default:
				return "#<promise pending>"
			}
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: promiseWords, ValueOffset: promiseFieldValue}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+promiseFieldValue))
			return nil
		},
	})
}
