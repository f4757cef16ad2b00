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

package freeze

import (
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// A freeze-cheat cell is a one-word mutable box that reports itself as
// DeepFrozen to every caller except the two that are allowed to write
// it: a compiled method's lazily-JIT-rewritable code pointer, and a
// methodspace's lazily-built selector cache. Any further use must be justified the same way these two are here —
// this is the sole mutable cell the runtime permits inside an otherwise
// fully DeepFrozen object graph.
const (
	freezeCheatFieldPayload = heap.HeaderWords + 0
	freezeCheatWords        = heap.HeaderWords + 1
)

func AllocateFreezeCheat(h *heap.Heap, selfSpecies value.Value, initial value.Value) (value.Address, value.Value) {
	addr, ok := allocateRaw(h, freezeCheatWords)
	if !ok {
		return 0, value.NewHeapExhausted()
	}
	h.Set(addr, selfSpecies)
	h.SetModeUnchecked(addr, heap.ModeDeepFrozen)
	h.Set(addr+freezeCheatFieldPayload, initial)
	return addr, value.NewHeapObject(addr)
}

// Payload reads the current value regardless of mode — neither this
// read path nor SetPayload's write path is mode-gated.
func Payload(h *heap.Heap, cell value.Value) value.Value {
	return h.Get(cell.HeapAddress() + freezeCheatFieldPayload)
}

// SetPayload writes through the cheat unconditionally. Callers outside
// dispatch/methodspace.go and dispatch/method.go should not exist.
func SetPayload(h *heap.Heap, cell value.Value, v value.Value) {
	h.Set(cell.HeapAddress()+freezeCheatFieldPayload, v)
}

func allocateRaw(h *heap.Heap, words int) (value.Address, bool) {
	addr, cond := h.Allocate(words)
	return addr, !cond.IsCondition()
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyFreezeCheat,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error { return nil },
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print:           func(h *heap.Heap, addr value.Address) string { return "#<freeze-cheat>" },
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: freezeCheatWords, ValueOffset: freezeCheatFieldPayload}
		},
	})
}
