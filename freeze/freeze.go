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

// Package freeze implements the Fluid < Mutable < Frozen < DeepFrozen
// lattice operations: shallow and deep freezing, validation, and the
// freeze-cheat escape hatch for the two cells the runtime itself
// requires to stay mutable inside an otherwise DeepFrozen graph.
package freeze

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// ModeOf reports v's mode. Immediate values are always DeepFrozen;
// freeze-cheat cells (heap.FamilyMethod's code pointer, a methodspace's
// selector cache) report DeepFrozen unconditionally regardless of their
// own mode word, which is the one sanctioned exception to "a DeepFrozen
// graph contains no mutable cells."
func ModeOf(h *heap.Heap, v value.Value) heap.Mode {
	if v.Domain().IsImmediate() {
		return heap.ModeDeepFrozen
	}
	if !v.IsHeapObject() {
		return heap.ModeDeepFrozen
	}
	addr := v.HeapAddress()
	if h.FamilyOf(addr) == heap.FamilyFreezeCheat {
		return heap.ModeDeepFrozen
	}
	return h.GetMode(addr)
}

func IsMutable(h *heap.Heap, v value.Value) bool {
	return ModeOf(h, v) == heap.ModeMutable || ModeOf(h, v) == heap.ModeFluid
}

func IsFrozen(h *heap.Heap, v value.Value) bool { return ModeOf(h, v).AtLeast(heap.ModeFrozen) }

func IsDeepFrozen(h *heap.Heap, v value.Value) bool { return ModeOf(h, v) == heap.ModeDeepFrozen }

// MustBeMutable is the checked-setter guard every family accessor
// calls before writing a field; getters carry no such check.
func MustBeMutable(h *heap.Heap, v value.Value) value.Value {
	if !IsMutable(h, v) {
		return value.NewInvalidModeChange()
	}
	return value.Value(0)
}

// EnsureShallowFrozen moves v from Fluid/Mutable to Frozen without
// touching anything v refers to. On anything already Frozen or stricter
// (and on immediates) it is a no-op that returns no condition, so the
// mode never decreases.
func EnsureShallowFrozen(h *heap.Heap, v value.Value) value.Value {
	if !v.IsHeapObject() {
		return value.Value(0)
	}
	addr := v.HeapAddress()
	if h.GetMode(addr).AtLeast(heap.ModeFrozen) {
		return value.Value(0)
	}
	h.SetModeUnchecked(addr, heap.ModeFrozen)
	return value.Value(0)
}

// EnsureFrozen shallow-freezes v and then, if the family declares owned
// values, recursively freezes those too.
func EnsureFrozen(h *heap.Heap, v value.Value) value.Value {
	if cond := EnsureShallowFrozen(h, v); cond.IsCondition() {
		return cond
	}
	if !v.IsHeapObject() {
		return value.Value(0)
	}
	b := heap.BehaviorFor(h.FamilyOf(v.HeapAddress()))
	if b.EnsureOwnedValuesFrozen == nil {
		return value.Value(0)
	}
	if err := b.EnsureOwnedValuesFrozen(h, v.HeapAddress()); err != nil {
		return value.NewInvalidModeChange()
	}
	return value.Value(0)
}

// PeekDeepFrozen reports whether v is already known DeepFrozen, without
// performing the recursive walk ValidateDeepFrozen does — useful as a
// fast-path check before paying for validation.
func PeekDeepFrozen(h *heap.Heap, v value.Value) bool { return IsDeepFrozen(h, v) }

// ValidateDeepFrozen recursively confirms that v and everything
// reachable from it is DeepFrozen, promoting Frozen objects to
// DeepFrozen as it goes. On failure it restores every object it touched
// back to Frozen and reports the first offending value rather than
// leaving a half-promoted graph behind.
func ValidateDeepFrozen(h *heap.Heap, root value.Value) (value.Value, error) {
	visited := make(map[value.Address]bool)
	promoted := make([]value.Address, 0, 16)

	var walk func(v value.Value, depth int) error
	walk = func(v value.Value, depth int) error {
		if depth > heap.CircularObjectDepthThreshold {
			return fmt.Errorf("circular object graph exceeds depth %d", heap.CircularObjectDepthThreshold)
		}
		if v.Domain().IsImmediate() || !v.IsHeapObject() {
			return nil
		}
		addr := v.HeapAddress()
		if visited[addr] {
			return nil
		}
		visited[addr] = true

		mode := h.GetMode(addr)
		if mode == heap.ModeDeepFrozen {
			return nil
		}
		if mode != heap.ModeFrozen {
			return fmt.Errorf("value at %d is not frozen (mode %s)", addr, mode)
		}

		b := heap.BehaviorFor(h.FamilyOf(addr))
		layout := b.GetLayout(h, addr)
		for i := layout.ValueOffset; i < layout.SizeWords; i++ {
			field := h.Get(addr + value.Address(i))
			if err := walk(field, depth+1); err != nil {
				return err
			}
		}

		h.SetModeUnchecked(addr, heap.ModeDeepFrozen)
		promoted = append(promoted, addr)
		return nil
	}

	if err := walk(root, 0); err != nil {
		for _, addr := range promoted {
			h.SetModeUnchecked(addr, heap.ModeFrozen)
		}
		return value.NewNotDeepFrozen(), err
	}
	return value.Value(0), nil
}
