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

// Package object implements the concrete heap object families: Array,
// ArrayBuffer, IdHashMap, FifoBuffer, Blob, Utf8, Instance, CObject,
// CodeBlock and Promise. Each file registers its family's heap.Behavior in init().
package object

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

const (
	arrayFieldLength = heap.HeaderWords + 0
	arrayFieldsStart = heap.HeaderWords + 1
)

// NewArray allocates a fixed-length Array, a Modal family object whose
// length is fixed at creation and whose elements start Fluid.
func NewArray(h *heap.Heap, species value.Value, length int, fill value.Value) (value.Value, value.Value) {
	addr, cond := h.Allocate(arrayFieldsStart + length)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+arrayFieldLength, value.NewInteger(int64(length)))
	for i := 0; i < length; i++ {
		h.Set(addr+value.Address(arrayFieldsStart+i), fill)
	}
	return value.NewHeapObject(addr), value.Value(0)
}

func ArrayLength(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + arrayFieldLength).Int64())
}

func ArrayGet(h *heap.Heap, v value.Value, index int) (value.Value, value.Value) {
	if index < 0 || index >= ArrayLength(h, v) {
		return value.Value(0), value.NewLookupError(value.LookupNoMatch)
	}
	return h.Get(v.HeapAddress() + value.Address(arrayFieldsStart+index)), value.Value(0)
}

func ArraySet(h *heap.Heap, v value.Value, index int, elem value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	if index < 0 || index >= ArrayLength(h, v) {
		return value.NewLookupError(value.LookupNoMatch)
	}
	h.Set(v.HeapAddress()+value.Address(arrayFieldsStart+index), elem)
	return value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyArray,
		Division: heap.DivisionModal,
		Validate: func(h *heap.Heap, addr value.Address) error {
			n := h.Get(addr + arrayFieldLength).Int64()
			if n < 0 {
				return fmt.Errorf("array at %d has negative length %d", addr, n)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			if depth >= heap.CircularObjectDepthThreshold {
				return 0
			}
			n := int(h.Get(addr + arrayFieldLength).Int64())
			hash := uint32(0x811c9dc5)
			for i := 0; i < n; i++ {
				elem := h.Get(addr + value.Address(arrayFieldsStart+i))
				hash = (hash ^ elementHash(h, elem, depth+1)) * 16777619
			}
			return hash
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<array length=%d>", h.Get(addr+arrayFieldLength).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			n := int(h.Get(addr + arrayFieldLength).Int64())
			return heap.ObjectLayout{SizeWords: arrayFieldsStart + n, ValueOffset: arrayFieldsStart}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			n := int(h.Get(addr + arrayFieldLength).Int64())
			for i := 0; i < n; i++ {
				elem := h.Get(addr + value.Address(arrayFieldsStart+i))
				freeze.EnsureFrozen(h, elem)
			}
			return nil
		},
	})
}

// elementHash hashes any value for use inside a composite family's
// TransientHash, recursing into heap objects via their own registered
// behavior up to the shared depth cap.
func elementHash(h *heap.Heap, v value.Value, depth int) uint32 {
	if v.IsHeapObject() {
		b := heap.BehaviorFor(h.FamilyOf(v.HeapAddress()))
		return b.TransientHash(h, v.HeapAddress(), depth)
	}
	return uint32(v) * 2246822519
}
