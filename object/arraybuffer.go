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

const (
	arrayBufferFieldBacking = heap.HeaderWords + 0
	arrayBufferFieldCount   = heap.HeaderWords + 1
	arrayBufferWords        = heap.HeaderWords + 2
)

// NewArrayBuffer allocates a growable buffer over an initially empty
// backing Array of the given capacity.
func NewArrayBuffer(h *heap.Heap, bufferSpecies, arraySpecies value.Value, initialCapacity int) (value.Value, value.Value) {
	backing, cond := NewArray(h, arraySpecies, initialCapacity, value.Null)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(arrayBufferWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, bufferSpecies)
	h.Set(addr+arrayBufferFieldBacking, backing)
	h.Set(addr+arrayBufferFieldCount, value.NewInteger(0))
	return value.NewHeapObject(addr), value.Value(0)
}

func ArrayBufferCount(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + arrayBufferFieldCount).Int64())
}

func arrayBufferBacking(h *heap.Heap, v value.Value) value.Value {
	return h.Get(v.HeapAddress() + arrayBufferFieldBacking)
}

func ArrayBufferGet(h *heap.Heap, v value.Value, index int) (value.Value, value.Value) {
	if index < 0 || index >= ArrayBufferCount(h, v) {
		return value.Value(0), value.NewLookupError(value.LookupNoMatch)
	}
	return ArrayGet(h, arrayBufferBacking(h, v), index)
}

// ArrayBufferAppend grows the backing Array by doubling (amortized O(1)
// append) when it is full, then writes elem at the next free slot.
func ArrayBufferAppend(h *heap.Heap, arraySpecies value.Value, v value.Value, elem value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	backing := arrayBufferBacking(h, v)
	count := ArrayBufferCount(h, v)
	capacity := ArrayLength(h, backing)

	if count == capacity {
		newCapacity := capacity*2 + 1
		grown, cond := NewArray(h, arraySpecies, newCapacity, value.Null)
		if cond.IsCondition() {
			return cond
		}
		for i := 0; i < count; i++ {
			elemI, _ := ArrayGet(h, backing, i)
			ArraySet(h, grown, i, elemI)
		}
		h.Set(v.HeapAddress()+arrayBufferFieldBacking, grown)
		backing = grown
	}

	if cond := ArraySet(h, backing, count, elem); cond.IsCondition() {
		return cond
	}
	h.Set(v.HeapAddress()+arrayBufferFieldCount, value.NewInteger(int64(count+1)))
	return value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyArrayBuffer,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			count := h.Get(addr + arrayBufferFieldCount).Int64()
			backing := h.Get(addr + arrayBufferFieldBacking)
			if !backing.IsHeapObject() {
				return fmt.Errorf("array buffer at %d has non-heap backing", addr)
			}
			if int(count) > ArrayLength(h, backing) {
				return fmt.Errorf("array buffer at %d count exceeds backing capacity", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(h.Get(addr+arrayBufferFieldCount).Int64()) * 2246822519
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<array-buffer count=%d>", h.Get(addr+arrayBufferFieldCount).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: arrayBufferWords, ValueOffset: arrayBufferFieldBacking}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			if cond := freeze.EnsureFrozen(h, h.Get(addr+arrayBufferFieldBacking)); cond.IsCondition() {
				return fmt.Errorf("array buffer backing: %s", cond)
			}
			return nil
		},
	})
}
