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

// FifoBuffer is a fixed-width ring of slots linked through two sentinel
// roots (free list head, occupied list head) instead of an index
// cursor, so pushes and pops are pointer relinks regardless of where in
// the ring the live data currently sits. Each slot is two words: a
// payload value and a next-slot index (capacity means "nil").
const (
	fifoFieldCapacity = heap.HeaderWords + 0
	fifoFieldFreeHead = heap.HeaderWords + 1
	fifoFieldOccHead  = heap.HeaderWords + 2
	fifoFieldOccTail  = heap.HeaderWords + 3
	fifoFieldCount    = heap.HeaderWords + 4
	fifoSlotsStart    = heap.HeaderWords + 5

	fifoSlotWords = 2
)

func NewFifoBuffer(h *heap.Heap, species value.Value, capacity int) (value.Value, value.Value) {
	addr, cond := h.Allocate(fifoSlotsStart + capacity*fifoSlotWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+fifoFieldCapacity, value.NewInteger(int64(capacity)))
	h.Set(addr+fifoFieldOccHead, value.NewInteger(int64(capacity))) // nil sentinel
	h.Set(addr+fifoFieldOccTail, value.NewInteger(int64(capacity)))
	h.Set(addr+fifoFieldCount, value.NewInteger(0))
	for i := 0; i < capacity; i++ {
		next := i + 1
		if next == capacity {
			next = capacity // terminates at the nil sentinel
		}
		h.Set(addr+value.Address(fifoSlotsStart+i*fifoSlotWords+1), value.NewInteger(int64(next)))
	}
	if capacity > 0 {
		h.Set(addr+fifoFieldFreeHead, value.NewInteger(0))
	} else {
		h.Set(addr+fifoFieldFreeHead, value.NewInteger(int64(capacity)))
	}
	return value.NewHeapObject(addr), value.Value(0)
}

func fifoCapacity(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + fifoFieldCapacity).Int64())
}

func FifoCount(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + fifoFieldCount).Int64())
}

func fifoSlotNext(h *heap.Heap, addr value.Address, slot int) int {
	return int(h.Get(addr + value.Address(fifoSlotsStart+slot*fifoSlotWords+1)).Int64())
}

func fifoSetSlotNext(h *heap.Heap, addr value.Address, slot, next int) {
	h.Set(addr+value.Address(fifoSlotsStart+slot*fifoSlotWords+1), value.NewInteger(int64(next)))
}

func FifoPush(h *heap.Heap, v value.Value, elem value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	addr := v.HeapAddress()
	capacity := fifoCapacity(h, v)
	free := int(h.Get(addr + fifoFieldFreeHead).Int64())
	if free == capacity {
		return value.NewCondition(value.CauseOutOfMemory, 0)
	}
	newFree := fifoSlotNext(h, addr, free)
	h.Set(addr+fifoFieldFreeHead, value.NewInteger(int64(newFree)))

	h.Set(addr+value.Address(fifoSlotsStart+free*fifoSlotWords), elem)
	fifoSetSlotNext(h, addr, free, capacity)

	tail := int(h.Get(addr + fifoFieldOccTail).Int64())
	if tail == capacity {
		h.Set(addr+fifoFieldOccHead, value.NewInteger(int64(free)))
	} else {
		fifoSetSlotNext(h, addr, tail, free)
	}
	h.Set(addr+fifoFieldOccTail, value.NewInteger(int64(free)))
	h.Set(addr+fifoFieldCount, value.NewInteger(int64(FifoCount(h, v)+1)))
	return value.Value(0)
}

func FifoPop(h *heap.Heap, v value.Value) (value.Value, bool) {
	if freeze.MustBeMutable(h, v).IsCondition() {
		return value.Value(0), false
	}
	addr := v.HeapAddress()
	capacity := fifoCapacity(h, v)
	head := int(h.Get(addr + fifoFieldOccHead).Int64())
	if head == capacity {
		return value.Value(0), false
	}
	elem := h.Get(addr + value.Address(fifoSlotsStart+head*fifoSlotWords))
	newHead := fifoSlotNext(h, addr, head)
	h.Set(addr+fifoFieldOccHead, value.NewInteger(int64(newHead)))
	if newHead == capacity {
		h.Set(addr+fifoFieldOccTail, value.NewInteger(int64(capacity)))
	}

	freeHead := int(h.Get(addr + fifoFieldFreeHead).Int64())
	fifoSetSlotNext(h, addr, head, freeHead)
	h.Set(addr+fifoFieldFreeHead, value.NewInteger(int64(head)))
	h.Set(addr+fifoFieldCount, value.NewInteger(int64(FifoCount(h, v)-1)))
	return elem, true
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyFifoBuffer,
		Division: heap.DivisionModal,
		Validate: func(h *heap.Heap, addr value.Address) error {
			count := h.Get(addr + fifoFieldCount).Int64()
			capacity := h.Get(addr + fifoFieldCapacity).Int64()
			if count < 0 || count > capacity {
				return fmt.Errorf("fifo buffer at %d has count %d out of [0,%d]", addr, count, capacity)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(h.Get(addr+fifoFieldCount).Int64()) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<fifo-buffer count=%d>", h.Get(addr+fifoFieldCount).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			capacity := int(h.Get(addr + fifoFieldCapacity).Int64())
			return heap.ObjectLayout{
				SizeWords:   fifoSlotsStart + capacity*fifoSlotWords,
				ValueOffset: fifoFieldOccHead,
			}
		},
	})
}
