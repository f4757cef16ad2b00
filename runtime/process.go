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

package runtime

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// A Task is one strand of execution: a stack plus its owning process.
const (
	taskFieldStack   = heap.HeaderWords + 0
	taskFieldProcess = heap.HeaderWords + 1
	taskWords        = heap.HeaderWords + 2
)

func NewTask(h *heap.Heap, taskSpecies, stackSpecies, pieceSpecies, process value.Value) (value.Value, value.Value) {
	s, cond := stack.NewStack(h, stackSpecies, pieceSpecies, stack.DefaultPieceCapacity)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(taskWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, taskSpecies)
	h.Set(addr+taskFieldStack, s)
	h.Set(addr+taskFieldProcess, process)
	return value.NewHeapObject(addr), value.Value(0)
}

func TaskStack(h *heap.Heap, t value.Value) value.Value {
	return h.Get(t.HeapAddress() + taskFieldStack)
}

func TaskProcess(h *heap.Heap, t value.Value) value.Value {
	return h.Get(t.HeapAddress() + taskFieldProcess)
}

// A Process owns a work queue of pending jobs, its root task, the
// airlock slot cross-process messaging would hand values through, and a
// per-process hash stream seed. Work items are taken in insertion
// order.
const (
	processFieldWorkQueue = heap.HeaderWords + 0
	processFieldRootTask  = heap.HeaderWords + 1
	processFieldAirlock   = heap.HeaderWords + 2
	processFieldHashSeed  = heap.HeaderWords + 3
	processWords          = heap.HeaderWords + 4
)

const workQueueInitialCapacity = 16

func NewProcess(h *heap.Heap, r *Roots, hashSeed uint64) (value.Value, value.Value) {
	queue, cond := object.NewFifoBuffer(h, r.FifoBufferSpecies, workQueueInitialCapacity)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(processWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, r.ProcessSpecies)
	h.Set(addr+processFieldWorkQueue, queue)
	h.Set(addr+processFieldRootTask, value.Null)
	h.Set(addr+processFieldAirlock, value.Null)
	h.Set(addr+processFieldHashSeed, value.NewInteger(int64(hashSeed)))
	p := value.NewHeapObject(addr)

	unpin := h.Pin(&p)
	defer unpin()
	task, cond := NewTask(h, r.TaskSpecies, r.StackSpecies, r.StackPieceSpecies, p)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(p.HeapAddress()+processFieldRootTask, task)
	return p, value.Value(0)
}

func ProcessRootTask(h *heap.Heap, p value.Value) value.Value {
	return h.Get(p.HeapAddress() + processFieldRootTask)
}

func ProcessWorkQueue(h *heap.Heap, p value.Value) value.Value {
	return h.Get(p.HeapAddress() + processFieldWorkQueue)
}

func ProcessAirlock(h *heap.Heap, p value.Value) value.Value {
	return h.Get(p.HeapAddress() + processFieldAirlock)
}

func SetProcessAirlock(h *heap.Heap, p, v value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, p); cond.IsCondition() {
		return cond
	}
	h.Set(p.HeapAddress()+processFieldAirlock, v)
	return value.Value(0)
}

// ProcessOfferWork appends a job (typically a code block or lambda) to
// the process's FIFO; ProcessTakeWork removes the oldest one.
func ProcessOfferWork(h *heap.Heap, p, job value.Value) value.Value {
	return object.FifoPush(h, ProcessWorkQueue(h, p), job)
}

func ProcessTakeWork(h *heap.Heap, p value.Value) (value.Value, bool) {
	return object.FifoPop(h, ProcessWorkQueue(h, p))
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyTask,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + taskFieldStack).IsHeapObject() {
				return fmt.Errorf("task at %d has non-heap stack", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<task>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: taskWords, ValueOffset: taskFieldStack}
		},
	})

	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyProcess,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + processFieldWorkQueue).IsHeapObject() {
				return fmt.Errorf("process at %d has non-heap work queue", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<process>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: processWords, ValueOffset: processFieldWorkQueue}
		},
	})
}
