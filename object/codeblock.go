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

// CodeBlock is the unit the interpreter executes: a Blob of packed
// 16-bit opcode/operand words, an Array of pooled constants referenced
// by index from the bytecode, and the assembler's computed high-water
// stack mark so frame push (stack/frame.go) knows how many extra slots
// to reserve without walking the bytecode at call time.
const (
	codeBlockFieldBytecode      = heap.HeaderWords + 0
	codeBlockFieldValuePool     = heap.HeaderWords + 1
	codeBlockFieldHighWaterMark = heap.HeaderWords + 2
	codeBlockFieldArgCount      = heap.HeaderWords + 3
	codeBlockWords              = heap.HeaderWords + 4
)

func NewCodeBlock(h *heap.Heap, species value.Value, bytecode, valuePool value.Value, highWaterMark, argCount int) (value.Value, value.Value) {
	addr, cond := h.Allocate(codeBlockWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+codeBlockFieldBytecode, bytecode)
	h.Set(addr+codeBlockFieldValuePool, valuePool)
	h.Set(addr+codeBlockFieldHighWaterMark, value.NewInteger(int64(highWaterMark)))
	h.Set(addr+codeBlockFieldArgCount, value.NewInteger(int64(argCount)))
	return value.NewHeapObject(addr), value.Value(0)
}

func CodeBlockBytecode(h *heap.Heap, v value.Value) value.Value {
	return h.Get(v.HeapAddress() + codeBlockFieldBytecode)
}

func CodeBlockValuePool(h *heap.Heap, v value.Value) value.Value {
	return h.Get(v.HeapAddress() + codeBlockFieldValuePool)
}

func CodeBlockHighWaterMark(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + codeBlockFieldHighWaterMark).Int64())
}

func CodeBlockArgCount(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + codeBlockFieldArgCount).Int64())
}

// CodeBlockPoolValue fetches the index'th pooled constant, the source
// for the Push opcode's operand-as-index reading.
func CodeBlockPoolValue(h *heap.Heap, v value.Value, index int) (value.Value, value.Value) {
	return ArrayGet(h, CodeBlockValuePool(h, v), index)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyCodeBlock,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			bytecode := h.Get(addr + codeBlockFieldBytecode)
			if !bytecode.IsHeapObject() {
				return fmt.Errorf("code block at %d has non-heap bytecode", addr)
			}
			if h.Get(addr+codeBlockFieldHighWaterMark).Int64() < 0 {
				return fmt.Errorf("code block at %d has negative high-water mark", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<code-block argc=%d hwm=%d>",
				h.Get(addr+codeBlockFieldArgCount).Int64(), h.Get(addr+codeBlockFieldHighWaterMark).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: codeBlockWords, ValueOffset: codeBlockFieldBytecode}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+codeBlockFieldBytecode))
			freeze.EnsureFrozen(h, h.Get(addr+codeBlockFieldValuePool))
			return nil
		},
	})
}
