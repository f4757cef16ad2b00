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

package dispatch

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// Method flag bits, kept in a FlagSet word. A delegate flag asks the
// lookup framework for a second resolution phase against the subject's
// private methodspace instead of running the resolved method directly.
const (
	MethodFlagLambdaDelegate uint = 0
	MethodFlagBlockDelegate  uint = 1
)

// A Method pairs a signature with its compiled body. The body pointer
// sits behind a freeze-cheat cell so a method can be installed into a
// deep-frozen methodspace before its body has been compiled, and the
// code block stamped in later without an illegal mode change.
const (
	methodFieldSignature = heap.HeaderWords + 0
	methodFieldCodeCell  = heap.HeaderWords + 1
	methodFieldFlags     = heap.HeaderWords + 2
	methodWords          = heap.HeaderWords + 3
)

func NewMethod(h *heap.Heap, methodSpecies, cheatSpecies, signature value.Value, flags uint32) (value.Value, value.Value) {
	_, cell := freeze.AllocateFreezeCheat(h, cheatSpecies, value.Nothing)
	if cell.IsCondition() {
		return value.Value(0), cell
	}
	addr, cond := h.Allocate(methodWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, methodSpecies)
	h.Set(addr+methodFieldSignature, signature)
	h.Set(addr+methodFieldCodeCell, cell)
	h.Set(addr+methodFieldFlags, value.NewFlagSet(flags))
	return value.NewHeapObject(addr), value.Value(0)
}

func MethodSignature(h *heap.Heap, m value.Value) value.Value {
	return h.Get(m.HeapAddress() + methodFieldSignature)
}

func MethodFlags(h *heap.Heap, m value.Value) uint32 {
	return h.Get(m.HeapAddress() + methodFieldFlags).FlagSetBits()
}

func MethodHasFlag(h *heap.Heap, m value.Value, bit uint) bool {
	return MethodFlags(h, m)&(1<<bit) != 0
}

// MethodCode reads the installed code block, or Nothing if the body has
// not been compiled yet.
func MethodCode(h *heap.Heap, m value.Value) value.Value {
	return freeze.Payload(h, h.Get(m.HeapAddress()+methodFieldCodeCell))
}

// InstallMethodCode writes the compiled body through the freeze-cheat,
// legal even after the method has been deep-frozen.
func InstallMethodCode(h *heap.Heap, m, codeBlock value.Value) {
	freeze.SetPayload(h, h.Get(m.HeapAddress()+methodFieldCodeCell), codeBlock)
}

// A Lambda is a closure with copied captures: a private methodspace
// holding its body method(s), and an Array of the values its scope
// captured at creation time.
const (
	lambdaFieldMethods  = heap.HeaderWords + 0
	lambdaFieldCaptures = heap.HeaderWords + 1
	lambdaWords         = heap.HeaderWords + 2
)

func NewLambda(h *heap.Heap, lambdaSpecies, methods, captures value.Value) (value.Value, value.Value) {
	addr, cond := h.Allocate(lambdaWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, lambdaSpecies)
	h.Set(addr+lambdaFieldMethods, methods)
	h.Set(addr+lambdaFieldCaptures, captures)
	return value.NewHeapObject(addr), value.Value(0)
}

func LambdaMethods(h *heap.Heap, l value.Value) value.Value {
	return h.Get(l.HeapAddress() + lambdaFieldMethods)
}

func LambdaCaptures(h *heap.Heap, l value.Value) value.Value {
	return h.Get(l.HeapAddress() + lambdaFieldCaptures)
}

func LambdaCapture(h *heap.Heap, l value.Value, index int) value.Value {
	v, _ := object.ArrayGet(h, LambdaCaptures(h, l), index)
	return v
}

// A BlockClosure executes in its enclosing frame's stack section:
// instead of copying captures it records which frame to refract reads
// through (the header offset of the enclosing frame, kept alive by the
// BlockSection barrier pushed alongside it) and the stack the frame
// lives on.
const (
	blockFieldMethods      = heap.HeaderWords + 0
	blockFieldHomeStack    = heap.HeaderWords + 1
	blockFieldHomeFrameOff = heap.HeaderWords + 2
	blockWords             = heap.HeaderWords + 3
)

func NewBlockClosure(h *heap.Heap, blockSpecies, methods, homeStack value.Value, homeFrameOffset int) (value.Value, value.Value) {
	addr, cond := h.Allocate(blockWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, blockSpecies)
	h.Set(addr+blockFieldMethods, methods)
	h.Set(addr+blockFieldHomeStack, homeStack)
	h.Set(addr+blockFieldHomeFrameOff, value.NewInteger(int64(homeFrameOffset)))
	return value.NewHeapObject(addr), value.Value(0)
}

func BlockMethods(h *heap.Heap, b value.Value) value.Value {
	return h.Get(b.HeapAddress() + blockFieldMethods)
}

func BlockHomeStack(h *heap.Heap, b value.Value) value.Value {
	return h.Get(b.HeapAddress() + blockFieldHomeStack)
}

func BlockHomeFrameOffset(h *heap.Heap, b value.Value) int {
	return int(h.Get(b.HeapAddress() + blockFieldHomeFrameOff).Int64())
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyMethod,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + methodFieldSignature).IsHeapObject() {
				return fmt.Errorf("method at %d has non-heap signature", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<method>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: methodWords, ValueOffset: methodFieldSignature}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+methodFieldSignature))
			return nil
		},
	})

	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyLambda,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error { return nil },
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<lambda>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: lambdaWords, ValueOffset: lambdaFieldMethods}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+lambdaFieldMethods))
			freeze.EnsureFrozen(h, h.Get(addr+lambdaFieldCaptures))
			return nil
		},
	})

	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyBlockClosure,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error { return nil },
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<block>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: blockWords, ValueOffset: blockFieldMethods}
		},
	})
}
