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

// Package stack implements the stack-of-stack-pieces call model:
// fixed-capacity StackPieces linked backward into a Stack, Frame as a
// cursor materialized from piece storage, and the derived-object
// barriers (escape, ensure, signal-handler, block sections) threaded
// through a stack's top_barrier chain.
package stack

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// A StackPiece's header carries its word capacity, a backward link to
// the piece it extends (value.Null for the oldest piece), and the lid
// frame pointer recording where execution was suspended from when a
// piece is not the current top.
const (
	pieceFieldCapacity    = heap.HeaderWords + 0
	pieceFieldPrev        = heap.HeaderWords + 1
	pieceFieldLidFrame    = heap.HeaderWords + 2
	pieceFieldLidStackPtr = heap.HeaderWords + 3
	pieceBodyStart        = heap.HeaderWords + 4
	pieceFieldFlagsIndex  = 0 // relative to FrameHeaderWords, see frame.go
)

// FrameHeaderWords is the fixed-size header every frame carries:
// previous-frame-pointer (a word offset within this same piece, or -1
// meaning "the piece below"), code block, pc, flag set, and the method
// the frame is executing (Null for top-level and synthetic frames) —
// next-method dispatch needs the running method's signature back.
const FrameHeaderWords = 5

const (
	frameOffsetPrevFP    = 0
	frameOffsetCodeBlock = 1
	frameOffsetPC        = 2
	frameOffsetFlags     = 3
	frameOffsetMethod    = 4
)

// synthetic flag bit marks the StackPieceEmpty bottom frame every piece
// is capped with, so every frame always has a caller to return to even
// at the very bottom of a piece.
const FlagSynthetic uint32 = 1 << 0

func NewStackPiece(h *heap.Heap, species value.Value, capacityWords int, prev value.Value) (value.Value, value.Value) {
	addr, cond := h.Allocate(pieceBodyStart + capacityWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+pieceFieldCapacity, value.NewInteger(int64(capacityWords)))
	h.Set(addr+pieceFieldPrev, prev)
	h.Set(addr+pieceFieldLidFrame, value.NewInteger(0))
	h.Set(addr+pieceFieldLidStackPtr, value.NewInteger(0))

	// Stamp the synthetic StackPieceEmpty bottom frame at body offset 0:
	// no caller (prevFP sentinel -1), no code block, pc 0, synthetic flag.
	h.Set(addr+value.Address(pieceBodyStart+frameOffsetPrevFP), value.NewInteger(-1))
	h.Set(addr+value.Address(pieceBodyStart+frameOffsetCodeBlock), value.Null)
	h.Set(addr+value.Address(pieceBodyStart+frameOffsetPC), value.NewInteger(0))
	h.Set(addr+value.Address(pieceBodyStart+frameOffsetFlags), value.NewFlagSet(FlagSynthetic))
	h.Set(addr+value.Address(pieceBodyStart+frameOffsetMethod), value.Null)

	return value.NewHeapObject(addr), value.Value(0)
}

func PieceCapacity(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + pieceFieldCapacity).Int64())
}

func PiecePrev(h *heap.Heap, v value.Value) value.Value {
	return h.Get(v.HeapAddress() + pieceFieldPrev)
}

func PieceLidFrame(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + pieceFieldLidFrame).Int64())
}

func SetPieceLidFrame(h *heap.Heap, v value.Value, frameOffset int) {
	h.Set(v.HeapAddress()+pieceFieldLidFrame, value.NewInteger(int64(frameOffset)))
}

func PieceLidStackPointer(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + pieceFieldLidStackPtr).Int64())
}

func SetPieceLidStackPointer(h *heap.Heap, v value.Value, stackOffset int) {
	h.Set(v.HeapAddress()+pieceFieldLidStackPtr, value.NewInteger(int64(stackOffset)))
}

// BodyWord reads/writes a raw word at offset from the piece's body
// start — the primitive used by frame push/pop and barrier placement.
func BodyWord(h *heap.Heap, v value.Value, offset int) value.Value {
	return h.Get(v.HeapAddress() + value.Address(pieceBodyStart+offset))
}

func SetBodyWord(h *heap.Heap, v value.Value, offset int, val value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	h.Set(v.HeapAddress()+value.Address(pieceBodyStart+offset), val)
	return value.Value(0)
}

// BodyAddress returns the absolute heap address of body offset off —
// used as a derived object's anchor-carrying slot address.
func BodyAddress(v value.Value, off int) value.Address {
	return v.HeapAddress() + value.Address(pieceBodyStart+off)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyStackPiece,
		Division: heap.DivisionModal,
		Validate: func(h *heap.Heap, addr value.Address) error {
			cap := h.Get(addr + pieceFieldCapacity).Int64()
			if cap < 0 {
				return fmt.Errorf("stack piece at %d has negative capacity", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<stack-piece capacity=%d>", h.Get(addr+pieceFieldCapacity).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			capacity := int(h.Get(addr + pieceFieldCapacity).Int64())
			return heap.ObjectLayout{
				SizeWords:   pieceBodyStart + capacity,
				ValueOffset: pieceFieldCapacity,
			}
		},
	})
}
