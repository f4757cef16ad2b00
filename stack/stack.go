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

package stack

import (
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// A Stack is a linked list of StackPieces plus two cursors: the top
// piece (where the live frame lives) and the top barrier (the innermost
// scoped section currently installed, or Null). The live frame's own cursor fields (header offset, stack
// pointer) are mirrored here rather than re-derived on every
// opcode, the same way a real machine keeps fp/sp in registers instead
// of memory.
const (
	stackFieldTopPiece        = heap.HeaderWords + 0
	stackFieldTopHeaderOffset = heap.HeaderWords + 1
	stackFieldTopStackOffset  = heap.HeaderWords + 2
	stackFieldTopBarrierPiece = heap.HeaderWords + 3
	stackFieldTopBarrierWord  = heap.HeaderWords + 4
	stackWords                = heap.HeaderWords + 5

	// DefaultPieceCapacity is how large a freshly allocated piece is
	// when growing the stack, absent a more specific request from the
	// caller (e.g. to fit an unusually large frame in one piece).
	DefaultPieceCapacity = 256
)

// NewStack allocates a Stack rooted in a single fresh bottom piece.
func NewStack(h *heap.Heap, stackSpecies, pieceSpecies value.Value, pieceCapacity int) (value.Value, value.Value) {
	piece, cond := NewStackPiece(h, pieceSpecies, pieceCapacity, value.Null)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(stackWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, stackSpecies)
	h.Set(addr+stackFieldTopPiece, piece)
	h.Set(addr+stackFieldTopHeaderOffset, value.NewInteger(0))
	h.Set(addr+stackFieldTopStackOffset, value.NewInteger(FrameHeaderWords))
	h.Set(addr+stackFieldTopBarrierPiece, value.Null)
	h.Set(addr+stackFieldTopBarrierWord, value.NewInteger(0))
	return value.NewHeapObject(addr), value.Value(0)
}

func TopPiece(h *heap.Heap, s value.Value) value.Value {
	return h.Get(s.HeapAddress() + stackFieldTopPiece)
}

func setTopPiece(h *heap.Heap, s, piece value.Value) {
	h.Set(s.HeapAddress()+stackFieldTopPiece, piece)
}

func topHeaderOffset(h *heap.Heap, s value.Value) int {
	return int(h.Get(s.HeapAddress() + stackFieldTopHeaderOffset).Int64())
}

func setTopHeaderOffset(h *heap.Heap, s value.Value, off int) {
	h.Set(s.HeapAddress()+stackFieldTopHeaderOffset, value.NewInteger(int64(off)))
}

func topStackOffset(h *heap.Heap, s value.Value) int {
	return int(h.Get(s.HeapAddress() + stackFieldTopStackOffset).Int64())
}

func setTopStackOffset(h *heap.Heap, s value.Value, off int) {
	h.Set(s.HeapAddress()+stackFieldTopStackOffset, value.NewInteger(int64(off)))
}

// CurrentFrame materializes the stack's live top frame as a cursor.
func CurrentFrame(h *heap.Heap, s value.Value) Frame {
	piece := TopPiece(h, s)
	return Open(h, piece, topHeaderOffset(h, s), topStackOffset(h, s), PieceCapacity(h, piece))
}

// Suspend writes a possibly-mutated frame cursor's pc/flags back and
// re-syncs the Stack's own sp mirror — called after every opcode that
// changed the frame, and before any operation (GC, barrier unwind) that
// needs the piece storage to be consistent.
func Suspend(h *heap.Heap, s value.Value, f Frame) {
	Close(h, f)
	setTopStackOffset(h, s, f.StackOffset)
}

// Land forces the stack's live position to an arbitrary recorded frame
// state — the non-local control transfer primitive escape firing and
// signal handling use after unwinding the barriers in between.
func Land(h *heap.Heap, s, piece value.Value, headerOffset, stackOffset int) {
	setTopPiece(h, s, piece)
	setTopHeaderOffset(h, s, headerOffset)
	setTopStackOffset(h, s, stackOffset)
}

// PushFrame opens a new frame to run codeBlock. argCount values are
// already sitting on top of the caller's stack; they become the new
// frame's argument area. If the current piece cannot fit the new
// frame's header plus its high-water mark, a fresh piece is linked in
// and the arguments are copied across — the only data movement stack
// pieces ever require.
func PushFrame(h *heap.Heap, s value.Value, pieceSpecies, codeBlock, method value.Value, argCount, highWaterMark int) value.Value {
	if cond := freeze.MustBeMutable(h, s); cond.IsCondition() {
		return cond
	}
	piece := TopPiece(h, s)
	callerHeaderOffset := topHeaderOffset(h, s)
	argsEnd := topStackOffset(h, s)
	argsStart := argsEnd - argCount
	needed := FrameHeaderWords + highWaterMark

	if argsEnd+needed <= PieceCapacity(h, piece) {
		headerOffset := argsEnd
		writeFrameHeader(h, piece, headerOffset, callerHeaderOffset, codeBlock, method)
		setTopHeaderOffset(h, s, headerOffset)
		setTopStackOffset(h, s, headerOffset+FrameHeaderWords)
		return value.Value(0)
	}

	// The new piece's body starts with its synthetic bottom frame, so the
	// copied arguments go right after that header.
	capacity := DefaultPieceCapacity
	if FrameHeaderWords+argCount+needed > capacity {
		capacity = FrameHeaderWords + argCount + needed
	}
	newPiece, cond := NewStackPiece(h, pieceSpecies, capacity, piece)
	if cond.IsCondition() {
		return cond
	}
	for i := 0; i < argCount; i++ {
		SetBodyWord(h, newPiece, FrameHeaderWords+i, BodyWord(h, piece, argsStart+i))
	}
	SetPieceLidFrame(h, piece, callerHeaderOffset)
	SetPieceLidStackPointer(h, piece, argsStart)

	headerOffset := FrameHeaderWords + argCount
	writeFrameHeader(h, newPiece, headerOffset, -1, codeBlock, method)
	setTopPiece(h, s, newPiece)
	setTopHeaderOffset(h, s, headerOffset)
	setTopStackOffset(h, s, headerOffset+FrameHeaderWords)
	return value.Value(0)
}

func writeFrameHeader(h *heap.Heap, piece value.Value, headerOffset, prevFP int, codeBlock, method value.Value) {
	SetBodyWord(h, piece, headerOffset+frameOffsetPrevFP, value.NewInteger(int64(prevFP)))
	SetBodyWord(h, piece, headerOffset+frameOffsetCodeBlock, codeBlock)
	SetBodyWord(h, piece, headerOffset+frameOffsetPC, value.NewInteger(0))
	SetBodyWord(h, piece, headerOffset+frameOffsetFlags, value.NewFlagSet(0))
	SetBodyWord(h, piece, headerOffset+frameOffsetMethod, method)
}

// PopFrame returns control to the calling frame, crossing back over a
// piece boundary via the lid pointers saved by PushFrame if the current
// frame was the first one opened in its piece. Returns false if there
// is no caller (the current frame is already a piece's synthetic
// bottom, i.e. the stack is exhausted).
func PopFrame(h *heap.Heap, s value.Value) bool {
	piece := TopPiece(h, s)
	headerOffset := topHeaderOffset(h, s)
	prevFP := int(BodyWord(h, piece, headerOffset+frameOffsetPrevFP).Int64())

	if prevFP >= 0 {
		setTopHeaderOffset(h, s, prevFP)
		setTopStackOffset(h, s, headerOffset)
		return true
	}

	prevPiece := PiecePrev(h, piece)
	if !prevPiece.IsHeapObject() {
		return false
	}
	setTopPiece(h, s, prevPiece)
	setTopHeaderOffset(h, s, PieceLidFrame(h, prevPiece))
	setTopStackOffset(h, s, PieceLidStackPointer(h, prevPiece))
	return true
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyStack,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			topPiece := h.Get(addr + stackFieldTopPiece)
			if !topPiece.IsHeapObject() {
				return fmt.Errorf("stack at %d has non-heap top piece", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<stack top-offset=%d>", h.Get(addr+stackFieldTopStackOffset).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: stackWords, ValueOffset: stackFieldTopPiece}
		},
	})
}
