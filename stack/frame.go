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
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// Frame is the interpreter's working cursor into a live activation: the
// piece it lives in, the word offset (relative to the piece body) of
// its header, the current stack/limit offsets, pc, and flags. It is a
// transient Go value — "opening" a frame reads these fields out of the
// piece's storage, "closing" writes pc/sp/flags back so the frame can
// be suspended and resumed later exactly where it left off.
type Frame struct {
	Piece        value.Value
	HeaderOffset int
	StackOffset  int // one past the last pushed stack slot, relative to piece body
	LimitOffset  int // capacity ceiling for this frame's slots
	PC           int
	Flags        uint32
}

func frameHeaderOffset(h *heap.Heap, f Frame) int { return f.HeaderOffset }

// OpenBottom materializes the Frame cursor for a piece's synthetic
// bottom frame.
func OpenBottom(h *heap.Heap, piece value.Value) Frame {
	return Frame{
		Piece:        piece,
		HeaderOffset: 0,
		StackOffset:  FrameHeaderWords,
		LimitOffset:  PieceCapacity(h, piece),
		PC:           0,
		Flags:        FlagSynthetic,
	}
}

// Open reads the frame whose header starts at headerOffset words into
// piece, restoring pc/flags from storage. stackOffset/limitOffset are
// supplied by the caller (the stack model tracks the live top via
// Stack.TopStackOffset rather than storing it per-frame, since only
// the topmost frame of the topmost piece is ever live at once).
func Open(h *heap.Heap, piece value.Value, headerOffset, stackOffset, limitOffset int) Frame {
	pc := int(BodyWord(h, piece, headerOffset+frameOffsetPC).Int64())
	flags := BodyWord(h, piece, headerOffset+frameOffsetFlags).FlagSetBits()
	return Frame{
		Piece:        piece,
		HeaderOffset: headerOffset,
		StackOffset:  stackOffset,
		LimitOffset:  limitOffset,
		PC:           pc,
		Flags:        flags,
	}
}

// Close writes pc and flags back into the piece, suspending the frame
// so a later Open of the same header offset resumes exactly here.
func Close(h *heap.Heap, f Frame) {
	SetBodyWord(h, f.Piece, f.HeaderOffset+frameOffsetPC, value.NewInteger(int64(f.PC)))
	SetBodyWord(h, f.Piece, f.HeaderOffset+frameOffsetFlags, value.NewFlagSet(f.Flags))
}

func (f Frame) CodeBlock(h *heap.Heap) value.Value {
	return BodyWord(h, f.Piece, f.HeaderOffset+frameOffsetCodeBlock)
}

// Method returns the method this frame is executing, or Null for
// top-level and synthetic frames.
func (f Frame) Method(h *heap.Heap) value.Value {
	return BodyWord(h, f.Piece, f.HeaderOffset+frameOffsetMethod)
}

func (f Frame) PrevFrameOffset(h *heap.Heap) int {
	return int(BodyWord(h, f.Piece, f.HeaderOffset+frameOffsetPrevFP).Int64())
}

func (f Frame) HasFlag(bit uint) bool { return f.Flags&(1<<bit) != 0 }

func (f *Frame) Push(h *heap.Heap, v value.Value) bool {
	if f.StackOffset >= f.LimitOffset {
		return false
	}
	SetBodyWord(h, f.Piece, f.StackOffset, v)
	f.StackOffset++
	return true
}

func (f *Frame) Pop(h *heap.Heap) value.Value {
	f.StackOffset--
	return BodyWord(h, f.Piece, f.StackOffset)
}

func (f Frame) Peek(h *heap.Heap, depthFromTop int) value.Value {
	return BodyWord(h, f.Piece, f.StackOffset-1-depthFromTop)
}

// IsSynthetic reports whether this frame is a piece's StackPieceEmpty
// bottom frame — the interpreter must never execute at one; it exists
// only as a caller for the lowest real frame and as a GC/debug marker.
func (f Frame) IsSynthetic() bool { return f.HasFlag(0) }
