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

// A barrier is a derived object living inside its host piece's own
// storage, pushed onto the live frame's stack area exactly like an
// ordinary value so the GC relocates it together with its host piece.
// Layout, relative to the barrier's own first word:
//
//	0: anchor          - DerivedObject-domain anchor (genus + host offset)
//	1: prevBarrierPiece - Value, the piece of the next-outer barrier (Null at the bottom)
//	2: prevBarrierWord  - body-relative offset of the next-outer barrier within prevBarrierPiece
//	3: payload0         - genus-specific (ensurer code block / methodspace / saved frame offset)
//	4: payload1         - genus-specific (EscapeSection resume pc)
//	5: payload2         - genus-specific (EscapeSection resume frame header offset)
//	6: payload3         - genus-specific (EscapeSection resume stack offset)
const (
	barrierOffsetAnchor     = 0
	barrierOffsetPrevPiece  = 1
	barrierOffsetPrevOffset = 2
	barrierOffsetPayload0   = 3
	barrierOffsetPayload1   = 4
	barrierOffsetPayload2   = 5
	barrierOffsetPayload3   = 6
	BarrierWords            = 7
)

// Barrier is the host-side (non-heap) handle to a pushed barrier: which
// piece it lives in and its body-relative word offset. Because the
// heap uses word indices rather than native pointers, this pair is how
// code "holds a derived pointer" — the piece field supplies the host
// recovery a bare interior pointer could not.
type Barrier struct {
	Piece  value.Value
	Offset int
}

func (b Barrier) Host() value.Value { return b.Piece }

func (b Barrier) Genus(h *heap.Heap) value.Genus {
	anchor := BodyWord(h, b.Piece, b.Offset+barrierOffsetAnchor)
	g, _ := anchor.DerivedAnchor()
	return g
}

// pushBarrier reserves BarrierWords on top of the stack's current frame
// and writes the anchor plus genus-specific payload, linking it in
// front of whatever barrier was previously innermost.
func pushBarrier(h *heap.Heap, s value.Value, genus value.Genus, payload [4]value.Value) Barrier {
	piece := TopPiece(h, s)
	offset := topStackOffset(h, s)

	hostOffset := uint64(pieceBodyStart + offset)
	anchor := value.NewDerivedObject(0, genus, hostOffset)
	SetBodyWord(h, piece, offset+barrierOffsetAnchor, anchor)

	prevPiece := h.Get(s.HeapAddress() + stackFieldTopBarrierPiece)
	prevOffset := h.Get(s.HeapAddress() + stackFieldTopBarrierWord)
	SetBodyWord(h, piece, offset+barrierOffsetPrevPiece, prevPiece)
	SetBodyWord(h, piece, offset+barrierOffsetPrevOffset, prevOffset)

	SetBodyWord(h, piece, offset+barrierOffsetPayload0, payload[0])
	SetBodyWord(h, piece, offset+barrierOffsetPayload1, payload[1])
	SetBodyWord(h, piece, offset+barrierOffsetPayload2, payload[2])
	SetBodyWord(h, piece, offset+barrierOffsetPayload3, payload[3])

	setTopStackOffset(h, s, offset+BarrierWords)
	h.Set(s.HeapAddress()+stackFieldTopBarrierPiece, piece)
	h.Set(s.HeapAddress()+stackFieldTopBarrierWord, value.NewInteger(int64(offset)))

	return Barrier{Piece: piece, Offset: offset}
}

// TopBarrier returns the stack's innermost installed barrier, or
// ok=false if none is installed.
func TopBarrier(h *heap.Heap, s value.Value) (Barrier, bool) {
	piece := h.Get(s.HeapAddress() + stackFieldTopBarrierPiece)
	if !piece.IsHeapObject() {
		return Barrier{}, false
	}
	offset := int(h.Get(s.HeapAddress() + stackFieldTopBarrierWord).Int64())
	return Barrier{Piece: piece, Offset: offset}, true
}

// Outer returns the barrier just outside b, walking the prev-barrier
// chain recorded at push time, or ok=false at the bottom of the chain.
func Outer(h *heap.Heap, b Barrier) (Barrier, bool) {
	prevPiece := BodyWord(h, b.Piece, b.Offset+barrierOffsetPrevPiece)
	if !prevPiece.IsHeapObject() {
		return Barrier{}, false
	}
	prevOffset := int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPrevOffset).Int64())
	return Barrier{Piece: prevPiece, Offset: prevOffset}, true
}

// PushEscape installs an EscapeSection capturing the frame to resume at
// and the pc/stack state to resume with when fired.
func PushEscape(h *heap.Heap, s value.Value, resumeHeaderOffset, resumeStackOffset, resumePC int) Barrier {
	return pushBarrier(h, s, value.GenusEscapeSection, [4]value.Value{
		value.Null,
		value.NewInteger(int64(resumePC)),
		value.NewInteger(int64(resumeHeaderOffset)),
		value.NewInteger(int64(resumeStackOffset)),
	})
}

func (b Barrier) EscapeResumePC(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload1).Int64())
}

func (b Barrier) EscapeResumeHeaderOffset(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload2).Int64())
}

func (b Barrier) EscapeResumeStackOffset(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload3).Int64())
}

// PushEnsure installs an EnsureSection wrapping a cleanup code block
// that must run on every control-transfer path crossing this barrier.
func PushEnsure(h *heap.Heap, s value.Value, ensurerCodeBlock value.Value) Barrier {
	return pushBarrier(h, s, value.GenusEnsureSection, [4]value.Value{ensurerCodeBlock, value.Null, value.Null, value.Null})
}

func (b Barrier) EnsurerCodeBlock(h *heap.Heap) value.Value {
	return BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload0)
}

// PushSignalHandler installs a SignalHandlerSection consulted by
// SignalEscape/SignalContinue lookups walking outward from the raise
// site. For an escaping signal whose handler matches, control leaves at
// the installing frame's recorded position with the handler's result on
// top, resuming at landingPC.
func PushSignalHandler(h *heap.Heap, s value.Value, methodspace value.Value, landingPC, frameHeaderOffset, stackOffset int) Barrier {
	return pushBarrier(h, s, value.GenusSignalHandlerSection, [4]value.Value{
		methodspace,
		value.NewInteger(int64(landingPC)),
		value.NewInteger(int64(frameHeaderOffset)),
		value.NewInteger(int64(stackOffset)),
	})
}

func (b Barrier) SignalMethodspace(h *heap.Heap) value.Value {
	return BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload0)
}

func (b Barrier) SignalLandingPC(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload1).Int64())
}

func (b Barrier) SignalFrameHeaderOffset(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload2).Int64())
}

func (b Barrier) SignalStackOffset(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload3).Int64())
}

// PushBlock installs a BlockSection keeping a block's enclosing frame
// alive for refracted reads (codegen's block_depth walk).
func PushBlock(h *heap.Heap, s value.Value, enclosingFrameHeaderOffset int) Barrier {
	return pushBarrier(h, s, value.GenusBlockSection, [4]value.Value{
		value.NewInteger(int64(enclosingFrameHeaderOffset)), value.Null, value.Null, value.Null,
	})
}

func (b Barrier) BlockEnclosingFrameHeaderOffset(h *heap.Heap) int {
	return int(BodyWord(h, b.Piece, b.Offset+barrierOffsetPayload0).Int64())
}

// Dispose pops s's innermost barrier, which must be b — callers only
// ever dispose the current top, escape/ensure/handler sections being
// one-shot and strictly nested — restoring the stack's top_barrier to
// whatever was previously outer.
func Dispose(h *heap.Heap, s value.Value, b Barrier) {
	outer, ok := Outer(h, b)
	if ok {
		h.Set(s.HeapAddress()+stackFieldTopBarrierPiece, outer.Piece)
		h.Set(s.HeapAddress()+stackFieldTopBarrierWord, value.NewInteger(int64(outer.Offset)))
	} else {
		h.Set(s.HeapAddress()+stackFieldTopBarrierPiece, value.Null)
		h.Set(s.HeapAddress()+stackFieldTopBarrierWord, value.NewInteger(0))
	}
}
