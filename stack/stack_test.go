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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// newTestHeap bootstraps just enough of a species graph for stack
// objects to be collectible: a self-describing meta species plus one
// species each for Stack and StackPiece.
func newTestHeap(t *testing.T, words int) (*heap.Heap, value.Value, value.Value) {
	t.Helper()
	h := heap.NewHeap(words, nil, nil)
	metaAddr, meta := h.AllocateSpecies(value.Value(0), heap.FamilySpecies, heap.DivisionCompact, value.Null)
	h.Set(metaAddr, meta)
	_, stackSp := h.AllocateSpecies(meta, heap.FamilyStack, heap.DivisionCompact, value.Null)
	_, pieceSp := h.AllocateSpecies(meta, heap.FamilyStackPiece, heap.DivisionModal, value.Null)
	return h, stackSp, pieceSp
}

func TestPushPopFrameWithinOnePiece(t *testing.T) {
	h, stackSp, pieceSp := newTestHeap(t, 1<<16)
	s, cond := NewStack(h, stackSp, pieceSp, 64)
	require.False(t, cond.IsCondition())

	f := CurrentFrame(h, s)
	require.True(t, f.Push(h, value.NewInteger(1)))
	require.True(t, f.Push(h, value.NewInteger(2)))
	Suspend(h, s, f)

	cond = PushFrame(h, s, pieceSp, value.Null, value.Null, 2, 4)
	require.False(t, cond.IsCondition())

	callee := CurrentFrame(h, s)
	require.True(t, callee.Push(h, value.NewInteger(3)))
	require.Equal(t, value.NewInteger(3), callee.Peek(h, 0))
	Suspend(h, s, callee)

	require.True(t, PopFrame(h, s))
	caller := CurrentFrame(h, s)
	require.Equal(t, value.NewInteger(2), caller.Peek(h, 0))
}

func TestPushFrameAllocatesNewPieceWhenFull(t *testing.T) {
	h, stackSp, pieceSp := newTestHeap(t, 1<<20)
	s, _ := NewStack(h, stackSp, pieceSp, FrameHeaderWords+2) // barely room for the bottom frame

	f := CurrentFrame(h, s)
	require.True(t, f.Push(h, value.NewInteger(7)))
	Suspend(h, s, f)

	firstPiece := TopPiece(h, s)
	cond := PushFrame(h, s, pieceSp, value.Null, value.Null, 1, 200)
	require.False(t, cond.IsCondition())
	require.NotEqual(t, firstPiece, TopPiece(h, s))

	require.True(t, PopFrame(h, s))
	require.Equal(t, firstPiece, TopPiece(h, s))
	caller := CurrentFrame(h, s)
	require.Equal(t, value.NewInteger(7), caller.Peek(h, 0))
}

func TestBarrierPushDisposeChain(t *testing.T) {
	h, stackSp, pieceSp := newTestHeap(t, 1<<16)
	s, _ := NewStack(h, stackSp, pieceSp, 128)

	_, ok := TopBarrier(h, s)
	require.False(t, ok)

	ensure := PushEnsure(h, s, value.NewInteger(42))
	handler := PushSignalHandler(h, s, value.NewInteger(99), 0, 0, 0)

	top, ok := TopBarrier(h, s)
	require.True(t, ok)
	require.Equal(t, handler, top)
	require.Equal(t, value.GenusSignalHandlerSection, top.Genus(h))
	require.Equal(t, int64(99), top.SignalMethodspace(h).Int64())

	Dispose(h, s, handler)
	top, ok = TopBarrier(h, s)
	require.True(t, ok)
	require.Equal(t, ensure, top)
	require.Equal(t, int64(42), top.EnsurerCodeBlock(h).Int64())

	Dispose(h, s, ensure)
	_, ok = TopBarrier(h, s)
	require.False(t, ok)
}

func TestBarrierSurvivesGC(t *testing.T) {
	h, stackSp, pieceSp := newTestHeap(t, 1<<16)
	s, _ := NewStack(h, stackSp, pieceSp, 128)
	PushEnsure(h, s, value.NewInteger(7))

	root := s
	h.RootProvider = func() []*value.Value { return []*value.Value{&root} }
	oldPiece := TopPiece(h, s)

	h.Collect()

	s = root
	require.NotEqual(t, oldPiece, TopPiece(h, s), "collection should have relocated the stack and its piece")

	piece := TopPiece(h, s)
	b, ok := TopBarrier(h, s)
	require.True(t, ok)
	require.Equal(t, piece, b.Host())
	require.Equal(t, value.GenusEnsureSection, b.Genus(h))
	require.Equal(t, int64(7), b.EnsurerCodeBlock(h).Int64())
}

func TestDerivedAnchorOffsetInvariantAcrossGC(t *testing.T) {
	h, stackSp, pieceSp := newTestHeap(t, 1<<16)
	s, _ := NewStack(h, stackSp, pieceSp, 128)
	b := PushEnsure(h, s, value.NewInteger(1))
	_, offBefore := BodyWord(h, b.Piece, b.Offset+barrierOffsetAnchor).DerivedAnchor()

	root := s
	h.RootProvider = func() []*value.Value { return []*value.Value{&root} }
	h.Collect()
	s = root

	after, ok := TopBarrier(h, s)
	require.True(t, ok)
	_, offAfter := BodyWord(h, after.Piece, after.Offset+barrierOffsetAnchor).DerivedAnchor()
	require.Equal(t, offBefore, offAfter, "anchor offset must be invariant under relocation")
	require.Equal(t, b.Offset, after.Offset)
}
