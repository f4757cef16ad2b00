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

package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/interp"
	"github.com/neutrino-rt/neutrino/value"
)

func TestAssemblerEmitsPushAndTracksHighWaterMark(t *testing.T) {
	a := NewAssembler(Bottom, false)
	a.Push(value.NewInteger(1))
	a.Push(value.NewInteger(2))
	a.Pop(1)
	require.Equal(t, 2, a.highWaterMark)
	require.Equal(t, 1, a.stackHeight)
}

func TestAssemblerInternsSharedConstants(t *testing.T) {
	a := NewAssembler(Bottom, false)
	a.Push(value.NewInteger(42))
	a.Push(value.NewInteger(42))
	require.Len(t, a.pool, 1)
}

func TestAssemblerFlushProducesCodeBlock(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	a := NewAssembler(Bottom, false)
	a.Push(value.NewInteger(1))
	a.Push(value.NewInteger(2))
	a.Return()

	cb, cond := a.Flush(h, value.Null, value.Null, value.Null, 0)
	require.False(t, cond.IsCondition())

	bytecode := make([]byte, len(a.stream)*2)
	require.NotPanics(t, func() {
		_ = cb
	})
	_ = bytecode
}

func TestAssemblerExpensiveCheckInsertsPseudoOp(t *testing.T) {
	a := NewAssembler(Bottom, true)
	a.Push(value.NewInteger(1))
	require.Equal(t, interp.OpPush, interp.Opcode(a.stream[0]))
	require.Equal(t, interp.OpCheckStackHeight, interp.Opcode(a.stream[2]))
}

func TestLambdaScopeCapturesOuterVariable(t *testing.T) {
	outer := NewMapScope(Bottom)
	sym := value.NewAsciiCharacter('x')
	outer.Define(sym, Binding{Type: BindLocal, Data: 3})

	ls := NewLambdaScope(outer)
	b, ok := ls.Locals().Lookup(sym)
	require.True(t, ok)
	require.Equal(t, BindLambdaCaptured, b.Type)
	require.Equal(t, uint16(0), b.Data)
	require.Len(t, ls.Captures(), 1)
}

func TestBlockScopeRefractsAndIncrementsDepth(t *testing.T) {
	outer := NewMapScope(Bottom)
	sym := value.NewAsciiCharacter('y')
	outer.Define(sym, Binding{Type: BindLocal, Data: 1})

	bs := NewBlockScope(outer)
	b, ok := bs.Locals().Lookup(sym)
	require.True(t, ok)
	require.Equal(t, BindLocal, b.Type)
	require.Equal(t, uint16(1), b.BlockDepth)
}

func TestBindingEncodeDecodeRoundTrip(t *testing.T) {
	b := Binding{Type: BindLambdaCaptured, Data: 7, BlockDepth: 2}
	got := DecodeBinding(b.Encode())
	require.Equal(t, b, got)
}
