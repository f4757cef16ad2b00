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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

func TestUtf8RoundTrip(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	v, cond := NewUtf8(h, value.Null, "hello, neutrino")
	require.False(t, cond.IsCondition())
	require.Equal(t, "hello, neutrino", Utf8String(h, v))
	require.Equal(t, len("hello, neutrino"), Utf8Length(h, v))
}

func TestUtf8Empty(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	v, cond := NewUtf8(h, value.Null, "")
	require.False(t, cond.IsCondition())
	require.Equal(t, "", Utf8String(h, v))
}

func TestInstanceFields(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	inst, cond := NewInstance(h, value.Null, value.Null, 4)
	require.False(t, cond.IsCondition())

	key := value.NewAsciiCharacter('x')
	cond = InstanceSetField(h, value.Null, inst, key, value.NewInteger(7))
	require.False(t, cond.IsCondition())

	got, ok := InstanceGetField(h, inst, key)
	require.True(t, ok)
	require.Equal(t, int64(7), got.Int64())
}

func TestInstanceSetFieldRequiresMutable(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	inst, _ := NewInstance(h, value.Null, value.Null, 4)
	freeze.EnsureShallowFrozen(h, inst)
	cond := InstanceSetField(h, value.Null, inst, value.NewAsciiCharacter('x'), value.NewInteger(1))
	require.True(t, cond.IsCondition())
	require.Equal(t, value.CauseInvalidModeChange, cond.Cause())
}

func TestCObjectDataAndValueRegions(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	obj, cond := NewCObject(h, value.Null, 16, 2)
	require.False(t, cond.IsCondition())

	cond = CObjectSetDataWord(h, obj, 0, value.NewInteger(0xdead))
	require.False(t, cond.IsCondition())
	require.Equal(t, int64(0xdead), CObjectDataWord(h, obj, 0).Int64())

	cond = CObjectSetValue(h, obj, 1, value.NewInteger(99))
	require.False(t, cond.IsCondition())
	got, cond := CObjectGetValue(h, obj, 1)
	require.False(t, cond.IsCondition())
	require.Equal(t, int64(99), got.Int64())

	_, cond = CObjectGetValue(h, obj, 5)
	require.True(t, cond.IsCondition())
}

func TestCodeBlockFields(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	bytecode, _ := NewBlob(h, value.Null, []byte{0x01, 0x02})
	pool, _ := NewArray(h, value.Null, 2, value.Null)
	ArraySet(h, pool, 0, value.NewInteger(1))
	ArraySet(h, pool, 1, value.NewInteger(2))

	cb, cond := NewCodeBlock(h, value.Null, bytecode, pool, 3, 1)
	require.False(t, cond.IsCondition())
	require.Equal(t, 3, CodeBlockHighWaterMark(h, cb))
	require.Equal(t, 1, CodeBlockArgCount(h, cb))

	got, cond := CodeBlockPoolValue(h, cb, 1)
	require.False(t, cond.IsCondition())
	require.Equal(t, int64(2), got.Int64())
}
