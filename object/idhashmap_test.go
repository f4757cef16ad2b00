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

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

func TestIdHashMapSetGetGrows(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	species := value.Null
	m, cond := NewIdHashMap(h, species, 4)
	require.False(t, cond.IsCondition())

	for i := 0; i < 50; i++ {
		var setCond value.Value
		m, setCond = IdHashMapSet(h, species, m, value.NewInteger(int64(i)), value.NewInteger(int64(i*i)))
		require.False(t, setCond.IsCondition())
	}

	require.Equal(t, 50, IdHashMapSize(h, m))
	for i := 0; i < 50; i++ {
		got, ok := IdHashMapGet(h, m, value.NewInteger(int64(i)))
		require.True(t, ok)
		require.Equal(t, int64(i*i), got.Int64())
	}
}

func TestIdHashMapDelete(t *testing.T) {
	h := heap.NewHeap(1<<16, nil, nil)
	species := value.Null
	m, _ := NewIdHashMap(h, species, 4)
	m, _ = IdHashMapSet(h, species, m, value.NewInteger(1), value.NewInteger(100))
	require.True(t, IdHashMapDelete(h, m, value.NewInteger(1)))
	_, ok := IdHashMapGet(h, m, value.NewInteger(1))
	require.False(t, ok)
}
