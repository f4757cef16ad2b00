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

package freeze

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

func newTestHeap(t *testing.T) (*heap.Heap, value.Value) {
	h := heap.NewHeap(256, nil, nil)
	self, selfVal := h.AllocateSpecies(value.Value(0), heap.FamilySpecies, heap.DivisionCompact, value.Null)
	selfSpecies := value.NewHeapObject(self)
	h.Set(self, selfSpecies) // self-loop
	_ = selfVal
	return h, selfSpecies
}

func TestModeLatticeProgression(t *testing.T) {
	h, self := newTestHeap(t)
	addr, v := h.AllocateSpecies(self, heap.FamilyArray, heap.DivisionInstance, value.Null)
	require.Equal(t, heap.ModeFluid, h.GetMode(addr))

	require.False(t, EnsureShallowFrozen(h, v).IsCondition())
	require.True(t, IsFrozen(h, v))
	require.False(t, IsDeepFrozen(h, v))
}

func TestValidateDeepFrozenRejectsMutable(t *testing.T) {
	h, self := newTestHeap(t)
	addr, v := h.AllocateSpecies(self, heap.FamilyArray, heap.DivisionInstance, value.Null)
	_, err := ValidateDeepFrozen(h, v)
	require.Error(t, err)
	require.Equal(t, heap.ModeFluid, h.GetMode(addr))
}

func TestValidateDeepFrozenPromotesFrozenGraph(t *testing.T) {
	h, self := newTestHeap(t)
	addr, v := h.AllocateSpecies(self, heap.FamilyArray, heap.DivisionInstance, value.Null)
	EnsureShallowFrozen(h, v)
	cond, err := ValidateDeepFrozen(h, v)
	require.NoError(t, err)
	require.False(t, cond.IsCondition())
	require.Equal(t, heap.ModeDeepFrozen, h.GetMode(addr))
}

func TestFreezeCheatAlwaysDeepFrozen(t *testing.T) {
	h, self := newTestHeap(t)
	_, cheatSpecies := h.AllocateSpecies(self, heap.FamilyFreezeCheat, heap.DivisionCompact, value.Null)
	_, cell := AllocateFreezeCheat(h, cheatSpecies, value.NewInteger(1))
	require.True(t, IsDeepFrozen(h, cell))
	SetPayload(h, cell, value.NewInteger(2))
	require.Equal(t, int64(2), Payload(h, cell).Int64())
	require.True(t, IsDeepFrozen(h, cell))
}
