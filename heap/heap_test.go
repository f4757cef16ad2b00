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

package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/value"
)

func TestSpaceBumpAllocator(t *testing.T) {
	s := NewSpace(8)
	a, ok := s.TryAllocate(5)
	require.True(t, ok)
	require.Equal(t, value.Address(0), a)
	b, ok := s.TryAllocate(3)
	require.True(t, ok)
	require.Equal(t, value.Address(5), b)
	_, ok = s.TryAllocate(1)
	require.False(t, ok)
}

func newBootstrapHeap(t *testing.T, words int) (*Heap, value.Value) {
	h := NewHeap(words, nil, nil)
	selfAddr, _ := h.to.TryAllocate(speciesWords)
	self := value.NewHeapObject(selfAddr)
	h.setSpecies(selfAddr, self)
	h.setModeWord(selfAddr, value.NewInteger(0))
	h.to.Set(selfAddr+speciesFieldFamily, value.NewInteger(int64(FamilySpecies)))
	h.to.Set(selfAddr+speciesFieldDivision, value.NewInteger(int64(DivisionCompact)))
	h.to.Set(selfAddr+speciesFieldBaseRoot, value.Null)
	h.to.Set(selfAddr+speciesFieldProtocol, value.Null)
	return h, self
}

func TestCollectRelocatesRoot(t *testing.T) {
	h, self := newBootstrapHeap(t, 64)

	addr, speciesVal := h.AllocateSpecies(self, FamilyArray, DivisionInstance, value.Null)
	require.NotEqual(t, value.Address(0), addr)

	root := speciesVal
	h.RootProvider = func() []*value.Value { return []*value.Value{&root} }

	h.Collect()

	require.True(t, root.IsHeapObject())
	require.Equal(t, FamilyArray, h.SpeciesFamily(root.HeapAddress()))
}

func TestWeakTrackerClearedWhenUnreachable(t *testing.T) {
	h, self := newBootstrapHeap(t, 64)
	addr, _ := h.AllocateSpecies(self, FamilyArray, DivisionInstance, value.Null)

	tr := h.Track(addr, TrackerWeak)
	h.RootProvider = func() []*value.Value { return nil }

	h.Collect()
	require.True(t, tr.cleared)
}

func TestFuzzerTriggersWithinSpread(t *testing.T) {
	f := NewFuzzer(2, 10, 42)
	triggered := 0
	gap := 0
	for i := 0; i < 1000; i++ {
		gap++
		if f.ShouldFuzz() {
			triggered++
			// min=2, mean=10: each interval is 2 + Intn(16), i.e. in [2, 17].
			require.GreaterOrEqual(t, gap, 2)
			require.LessOrEqual(t, gap, 17)
			gap = 0
		}
	}
	require.Greater(t, triggered, 0)
}
