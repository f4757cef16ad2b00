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
	"fmt"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// Instance is a user-type value: its species carries the type identity
// (per-type instance species, DivisionInstance) and its single field is
// an IdHashMap holding the instance's named fields. Field access goes
// through the map rather than fixed offsets because instance shapes are
// determined by user-level "deffield" declarations the core never sees
// statically.
const (
	instanceFieldMap = heap.HeaderWords + 0
	instanceWords    = heap.HeaderWords + 1
)

func NewInstance(h *heap.Heap, species value.Value, mapSpecies value.Value, initialFieldCapacity int) (value.Value, value.Value) {
	fields, cond := NewIdHashMap(h, mapSpecies, initialFieldCapacity)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(instanceWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+instanceFieldMap, fields)
	return value.NewHeapObject(addr), value.Value(0)
}

func InstanceFields(h *heap.Heap, v value.Value) value.Value {
	return h.Get(v.HeapAddress() + instanceFieldMap)
}

func InstanceGetField(h *heap.Heap, v value.Value, key value.Value) (value.Value, bool) {
	return IdHashMapGet(h, InstanceFields(h, v), key)
}

// InstanceSetField writes through to the field map, replacing the
// instance's cached map reference if the map had to resize.
func InstanceSetField(h *heap.Heap, mapSpecies, v, key, val value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	grown, cond := IdHashMapSet(h, mapSpecies, InstanceFields(h, v), key, val)
	if cond.IsCondition() {
		return cond
	}
	h.Set(v.HeapAddress()+instanceFieldMap, grown)
	return value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyInstance,
		Division: heap.DivisionInstance,
		Validate: func(h *heap.Heap, addr value.Address) error {
			fields := h.Get(addr + instanceFieldMap)
			if !fields.IsHeapObject() {
				return fmt.Errorf("instance at %d has non-heap field map", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			species := h.SpeciesOf(addr)
			return uint32(species.HeapAddress()) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			fam := h.SpeciesFamily(h.SpeciesOf(addr).HeapAddress())
			return fmt.Sprintf("#<instance of %s>", fam)
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: instanceWords, ValueOffset: instanceFieldMap}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			if cond := freeze.EnsureFrozen(h, h.Get(addr+instanceFieldMap)); cond.IsCondition() {
				return fmt.Errorf("instance fields: %s", cond)
			}
			return nil
		},
	})
}
