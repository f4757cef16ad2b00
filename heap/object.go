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

import "github.com/neutrino-rt/neutrino/value"

// Every heap object begins with two header words: the species pointer
// and a mode/flags word. Families add their own fields starting at
// ValueOffset, which for ordinary objects is HeaderWords.
const (
	headerSpeciesWord = 0
	headerModeWord    = 1
	HeaderWords       = 2
)

// SpeciesOf returns the species pointer stored in addr's header. During
// a collection this word may instead hold a MovedObject forwarding
// value — callers mid-GC must check that themselves.
func (h *Heap) SpeciesOf(addr value.Address) value.Value {
	return h.active().Get(addr + headerSpeciesWord)
}

func (h *Heap) setSpecies(addr value.Address, species value.Value) {
	h.active().Set(addr+headerSpeciesWord, species)
}

// FamilyOf resolves addr's species and returns the family it declares.
// addr must be a live HeapObject address (not itself a Species — a
// Species' own family is always FamilySpecies, found via SpeciesSpecies
// self-reference during bootstrap).
func (h *Heap) FamilyOf(addr value.Address) Family {
	species := h.SpeciesOf(addr)
	return h.SpeciesFamily(species.HeapAddress())
}

func (h *Heap) modeWord(addr value.Address) value.Value {
	return h.active().Get(addr + headerModeWord)
}

func (h *Heap) setModeWord(addr value.Address, v value.Value) {
	h.active().Set(addr+headerModeWord, v)
}

// Species layout, starting at HeaderWords (a Species is itself a heap
// object whose own species is the singleton SpeciesSpecies).
const (
	speciesFieldFamily   = HeaderWords + 0
	speciesFieldDivision = HeaderWords + 1
	speciesFieldBaseRoot = HeaderWords + 2
	speciesFieldProtocol = HeaderWords + 3
	speciesWords         = HeaderWords + 4
)

// AllocateSpecies creates a new species descriptor object. baseRoot is
// value.Null for a species with no sibling (the usual case); instance
// species use it to find their Frozen/DeepFrozen counterpart on a mode
// transition, per the modal division's sibling-species scheme.
func (h *Heap) AllocateSpecies(selfSpecies value.Value, family Family, division Division, baseRoot value.Value) (value.Address, value.Value) {
	addr, ok := h.active().TryAllocate(speciesWords)
	if !ok {
		return 0, value.Value(0)
	}
	h.setSpecies(addr, selfSpecies)
	h.setModeWord(addr, value.NewInteger(0))
	h.active().Set(addr+speciesFieldFamily, value.NewInteger(int64(family)))
	h.active().Set(addr+speciesFieldDivision, value.NewInteger(int64(division)))
	h.active().Set(addr+speciesFieldBaseRoot, baseRoot)
	h.active().Set(addr+speciesFieldProtocol, value.Null)
	return addr, value.NewHeapObject(addr)
}

func (h *Heap) SpeciesFamily(addr value.Address) Family {
	return Family(h.active().Get(addr + speciesFieldFamily).Int64())
}

func (h *Heap) SpeciesDivision(addr value.Address) Division {
	return Division(h.active().Get(addr + speciesFieldDivision).Int64())
}

func (h *Heap) SpeciesBaseRoot(addr value.Address) value.Value {
	return h.active().Get(addr + speciesFieldBaseRoot)
}

func (h *Heap) SpeciesProtocol(addr value.Address) value.Value {
	return h.active().Get(addr + speciesFieldProtocol)
}

func (h *Heap) SetSpeciesProtocol(addr value.Address, protocol value.Value) {
	h.active().Set(addr+speciesFieldProtocol, protocol)
}
