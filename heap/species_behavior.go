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
	"fmt"

	"github.com/neutrino-rt/neutrino/value"
)

func init() {
	RegisterFamily(&Behavior{
		Family:   FamilySpecies,
		Division: DivisionCompact,
		Validate: func(h *Heap, addr value.Address) error {
			f := h.SpeciesFamily(addr)
			if f >= familyCount {
				return fmt.Errorf("species at %d declares unknown family %d", addr, f)
			}
			return nil
		},
		TransientHash: func(h *Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *Heap, a, b value.Address) bool { return a == b },
		Print: func(h *Heap, addr value.Address) string {
			return fmt.Sprintf("#<species %s>", h.SpeciesFamily(addr))
		},
		GetLayout: func(h *Heap, addr value.Address) ObjectLayout {
			return ObjectLayout{SizeWords: speciesWords, ValueOffset: speciesFieldBaseRoot}
		},
	})
}
