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

// Mode is a point in the Fluid < Mutable < Frozen < DeepFrozen lattice.
// Every heap object carries one in its header's mode word; immediate
// values (spec: Integer/CustomTagged/Condition) are implicitly
// DeepFrozen and never have a mode word at all.
type Mode uint8

const (
	ModeFluid Mode = iota
	ModeMutable
	ModeFrozen
	ModeDeepFrozen
)

func (m Mode) String() string {
	switch m {
	case ModeFluid:
		return "Fluid"
	case ModeMutable:
		return "Mutable"
	case ModeFrozen:
		return "Frozen"
	case ModeDeepFrozen:
		return "DeepFrozen"
	default:
		return "UnknownMode"
	}
}

// AtLeast reports whether m is m or a stricter mode than other.
func (m Mode) AtLeast(other Mode) bool { return m >= other }

const modeBits = 2

// GetMode reads addr's current mode. Callers outside this package
// should prefer freeze.ModeOf, which also accounts for freeze-cheat
// cells that report DeepFrozen unconditionally.
func (h *Heap) GetMode(addr value.Address) Mode {
	return Mode(h.modeWord(addr).Int64() & (1<<modeBits - 1))
}

// SetModeUnchecked overwrites addr's mode word with no validation that
// the transition is legal or that owned values have been frozen first —
// the freeze package is the only caller allowed to use this directly,
// after it has done that work.
func (h *Heap) SetModeUnchecked(addr value.Address, m Mode) {
	flags := h.modeWord(addr).Int64() &^ (1<<modeBits - 1)
	h.setModeWord(addr, value.NewInteger(flags|int64(m)))
}
