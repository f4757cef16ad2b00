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

// Package value implements the tagged 64-bit word that is the universal
// currency of the runtime: every local variable, stack slot, field and
// argument is one of these words, never a boxed interface.
package value

// Domain occupies the low bits of every Value and tells the reader how
// to interpret the rest of the word without touching the heap.
type Domain uint8

const (
	DomainInteger Domain = iota
	DomainHeapObject
	DomainDerivedObject
	DomainCustomTagged
	DomainCondition
	DomainMovedObject

	domainCount
	domainBits = 3
	domainMask = uint64(1)<<domainBits - 1
)

func (d Domain) String() string {
	switch d {
	case DomainInteger:
		return "Integer"
	case DomainHeapObject:
		return "HeapObject"
	case DomainDerivedObject:
		return "DerivedObject"
	case DomainCustomTagged:
		return "CustomTagged"
	case DomainCondition:
		return "Condition"
	case DomainMovedObject:
		return "MovedObject"
	default:
		return "UnknownDomain"
	}
}

// IsImmediate reports whether values of this domain never point into the
// heap, and are therefore implicitly DeepFrozen.
func (d Domain) IsImmediate() bool {
	return d == DomainInteger || d == DomainCustomTagged || d == DomainCondition
}
