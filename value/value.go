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

package value

import "fmt"

// Address is a word index into a heap.Space. Objects are relocated by
// copying words and rewriting every Value that addresses them; nothing
// in this package ever holds a native pointer into heap storage.
type Address uint64

// Value is the tagged 64-bit word. Layout: bits [0:3) are the Domain,
// the remaining 61 bits are the payload, interpreted per-domain.
type Value uint64

const payloadBits = 64 - domainBits

func (v Value) Domain() Domain { return Domain(uint64(v) & domainMask) }

func (v Value) payload() uint64 { return uint64(v) >> domainBits }

func fromPayload(d Domain, payload uint64) Value {
	return Value(payload<<domainBits | uint64(d))
}

// NewInteger wraps a machine integer as a tagged Integer value. Values
// outside the representable range are silently truncated to payloadBits;
// integers are small and signed, never boxed.
func NewInteger(n int64) Value {
	return fromPayload(DomainInteger, uint64(n)&(uint64(1)<<payloadBits-1))
}

// Int64 returns the sign-extended integer payload. Callers must check
// Domain() == DomainInteger first.
func (v Value) Int64() int64 {
	shifted := int64(uint64(v)) >> domainBits
	return shifted
}

func (v Value) IsInteger() bool { return v.Domain() == DomainInteger }

// NewHeapObject tags a word address as pointing at a heap object header.
func NewHeapObject(addr Address) Value {
	return fromPayload(DomainHeapObject, uint64(addr))
}

func (v Value) IsHeapObject() bool { return v.Domain() == DomainHeapObject }

// HeapAddress returns the word address. Callers must check
// IsHeapObject() first.
func (v Value) HeapAddress() Address { return Address(v.payload()) }

// NewMovedObject tags a forwarding address left behind by the collector
// in a from-space object's header slot.
func NewMovedObject(addr Address) Value {
	return fromPayload(DomainMovedObject, uint64(addr))
}

func (v Value) IsMovedObject() bool { return v.Domain() == DomainMovedObject }

func (v Value) ForwardAddress() Address { return Address(v.payload()) }

// Equal compares two Values by their raw encoding. Identity comparison
// for heap objects is only meaningful relative to a single space — the
// caller is responsible for comparing post-GC values within the same
// generation.
func (v Value) Equal(other Value) bool { return v == other }

func (v Value) String() string {
	switch d := v.Domain(); d {
	case DomainInteger:
		return fmt.Sprintf("%d", v.Int64())
	case DomainHeapObject:
		return fmt.Sprintf("#<heap@%d>", v.HeapAddress())
	case DomainDerivedObject:
		g, off := v.DerivedAnchor()
		return fmt.Sprintf("#<derived genus=%d host+%d>", g, off)
	case DomainMovedObject:
		return fmt.Sprintf("#<moved->%d>", v.ForwardAddress())
	case DomainCondition:
		return v.String_ConditionDetail()
	case DomainCustomTagged:
		return v.describeCustomTagged()
	default:
		return fmt.Sprintf("#<%s %#x>", d, v.payload())
	}
}
