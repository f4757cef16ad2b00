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

// Genus identifies what kind of derived object an anchor describes — a
// stack frame cursor, a barrier, or a field view into a host object.
type Genus uint8

const (
	GenusStackPieceCursor Genus = iota
	GenusEscapeSection
	GenusEnsureSection
	GenusSignalHandlerSection
	GenusBlockSection
	GenusFieldView
)

const (
	genusBits  = 8
	genusMask  = uint64(1)<<genusBits - 1
	anchorBits = payloadBits - genusBits
	// AnchorOffsetLimit bounds how far past its host a derived object's
	// offset may point; offsets are always nonnegative since derived
	// objects live inside or immediately after their host's words.
	AnchorOffsetLimit = uint64(1) << (anchorBits - 1)
)

// NewDerivedObject packs a genus and the word offset from the start of
// the anchor's own storage to its host object's header. The GC walks
// derived objects by re-deriving this offset against wherever the host
// was relocated to, rather than chasing a second live pointer.
func NewDerivedObject(addr Address, genus Genus, hostOffset uint64) Value {
	anchor := hostOffset<<genusBits | uint64(genus)&genusMask
	_ = addr // the derived object's own address is carried by the caller's slot, not the anchor
	return fromPayload(DomainDerivedObject, anchor)
}

func (v Value) IsDerivedObject() bool { return v.Domain() == DomainDerivedObject }

// DerivedAnchor decodes the (genus, host offset) pair. Callers must
// check IsDerivedObject() first.
func (v Value) DerivedAnchor() (Genus, uint64) {
	anchor := v.payload()
	return Genus(anchor & genusMask), anchor >> genusBits
}
