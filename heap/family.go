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

// Family is the closed set of object shapes the heap knows how to
// validate, hash, compare, print and relocate. Adding a family means
// adding a case here and registering a Behavior in an init() —
// AssertComplete panics at startup if any Family is left without one,
// so an omission fails the first run rather than surfacing as a nil
// dispatch later.
type Family uint8

const (
	FamilySpecies Family = iota
	FamilyArray
	FamilyArrayBuffer
	FamilyIdHashMap
	FamilyFifoBuffer
	FamilyBlob
	FamilyUtf8
	FamilyInstance
	FamilyCObject
	FamilyCodeBlock
	FamilyStackPiece
	FamilyStack
	FamilyTask
	FamilyProcess
	FamilyMethodspace
	FamilySignature
	FamilyParameter
	FamilyGuard
	FamilyMethod
	FamilyLambda
	FamilyBlockClosure
	FamilyPromise
	FamilyModule
	FamilyModuleFragment
	FamilyFreezeCheat
	FamilyArgumentMapTrie

	familyCount
)

func (f Family) String() string {
	names := [...]string{
		"Species", "Array", "ArrayBuffer", "IdHashMap", "FifoBuffer",
		"Blob", "Utf8", "Instance", "CObject", "CodeBlock", "StackPiece",
		"Stack", "Task", "Process", "Methodspace", "Signature",
		"Parameter", "Guard", "Method", "Lambda", "BlockClosure",
		"Promise", "Module", "ModuleFragment", "FreezeCheat",
		"ArgumentMapTrie",
	}
	if int(f) < len(names) {
		return names[f]
	}
	return "UnknownFamily"
}

// Division groups families by how their layout is determined: Compact
// families have a fixed word count, Modal families carry a variable
// tail whose length is in a header field, Instance families are driven
// entirely by their species, and CObject families have a foreign data
// region alongside their value fields.
type Division uint8

const (
	DivisionCompact Division = iota
	DivisionModal
	DivisionInstance
	DivisionCObject
)

// ObjectLayout describes how many Value-sized words an object occupies
// and where its first field begins, relative to its header.
type ObjectLayout struct {
	SizeWords   int
	ValueOffset int
}

// Behavior is the per-family vtable. Validate, TransientHash,
// IdentityCompare, Print and GetLayout are mandatory; OrderingCompare
// and PostMigrateFixup are optional (nil means "unsupported", which the
// caller surfaces as a CauseUnsupportedBehavior condition, not a panic).
type Behavior struct {
	Family   Family
	Division Division

	Validate func(h *Heap, addr value.Address) error

	// TransientHash computes an identity hash without consulting any
	// cached value, walking owned sub-objects up to depth. depth is
	// capped by the caller at CircularObjectDepthThreshold.
	TransientHash func(h *Heap, addr value.Address, depth int) uint32

	IdentityCompare func(h *Heap, a, b value.Address) bool

	// OrderingCompare is nil for families with no natural total order.
	OrderingCompare func(h *Heap, a, b value.Address) (value.Relation, bool)

	Print func(h *Heap, addr value.Address) string

	GetLayout func(h *Heap, addr value.Address) ObjectLayout

	// PostMigrateFixup runs once after an object has been relocated to
	// to-space, letting families with derived-object anchors (stack
	// pieces, barriers) rewrite offsets relative to their new home.
	PostMigrateFixup func(h *Heap, oldAddr, newAddr value.Address)

	// EnsureOwnedValuesFrozen is invoked by freeze.EnsureFrozen; nil
	// means the family owns no values needing a recursive freeze walk.
	EnsureOwnedValuesFrozen func(h *Heap, addr value.Address) error
}

const CircularObjectDepthThreshold = 1024

var behaviorTable [familyCount]*Behavior

// RegisterFamily installs b in the global behavior table. Called from
// each family package's init(). Panics on a duplicate registration —
// that is always a programming error, never a runtime condition.
func RegisterFamily(b *Behavior) {
	if behaviorTable[b.Family] != nil {
		panic(fmt.Sprintf("heap: family %s already registered", b.Family))
	}
	behaviorTable[b.Family] = b
}

// BehaviorFor returns the registered vtable for f, panicking if the
// family was never registered — this indicates a missing object
// package import, not a value the caller should recover from.
func BehaviorFor(f Family) *Behavior {
	b := behaviorTable[f]
	if b == nil {
		panic(fmt.Sprintf("heap: no behavior registered for family %s", f))
	}
	return b
}

// AssertComplete panics if any Family in the closed enum has no
// registered behavior. Called once from runtime.NewRuntime after all
// object packages have had a chance to register themselves.
func AssertComplete() {
	for f := Family(0); f < familyCount; f++ {
		if behaviorTable[f] == nil {
			panic(fmt.Sprintf("heap: family %s has no registered behavior", f))
		}
	}
}
