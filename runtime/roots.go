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

package runtime

import (
	"github.com/pkg/errors"

	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// Roots holds every globally needed species, protocol, interned string
// and the builtin methodspace. After initialization the whole table is
// frozen and deep-frozen-validated, so the bulk of species dispatch
// reaches only frozen memory. The struct's fields are the runtime's
// root slots: the collector rewrites them in place.
type Roots struct {
	SpeciesSpecies value.Value

	ArraySpecies          value.Value
	ArrayBufferSpecies    value.Value
	IdHashMapSpecies      value.Value
	FifoBufferSpecies     value.Value
	BlobSpecies           value.Value
	Utf8Species           value.Value
	InstanceSpecies       value.Value
	CObjectSpecies        value.Value
	CodeBlockSpecies      value.Value
	StackPieceSpecies     value.Value
	StackSpecies          value.Value
	TaskSpecies           value.Value
	ProcessSpecies        value.Value
	MethodspaceSpecies    value.Value
	SignatureSpecies      value.Value
	ParameterSpecies      value.Value
	GuardSpecies          value.Value
	MethodSpecies         value.Value
	LambdaSpecies         value.Value
	BlockSpecies          value.Value
	PromiseSpecies        value.Value
	ModuleSpecies         value.Value
	ModuleFragmentSpecies value.Value
	FreezeCheatSpecies    value.Value
	ArgMapTrieSpecies     value.Value

	// The two canonical call-tag keys; immediates, kept here for
	// discoverability rather than rooting.
	SubjectKey  value.Value
	SelectorKey value.Value

	// Primary types of the non-instance value kinds, consulted by
	// Is-guard matching.
	IntegerProtocol   value.Value
	StringProtocol    value.Value
	BooleanProtocol   value.Value
	NullProtocol      value.Value
	LambdaProtocol    value.Value
	BlockProtocol     value.Value
	ConditionProtocol value.Value

	// StackBottomCode caps the absolute bottom of every task's stack.
	StackBottomCode value.Value

	BuiltinMethodspace value.Value
}

// MutableRoots holds the state that must keep mutating after the roots
// freeze — chiefly the argument-map trie root.
type MutableRoots struct {
	ArgMapTrieRoot value.Value
}

// slots enumerates every root slot for the collector.
func (r *Roots) slots() []*value.Value {
	out := []*value.Value{
		&r.SpeciesSpecies,
		&r.ArraySpecies, &r.ArrayBufferSpecies, &r.IdHashMapSpecies,
		&r.FifoBufferSpecies, &r.BlobSpecies, &r.Utf8Species,
		&r.InstanceSpecies, &r.CObjectSpecies, &r.CodeBlockSpecies,
		&r.StackPieceSpecies, &r.StackSpecies, &r.TaskSpecies,
		&r.ProcessSpecies, &r.MethodspaceSpecies, &r.SignatureSpecies,
		&r.ParameterSpecies, &r.GuardSpecies, &r.MethodSpecies,
		&r.LambdaSpecies, &r.BlockSpecies, &r.PromiseSpecies,
		&r.ModuleSpecies, &r.ModuleFragmentSpecies, &r.FreezeCheatSpecies,
		&r.ArgMapTrieSpecies,
		&r.IntegerProtocol, &r.StringProtocol, &r.BooleanProtocol,
		&r.NullProtocol, &r.LambdaProtocol, &r.BlockProtocol,
		&r.ConditionProtocol,
		&r.StackBottomCode,
		&r.BuiltinMethodspace,
	}
	return out
}

// internBox gives each interned string an addressable slot the
// collector can rewrite; Go map values are not addressable.
type internBox struct{ v value.Value }

// InternString returns the canonical Utf8 object for s, allocating and
// recording it on first use. Interned strings become part of the root
// set and are frozen with the rest of the roots.
func (rt *Runtime) InternString(s string) (value.Value, value.Value) {
	if box, ok := rt.interned[s]; ok {
		return box.v, value.Value(0)
	}
	v, cond := object.NewUtf8(rt.Heap, rt.Roots.Utf8Species, s)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	box := &internBox{v: v}
	rt.interned[s] = box
	return box.v, value.Value(0)
}

// bootstrapRoots builds the species graph and everything else the
// runtime needs before user code runs. Order matters: the
// self-describing species-species first (its header written raw before
// the accessor invariants hold), then one species per family, then the
// call-tag keys and protocol strings; the builtin methodspace is built
// later, by installBuiltins.
func bootstrapRoots(h *heap.Heap, r *Roots) error {
	metaAddr, meta := h.AllocateSpecies(value.Value(0), heap.FamilySpecies, heap.DivisionCompact, value.Null)
	if !meta.IsHeapObject() {
		return errors.New("bootstrap: species-species allocation failed")
	}
	h.Set(metaAddr, meta) // close the self-describing loop
	r.SpeciesSpecies = meta

	type familySpec struct {
		slot     *value.Value
		family   heap.Family
		division heap.Division
	}
	families := []familySpec{
		{&r.ArraySpecies, heap.FamilyArray, heap.DivisionModal},
		{&r.ArrayBufferSpecies, heap.FamilyArrayBuffer, heap.DivisionCompact},
		{&r.IdHashMapSpecies, heap.FamilyIdHashMap, heap.DivisionModal},
		{&r.FifoBufferSpecies, heap.FamilyFifoBuffer, heap.DivisionCompact},
		{&r.BlobSpecies, heap.FamilyBlob, heap.DivisionModal},
		{&r.Utf8Species, heap.FamilyUtf8, heap.DivisionModal},
		{&r.InstanceSpecies, heap.FamilyInstance, heap.DivisionInstance},
		{&r.CObjectSpecies, heap.FamilyCObject, heap.DivisionCObject},
		{&r.CodeBlockSpecies, heap.FamilyCodeBlock, heap.DivisionCompact},
		{&r.StackPieceSpecies, heap.FamilyStackPiece, heap.DivisionModal},
		{&r.StackSpecies, heap.FamilyStack, heap.DivisionCompact},
		{&r.TaskSpecies, heap.FamilyTask, heap.DivisionCompact},
		{&r.ProcessSpecies, heap.FamilyProcess, heap.DivisionCompact},
		{&r.MethodspaceSpecies, heap.FamilyMethodspace, heap.DivisionCompact},
		{&r.SignatureSpecies, heap.FamilySignature, heap.DivisionCompact},
		{&r.ParameterSpecies, heap.FamilyParameter, heap.DivisionCompact},
		{&r.GuardSpecies, heap.FamilyGuard, heap.DivisionCompact},
		{&r.MethodSpecies, heap.FamilyMethod, heap.DivisionCompact},
		{&r.LambdaSpecies, heap.FamilyLambda, heap.DivisionCompact},
		{&r.BlockSpecies, heap.FamilyBlockClosure, heap.DivisionCompact},
		{&r.PromiseSpecies, heap.FamilyPromise, heap.DivisionCompact},
		{&r.ModuleSpecies, heap.FamilyModule, heap.DivisionCompact},
		{&r.ModuleFragmentSpecies, heap.FamilyModuleFragment, heap.DivisionCompact},
		{&r.FreezeCheatSpecies, heap.FamilyFreezeCheat, heap.DivisionCompact},
		{&r.ArgMapTrieSpecies, heap.FamilyArgumentMapTrie, heap.DivisionCompact},
	}
	for _, fs := range families {
		_, sp := h.AllocateSpecies(meta, fs.family, fs.division, value.Null)
		if !sp.IsHeapObject() {
			return errors.Errorf("bootstrap: allocating %s species failed", fs.family)
		}
		*fs.slot = sp
	}

	r.SubjectKey = value.NewKey(value.KeySubjectId)
	r.SelectorKey = value.NewKey(value.KeySelectorId)

	protocols := []struct {
		slot *value.Value
		name string
	}{
		{&r.IntegerProtocol, "Integer"},
		{&r.StringProtocol, "String"},
		{&r.BooleanProtocol, "Boolean"},
		{&r.NullProtocol, "Null"},
		{&r.LambdaProtocol, "Lambda"},
		{&r.BlockProtocol, "Block"},
		{&r.ConditionProtocol, "Condition"},
	}
	for _, p := range protocols {
		v, cond := object.NewUtf8(h, r.Utf8Species, p.name)
		if cond.IsCondition() {
			return errors.Errorf("bootstrap: allocating %s protocol failed", p.name)
		}
		*p.slot = v
	}

	return nil
}

// freezeRoots freezes every root object and validates the deep-frozen
// bit across the whole table, per the initialization order of §4.10.
func (rt *Runtime) freezeRoots() error {
	h := rt.Heap
	for _, slot := range rt.Roots.slots() {
		if cond := freeze.EnsureFrozen(h, *slot); cond.IsCondition() {
			return errors.Errorf("freezing roots: %s", cond)
		}
	}
	for _, box := range rt.interned {
		if cond := freeze.EnsureFrozen(h, box.v); cond.IsCondition() {
			return errors.Errorf("freezing interned string: %s", cond)
		}
	}
	for _, slot := range rt.Roots.slots() {
		if _, err := freeze.ValidateDeepFrozen(h, *slot); err != nil {
			return errors.Wrap(err, "validating deep-frozen roots")
		}
	}
	return nil
}

// DispatchSpecies bundles the roots' species the dispatch package
// allocates with.
func (r *Roots) DispatchSpecies() dispatch.Species {
	return dispatch.Species{
		Methodspace: r.MethodspaceSpecies,
		Array:       r.ArraySpecies,
		ArrayBuffer: r.ArrayBufferSpecies,
		Map:         r.IdHashMapSpecies,
		FreezeCheat: r.FreezeCheatSpecies,
	}
}

func (r *Roots) trieSpecies() dispatch.TrieSpecies {
	return dispatch.TrieSpecies{
		Trie:  r.ArgMapTrieSpecies,
		Array: r.ArraySpecies,
		Map:   r.IdHashMapSpecies,
	}
}
