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

package dispatch

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// fixture bootstraps the minimal species graph dispatch objects need.
type fixture struct {
	h  *heap.Heap
	sp Species

	guardSp, paramSp, sigSp, methodSp value.Value
	utf8Sp, trieSp                    value.Value

	intProto, pointProto, shapeProto value.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	h := heap.NewHeap(1<<18, nil, nil)
	metaAddr, meta := h.AllocateSpecies(value.Value(0), heap.FamilySpecies, heap.DivisionCompact, value.Null)
	h.Set(metaAddr, meta)

	species := func(f heap.Family, d heap.Division) value.Value {
		_, sp := h.AllocateSpecies(meta, f, d, value.Null)
		return sp
	}
	fx := &fixture{h: h}
	fx.sp = Species{
		Methodspace: species(heap.FamilyMethodspace, heap.DivisionCompact),
		Array:       species(heap.FamilyArray, heap.DivisionModal),
		ArrayBuffer: species(heap.FamilyArrayBuffer, heap.DivisionCompact),
		Map:         species(heap.FamilyIdHashMap, heap.DivisionModal),
		FreezeCheat: species(heap.FamilyFreezeCheat, heap.DivisionCompact),
	}
	fx.guardSp = species(heap.FamilyGuard, heap.DivisionCompact)
	fx.paramSp = species(heap.FamilyParameter, heap.DivisionCompact)
	fx.sigSp = species(heap.FamilySignature, heap.DivisionCompact)
	fx.methodSp = species(heap.FamilyMethod, heap.DivisionCompact)
	fx.utf8Sp = species(heap.FamilyUtf8, heap.DivisionModal)
	fx.trieSp = species(heap.FamilyArgumentMapTrie, heap.DivisionCompact)

	fx.intProto = fx.str(t, "Integer")
	fx.pointProto = fx.str(t, "Point")
	fx.shapeProto = fx.str(t, "Shape")
	return fx
}

func (fx *fixture) str(t *testing.T, s string) value.Value {
	t.Helper()
	v, cond := object.NewUtf8(fx.h, fx.utf8Sp, s)
	require.False(t, cond.IsCondition())
	return v
}

func (fx *fixture) typeOf(v value.Value) value.Value {
	if v.IsInteger() {
		return fx.intProto
	}
	return value.Null
}

func (fx *fixture) guard(t *testing.T, gt GuardType, gv value.Value) value.Value {
	t.Helper()
	g, cond := NewGuard(fx.h, fx.guardSp, gt, gv)
	require.False(t, cond.IsCondition())
	return g
}

// method installs a (subject, selector, operand...) method into ms and
// returns it.
func (fx *fixture) method(t *testing.T, ms value.Value, subjectGuard, selector value.Value, operandGuards ...value.Value) value.Value {
	t.Helper()
	h := fx.h
	selGuard := fx.guard(t, GuardEq, selector)
	tags := []value.Value{value.NewKey(value.KeySubjectId), value.NewKey(value.KeySelectorId)}
	p0, _ := NewParameter(h, fx.paramSp, subjectGuard, 0, false)
	p1, _ := NewParameter(h, fx.paramSp, selGuard, 1, false)
	params := []value.Value{p0, p1}
	for i, g := range operandGuards {
		p, _ := NewParameter(h, fx.paramSp, g, 2+i, false)
		tags = append(tags, value.NewInteger(int64(i)))
		params = append(params, p)
	}
	sig, cond := NewSignature(h, fx.sigSp, fx.sp.Array, tags, params, len(params), false)
	require.False(t, cond.IsCondition())
	m, cond := NewMethod(h, fx.methodSp, fx.sp.FreezeCheat, sig, 0)
	require.False(t, cond.IsCondition())
	require.False(t, AddMethod(h, fx.sp, ms, sig, m).IsCondition())
	return m
}

// callData reifies a (subject, selector, operands...) call.
func (fx *fixture) callData(t *testing.T, subject, selector value.Value, operands ...value.Value) value.Value {
	t.Helper()
	entries := []TagEntry{
		{Tag: value.NewKey(value.KeySubjectId), Spec: subject},
		{Tag: value.NewKey(value.KeySelectorId), Spec: selector},
	}
	for i, v := range operands {
		entries = append(entries, TagEntry{Tag: value.NewInteger(int64(i)), Spec: v})
	}
	data, cond := BuildCallTags(fx.h, fx.sp.Array, entries)
	require.False(t, cond.IsCondition())
	return data
}

func TestCompareScoresLattice(t *testing.T) {
	require.Equal(t, value.RelationLessThan, CompareScores(ScoreIdenticalMatch, ScorePerfectIs))
	require.Equal(t, value.RelationLessThan, CompareScores(ScorePerfectIs, ScoreAnyMatch))
	require.Equal(t, value.RelationLessThan, CompareScores(ScoreAnyMatch, ScoreExtraMatch))
	require.Equal(t, value.RelationLessThan, CompareScores(ScoreIsAt(1), ScoreIsAt(3)))
	require.Equal(t, value.RelationEqual, CompareScores(ScoreIsAt(2), ScoreIsAt(2)))
	require.Equal(t, value.RelationGreaterThan, CompareScores(ScoreExtraMatch, ScoreIdenticalMatch))
}

func TestBuildCallTagsCanonicalOrder(t *testing.T) {
	fx := newFixture(t)
	other := fx.str(t, "misc")
	entries := []TagEntry{
		{Tag: other, Spec: value.NewInteger(9)},
		{Tag: value.NewInteger(1), Spec: value.NewInteger(3)},
		{Tag: value.NewKey(value.KeySelectorId), Spec: value.NewInteger(1)},
		{Tag: value.NewInteger(0), Spec: value.NewInteger(2)},
		{Tag: value.NewKey(value.KeySubjectId), Spec: value.NewInteger(0)},
	}
	tags, cond := BuildCallTags(fx.h, fx.sp.Array, entries)
	require.False(t, cond.IsCondition())

	require.Equal(t, 5, CallTagsLength(fx.h, tags))
	require.Equal(t, value.NewKey(value.KeySubjectId), CallTagsTag(fx.h, tags, 0))
	require.Equal(t, value.NewKey(value.KeySelectorId), CallTagsTag(fx.h, tags, 1))
	require.Equal(t, value.NewInteger(0), CallTagsTag(fx.h, tags, 2))
	require.Equal(t, value.NewInteger(1), CallTagsTag(fx.h, tags, 3))
	require.Equal(t, other, CallTagsTag(fx.h, tags, 4))
}

func TestBuildCallTagsRejectsDuplicates(t *testing.T) {
	fx := newFixture(t)
	entries := []TagEntry{
		{Tag: value.NewInteger(0), Spec: value.NewInteger(0)},
		{Tag: value.NewInteger(0), Spec: value.NewInteger(1)},
	}
	_, cond := BuildCallTags(fx.h, fx.sp.Array, entries)
	require.True(t, cond.IsCondition())
}

func TestLookupFindsUniqueBest(t *testing.T) {
	fx := newFixture(t)
	ms, cond := NewMethodspace(fx.h, fx.sp, value.Null)
	require.False(t, cond.IsCondition())

	plus := fx.str(t, "+")
	intGuard := fx.guard(t, GuardIs, fx.intProto)
	isMethod := fx.method(t, ms, intGuard, plus, intGuard)
	fx.method(t, ms, fx.guard(t, GuardAny, value.Null), plus, fx.guard(t, GuardAny, value.Null))

	hier := NewHierarchy(fx.h, ms, fx.typeOf)
	data := fx.callData(t, value.NewInteger(1), plus, value.NewInteger(2))
	res, cond := LookupCallData(fx.h, hier, ms, data)
	require.False(t, cond.IsCondition(), "lookup failed: %s", cond)
	require.Equal(t, isMethod, res.Method, "Is-guarded method must beat Any-guarded")
	require.Empty(t, cmp.Diff([]int{0, 1, 2}, res.Offsets))
}

func TestLookupEqBeatsIs(t *testing.T) {
	fx := newFixture(t)
	ms, _ := NewMethodspace(fx.h, fx.sp, value.Null)
	sel := fx.str(t, "describe")

	intGuard := fx.guard(t, GuardIs, fx.intProto)
	fx.method(t, ms, intGuard, sel)
	eqMethod := fx.method(t, ms, fx.guard(t, GuardEq, value.NewInteger(42)), sel)

	hier := NewHierarchy(fx.h, ms, fx.typeOf)
	res, cond := LookupCallData(fx.h, hier, ms, fx.callData(t, value.NewInteger(42), sel))
	require.False(t, cond.IsCondition())
	require.Equal(t, eqMethod, res.Method)
}

func TestLookupAmbiguityOnIdenticalSignatures(t *testing.T) {
	fx := newFixture(t)
	ms, _ := NewMethodspace(fx.h, fx.sp, value.Null)
	sel := fx.str(t, "clash")
	g := fx.guard(t, GuardIs, fx.intProto)
	fx.method(t, ms, g, sel)
	fx.method(t, ms, g, sel)

	hier := NewHierarchy(fx.h, ms, fx.typeOf)
	_, cond := LookupCallData(fx.h, hier, ms, fx.callData(t, value.NewInteger(1), sel))
	require.True(t, cond.IsCondition())
	require.Equal(t, value.CauseLookupError, cond.Cause())
	require.Equal(t, uint32(value.LookupAmbiguity), cond.Detail())
}

func TestLookupNoMatch(t *testing.T) {
	fx := newFixture(t)
	ms, _ := NewMethodspace(fx.h, fx.sp, value.Null)
	hier := NewHierarchy(fx.h, ms, fx.typeOf)
	_, cond := LookupCallData(fx.h, hier, ms, fx.callData(t, value.NewInteger(1), fx.str(t, "ghost")))
	require.True(t, cond.IsCondition())
	require.Equal(t, uint32(value.LookupNoMatch), cond.Detail())
}

func TestInheritanceDistanceBreaksTies(t *testing.T) {
	fx := newFixture(t)
	ms, _ := NewMethodspace(fx.h, fx.sp, value.Null)
	sel := fx.str(t, "area")

	// Point <: Shape; a method on each. Subject's primary type is Point.
	require.False(t, AddInheritance(fx.h, fx.sp, ms, fx.pointProto, fx.shapeProto).IsCondition())
	pointMethod := fx.method(t, ms, fx.guard(t, GuardIs, fx.pointProto), sel)
	fx.method(t, ms, fx.guard(t, GuardIs, fx.shapeProto), sel)

	typeOf := func(v value.Value) value.Value { return fx.pointProto }
	hier := NewHierarchy(fx.h, ms, typeOf)
	res, cond := LookupCallData(fx.h, hier, ms, fx.callData(t, value.NewInteger(7), sel))
	require.False(t, cond.IsCondition())
	require.Equal(t, pointMethod, res.Method, "fewer inheritance hops must win")
}

func TestParentMethodspaceConsulted(t *testing.T) {
	fx := newFixture(t)
	parent, _ := NewMethodspace(fx.h, fx.sp, value.Null)
	child, _ := NewMethodspace(fx.h, fx.sp, parent)
	sel := fx.str(t, "inherited")
	m := fx.method(t, parent, fx.guard(t, GuardIs, fx.intProto), sel)

	hier := NewHierarchy(fx.h, child, fx.typeOf)
	res, cond := LookupCallData(fx.h, hier, child, fx.callData(t, value.NewInteger(1), sel))
	require.False(t, cond.IsCondition())
	require.Equal(t, m, res.Method)
}

func TestDispatchDeterministicAcrossCacheState(t *testing.T) {
	fx := newFixture(t)
	ms, _ := NewMethodspace(fx.h, fx.sp, value.Null)
	sel := fx.str(t, "stable")
	m := fx.method(t, ms, fx.guard(t, GuardIs, fx.intProto), sel)

	hier := NewHierarchy(fx.h, ms, fx.typeOf)
	data := fx.callData(t, value.NewInteger(5), sel)

	first, cond := LookupCallData(fx.h, hier, ms, data)
	require.False(t, cond.IsCondition())

	// Warm cache, cold cache, re-warmed: always the same winner.
	InvalidateSelectorCache(fx.h, ms)
	second, cond := LookupCallData(fx.h, hier, ms, data)
	require.False(t, cond.IsCondition())
	third, cond := LookupCallData(fx.h, hier, ms, data)
	require.False(t, cond.IsCondition())

	require.Equal(t, m, first.Method)
	require.Equal(t, first.Method, second.Method)
	require.Equal(t, first.Method, third.Method)
}

func TestArgumentMapMemoized(t *testing.T) {
	fx := newFixture(t)
	sp := TrieSpecies{Trie: fx.trieSp, Array: fx.sp.Array, Map: fx.sp.Map}
	root, cond := NewArgumentMapTrie(fx.h, sp)
	require.False(t, cond.IsCondition())

	a, cond := ArgumentMapFor(fx.h, sp, root, []int{2, 0, 1})
	require.False(t, cond.IsCondition())
	b, cond := ArgumentMapFor(fx.h, sp, root, []int{2, 0, 1})
	require.False(t, cond.IsCondition())
	require.Equal(t, a, b, "identical offset vectors must share one map object")

	c, cond := ArgumentMapFor(fx.h, sp, root, []int{0, 1, 2})
	require.False(t, cond.IsCondition())
	require.NotEqual(t, a, c)
	require.Equal(t, 3, object.ArrayLength(fx.h, c))
}

func TestMethodCodeInstallsThroughFreezeCheat(t *testing.T) {
	fx := newFixture(t)
	sig, _ := NewSignature(fx.h, fx.sigSp, fx.sp.Array, nil, nil, 0, false)
	m, cond := NewMethod(fx.h, fx.methodSp, fx.sp.FreezeCheat, sig, 0)
	require.False(t, cond.IsCondition())
	require.True(t, MethodCode(fx.h, m).IsNothing())

	code := value.NewHeapObject(999) // placeholder address, not dereferenced here
	InstallMethodCode(fx.h, m, code)
	require.Equal(t, code, MethodCode(fx.h, m))
}
