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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegerRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, -1, 1234, -987654, 1 << 40, -(1 << 40)} {
		v := NewInteger(n)
		require.True(t, v.IsInteger())
		require.Equal(t, n, v.Int64())
	}
}

func TestHeapObjectRoundTrip(t *testing.T) {
	v := NewHeapObject(Address(42))
	require.True(t, v.IsHeapObject())
	require.Equal(t, Address(42), v.HeapAddress())
	require.False(t, v.IsInteger())
}

func TestDerivedObjectAnchor(t *testing.T) {
	v := NewDerivedObject(Address(7), GenusEnsureSection, 99)
	require.True(t, v.IsDerivedObject())
	g, off := v.DerivedAnchor()
	require.Equal(t, GenusEnsureSection, g)
	require.Equal(t, uint64(99), off)
}

func TestCustomTaggedDomainIsImmediate(t *testing.T) {
	require.True(t, DomainCustomTagged.IsImmediate())
	require.True(t, DomainInteger.IsImmediate())
	require.True(t, DomainCondition.IsImmediate())
	require.False(t, DomainHeapObject.IsImmediate())
	require.False(t, DomainDerivedObject.IsImmediate())
}

func TestBooleanSingletons(t *testing.T) {
	require.True(t, NewBoolean(true).Bool())
	require.False(t, NewBoolean(false).Bool())
	require.Equal(t, True, NewBoolean(true))
}

func TestScoreOrdering(t *testing.T) {
	eq := NewScore(ScoreEq, 0)
	is := NewScore(ScoreIs, 3)
	require.Equal(t, ScoreEq, eq.ScoreCategory())
	require.Equal(t, ScoreIs, is.ScoreCategory())
	require.Equal(t, uint32(3), is.ScoreSubscore())
	require.Less(t, eq.ScoreCategory(), is.ScoreCategory())
}

func TestFlagSetToggle(t *testing.T) {
	fs := NewFlagSet(0)
	fs = fs.WithFlag(3, true)
	require.True(t, fs.HasFlag(3))
	fs = fs.WithFlag(3, false)
	require.False(t, fs.HasFlag(3))
}

func TestConditionRoundTrip(t *testing.T) {
	c := NewLookupError(LookupAmbiguity)
	require.True(t, c.IsCondition())
	require.Equal(t, CauseLookupError, c.Cause())
	require.Equal(t, uint32(LookupAmbiguity), c.Detail())
}

func TestHashSourceStable(t *testing.T) {
	hs := NewHashSource(1)
	a := hs.Next(100)
	hs2 := NewHashSource(1)
	b := hs2.Next(100)
	require.Equal(t, a, b)
}
