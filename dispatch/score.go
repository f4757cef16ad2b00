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

// Package dispatch implements multi-method resolution: call-tag
// canonicalization, signature matching against the Eq/Is/Any/Extra
// score lattice, methodspace chains with lazily built selector caches,
// and the memoized argument-map trie that reorders evaluation-order
// arguments into parameter order.
package dispatch

import "github.com/neutrino-rt/neutrino/value"

// MaxArguments bounds how many arguments a single lookup can score.
// Fixed-size scratch vectors keep the hot path allocation-free; a call
// with more arguments fails with a clear LookupTooManyArguments
// condition rather than growing scratch on the heap.
const MaxArguments = 8

// The four well-known points of the score lattice. Eq beats Is beats
// Any beats Extra; within Is, a smaller subscore (fewer inheritance
// hops from the argument's type to the guard's type) is better.
var (
	ScoreIdenticalMatch = value.NewScore(value.ScoreEq, 0)
	ScorePerfectIs      = value.NewScore(value.ScoreIs, 0)
	ScoreAnyMatch       = value.NewScore(value.ScoreAny, 0)
	ScoreExtraMatch     = value.NewScore(value.ScoreExtra, 0)
)

// ScoreIsAt returns the Is-category score for a match found depth
// inheritance hops above the argument's primary type; depth 0 is the
// perfect-is match.
func ScoreIsAt(depth uint32) value.Value { return value.NewScore(value.ScoreIs, depth) }

// CompareScores orders a against b: LessThan means a is the better
// (more specific) score. Scores from different categories order by
// category alone; within a category, the smaller subscore wins.
func CompareScores(a, b value.Value) value.Relation {
	ca, cb := a.ScoreCategory(), b.ScoreCategory()
	switch {
	case ca < cb:
		return value.RelationLessThan
	case ca > cb:
		return value.RelationGreaterThan
	}
	sa, sb := a.ScoreSubscore(), b.ScoreSubscore()
	switch {
	case sa < sb:
		return value.RelationLessThan
	case sa > sb:
		return value.RelationGreaterThan
	}
	return value.RelationEqual
}

// scoreVector is one candidate's per-argument scores plus the
// per-parameter offset vector a successful match produces.
type scoreVector struct {
	scores  [MaxArguments]value.Value
	offsets [MaxArguments]int
	count   int
}

// compareVectors relates the candidate vector a to the running-max
// vector b componentwise: LessThan if a strictly dominates (at least
// one component better, none worse), GreaterThan if dominated, Equal if
// identical, Unordered if incomparable.
func compareVectors(a, b *scoreVector) value.Relation {
	someBetter, someWorse := false, false
	for i := 0; i < a.count; i++ {
		switch CompareScores(a.scores[i], b.scores[i]) {
		case value.RelationLessThan:
			someBetter = true
		case value.RelationGreaterThan:
			someWorse = true
		}
	}
	switch {
	case someBetter && someWorse:
		return value.RelationUnordered
	case someBetter:
		return value.RelationLessThan
	case someWorse:
		return value.RelationGreaterThan
	default:
		return value.RelationEqual
	}
}

// maxInto folds the candidate vector src into the running max dst,
// taking the argument-wise best of each component. Returns true if any
// component of dst changed, meaning the new max is synthetic unless src
// dominated outright.
func maxInto(dst, src *scoreVector) bool {
	changed := false
	for i := 0; i < src.count; i++ {
		if CompareScores(src.scores[i], dst.scores[i]) == value.RelationLessThan {
			dst.scores[i] = src.scores[i]
			changed = true
		}
	}
	return changed
}
