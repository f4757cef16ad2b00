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
	"sort"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// A call tags record describes an invocation's argument layout: for
// each tag, either the stack offset (depth from the top of the caller's
// operand stack) where the argument value sits, or a static value baked
// into the record itself (the selector is the common case — it never
// occupies a stack slot). On the heap a record is an Array of 2n words,
// [tag0, spec0, tag1, spec1, ...], sorted by the canonical tag order so
// two invocations with the same tag set produce identical records and
// can share one pool constant.

// TagEntry is the host-side form a compiler hands to BuildCallTags.
type TagEntry struct {
	Tag value.Value
	// Spec is a tagged Integer stack offset, or any non-Integer value
	// meaning "this argument is the value itself, statically".
	Spec value.Value
}

// tagRank buckets a tag for the canonical ordering: subject and
// selector keys lowest, then remaining keys by id, then integers
// ascending, then everything else by raw encoding.
func tagRank(t value.Value) (bucket int, within uint64) {
	switch {
	case t.IsKey():
		return 0, uint64(t.KeyId())
	case t.IsInteger():
		return 1, uint64(t.Int64()) // tags are small nonnegative parameter indices
	default:
		return 2, uint64(t)
	}
}

// CompareTags orders two tags canonically; LessThan means a sorts
// before b.
func CompareTags(a, b value.Value) value.Relation {
	ba, wa := tagRank(a)
	bb, wb := tagRank(b)
	switch {
	case ba < bb || (ba == bb && wa < wb):
		return value.RelationLessThan
	case ba > bb || (ba == bb && wa > wb):
		return value.RelationGreaterThan
	default:
		return value.RelationEqual
	}
}

// BuildCallTags sorts entries canonically and materializes the record.
// Duplicate tags are a compiler bug surfaced as InvalidInput.
func BuildCallTags(h *heap.Heap, arraySpecies value.Value, entries []TagEntry) (value.Value, value.Value) {
	sorted := make([]TagEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareTags(sorted[i].Tag, sorted[j].Tag) == value.RelationLessThan
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Tag == sorted[i-1].Tag {
			return value.Value(0), value.NewCondition(value.CauseInvalidInput, 0)
		}
	}
	record, cond := object.NewArray(h, arraySpecies, len(sorted)*2, value.Null)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	for i, e := range sorted {
		object.ArraySet(h, record, i*2, e.Tag)
		object.ArraySet(h, record, i*2+1, e.Spec)
	}
	return record, value.Value(0)
}

func CallTagsLength(h *heap.Heap, tags value.Value) int {
	return object.ArrayLength(h, tags) / 2
}

func CallTagsTag(h *heap.Heap, tags value.Value, i int) value.Value {
	v, _ := object.ArrayGet(h, tags, i*2)
	return v
}

func CallTagsSpec(h *heap.Heap, tags value.Value, i int) value.Value {
	v, _ := object.ArrayGet(h, tags, i*2+1)
	return v
}
