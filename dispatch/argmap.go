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
	"fmt"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// The argument-map trie memoizes canonical reordering arrays: after a
// dispatch succeeds, its per-parameter offset vector is walked through
// the trie digit by digit, and the leaf holds the one shared Array
// mapping parameter order to evaluation-order slots. Two call sites
// producing the same offset vector get the identical map object, so
// downstream caches can compare maps by identity.
//
// The trie root lives in mutable roots — it is the one dispatch-side
// structure that keeps growing after the runtime's roots freeze.
const (
	argMapTrieFieldValue    = heap.HeaderWords + 0
	argMapTrieFieldChildren = heap.HeaderWords + 1
	argMapTrieWords         = heap.HeaderWords + 2
)

// TrieSpecies bundles what trie operations allocate with.
type TrieSpecies struct {
	Trie  value.Value
	Array value.Value
	Map   value.Value
}

func NewArgumentMapTrie(h *heap.Heap, sp TrieSpecies) (value.Value, value.Value) {
	children, cond := object.NewIdHashMap(h, sp.Map, 4)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(argMapTrieWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, sp.Trie)
	h.Set(addr+argMapTrieFieldValue, value.Nothing)
	h.Set(addr+argMapTrieFieldChildren, children)
	return value.NewHeapObject(addr), value.Value(0)
}

func trieValue(h *heap.Heap, node value.Value) value.Value {
	return h.Get(node.HeapAddress() + argMapTrieFieldValue)
}

func trieChildren(h *heap.Heap, node value.Value) value.Value {
	return h.Get(node.HeapAddress() + argMapTrieFieldChildren)
}

// ArgumentMapFor returns the canonical reorder Array for offsets,
// creating trie nodes and the leaf array on first use. result[i] is the
// evaluation-order slot of parameter i.
func ArgumentMapFor(h *heap.Heap, sp TrieSpecies, root value.Value, offsets []int) (value.Value, value.Value) {
	node := root
	for _, off := range offsets {
		key := value.NewInteger(int64(off))
		child, ok := object.IdHashMapGet(h, trieChildren(h, node), key)
		if !ok {
			var cond value.Value
			child, cond = NewArgumentMapTrie(h, sp)
			if cond.IsCondition() {
				return value.Value(0), cond
			}
			grown, cond := object.IdHashMapSet(h, sp.Map, trieChildren(h, node), key, child)
			if cond.IsCondition() {
				return value.Value(0), cond
			}
			h.Set(node.HeapAddress()+argMapTrieFieldChildren, grown)
		}
		node = child
	}
	if cached := trieValue(h, node); !cached.IsNothing() {
		return cached, value.Value(0)
	}
	m, cond := object.NewArray(h, sp.Array, len(offsets), value.Null)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	for i, off := range offsets {
		object.ArraySet(h, m, i, value.NewInteger(int64(off)))
	}
	h.Set(node.HeapAddress()+argMapTrieFieldValue, m)
	return m, value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyArgumentMapTrie,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + argMapTrieFieldChildren).IsHeapObject() {
				return fmt.Errorf("argument-map trie at %d has non-heap children", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<argument-map-trie>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: argMapTrieWords, ValueOffset: argMapTrieFieldValue}
		},
	})
}
