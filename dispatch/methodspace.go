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

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// A Methodspace holds everything one dispatch domain needs: the
// inheritance map (type -> ArrayBuffer of parents), the signature map
// (flat ArrayBuffer of alternating signature/method entries), a parent
// methodspace consulted after this one, and the selector-cache cell.
//
// The cache cell is a freeze-cheat: methodspaces are deep-frozen before
// execution starts, but the selector cache must keep growing as new
// selectors are first dispatched. The heap-resident cell only carries a
// generation counter; the cache payload itself lives off-heap in
// selectorCaches, keyed by the methodspace's address and re-keyed by
// the post-migrate fixup when the collector moves the methodspace.
const (
	methodspaceFieldInheritance = heap.HeaderWords + 0
	methodspaceFieldMethods     = heap.HeaderWords + 1
	methodspaceFieldParent      = heap.HeaderWords + 2
	methodspaceFieldCacheCell   = heap.HeaderWords + 3
	methodspaceWords            = heap.HeaderWords + 4
)

// selectorCacheSize bounds each methodspace's selector cache; a
// long-lived process dispatching an unbounded stream of distinct
// selectors must not grow without limit.
const selectorCacheSize = 512

type cacheEntry struct {
	signatures []value.Value
	methods    []value.Value
}

var selectorCaches = map[value.Address]*lru.Cache[value.Value, *cacheEntry]{}

// Species bundles the species values methodspace operations allocate
// with, so call sites don't thread four separate species arguments.
type Species struct {
	Methodspace value.Value
	Array       value.Value
	ArrayBuffer value.Value
	Map         value.Value
	FreezeCheat value.Value
}

func NewMethodspace(h *heap.Heap, sp Species, parent value.Value) (value.Value, value.Value) {
	inheritance, cond := object.NewIdHashMap(h, sp.Map, 8)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	methods, cond := object.NewArrayBuffer(h, sp.ArrayBuffer, sp.Array, 8)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	_, cell := freeze.AllocateFreezeCheat(h, sp.FreezeCheat, value.NewInteger(0))
	if cell.IsCondition() {
		return value.Value(0), cell
	}
	addr, cond := h.Allocate(methodspaceWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, sp.Methodspace)
	h.Set(addr+methodspaceFieldInheritance, inheritance)
	h.Set(addr+methodspaceFieldMethods, methods)
	h.Set(addr+methodspaceFieldParent, parent)
	h.Set(addr+methodspaceFieldCacheCell, cell)
	return value.NewHeapObject(addr), value.Value(0)
}

func MethodspaceParent(h *heap.Heap, ms value.Value) value.Value {
	return h.Get(ms.HeapAddress() + methodspaceFieldParent)
}

func methodspaceMethods(h *heap.Heap, ms value.Value) value.Value {
	return h.Get(ms.HeapAddress() + methodspaceFieldMethods)
}

func methodspaceInheritance(h *heap.Heap, ms value.Value) value.Value {
	return h.Get(ms.HeapAddress() + methodspaceFieldInheritance)
}

func MethodspaceMethodCount(h *heap.Heap, ms value.Value) int {
	return object.ArrayBufferCount(h, methodspaceMethods(h, ms)) / 2
}

func MethodspaceSignatureAt(h *heap.Heap, ms value.Value, i int) value.Value {
	v, _ := object.ArrayBufferGet(h, methodspaceMethods(h, ms), i*2)
	return v
}

func MethodspaceMethodAt(h *heap.Heap, ms value.Value, i int) value.Value {
	v, _ := object.ArrayBufferGet(h, methodspaceMethods(h, ms), i*2+1)
	return v
}

// AddMethod appends a (signature, method) pair to ms's signature map
// and invalidates the selector cache. Writing through the frozen
// surface is not permitted; methodspaces accept methods only while
// still mutable.
func AddMethod(h *heap.Heap, sp Species, ms, signature, method value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, ms); cond.IsCondition() {
		return cond
	}
	buf := methodspaceMethods(h, ms)
	if cond := object.ArrayBufferAppend(h, sp.Array, buf, signature); cond.IsCondition() {
		return cond
	}
	if cond := object.ArrayBufferAppend(h, sp.Array, buf, method); cond.IsCondition() {
		return cond
	}
	InvalidateSelectorCache(h, ms)
	return value.Value(0)
}

// AddInheritance records that child descends directly from parent,
// appending to child's parents buffer, and blows the selector cache —
// a hierarchy change can alter which cached candidates still apply.
func AddInheritance(h *heap.Heap, sp Species, ms, child, parent value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, ms); cond.IsCondition() {
		return cond
	}
	inheritance := methodspaceInheritance(h, ms)
	parents, found := object.IdHashMapGet(h, inheritance, child)
	if !found {
		var cond value.Value
		parents, cond = object.NewArrayBuffer(h, sp.ArrayBuffer, sp.Array, 2)
		if cond.IsCondition() {
			return cond
		}
		grown, cond := object.IdHashMapSet(h, sp.Map, inheritance, child, parents)
		if cond.IsCondition() {
			return cond
		}
		h.Set(ms.HeapAddress()+methodspaceFieldInheritance, grown)
	}
	if cond := object.ArrayBufferAppend(h, sp.Array, parents, parent); cond.IsCondition() {
		return cond
	}
	InvalidateSelectorCache(h, ms)
	return value.Value(0)
}

// InvalidateSelectorCache purges every cached selector slice and bumps
// the generation counter in the freeze-cheat cell. Invalidation is
// deliberately coarse: any method addition or parent change discards
// the whole cache.
func InvalidateSelectorCache(h *heap.Heap, ms value.Value) {
	if c, ok := selectorCaches[ms.HeapAddress()]; ok {
		c.Purge()
	}
	cell := h.Get(ms.HeapAddress() + methodspaceFieldCacheCell)
	gen := freeze.Payload(h, cell).Int64()
	freeze.SetPayload(h, cell, value.NewInteger(gen+1))
}

// selectorCandidates returns the sub-slice of ms's signature map whose
// signatures admit selector under an Eq test, building and memoizing it
// on first use. The write path goes through the freeze-cheat discipline:
// the methodspace itself may be deep-frozen when this runs.
func selectorCandidates(h *heap.Heap, ms, selectorTag, selector value.Value) *cacheEntry {
	addr := ms.HeapAddress()
	c, ok := selectorCaches[addr]
	if !ok {
		c, _ = lru.New[value.Value, *cacheEntry](selectorCacheSize)
		selectorCaches[addr] = c
	}
	if e, ok := c.Get(selector); ok {
		return e
	}
	e := &cacheEntry{}
	n := MethodspaceMethodCount(h, ms)
	for i := 0; i < n; i++ {
		sig := MethodspaceSignatureAt(h, ms, i)
		if SignatureAdmitsTag(h, sig, selectorTag, selector) {
			e.signatures = append(e.signatures, sig)
			e.methods = append(e.methods, MethodspaceMethodAt(h, ms, i))
		}
	}
	c.Add(selector, e)
	return e
}

// Hierarchy is the inheritance view a single lookup runs against: the
// methodspace chain from the starting space through its parents, plus
// the runtime-supplied primary-type resolver for immediates and other
// non-instance values.
type Hierarchy struct {
	h      *heap.Heap
	chain  []value.Value
	TypeOf func(value.Value) value.Value
}

func NewHierarchy(h *heap.Heap, ms value.Value, typeOf func(value.Value) value.Value) *Hierarchy {
	hy := &Hierarchy{h: h, TypeOf: typeOf}
	for cur := ms; cur.IsHeapObject(); cur = MethodspaceParent(h, cur) {
		hy.chain = append(hy.chain, cur)
	}
	return hy
}

func (hy *Hierarchy) parentsOf(t value.Value) []value.Value {
	var out []value.Value
	for _, ms := range hy.chain {
		if parents, ok := object.IdHashMapGet(hy.h, methodspaceInheritance(hy.h, ms), t); ok {
			n := object.ArrayBufferCount(hy.h, parents)
			for i := 0; i < n; i++ {
				p, _ := object.ArrayBufferGet(hy.h, parents, i)
				out = append(out, p)
			}
		}
	}
	return out
}

// Distance returns the minimum number of inheritance hops from type
// from up to ancestor to, searching every parent path breadth-first so
// the best (shortest) route wins when a type has multiple parents.
func (hy *Hierarchy) Distance(from, to value.Value) (uint32, bool) {
	if from == value.Value(0) {
		return 0, false
	}
	type node struct {
		t     value.Value
		depth uint32
	}
	visited := map[value.Value]bool{from: true}
	queue := []node{{from, 0}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if identityEqual(hy.h, n.t, to) {
			return n.depth, true
		}
		for _, p := range hy.parentsOf(n.t) {
			if !visited[p] {
				visited[p] = true
				queue = append(queue, node{p, n.depth + 1})
			}
		}
	}
	return 0, false
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyMethodspace,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + methodspaceFieldMethods).IsHeapObject() {
				return fmt.Errorf("methodspace at %d has non-heap signature map", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<methodspace>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: methodspaceWords, ValueOffset: methodspaceFieldInheritance}
		},
		PostMigrateFixup: func(h *heap.Heap, oldAddr, newAddr value.Address) {
			// Cached selector keys are pre-move addresses, so the slices
			// are unusable after relocation — carry the cache object to
			// the new key but drop its contents.
			if c, ok := selectorCaches[oldAddr]; ok {
				c.Purge()
				selectorCaches[newAddr] = c
				delete(selectorCaches, oldAddr)
			}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+methodspaceFieldInheritance))
			freeze.EnsureFrozen(h, h.Get(addr+methodspaceFieldMethods))
			return nil
		},
	})
}
