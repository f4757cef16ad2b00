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

package object

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// IdHashMap is open-addressed with linear probing over a flat,
// power-of-two-capacity entry array. Each slot is three words: key,
// value, and a state+hash word (low 2 bits are slotEmpty/slotOccupied/
// slotTombstone, the remaining 30 bits cache the key's identity hash so
// probing can skip full hash recomputation on a miss).
const (
	idHashMapFieldCapacity = heap.HeaderWords + 0
	idHashMapFieldSize     = heap.HeaderWords + 1
	idHashMapFieldOccupied = heap.HeaderWords + 2 // size + tombstones, drives resize threshold
	idHashMapEntriesStart  = heap.HeaderWords + 3

	slotWords = 3

	slotEmpty     = 0
	slotOccupied  = 1
	slotTombstone = 2
	slotStateBits = 2
)

// occupiedBitmaps tracks, per live map address, which slot indices
// currently hold a live (non-tombstone, non-empty) entry — an auxiliary
// index kept off-heap beside the entry array; IdHashMapSize reads the
// size header field, not this index. Rekeyed on every relocation via
// PostMigrateFixup.
var occupiedBitmaps = map[value.Address]*roaring.Bitmap{}

func NewIdHashMap(h *heap.Heap, species value.Value, initialCapacity int) (value.Value, value.Value) {
	capacity := nextPowerOfTwo(initialCapacity)
	if capacity < 4 {
		capacity = 4
	}
	addr, cond := h.Allocate(idHashMapEntriesStart + capacity*slotWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+idHashMapFieldCapacity, value.NewInteger(int64(capacity)))
	h.Set(addr+idHashMapFieldSize, value.NewInteger(0))
	h.Set(addr+idHashMapFieldOccupied, value.NewInteger(0))
	for i := 0; i < capacity; i++ {
		h.Set(addr+value.Address(idHashMapEntriesStart+i*slotWords+2), value.NewInteger(slotEmpty))
	}
	occupiedBitmaps[addr] = roaring.New()
	return value.NewHeapObject(addr), value.Value(0)
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func idHashMapCapacity(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + idHashMapFieldCapacity).Int64())
}

func IdHashMapSize(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + idHashMapFieldSize).Int64())
}

func slotState(h *heap.Heap, addr value.Address, slot int) int {
	word := h.Get(addr + value.Address(idHashMapEntriesStart+slot*slotWords+2))
	return int(word.Int64()) & (1<<slotStateBits - 1)
}

func slotHash(h *heap.Heap, addr value.Address, slot int) uint32 {
	word := h.Get(addr + value.Address(idHashMapEntriesStart+slot*slotWords+2))
	return uint32(word.Int64()) >> slotStateBits
}

func setSlot(h *heap.Heap, addr value.Address, slot int, state int, keyHash uint32, key, val value.Value) {
	base := addr + value.Address(idHashMapEntriesStart+slot*slotWords)
	h.Set(base+0, key)
	h.Set(base+1, val)
	h.Set(base+2, value.NewInteger(int64(keyHash)<<slotStateBits|int64(state)))
}

func identityEqual(h *heap.Heap, a, b value.Value) bool {
	if a.IsHeapObject() && b.IsHeapObject() {
		if a.HeapAddress() == b.HeapAddress() {
			return true
		}
		fa, fb := h.FamilyOf(a.HeapAddress()), h.FamilyOf(b.HeapAddress())
		if fa != fb {
			return false
		}
		return heap.BehaviorFor(fa).IdentityCompare(h, a.HeapAddress(), b.HeapAddress())
	}
	return a == b
}

func hashOf(h *heap.Heap, v value.Value) uint32 {
	return elementHash(h, v, 0) & (1<<(32-slotStateBits) - 1)
}

// IdHashMapGet probes linearly from the key's hash modulo capacity,
// stopping at the first empty slot (tombstones are skipped, not
// treated as a miss, since a prior delete must not break the probe
// chain for keys that hashed to the same bucket).
func IdHashMapGet(h *heap.Heap, v value.Value, key value.Value) (value.Value, bool) {
	addr := v.HeapAddress()
	capacity := idHashMapCapacity(h, v)
	hash := hashOf(h, key)
	start := int(hash) & (capacity - 1)
	for i := 0; i < capacity; i++ {
		slot := (start + i) & (capacity - 1)
		switch slotState(h, addr, slot) {
		case slotEmpty:
			return value.Value(0), false
		case slotOccupied:
			if slotHash(h, addr, slot) == hash {
				existingKey := h.Get(addr + value.Address(idHashMapEntriesStart+slot*slotWords))
				if identityEqual(h, existingKey, key) {
					return h.Get(addr + value.Address(idHashMapEntriesStart+slot*slotWords+1)), true
				}
			}
		}
	}
	return value.Value(0), false
}

// IdHashMapSet inserts or overwrites key->val, resizing (doubling) once
// occupied (live + tombstone) slots exceed a 0.75 load factor. Because a
// resize allocates a new, bigger backing object at a new address, the
// map value the caller should keep using afterward is the first return
// value — callers must store it back wherever v came from, the same
// discipline Go's append() imposes on growable slices.
func IdHashMapSet(h *heap.Heap, species value.Value, v value.Value, key, val value.Value) (value.Value, value.Value) {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return v, cond
	}
	addr := v.HeapAddress()
	capacity := idHashMapCapacity(h, v)
	occupied := int(h.Get(addr + idHashMapFieldOccupied).Int64())
	if (occupied+1)*4 > capacity*3 {
		grown, cond := resize(h, species, v, capacity*2)
		if cond.IsCondition() {
			return v, cond
		}
		v = grown
		addr = v.HeapAddress()
		capacity = idHashMapCapacity(h, v)
		occupied = int(h.Get(addr + idHashMapFieldOccupied).Int64())
	}

	hash := hashOf(h, key)
	start := int(hash) & (capacity - 1)
	firstTombstone := -1
	for i := 0; i < capacity; i++ {
		slot := (start + i) & (capacity - 1)
		state := slotState(h, addr, slot)
		if state == slotOccupied && slotHash(h, addr, slot) == hash {
			existingKey := h.Get(addr + value.Address(idHashMapEntriesStart+slot*slotWords))
			if identityEqual(h, existingKey, key) {
				setSlot(h, addr, slot, slotOccupied, hash, key, val)
				return v, value.Value(0)
			}
		}
		if state == slotTombstone && firstTombstone < 0 {
			firstTombstone = slot
		}
		if state == slotEmpty {
			target := slot
			if firstTombstone >= 0 {
				target = firstTombstone
			}
			setSlot(h, addr, target, slotOccupied, hash, key, val)
			h.Set(addr+idHashMapFieldSize, value.NewInteger(int64(IdHashMapSize(h, v)+1)))
			if firstTombstone < 0 {
				h.Set(addr+idHashMapFieldOccupied, value.NewInteger(int64(occupied+1)))
			}
			markOccupied(addr, target)
			return v, value.Value(0)
		}
	}
	// Fully probed without finding room — resize forced this above, so
	// reaching here means the load-factor check itself is out of sync.
	return v, value.NewValidationFailed()
}

func IdHashMapDelete(h *heap.Heap, v value.Value, key value.Value) bool {
	if freeze.MustBeMutable(h, v).IsCondition() {
		return false
	}
	addr := v.HeapAddress()
	capacity := idHashMapCapacity(h, v)
	hash := hashOf(h, key)
	start := int(hash) & (capacity - 1)
	for i := 0; i < capacity; i++ {
		slot := (start + i) & (capacity - 1)
		switch slotState(h, addr, slot) {
		case slotEmpty:
			return false
		case slotOccupied:
			if slotHash(h, addr, slot) == hash {
				existingKey := h.Get(addr + value.Address(idHashMapEntriesStart+slot*slotWords))
				if identityEqual(h, existingKey, key) {
					setSlot(h, addr, slot, slotTombstone, hash, value.Null, value.Null)
					h.Set(addr+idHashMapFieldSize, value.NewInteger(int64(IdHashMapSize(h, v)-1)))
					unmarkOccupied(addr, slot)
					return true
				}
			}
		}
	}
	return false
}

func resize(h *heap.Heap, species value.Value, v value.Value, newCapacity int) (value.Value, value.Value) {
	oldAddr := v.HeapAddress()
	oldCapacity := idHashMapCapacity(h, v)
	grown, cond := NewIdHashMap(h, species, newCapacity)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	for slot := 0; slot < oldCapacity; slot++ {
		if slotState(h, oldAddr, slot) == slotOccupied {
			key := h.Get(oldAddr + value.Address(idHashMapEntriesStart+slot*slotWords))
			val := h.Get(oldAddr + value.Address(idHashMapEntriesStart+slot*slotWords+1))
			var setCond value.Value
			grown, setCond = IdHashMapSet(h, species, grown, key, val)
			if setCond.IsCondition() {
				return value.Value(0), setCond
			}
		}
	}
	delete(occupiedBitmaps, oldAddr)
	return grown, value.Value(0)
}

func markOccupied(addr value.Address, slot int) {
	bm := occupiedBitmaps[addr]
	if bm == nil {
		bm = roaring.New()
		occupiedBitmaps[addr] = bm
	}
	bm.Add(uint32(slot))
}

func unmarkOccupied(addr value.Address, slot int) {
	if bm := occupiedBitmaps[addr]; bm != nil {
		bm.Remove(uint32(slot))
	}
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyIdHashMap,
		Division: heap.DivisionModal,
		Validate: func(h *heap.Heap, addr value.Address) error {
			cap := h.Get(addr + idHashMapFieldCapacity).Int64()
			if cap&(cap-1) != 0 {
				return fmt.Errorf("id hash map at %d has non-power-of-two capacity %d", addr, cap)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(h.Get(addr+idHashMapFieldSize).Int64()) * 2246822519
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<id-hash-map size=%d>", h.Get(addr+idHashMapFieldSize).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			capacity := int(h.Get(addr + idHashMapFieldCapacity).Int64())
			return heap.ObjectLayout{
				SizeWords:   idHashMapEntriesStart + capacity*slotWords,
				ValueOffset: idHashMapEntriesStart,
			}
		},
		PostMigrateFixup: func(h *heap.Heap, oldAddr, newAddr value.Address) {
			if bm, ok := occupiedBitmaps[oldAddr]; ok {
				occupiedBitmaps[newAddr] = bm
				delete(occupiedBitmaps, oldAddr)
			}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			capacity := int(h.Get(addr + idHashMapFieldCapacity).Int64())
			for slot := 0; slot < capacity; slot++ {
				if slotState(h, addr, slot) == slotOccupied {
					base := addr + value.Address(idHashMapEntriesStart+slot*slotWords)
					freeze.EnsureFrozen(h, h.Get(base))
					freeze.EnsureFrozen(h, h.Get(base+1))
				}
			}
			return nil
		},
	})
}
