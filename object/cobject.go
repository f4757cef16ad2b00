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

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// CObject backs native service plugins (native service plugins):
// each C-object factory gets its own DivisionCObject species describing
// a fixed data-region size (opaque bytes, aligned for whatever native
// struct the factory's plugin overlays on it) followed by a fixed-size
// value region (ordinary, GC-traced Values a plugin keeps alongside its
// opaque state — a promise to fulfill, a captured service handle).
// GetLayout only reports the value region as traceable; the data region
// rides along untouched, the same way Blob's body does.
const (
	cObjectFieldDataWords  = heap.HeaderWords + 0
	cObjectFieldValueCount = heap.HeaderWords + 1
	cObjectBodyStart       = heap.HeaderWords + 2
)

func NewCObject(h *heap.Heap, species value.Value, dataBytes int, valueCount int) (value.Value, value.Value) {
	dataWords := bytesToWords(dataBytes)
	addr, cond := h.Allocate(cObjectBodyStart + dataWords + valueCount)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+cObjectFieldDataWords, value.NewInteger(int64(dataWords)))
	h.Set(addr+cObjectFieldValueCount, value.NewInteger(int64(valueCount)))
	for i := 0; i < valueCount; i++ {
		h.Set(addr+value.Address(cObjectBodyStart+dataWords+i), value.Null)
	}
	return value.NewHeapObject(addr), value.Value(0)
}

func cObjectDataWords(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + cObjectFieldDataWords).Int64())
}

func cObjectValueCount(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + cObjectFieldValueCount).Int64())
}

// CObjectDataWord reads one raw word of the opaque data region, for a
// plugin's own struct-overlay accessors to decode.
func CObjectDataWord(h *heap.Heap, v value.Value, wordIndex int) value.Value {
	return h.Get(v.HeapAddress() + value.Address(cObjectBodyStart+wordIndex))
}

func CObjectSetDataWord(h *heap.Heap, v value.Value, wordIndex int, w value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	h.Set(v.HeapAddress()+value.Address(cObjectBodyStart+wordIndex), w)
	return value.Value(0)
}

func CObjectGetValue(h *heap.Heap, v value.Value, index int) (value.Value, value.Value) {
	if index < 0 || index >= cObjectValueCount(h, v) {
		return value.Value(0), value.NewLookupError(value.LookupNoMatch)
	}
	dataWords := cObjectDataWords(h, v)
	return h.Get(v.HeapAddress() + value.Address(cObjectBodyStart+dataWords+index)), value.Value(0)
}

func CObjectSetValue(h *heap.Heap, v value.Value, index int, val value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	if index < 0 || index >= cObjectValueCount(h, v) {
		return value.NewLookupError(value.LookupNoMatch)
	}
	dataWords := cObjectDataWords(h, v)
	h.Set(v.HeapAddress()+value.Address(cObjectBodyStart+dataWords+index), val)
	return value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyCObject,
		Division: heap.DivisionCObject,
		Validate: func(h *heap.Heap, addr value.Address) error {
			dataWords := h.Get(addr + cObjectFieldDataWords).Int64()
			valueCount := h.Get(addr + cObjectFieldValueCount).Int64()
			if dataWords < 0 || valueCount < 0 {
				return fmt.Errorf("c-object at %d has negative region size", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2246822519
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<c-object data=%dw values=%d>",
				h.Get(addr+cObjectFieldDataWords).Int64(), h.Get(addr+cObjectFieldValueCount).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			dataWords := int(h.Get(addr + cObjectFieldDataWords).Int64())
			valueCount := int(h.Get(addr + cObjectFieldValueCount).Int64())
			return heap.ObjectLayout{
				SizeWords:   cObjectBodyStart + dataWords + valueCount,
				ValueOffset: cObjectBodyStart + dataWords,
			}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			dataWords := int(h.Get(addr + cObjectFieldDataWords).Int64())
			valueCount := int(h.Get(addr + cObjectFieldValueCount).Int64())
			for i := 0; i < valueCount; i++ {
				freeze.EnsureFrozen(h, h.Get(addr+value.Address(cObjectBodyStart+dataWords+i)))
			}
			return nil
		},
	})
}
