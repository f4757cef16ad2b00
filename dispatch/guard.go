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

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// GuardType selects how a parameter guard admits an argument.
type GuardType int64

const (
	// GuardEq admits only a value identity-equal to the guard's value.
	GuardEq GuardType = iota
	// GuardIs admits any value whose primary type descends from the
	// guard's type in the methodspace's inheritance map.
	GuardIs
	// GuardAny admits everything.
	GuardAny
)

const (
	guardFieldType  = heap.HeaderWords + 0
	guardFieldValue = heap.HeaderWords + 1
	guardWords      = heap.HeaderWords + 2
)

func NewGuard(h *heap.Heap, species value.Value, gt GuardType, guardValue value.Value) (value.Value, value.Value) {
	addr, cond := h.Allocate(guardWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+guardFieldType, value.NewInteger(int64(gt)))
	h.Set(addr+guardFieldValue, guardValue)
	return value.NewHeapObject(addr), value.Value(0)
}

func GuardTypeOf(h *heap.Heap, g value.Value) GuardType {
	return GuardType(h.Get(g.HeapAddress() + guardFieldType).Int64())
}

func GuardValue(h *heap.Heap, g value.Value) value.Value {
	return h.Get(g.HeapAddress() + guardFieldValue)
}

// matchGuard scores arg against g within hierarchy, returning the
// argument's score and whether the guard admitted it at all.
func matchGuard(h *heap.Heap, hier *Hierarchy, g, arg value.Value) (value.Value, bool) {
	switch GuardTypeOf(h, g) {
	case GuardEq:
		if identityEqual(h, GuardValue(h, g), arg) {
			return ScoreIdenticalMatch, true
		}
		return value.Value(0), false
	case GuardIs:
		depth, ok := hier.Distance(hier.TypeOf(arg), GuardValue(h, g))
		if !ok {
			return value.Value(0), false
		}
		return ScoreIsAt(depth), true
	case GuardAny:
		return ScoreAnyMatch, true
	}
	return value.Value(0), false
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

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyGuard,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			gt := GuardType(h.Get(addr + guardFieldType).Int64())
			if gt < GuardEq || gt > GuardAny {
				return fmt.Errorf("guard at %d has invalid type %d", addr, gt)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(h.Get(addr+guardFieldType).Int64())*2654435761 + uint32(addr)
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			switch GuardType(h.Get(addr + guardFieldType).Int64()) {
			case GuardEq:
				return "#<guard eq>"
			case GuardIs:
				return "#<guard is>"
			default:
				return "#<guard any>"
			}
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: guardWords, ValueOffset: guardFieldValue}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+guardFieldValue))
			return nil
		},
	})
}
