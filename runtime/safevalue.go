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
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// A SafeValue extends the lifetime of a heap value from the runtime's
// root set while native code holds it: the embedding analogue of an
// object tracker. Immediate values are self-contained and need no
// tracking at all.
type SafeValue struct {
	v         value.Value
	immediate bool
	tracker   *heap.Tracker
	rt        *Runtime
}

// ProtectValue registers v as a strong root and hands back the safe
// handle native code dereferences after any collection.
func (rt *Runtime) ProtectValue(v value.Value) *SafeValue {
	return rt.ProtectValueWithFlags(v, 0)
}

// ProtectValueWithFlags is ProtectValue with explicit tracker flags —
// heap.TrackerWeak for a reference that should not keep its target
// alive, heap.TrackerFinalize to run the family finalizer on death.
// Flagged handles go through the heap's tracker list; unflagged strong
// ones are plain root slots.
func (rt *Runtime) ProtectValueWithFlags(v value.Value, flags heap.TrackerFlags) *SafeValue {
	rt.checkThread()
	sv := &SafeValue{v: v, rt: rt}
	if !v.IsHeapObject() {
		sv.immediate = true
		return sv
	}
	if flags != 0 {
		sv.tracker = rt.Heap.Track(v.HeapAddress(), flags)
	}
	rt.safeSet[sv] = struct{}{}
	return sv
}

// Deref returns the current value: rewritten in place across
// collections for strong handles, Null once a weak handle's target has
// been collected.
func (sv *SafeValue) Deref() value.Value {
	if sv.immediate {
		return sv.v
	}
	if sv.tracker != nil {
		if sv.tracker.IsCleared() {
			return value.Null
		}
		return value.NewHeapObject(sv.tracker.Address)
	}
	return sv.v
}

// DisposeSafeValue releases the handle; the value is collectible again
// unless otherwise reachable.
func (rt *Runtime) DisposeSafeValue(sv *SafeValue) {
	rt.checkThread()
	rt.disposeSafeValueLocked(sv)
}

func (rt *Runtime) disposeSafeValueLocked(sv *SafeValue) {
	if sv.tracker != nil {
		rt.Heap.Untrack(sv.tracker)
		sv.tracker = nil
	}
	delete(rt.safeSet, sv)
}
