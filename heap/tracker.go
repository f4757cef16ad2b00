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

package heap

import "github.com/neutrino-rt/neutrino/value"

// TrackerFlags controls how the collector treats a tracked object
// during the post-process-weak-trackers pass.
type TrackerFlags uint8

const (
	// TrackerWeak means the reference doesn't keep the object alive —
	// if nothing else reaches it by the scan pass, the tracker is
	// marked cleared (see IsCleared) instead of relocated.
	TrackerWeak TrackerFlags = 1 << iota
	// TrackerSelfDestruct removes the tracker from the list the first
	// time its object turns out to be garbage, rather than leaving a
	// cleared entry behind.
	TrackerSelfDestruct
	// TrackerFinalize calls Finalizer when the object is collected.
	TrackerFinalize
	// TrackerMaybeWeak consults Predicate at scan time to decide
	// per-object whether this tracker is currently acting weak.
	TrackerMaybeWeak
)

// Tracker is an intrusive doubly-linked list node the collector walks
// to find out-of-band references to heap objects (finalizer registries,
// identity-hash caches keyed by old address, weak maps). A tracker keeps
// its object alive unless it is acting weak: TrackerWeak, or
// TrackerMaybeWeak whose Predicate says so.
type Tracker struct {
	prev, next *Tracker
	Address    value.Address
	Flags      TrackerFlags
	Predicate  func(value.Address) bool
	Finalizer  func(value.Address)
	cleared    bool
}

// IsCleared reports whether a weak tracker's object turned out to be
// garbage; its Address is meaningless once cleared.
func (t *Tracker) IsCleared() bool { return t.cleared }

func (t *Tracker) isWeakNow() bool {
	if t.Flags&TrackerMaybeWeak != 0 && t.Predicate != nil {
		return !t.Predicate(t.Address)
	}
	return t.Flags&TrackerWeak != 0
}

type trackerList struct {
	head, tail *Tracker
}

func newTrackerList() *trackerList { return &trackerList{} }

func (l *trackerList) add(addr value.Address, flags TrackerFlags) *Tracker {
	t := &Tracker{Address: addr, Flags: flags}
	if l.tail == nil {
		l.head, l.tail = t, t
	} else {
		t.prev = l.tail
		l.tail.next = t
		l.tail = t
	}
	return t
}

func (l *trackerList) remove(t *Tracker) {
	if t.prev != nil {
		t.prev.next = t.next
	} else {
		l.head = t.next
	}
	if t.next != nil {
		t.next.prev = t.prev
	} else {
		l.tail = t.prev
	}
	t.prev, t.next = nil, nil
}

func (l *trackerList) each(fn func(*Tracker)) {
	for t := l.head; t != nil; {
		next := t.next
		fn(t)
		t = next
	}
}
