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

import (
	"go.uber.org/zap"

	"github.com/neutrino-rt/neutrino/value"
)

// collector holds the transient state of a single collection: the
// source (from) and destination (to) spaces, and a map from an
// object's new address back to where it used to live, consulted by the
// final fixups pass.
type collector struct {
	from, to *Space
	oldOf    map[value.Address]value.Address
}

// copyValue relocates v if it is a heap reference still living in
// from-space, returning an already-relocated reference unchanged. This
// is the single place that understands semispace forwarding.
func (c *collector) copyValue(v value.Value) value.Value {
	if !v.IsHeapObject() {
		return v
	}
	oldAddr := v.HeapAddress()
	header := c.from.Get(oldAddr + headerSpeciesWord)
	if header.IsMovedObject() {
		return value.NewHeapObject(header.ForwardAddress())
	}

	size := objectSizeForCopy(c.from, oldAddr, header)
	newAddr, ok := c.to.TryAllocate(size)
	if !ok {
		panic("heap: to-space exhausted during collection")
	}
	copy(c.to.Slice(newAddr, size), c.from.Slice(oldAddr, size))
	c.from.Set(oldAddr+headerSpeciesWord, value.NewMovedObject(newAddr))
	c.oldOf[newAddr] = oldAddr
	return value.NewHeapObject(newAddr)
}

// objectSizeForCopy determines how many words to copy for an object
// whose header species pointer is already known, without requiring the
// species itself to have been relocated yet (the species, if not yet
// copied, is read directly out of from-space).
func objectSizeForCopy(from *Space, addr value.Address, speciesHeader value.Value) int {
	var speciesAddr value.Address
	if speciesHeader.IsMovedObject() {
		speciesAddr = speciesHeader.ForwardAddress()
	} else {
		speciesAddr = speciesHeader.HeapAddress()
	}
	family := Family(from.Get(speciesAddr + speciesFieldFamily).Int64())
	return BehaviorFor(family).GetLayout(&Heap{to: from}, addr).SizeWords
}

// Collect runs one full semispace collection: before, shallow-move
// roots, scan to fixpoint, post-process weak trackers, and fixups.
func (h *Heap) Collect() {
	gcFrom, gcTo := h.to, h.from
	gcTo.Reset()
	c := &collector{from: gcFrom, to: gcTo, oldOf: make(map[value.Address]value.Address)}

	h.shallowMoveRoots(c)
	h.scanToFixpoint(c)
	h.postProcessWeakTrackers(c)
	h.runFixups(c)

	h.to, h.from = gcTo, gcFrom
	h.log.Debug("gc: collection complete",
		zap.Int("bytesUsed", int(gcTo.Used())*8),
		zap.Int("objectsRelocated", len(c.oldOf)))
}

func (h *Heap) shallowMoveRoots(c *collector) {
	if h.RootProvider != nil {
		for _, slot := range h.RootProvider() {
			*slot = c.copyValue(*slot)
		}
	}
	for _, slot := range h.pins {
		*slot = c.copyValue(*slot)
	}
	h.trackers.each(func(t *Tracker) {
		if t.isWeakNow() {
			return
		}
		moved := c.copyValue(value.NewHeapObject(t.Address))
		t.Address = moved.HeapAddress()
	})
}

func (h *Heap) scanToFixpoint(c *collector) {
	scan := value.Address(0)
	for scan < c.to.Used() {
		newSpecies := c.copyValue(c.to.Get(scan + headerSpeciesWord))
		c.to.Set(scan+headerSpeciesWord, newSpecies)

		family := Family(c.to.Get(newSpecies.HeapAddress() + speciesFieldFamily).Int64())
		layout := BehaviorFor(family).GetLayout(&Heap{to: c.to}, scan)

		for i := layout.ValueOffset; i < layout.SizeWords; i++ {
			field := c.to.Get(scan + value.Address(i))
			c.to.Set(scan+value.Address(i), c.copyValue(field))
		}
		scan += value.Address(layout.SizeWords)
	}
}

func (h *Heap) postProcessWeakTrackers(c *collector) {
	h.trackers.each(func(t *Tracker) {
		if t.cleared {
			return
		}
		header := c.from.Get(t.Address + headerSpeciesWord)
		if header.IsMovedObject() {
			if t.Flags&(TrackerWeak|TrackerMaybeWeak) != 0 {
				t.Address = header.ForwardAddress()
			}
			return
		}
		if t.Flags&(TrackerWeak|TrackerMaybeWeak) == 0 {
			return
		}
		if t.Flags&TrackerFinalize != 0 && t.Finalizer != nil {
			t.Finalizer(t.Address)
		}
		t.cleared = true
		if t.Flags&TrackerSelfDestruct != 0 {
			h.trackers.remove(t)
		}
	})
}

func (h *Heap) runFixups(c *collector) {
	scan := value.Address(0)
	for scan < c.to.Used() {
		species := c.to.Get(scan + headerSpeciesWord)
		family := Family(c.to.Get(species.HeapAddress() + speciesFieldFamily).Int64())
		b := BehaviorFor(family)
		layout := b.GetLayout(&Heap{to: c.to}, scan)
		if b.PostMigrateFixup != nil {
			if old, ok := c.oldOf[scan]; ok {
				hh := &Heap{to: c.to, from: c.from, trackers: h.trackers, log: h.log}
				b.PostMigrateFixup(hh, old, scan)
			}
		}
		scan += value.Address(layout.SizeWords)
	}
}

// Validate walks every live object in to-space and invokes its
// family's Validate callback, surfacing the first failure.
func (h *Heap) Validate() error {
	scan := value.Address(0)
	for scan < h.to.Used() {
		species := h.to.Get(scan + headerSpeciesWord)
		family := Family(h.to.Get(species.HeapAddress() + speciesFieldFamily).Int64())
		b := BehaviorFor(family)
		if err := b.Validate(h, scan); err != nil {
			return err
		}
		layout := b.GetLayout(h, scan)
		scan += value.Address(layout.SizeWords)
	}
	return nil
}
