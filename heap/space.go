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

// Package heap implements the semispace-copying collector: two
// word-addressed spaces, a bump allocator, object trackers and the
// five-pass collection algorithm that relocates everything reachable
// from the roots into the other space.
package heap

import (
	"github.com/neutrino-rt/neutrino/value"
)

// Space is a flat, word-addressed allocation arena. Object addresses
// are indices into words, never native pointers, so relocating an
// object is just copying a run of words and leaving a forwarding
// MovedObject behind at the old index.
type Space struct {
	words []value.Value
	top   value.Address
}

func NewSpace(capacityWords int) *Space {
	return &Space{words: make([]value.Value, capacityWords)}
}

func (s *Space) Capacity() int { return len(s.words) }

func (s *Space) Used() value.Address { return s.top }

func (s *Space) Remaining() int { return len(s.words) - int(s.top) }

// TryAllocate bump-allocates n words and returns their starting
// address, or ok=false if the space doesn't have room.
func (s *Space) TryAllocate(n int) (value.Address, bool) {
	if s.Remaining() < n {
		return 0, false
	}
	addr := s.top
	s.top += value.Address(n)
	return addr, true
}

func (s *Space) Reset() { s.top = 0 }

func (s *Space) Get(addr value.Address) value.Value { return s.words[addr] }

func (s *Space) Set(addr value.Address, v value.Value) { s.words[addr] = v }

func (s *Space) Slice(addr value.Address, n int) []value.Value {
	return s.words[addr : addr+value.Address(n)]
}
