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

// Blob is raw, untagged byte storage — bytecode, constant pool
// payloads, C-object staging buffers. Its body is never interpreted as
// Values, so its GetLayout reports ValueOffset == SizeWords: the
// collector copies the bytes (they ride along with every other word in
// the object) but never tries to relocate them as references.
const (
	blobFieldByteLength = heap.HeaderWords + 0
	blobBodyStart       = heap.HeaderWords + 1
)

func bytesToWords(n int) int { return (n + 7) / 8 }

func NewBlob(h *heap.Heap, species value.Value, data []byte) (value.Value, value.Value) {
	bodyWords := bytesToWords(len(data))
	addr, cond := h.Allocate(blobBodyStart + bodyWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+blobFieldByteLength, value.NewInteger(int64(len(data))))
	buf := make([]byte, bodyWords*8)
	copy(buf, data)
	for i := 0; i < bodyWords; i++ {
		var word uint64
		for b := 0; b < 8; b++ {
			word |= uint64(buf[i*8+b]) << (8 * b)
		}
		h.Set(addr+value.Address(blobBodyStart+i), value.Value(word))
	}
	return value.NewHeapObject(addr), value.Value(0)
}

func BlobLength(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + blobFieldByteLength).Int64())
}

func BlobBytes(h *heap.Heap, v value.Value) []byte {
	addr := v.HeapAddress()
	n := BlobLength(h, v)
	bodyWords := bytesToWords(n)
	out := make([]byte, 0, n)
	for i := 0; i < bodyWords; i++ {
		word := uint64(h.Get(addr + value.Address(blobBodyStart+i)))
		for b := 0; b < 8 && len(out) < n; b++ {
			out = append(out, byte(word>>(8*b)))
		}
	}
	return out
}

func BlobGetByte(h *heap.Heap, v value.Value, index int) byte {
	addr := v.HeapAddress()
	word := uint64(h.Get(addr + value.Address(blobBodyStart+index/8)))
	return byte(word >> (8 * (index % 8)))
}

func BlobSetByte(h *heap.Heap, v value.Value, index int, b byte) value.Value {
	if cond := freeze.MustBeMutable(h, v); cond.IsCondition() {
		return cond
	}
	addr := v.HeapAddress()
	wordIdx := value.Address(blobBodyStart + index/8)
	shift := uint(8 * (index % 8))
	word := uint64(h.Get(addr + wordIdx))
	word = word&^(0xff<<shift) | uint64(b)<<shift
	h.Set(addr+wordIdx, value.Value(word))
	return value.Value(0)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyBlob,
		Division: heap.DivisionModal,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if h.Get(addr+blobFieldByteLength).Int64() < 0 {
				return fmt.Errorf("blob at %d has negative length", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			n := int(h.Get(addr + blobFieldByteLength).Int64())
			bodyWords := bytesToWords(n)
			hash := uint32(2166136261)
			for i := 0; i < bodyWords; i++ {
				hash = (hash ^ uint32(h.Get(addr+value.Address(blobBodyStart+i)))) * 16777619
			}
			return hash
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<blob length=%d>", h.Get(addr+blobFieldByteLength).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			n := int(h.Get(addr + blobFieldByteLength).Int64())
			size := blobBodyStart + bytesToWords(n)
			return heap.ObjectLayout{SizeWords: size, ValueOffset: size}
		},
	})
}
