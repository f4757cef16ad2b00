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

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/value"
)

// Utf8 is a length-prefixed byte sequence with a trailing NUL byte so
// native code that expects a C string can borrow the body directly
// without a copy. The body is otherwise identical in layout to Blob;
// it gets its own family because its Print and TransientHash interpret
// the bytes as text rather than opaque data.
const (
	utf8FieldByteLength = heap.HeaderWords + 0
	utf8BodyStart       = heap.HeaderWords + 1
)

func NewUtf8(h *heap.Heap, species value.Value, s string) (value.Value, value.Value) {
	data := []byte(s)
	bodyWords := bytesToWords(len(data) + 1) // +1 for the trailing NUL
	addr, cond := h.Allocate(utf8BodyStart + bodyWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+utf8FieldByteLength, value.NewInteger(int64(len(data))))
	buf := make([]byte, bodyWords*8)
	copy(buf, data) // buf[len(data)] stays zero: the NUL terminator
	for i := 0; i < bodyWords; i++ {
		var word uint64
		for b := 0; b < 8; b++ {
			word |= uint64(buf[i*8+b]) << (8 * b)
		}
		h.Set(addr+value.Address(utf8BodyStart+i), value.Value(word))
	}
	return value.NewHeapObject(addr), value.Value(0)
}

func Utf8Length(h *heap.Heap, v value.Value) int {
	return int(h.Get(v.HeapAddress() + utf8FieldByteLength).Int64())
}

// Utf8String reads the body back out as a Go string, stopping at the
// declared length, never at the NUL — the NUL is interop-only padding,
// not part of the value.
func Utf8String(h *heap.Heap, v value.Value) string {
	addr := v.HeapAddress()
	n := Utf8Length(h, v)
	bodyWords := bytesToWords(n + 1)
	out := make([]byte, 0, n)
	for i := 0; i < bodyWords && len(out) < n; i++ {
		word := uint64(h.Get(addr + value.Address(utf8BodyStart+i)))
		for b := 0; b < 8 && len(out) < n; b++ {
			out = append(out, byte(word>>(8*b)))
		}
	}
	return string(out)
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyUtf8,
		Division: heap.DivisionModal,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if h.Get(addr+utf8FieldByteLength).Int64() < 0 {
				return fmt.Errorf("utf8 at %d has negative length", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			n := int(h.Get(addr + utf8FieldByteLength).Int64())
			bodyWords := bytesToWords(n + 1)
			hash := uint32(2166136261)
			for i := 0; i < bodyWords; i++ {
				hash = (hash ^ uint32(h.Get(addr+value.Address(utf8BodyStart+i)))) * 16777619
			}
			return hash
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool {
			av, bv := value.NewHeapObject(a), value.NewHeapObject(b)
			return Utf8String(h, av) == Utf8String(h, bv)
		},
		OrderingCompare: func(h *heap.Heap, a, b value.Address) (value.Relation, bool) {
			as, bs := Utf8String(h, value.NewHeapObject(a)), Utf8String(h, value.NewHeapObject(b))
			switch {
			case as < bs:
				return value.RelationLessThan, true
			case as > bs:
				return value.RelationGreaterThan, true
			default:
				return value.RelationEqual, true
			}
		},
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("%q", Utf8String(h, value.NewHeapObject(addr)))
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			n := int(h.Get(addr + utf8FieldByteLength).Int64())
			size := utf8BodyStart + bytesToWords(n+1)
			return heap.ObjectLayout{SizeWords: size, ValueOffset: size}
		},
	})
}
