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
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// A Parameter pairs a guard with its position in parameter order and an
// optionality flag. Parameters are shared freely between the signature's
// tag table entries (one parameter may answer to several tags).
const (
	parameterFieldGuard    = heap.HeaderWords + 0
	parameterFieldIndex    = heap.HeaderWords + 1
	parameterFieldOptional = heap.HeaderWords + 2
	parameterWords         = heap.HeaderWords + 3
)

func NewParameter(h *heap.Heap, species, guard value.Value, index int, optional bool) (value.Value, value.Value) {
	addr, cond := h.Allocate(parameterWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, species)
	h.Set(addr+parameterFieldGuard, guard)
	h.Set(addr+parameterFieldIndex, value.NewInteger(int64(index)))
	h.Set(addr+parameterFieldOptional, value.NewBoolean(optional))
	return value.NewHeapObject(addr), value.Value(0)
}

func ParameterGuard(h *heap.Heap, p value.Value) value.Value {
	return h.Get(p.HeapAddress() + parameterFieldGuard)
}

func ParameterIndex(h *heap.Heap, p value.Value) int {
	return int(h.Get(p.HeapAddress() + parameterFieldIndex).Int64())
}

func ParameterIsOptional(h *heap.Heap, p value.Value) bool {
	return h.Get(p.HeapAddress() + parameterFieldOptional).Bool()
}

// A Signature is the callable shape dispatch matches a call against: a
// tag table (Array of [tag, parameter] pairs, sorted canonically by
// tag), the parameter count, how many parameters are mandatory, and
// whether unexpected extra arguments are tolerated rather than fatal.
const (
	signatureFieldTags           = heap.HeaderWords + 0
	signatureFieldParamCount     = heap.HeaderWords + 1
	signatureFieldMandatoryCount = heap.HeaderWords + 2
	signatureFieldAllowExtra     = heap.HeaderWords + 3
	signatureWords               = heap.HeaderWords + 4
)

// NewSignature builds a signature from parallel tag/parameter slices.
// The caller supplies tags in any order; the table is sorted here so
// matching can walk it in lockstep with a canonical call tags record.
func NewSignature(h *heap.Heap, sigSpecies, arraySpecies value.Value, tags, params []value.Value, paramCount int, allowExtra bool) (value.Value, value.Value) {
	type pair struct{ tag, param value.Value }
	pairs := make([]pair, len(tags))
	for i := range tags {
		pairs[i] = pair{tags[i], params[i]}
	}
	for i := 1; i < len(pairs); i++ {
		for j := i; j > 0 && CompareTags(pairs[j].tag, pairs[j-1].tag) == value.RelationLessThan; j-- {
			pairs[j], pairs[j-1] = pairs[j-1], pairs[j]
		}
	}

	table, cond := object.NewArray(h, arraySpecies, len(pairs)*2, value.Null)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	mandatory := map[int]bool{}
	for i, p := range pairs {
		object.ArraySet(h, table, i*2, p.tag)
		object.ArraySet(h, table, i*2+1, p.param)
		if !ParameterIsOptional(h, p.param) {
			mandatory[ParameterIndex(h, p.param)] = true
		}
	}

	addr, cond := h.Allocate(signatureWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, sigSpecies)
	h.Set(addr+signatureFieldTags, table)
	h.Set(addr+signatureFieldParamCount, value.NewInteger(int64(paramCount)))
	h.Set(addr+signatureFieldMandatoryCount, value.NewInteger(int64(len(mandatory))))
	h.Set(addr+signatureFieldAllowExtra, value.NewBoolean(allowExtra))
	return value.NewHeapObject(addr), value.Value(0)
}

func signatureTagTable(h *heap.Heap, sig value.Value) value.Value {
	return h.Get(sig.HeapAddress() + signatureFieldTags)
}

func SignatureTagCount(h *heap.Heap, sig value.Value) int {
	return object.ArrayLength(h, signatureTagTable(h, sig)) / 2
}

func SignatureTagAt(h *heap.Heap, sig value.Value, i int) value.Value {
	v, _ := object.ArrayGet(h, signatureTagTable(h, sig), i*2)
	return v
}

func SignatureParameterAt(h *heap.Heap, sig value.Value, i int) value.Value {
	v, _ := object.ArrayGet(h, signatureTagTable(h, sig), i*2+1)
	return v
}

func SignatureParamCount(h *heap.Heap, sig value.Value) int {
	return int(h.Get(sig.HeapAddress() + signatureFieldParamCount).Int64())
}

func SignatureMandatoryCount(h *heap.Heap, sig value.Value) int {
	return int(h.Get(sig.HeapAddress() + signatureFieldMandatoryCount).Int64())
}

func SignatureAllowExtra(h *heap.Heap, sig value.Value) bool {
	return h.Get(sig.HeapAddress() + signatureFieldAllowExtra).Bool()
}

// SignatureAdmitsTag reports whether sig could match any call carrying
// tag — the filter the selector cache uses when pre-sieving a
// methodspace's signature map for one selector value.
func SignatureAdmitsTag(h *heap.Heap, sig, tag, tagValue value.Value) bool {
	n := SignatureTagCount(h, sig)
	for i := 0; i < n; i++ {
		if SignatureTagAt(h, sig, i) == tag {
			g := ParameterGuard(h, SignatureParameterAt(h, sig, i))
			if GuardTypeOf(h, g) != GuardEq {
				return true
			}
			return identityEqual(h, GuardValue(h, g), tagValue)
		}
	}
	return SignatureAllowExtra(h, sig)
}

// MatchStatus reports how a signature match ended.
type MatchStatus int

const (
	MatchOk MatchStatus = iota
	MatchGuardRejected
	MatchUnexpectedArgument
	MatchMissingArgument
	MatchTooManyArguments
)

// matchSignature visits input's arguments in tag order, resolving each
// tag in sig's sorted table, scoring the argument against the bound
// parameter's guard, and producing the per-argument score vector plus
// the per-parameter evaluation-slot offsets on success.
func matchSignature(h *heap.Heap, hier *Hierarchy, sig value.Value, in callInput, out *scoreVector) MatchStatus {
	argc := in.ArgCount()
	if argc > MaxArguments {
		return MatchTooManyArguments
	}
	out.count = argc
	for i := range out.offsets {
		out.offsets[i] = -1
	}

	sigCount := SignatureTagCount(h, sig)
	mandatoryHits := 0
	seen := map[int]bool{}
	si := 0
	for i := 0; i < argc; i++ {
		tag := in.Tag(i)
		for si < sigCount && CompareTags(SignatureTagAt(h, sig, si), tag) == value.RelationLessThan {
			si++
		}
		if si >= sigCount || SignatureTagAt(h, sig, si) != tag {
			if !SignatureAllowExtra(h, sig) {
				return MatchUnexpectedArgument
			}
			out.scores[i] = ScoreExtraMatch
			continue
		}
		param := SignatureParameterAt(h, sig, si)
		score, ok := matchGuard(h, hier, ParameterGuard(h, param), in.Value(i))
		if !ok {
			return MatchGuardRejected
		}
		out.scores[i] = score
		idx := ParameterIndex(h, param)
		out.offsets[idx] = i
		if !seen[idx] {
			seen[idx] = true
			if !ParameterIsOptional(h, param) {
				mandatoryHits++
			}
		}
	}
	if mandatoryHits != SignatureMandatoryCount(h, sig) {
		return MatchMissingArgument
	}
	return MatchOk
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyParameter,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if h.Get(addr+parameterFieldIndex).Int64() < 0 {
				return fmt.Errorf("parameter at %d has negative index", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<parameter %d>", h.Get(addr+parameterFieldIndex).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: parameterWords, ValueOffset: parameterFieldGuard}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+parameterFieldGuard))
			return nil
		},
	})

	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilySignature,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + signatureFieldTags).IsHeapObject() {
				return fmt.Errorf("signature at %d has non-heap tag table", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<signature params=%d>", h.Get(addr+signatureFieldParamCount).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: signatureWords, ValueOffset: signatureFieldTags}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+signatureFieldTags))
			return nil
		},
	})
}
