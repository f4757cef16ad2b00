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
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// callInput abstracts where a lookup's argument values come from: a
// live stack frame paired with a call tags record, or a standalone
// call-data record. Tags are visited in canonical order in both cases.
type callInput interface {
	ArgCount() int
	Tag(i int) value.Value
	Value(i int) value.Value
}

// FrameInput reads arguments off a suspended frame's operand stack via
// a call tags record: an Integer spec is a depth-from-top offset, any
// other spec is the argument value itself (the selector's usual form).
type FrameInput struct {
	H     *heap.Heap
	Frame *stack.Frame
	Tags  value.Value
}

func (in FrameInput) ArgCount() int { return CallTagsLength(in.H, in.Tags) }

func (in FrameInput) Tag(i int) value.Value { return CallTagsTag(in.H, in.Tags, i) }

func (in FrameInput) Value(i int) value.Value {
	spec := CallTagsSpec(in.H, in.Tags, i)
	if spec.IsInteger() {
		return in.Frame.Peek(in.H, int(spec.Int64()))
	}
	return spec
}

// CallDataInput reads a reified call-data record: an Array of
// [tag, value] pairs sorted canonically (built by CreateCallData).
type CallDataInput struct {
	H    *heap.Heap
	Data value.Value
}

func (in CallDataInput) ArgCount() int { return object.ArrayLength(in.H, in.Data) / 2 }

func (in CallDataInput) Tag(i int) value.Value {
	v, _ := object.ArrayGet(in.H, in.Data, i*2)
	return v
}

func (in CallDataInput) Value(i int) value.Value {
	v, _ := object.ArrayGet(in.H, in.Data, i*2+1)
	return v
}

// inputSelector extracts the call's selector value, used to key the
// per-methodspace selector cache. Calls without a selector tag bypass
// the cache and scan the whole signature map.
func inputSelector(in callInput) (tag, selector value.Value, ok bool) {
	n := in.ArgCount()
	for i := 0; i < n; i++ {
		t := in.Tag(i)
		if t.IsKey() && t.KeyId() == value.KeySelectorId {
			return t, in.Value(i), true
		}
	}
	return value.Value(0), value.Value(0), false
}

// Result is a completed method lookup: the winning method, its matched
// score vector (consumed by next-method dispatch), and the argument
// offset vector the argument-map trie keys on.
type Result struct {
	Method  value.Value
	Vector  scoreVector
	Offsets []int
}

// uniqueBestState aggregates candidates into the argument-wise max
// vector, tracking whether the current max is synthetic (assembled from
// incomparable candidates none of which equals it) and whether two
// candidates tie at the max exactly.
type uniqueBestState struct {
	found     bool
	synthetic bool
	ambiguous bool
	max       scoreVector
	best      value.Value
	bestVec   scoreVector
}

func (st *uniqueBestState) add(vec *scoreVector, method value.Value) {
	if !st.found {
		st.found = true
		st.max = *vec
		st.best = method
		st.bestVec = *vec
		return
	}
	switch compareVectors(vec, &st.max) {
	case value.RelationLessThan:
		st.max = *vec
		st.best = method
		st.bestVec = *vec
		st.synthetic = false
		st.ambiguous = false
	case value.RelationGreaterThan:
		// strictly worse, discard
	case value.RelationEqual:
		if st.synthetic {
			st.best = method
			st.bestVec = *vec
			st.synthetic = false
			st.ambiguous = false
		} else {
			st.ambiguous = true
		}
	case value.RelationUnordered:
		maxInto(&st.max, vec)
		st.synthetic = true
	}
}

func (st *uniqueBestState) result() (Result, value.Value) {
	if !st.found {
		return Result{}, value.NewLookupError(value.LookupNoMatch)
	}
	if st.synthetic || st.ambiguous {
		return Result{}, value.NewLookupError(value.LookupAmbiguity)
	}
	r := Result{Method: st.best, Vector: st.bestVec}
	for i := 0; i < MaxArguments; i++ {
		if st.bestVec.offsets[i] >= 0 {
			r.Offsets = append(r.Offsets, st.bestVec.offsets[i])
		}
	}
	return r, value.Value(0)
}

// visitCandidates feeds every candidate (signature, method) pair of ms
// that could answer in's selector through visit, using the selector
// cache when the call carries a selector tag.
func visitCandidates(h *heap.Heap, ms value.Value, in callInput, visit func(sig, method value.Value)) {
	if tag, selector, ok := inputSelector(in); ok {
		e := selectorCandidates(h, ms, tag, selector)
		for i := range e.signatures {
			visit(e.signatures[i], e.methods[i])
		}
		return
	}
	n := MethodspaceMethodCount(h, ms)
	for i := 0; i < n; i++ {
		visit(MethodspaceSignatureAt(h, ms, i), MethodspaceMethodAt(h, ms, i))
	}
}

// lookupUniqueBest runs the shared skeleton: iterate the methodspace
// chain, match each candidate signature, aggregate into the unique-best
// output. admit filters candidates (next-method dispatch admits only
// candidates the previous winner strictly beats); nil admits all.
func lookupUniqueBest(h *heap.Heap, hier *Hierarchy, startMs value.Value, in callInput, admit func(*scoreVector) bool) (Result, value.Value) {
	if in.ArgCount() > MaxArguments {
		return Result{}, value.NewLookupError(value.LookupTooManyArguments)
	}
	st := &uniqueBestState{}
	for ms := startMs; ms.IsHeapObject(); ms = MethodspaceParent(h, ms) {
		visitCandidates(h, ms, in, func(sig, method value.Value) {
			var vec scoreVector
			if matchSignature(h, hier, sig, in, &vec) != MatchOk {
				return
			}
			if admit != nil && !admit(&vec) {
				return
			}
			st.add(&vec, method)
		})
	}
	return st.result()
}

// LookupMethod resolves an ordinary invocation from a frame.
func LookupMethod(h *heap.Heap, hier *Hierarchy, ms value.Value, frame *stack.Frame, tags value.Value) (Result, value.Value) {
	return lookupUniqueBest(h, hier, ms, FrameInput{H: h, Frame: frame, Tags: tags}, nil)
}

// LookupNextMethod resolves a next-method chained dispatch: the same
// call, restricted to candidates the previous winner's score vector
// strictly dominates.
func LookupNextMethod(h *heap.Heap, hier *Hierarchy, ms value.Value, frame *stack.Frame, tags value.Value, prevSignature value.Value) (Result, value.Value) {
	in := FrameInput{H: h, Frame: frame, Tags: tags}
	var prevVec scoreVector
	if matchSignature(h, hier, prevSignature, in, &prevVec) != MatchOk {
		return Result{}, value.NewLookupError(value.LookupNoMatch)
	}
	admit := func(vec *scoreVector) bool {
		return compareVectors(&prevVec, vec) == value.RelationLessThan
	}
	return lookupUniqueBest(h, hier, ms, in, admit)
}

// LookupCallData resolves a dispatch from a standalone call-data record
// rather than a live frame.
func LookupCallData(h *heap.Heap, hier *Hierarchy, ms value.Value, callData value.Value) (Result, value.Value) {
	return lookupUniqueBest(h, hier, ms, CallDataInput{H: h, Data: callData}, nil)
}

// SignalResult pairs a matched handler method with the barrier whose
// methodspace produced it.
type SignalResult struct {
	Method  value.Value
	Vector  scoreVector
	Offsets []int
	Handler stack.Barrier
}

// LookupSignalHandler walks the barrier chain from innermost outward,
// running a lookup against each SignalHandlerSection's methodspace and
// stopping at the first handler that produces any match. Within one
// handler the first best candidate wins and ambiguity is ignored —
// ties between handlers favor the innermost one.
func LookupSignalHandler(h *heap.Heap, typeOf func(value.Value) value.Value, s value.Value, frame *stack.Frame, tags value.Value) (SignalResult, value.Value) {
	in := FrameInput{H: h, Frame: frame, Tags: tags}
	if in.ArgCount() > MaxArguments {
		return SignalResult{}, value.NewLookupError(value.LookupTooManyArguments)
	}
	b, ok := stack.TopBarrier(h, s)
	for ; ok; b, ok = stack.Outer(h, b) {
		if b.Genus(h) != value.GenusSignalHandlerSection {
			continue
		}
		ms := b.SignalMethodspace(h)
		hier := NewHierarchy(h, ms, typeOf)

		var best value.Value
		var bestVec scoreVector
		found := false
		for cur := ms; cur.IsHeapObject(); cur = MethodspaceParent(h, cur) {
			visitCandidates(h, cur, in, func(sig, method value.Value) {
				var vec scoreVector
				if matchSignature(h, hier, sig, in, &vec) != MatchOk {
					return
				}
				if !found {
					found, best, bestVec = true, method, vec
					return
				}
				// Replace the running first-best only when strictly
				// dominated; equal or incomparable keeps the earlier one.
				if compareVectors(&vec, &bestVec) == value.RelationLessThan {
					best, bestVec = method, vec
				}
			})
		}
		if found {
			r := SignalResult{Method: best, Vector: bestVec, Handler: b}
			for i := 0; i < MaxArguments; i++ {
				if bestVec.offsets[i] >= 0 {
					r.Offsets = append(r.Offsets, bestVec.offsets[i])
				}
			}
			return r, value.Value(0)
		}
	}
	return SignalResult{}, value.NewLookupError(value.LookupNoMatch)
}
