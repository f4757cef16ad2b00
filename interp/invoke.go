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

package interp

import (
	"sort"

	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// invoke resolves and enters a method: lookup through the fragment's
// methodspace (chained through parents), the delegation phase for
// lambda/block trampolines, argument-map memoization, argument
// reordering into parameter order, and the frame push.
func (it *Interp) invoke(f *stack.Frame, operands []uint16) value.Value {
	h := it.heap()
	tags := it.pool(f, operands[0])
	fragment := it.pool(f, operands[1])
	nextGuards := operands[2] != 0

	ms := it.env.MethodspaceFor(fragment)
	if ms.IsCondition() {
		return ms
	}
	hier := dispatch.NewHierarchy(h, ms, it.env.TypeOf)
	in := dispatch.FrameInput{H: h, Frame: f, Tags: tags}

	var res dispatch.Result
	var cond value.Value
	if nextGuards {
		method := f.Method(h)
		if !method.IsHeapObject() {
			return value.NewLookupError(value.LookupNoMatch)
		}
		res, cond = dispatch.LookupNextMethod(h, hier, ms, f, tags, dispatch.MethodSignature(h, method))
	} else {
		res, cond = dispatch.LookupMethod(h, hier, ms, f, tags)
	}
	if cond.IsCondition() {
		return cond
	}

	// Special methods: a delegate flag reroutes the whole lookup to the
	// subject closure's private methodspace, resetting the running state
	// and re-invoking the same framework.
	for {
		var target value.Value
		switch {
		case dispatch.MethodHasFlag(h, res.Method, dispatch.MethodFlagLambdaDelegate):
			subject, ok := subjectOf(h, in)
			if !ok {
				return value.NewLookupError(value.LookupNoMatch)
			}
			target = dispatch.LambdaMethods(h, subject)
		case dispatch.MethodHasFlag(h, res.Method, dispatch.MethodFlagBlockDelegate):
			subject, ok := subjectOf(h, in)
			if !ok {
				return value.NewLookupError(value.LookupNoMatch)
			}
			target = dispatch.BlockMethods(h, subject)
		default:
			return it.enterMethod(f, tags, res)
		}
		hier = dispatch.NewHierarchy(h, target, it.env.TypeOf)
		res, cond = dispatch.LookupMethod(h, hier, target, f, tags)
		if cond.IsCondition() {
			return cond
		}
	}
}

// enterMethod memoizes the call's argument map, replaces the call's
// stack-resident arguments with the full argument list in parameter
// order, and pushes the method's frame.
func (it *Interp) enterMethod(f *stack.Frame, tags value.Value, res dispatch.Result) value.Value {
	h := it.heap()
	unpin := h.Pin(&tags, &res.Method)
	defer unpin()

	it.suspend(f)
	if _, cond := dispatch.ArgumentMapFor(h, it.env.Trie, *it.env.ArgMapRoot, res.Offsets); cond.IsCondition() {
		return cond
	}
	it.refresh(f)

	in := dispatch.FrameInput{H: h, Frame: f, Tags: tags}
	var vals [dispatch.MaxArguments]value.Value
	n := in.ArgCount()
	for i := 0; i < n; i++ {
		vals[i] = in.Value(i)
	}

	f.StackOffset -= stackArgCount(h, tags)
	for _, evalSlot := range res.Offsets {
		f.Push(h, vals[evalSlot])
	}

	code := dispatch.MethodCode(h, res.Method)
	if !code.IsHeapObject() {
		return value.NewUnknownBuiltin()
	}
	it.suspend(f)
	if cond := it.pushCall(code, res.Method, len(res.Offsets)); cond.IsCondition() {
		return cond
	}
	it.refresh(f)
	return value.Value(0)
}

// delegate implements the DelegateToLambda/DelegateToBlock opcodes: a
// trampoline body re-dispatches its own arguments (the tag record's
// Integer specs index the frame's argument area) against the subject
// closure's methodspace via a reified call-data record.
func (it *Interp) delegate(f *stack.Frame, tagsOperand uint16, isBlock bool) value.Value {
	h := it.heap()
	tags := it.pool(f, tagsOperand)
	unpin := h.Pin(&tags)
	defer unpin()

	n := dispatch.CallTagsLength(h, tags)
	it.suspend(f)
	data, cond := object.NewArray(h, it.env.ArraySpecies, n*2, value.Null)
	if cond.IsCondition() {
		return cond
	}
	it.refresh(f)
	for i := 0; i < n; i++ {
		tag := dispatch.CallTagsTag(h, tags, i)
		spec := dispatch.CallTagsSpec(h, tags, i)
		v := spec
		if spec.IsInteger() {
			v = Arg(h, f, int(spec.Int64()))
		}
		object.ArraySet(h, data, i*2, tag)
		object.ArraySet(h, data, i*2+1, v)
	}

	subject := Arg(h, f, 0)
	target := dispatch.LambdaMethods(h, subject)
	if isBlock {
		target = dispatch.BlockMethods(h, subject)
	}
	hier := dispatch.NewHierarchy(h, target, it.env.TypeOf)
	res, cond := dispatch.LookupCallData(h, hier, target, data)
	if cond.IsCondition() {
		return cond
	}

	unpinRes := h.Pin(&res.Method, &data)
	defer unpinRes()
	it.suspend(f)
	if _, cond := dispatch.ArgumentMapFor(h, it.env.Trie, *it.env.ArgMapRoot, res.Offsets); cond.IsCondition() {
		return cond
	}
	it.refresh(f)

	din := dispatch.CallDataInput{H: h, Data: data}
	for _, evalSlot := range res.Offsets {
		f.Push(h, din.Value(evalSlot))
	}
	code := dispatch.MethodCode(h, res.Method)
	if !code.IsHeapObject() {
		return value.NewUnknownBuiltin()
	}
	it.suspend(f)
	if cond := it.pushCall(code, res.Method, len(res.Offsets)); cond.IsCondition() {
		return cond
	}
	it.refresh(f)
	return value.Value(0)
}

// signal raises a signal: sigmap lookup over the installed handler
// sections, innermost first. An escaping signal with no handler aborts
// with UncaughtSignal; a continuing one falls through to the opcode's
// default branch, Nothing. On a match the handler method runs at the
// raise site; for an escaping signal control then fires through every
// intervening barrier and leaves at the handler's frame.
func (it *Interp) signal(f *stack.Frame, tagsOperand uint16, escaping bool) value.Value {
	h := it.heap()
	tags := it.pool(f, tagsOperand)
	it.suspend(f)

	r, cond := dispatch.LookupSignalHandler(h, it.env.TypeOf, it.stackValue(), f, tags)
	if cond.IsCondition() {
		if escaping {
			return value.NewUncaughtSignalEscape(true)
		}
		f.StackOffset -= stackArgCount(h, tags)
		f.Push(h, value.Nothing)
		it.suspend(f)
		return value.Value(0)
	}

	unpin := h.Pin(&tags, &r.Method, &r.Handler.Piece)
	defer unpin()

	it.suspend(f)
	if _, cond := dispatch.ArgumentMapFor(h, it.env.Trie, *it.env.ArgMapRoot, r.Offsets); cond.IsCondition() {
		return cond
	}
	it.refresh(f)

	in := dispatch.FrameInput{H: h, Frame: f, Tags: tags}
	var vals [dispatch.MaxArguments]value.Value
	n := in.ArgCount()
	for i := 0; i < n; i++ {
		vals[i] = in.Value(i)
	}
	sargs := stackArgCount(h, tags)
	for _, evalSlot := range r.Offsets {
		f.Push(h, vals[evalSlot])
	}

	code := dispatch.MethodCode(h, r.Method)
	if !code.IsHeapObject() {
		return value.NewUnknownBuiltin()
	}
	it.suspend(f)
	if cond := it.pushCall(code, r.Method, len(r.Offsets)); cond.IsCondition() {
		return cond
	}
	result := it.runUntil(it.depth)
	if result.IsCondition() {
		return result
	}
	it.refresh(f)

	if !escaping {
		f.StackOffset -= sargs
		f.Push(h, result)
		it.suspend(f)
		return value.Value(0)
	}

	landing := r.Handler.SignalLandingPC(h)
	header := r.Handler.SignalFrameHeaderOffset(h)
	stackOff := r.Handler.SignalStackOffset(h)
	if cond := it.unwindTo(&r.Handler); cond.IsCondition() {
		return cond
	}
	stack.Land(h, it.stackValue(), r.Handler.Piece, header, stackOff)
	it.refresh(f)
	f.PC = landing
	f.Push(h, result)
	it.suspend(f)
	return value.Value(0)
}

// fireEscape transfers control to a previously created escape: run the
// ensurers of every intervening barrier, dispose everything inward of
// the escape including the escape itself (one-shot), and resume at the
// captured position with the fired value on top.
func (it *Interp) fireEscape(handle, fired value.Value) value.Value {
	h := it.heap()
	targetPiece, cond := object.ArrayGet(h, handle, 0)
	if cond.IsCondition() {
		return cond
	}
	offVal, cond := object.ArrayGet(h, handle, 1)
	if cond.IsCondition() {
		return cond
	}
	target := stack.Barrier{Piece: targetPiece, Offset: int(offVal.Int64())}
	if target.Genus(h) != value.GenusEscapeSection {
		return value.NewValidationFailed()
	}

	resumePC := target.EscapeResumePC(h)
	resumeHeader := target.EscapeResumeHeaderOffset(h)
	resumeStack := target.EscapeResumeStackOffset(h)

	unpin := h.Pin(&target.Piece, &fired)
	defer unpin()
	if cond := it.unwindTo(&target); cond.IsCondition() {
		return cond
	}
	stack.Land(h, it.stackValue(), target.Piece, resumeHeader, resumeStack)
	f := stack.CurrentFrame(h, it.stackValue())
	f.PC = resumePC
	f.Push(h, fired)
	it.suspend(&f)
	return value.Value(0)
}

// unwindTo pops barriers innermost-out until target (inclusive),
// running each intervening EnsureSection's cleanup block on the way.
// target's Piece field must be pinned by the caller — ensurers can
// allocate and therefore collect.
func (it *Interp) unwindTo(target *stack.Barrier) value.Value {
	h := it.heap()
	for {
		b, ok := stack.TopBarrier(h, it.stackValue())
		if !ok {
			return value.NewValidationFailed()
		}
		isTarget := b.Piece == target.Piece && b.Offset == target.Offset
		if !isTarget && b.Genus(h) == value.GenusEnsureSection {
			if cond := it.runEnsurer(b); cond.IsCondition() {
				return cond
			}
			// re-derive: the ensurer may have collected
			b, ok = stack.TopBarrier(h, it.stackValue())
			if !ok {
				return value.NewValidationFailed()
			}
		}
		stack.Dispose(h, it.stackValue(), b)
		if isTarget {
			return value.Value(0)
		}
	}
}

// runEnsurer executes an EnsureSection's cleanup code block as a
// zero-argument nested activation, discarding its result.
func (it *Interp) runEnsurer(b stack.Barrier) value.Value {
	cb := b.EnsurerCodeBlock(it.heap())
	if cond := it.pushCall(cb, value.Null, 0); cond.IsCondition() {
		return cond
	}
	result := it.runUntil(it.depth)
	if result.IsCondition() {
		return result
	}
	return value.Value(0)
}

// createCallData reifies the top argc (tag, value) pairs into a
// canonical call-data record.
func (it *Interp) createCallData(f *stack.Frame, argc int) value.Value {
	h := it.heap()
	it.suspend(f)
	data, cond := object.NewArray(h, it.env.ArraySpecies, argc*2, value.Null)
	if cond.IsCondition() {
		return cond
	}
	it.refresh(f)

	// pair i (pushed first) sits at depths: tag 2*(argc-i)-1, value one above
	order := make([]int, argc)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ta := f.Peek(h, 2*(argc-order[a])-1)
		tb := f.Peek(h, 2*(argc-order[b])-1)
		return dispatch.CompareTags(ta, tb) == value.RelationLessThan
	})
	for out, i := range order {
		tag := f.Peek(h, 2*(argc-i)-1)
		v := f.Peek(h, 2*(argc-i)-2)
		object.ArraySet(h, data, out*2, tag)
		object.ArraySet(h, data, out*2+1, v)
	}
	f.StackOffset -= argc * 2
	f.Push(h, data)
	it.suspend(f)
	return value.Value(0)
}
