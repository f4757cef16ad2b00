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
	"go.uber.org/zap"

	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// Builtin is a native method implementation. It reads its arguments out
// of the current frame's argument area (Arg) and returns either a
// result value or a condition.
type Builtin func(env *Env, f *stack.Frame) value.Value

// Env is everything the dispatch loop needs from the enclosing runtime:
// the heap, the species the loop allocates with, the primary-type
// resolver and global/namespace resolvers, and the builtin table. The
// runtime wires one Env per process and registers the stack slot it
// hands to Run as a GC root, so a collection between opcodes retargets
// the loop transparently.
type Env struct {
	Heap *heap.Heap
	Log  *zap.Logger

	ArraySpecies  value.Value
	PieceSpecies  value.Value
	LambdaSpecies value.Value
	BlockSpecies  value.Value
	Trie          dispatch.TrieSpecies

	// ArgMapRoot points at the mutable-roots slot holding the
	// argument-map trie root; the slot, not the value, because the
	// collector rewrites it.
	ArgMapRoot *value.Value

	TypeOf         func(value.Value) value.Value
	ResolveGlobal  func(path, fragment value.Value) value.Value
	MethodspaceFor func(fragment value.Value) value.Value
	Builtins       map[int64]Builtin
}

// Arg reads argument i of the frame's argument area; arguments were
// reordered into parameter order when the frame was pushed.
func Arg(h *heap.Heap, f *stack.Frame, i int) value.Value {
	argc := object.CodeBlockArgCount(h, f.CodeBlock(h))
	return stack.BodyWord(h, f.Piece, f.HeaderOffset-argc+i)
}

// Interp is one execution of a task's stack. stackBox is the caller's
// GC-rooted slot holding the stack value.
type Interp struct {
	env      *Env
	stackBox *value.Value
	depth    int
}

// Run pushes a frame for code onto the stack in stackBox and executes
// until that frame returns, yielding its result or the first condition.
func Run(env *Env, stackBox *value.Value, code value.Value) value.Value {
	it := &Interp{env: env, stackBox: stackBox}
	if cond := it.pushCall(code, value.Null, 0); cond.IsCondition() {
		return cond
	}
	return it.runUntil(it.depth)
}

func (it *Interp) heap() *heap.Heap { return it.env.Heap }

func (it *Interp) stackValue() value.Value { return *it.stackBox }

// pushCall opens a frame for codeBlock whose argc arguments are already
// on top of the current frame's stack.
func (it *Interp) pushCall(codeBlock, method value.Value, argc int) value.Value {
	h := it.heap()
	hwm := object.CodeBlockHighWaterMark(h, codeBlock)
	cond := stack.PushFrame(h, it.stackValue(), it.env.PieceSpecies, codeBlock, method, argc, hwm)
	if cond.IsCondition() {
		return cond
	}
	it.depth++
	return value.Value(0)
}

// codeWords decodes a code block's bytecode blob into the 16-bit stream
// the loop reads. The returned slice is a host-side copy, so it stays
// valid across collections even though the blob itself may move.
func codeWords(h *heap.Heap, codeBlock value.Value) []uint16 {
	raw := object.BlobBytes(h, object.CodeBlockBytecode(h, codeBlock))
	words := make([]uint16, len(raw)/2)
	for i := range words {
		words[i] = uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
	}
	return words
}

func (it *Interp) pool(f *stack.Frame, index uint16) value.Value {
	h := it.heap()
	v, cond := object.CodeBlockPoolValue(h, f.CodeBlock(h), int(index))
	if cond.IsCondition() {
		return cond
	}
	return v
}

// suspend writes the live cursor back into heap storage so the stack is
// consistent before any operation that can allocate (and therefore
// collect) or that walks the stack from its heap representation.
func (it *Interp) suspend(f *stack.Frame) {
	stack.Suspend(it.heap(), it.stackValue(), *f)
}

// refresh re-derives the cursor after a possible collection.
func (it *Interp) refresh(f *stack.Frame) {
	*f = stack.CurrentFrame(it.heap(), it.stackValue())
}

// outerFrame walks n activation records up from f, crossing piece
// boundaries through the lid pointers. Used by the refracted loads.
func outerFrame(h *heap.Heap, f stack.Frame, n int) (value.Value, int, bool) {
	piece, header := f.Piece, f.HeaderOffset
	for ; n > 0; n-- {
		prevFP := int(stack.BodyWord(h, piece, header+0).Int64())
		if prevFP >= 0 {
			header = prevFP
			continue
		}
		prev := stack.PiecePrev(h, piece)
		if !prev.IsHeapObject() {
			return value.Value(0), 0, false
		}
		piece = prev
		header = stack.PieceLidFrame(h, prev)
	}
	return piece, header, true
}

func frameCodeAt(h *heap.Heap, piece value.Value, header int) value.Value {
	return stack.BodyWord(h, piece, header+1)
}

// stackArgCount counts the call-tag entries whose spec is an Integer —
// the arguments occupying operand-stack slots, as opposed to static
// entries like the selector that live in the record itself.
func stackArgCount(h *heap.Heap, tags value.Value) int {
	n := dispatch.CallTagsLength(h, tags)
	count := 0
	for i := 0; i < n; i++ {
		if dispatch.CallTagsSpec(h, tags, i).IsInteger() {
			count++
		}
	}
	return count
}

// subjectOf extracts the invocation's subject argument value.
func subjectOf(h *heap.Heap, in dispatch.FrameInput) (value.Value, bool) {
	n := in.ArgCount()
	for i := 0; i < n; i++ {
		t := in.Tag(i)
		if t.IsKey() && t.KeyId() == value.KeySubjectId {
			return in.Value(i), true
		}
	}
	return value.Value(0), false
}

// runUntil executes opcodes until the activation depth drops below
// stopDepth (the frame the caller pushed has returned); the returned
// value is that frame's result, popped off its caller's stack, or the
// first condition encountered.
func (it *Interp) runUntil(stopDepth int) value.Value {
	h := it.heap()
	for {
		f := stack.CurrentFrame(h, it.stackValue())
		code := codeWords(h, f.CodeBlock(h))
		op := Opcode(code[f.PC])
		operands := code[f.PC+1 : f.PC+1+OperandCount(op)]
		f.PC += 1 + OperandCount(op)

		switch op {
		case OpPush:
			f.Push(h, it.pool(&f, operands[0]))
			it.suspend(&f)

		case OpPop:
			f.StackOffset -= int(operands[0])
			it.suspend(&f)

		case OpSlap:
			top := f.Pop(h)
			f.StackOffset -= int(operands[0])
			f.Push(h, top)
			it.suspend(&f)

		case OpNewArray:
			n := int(operands[0])
			it.suspend(&f)
			arr, cond := object.NewArray(h, it.env.ArraySpecies, n, value.Null)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			for i := n - 1; i >= 0; i-- {
				object.ArraySet(h, arr, i, f.Pop(h))
			}
			f.Push(h, arr)
			it.suspend(&f)

		case OpLoadLocal:
			f.Push(h, stack.BodyWord(h, f.Piece, f.HeaderOffset+stack.FrameHeaderWords+int(operands[0])))
			it.suspend(&f)

		case OpLoadArgument, OpLoadRawArgument:
			f.Push(h, Arg(h, &f, int(operands[0])))
			it.suspend(&f)

		case OpLoadLambdaCapture:
			lambda := Arg(h, &f, 0)
			f.Push(h, dispatch.LambdaCapture(h, lambda, int(operands[0])))
			it.suspend(&f)

		case OpLoadRefractedLocal:
			piece, header, ok := outerFrame(h, f, int(operands[0]))
			if !ok {
				return value.NewValidationFailed()
			}
			f.Push(h, stack.BodyWord(h, piece, header+stack.FrameHeaderWords+int(operands[1])))
			it.suspend(&f)

		case OpLoadRefractedArgument:
			piece, header, ok := outerFrame(h, f, int(operands[0]))
			if !ok {
				return value.NewValidationFailed()
			}
			argc := object.CodeBlockArgCount(h, frameCodeAt(h, piece, header))
			f.Push(h, stack.BodyWord(h, piece, header-argc+int(operands[1])))
			it.suspend(&f)

		case OpLoadRefractedCapture:
			piece, header, ok := outerFrame(h, f, int(operands[0]))
			if !ok {
				return value.NewValidationFailed()
			}
			argc := object.CodeBlockArgCount(h, frameCodeAt(h, piece, header))
			lambda := stack.BodyWord(h, piece, header-argc)
			f.Push(h, dispatch.LambdaCapture(h, lambda, int(operands[1])))
			it.suspend(&f)

		case OpNewReference:
			it.suspend(&f)
			box, cond := object.NewArray(h, it.env.ArraySpecies, 1, value.Null)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			object.ArraySet(h, box, 0, f.Pop(h))
			f.Push(h, box)
			it.suspend(&f)

		case OpGetReference:
			box := f.Pop(h)
			v, cond := object.ArrayGet(h, box, 0)
			if cond.IsCondition() {
				return cond
			}
			f.Push(h, v)
			it.suspend(&f)

		case OpSetReference:
			v := f.Pop(h)
			box := f.Pop(h)
			if cond := object.ArraySet(h, box, 0, v); cond.IsCondition() {
				return cond
			}
			f.Push(h, v)
			it.suspend(&f)

		case OpLoadGlobal:
			path := it.pool(&f, operands[0])
			fragment := it.pool(&f, operands[1])
			v := it.env.ResolveGlobal(path, fragment)
			if v.IsCondition() {
				return v
			}
			f.Push(h, v)
			it.suspend(&f)

		case OpInvoke:
			if cond := it.invoke(&f, operands); cond.IsCondition() {
				return cond
			}

		case OpSignalEscape:
			if cond := it.signal(&f, operands[0], true); cond.IsCondition() {
				return cond
			}

		case OpSignalContinue:
			if cond := it.signal(&f, operands[0], false); cond.IsCondition() {
				return cond
			}

		case OpCreateEscape:
			landing := int(operands[0])
			it.suspend(&f)
			handle, cond := object.NewArray(h, it.env.ArraySpecies, 2, value.Null)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			it.suspend(&f)
			b := stack.PushEscape(h, it.stackValue(), f.HeaderOffset, f.StackOffset, landing)
			object.ArraySet(h, handle, 0, b.Piece)
			object.ArraySet(h, handle, 1, value.NewInteger(int64(b.Offset)))
			it.refresh(&f)
			f.Push(h, handle)
			it.suspend(&f)

		case OpFireEscapeOrBarrier:
			fired := f.Pop(h)
			handle := f.Pop(h)
			it.suspend(&f)
			if cond := it.fireEscape(handle, fired); cond.IsCondition() {
				return cond
			}

		case OpDisposeEscape:
			result := f.Pop(h)
			it.suspend(&f)
			b, ok := stack.TopBarrier(h, it.stackValue())
			if !ok || b.Genus(h) != value.GenusEscapeSection {
				return value.NewValidationFailed()
			}
			stack.Dispose(h, it.stackValue(), b)
			it.refresh(&f)
			f.StackOffset = b.Offset
			f.Push(h, result)
			it.suspend(&f)

		case OpCreateEnsurer:
			ensurer := it.pool(&f, operands[0])
			it.suspend(&f)
			stack.PushEnsure(h, it.stackValue(), ensurer)
			it.refresh(&f)
			it.suspend(&f)

		case OpCallEnsurer:
			b, ok := stack.TopBarrier(h, it.stackValue())
			if !ok || b.Genus(h) != value.GenusEnsureSection {
				return value.NewValidationFailed()
			}
			it.suspend(&f)
			if cond := it.runEnsurer(b); cond.IsCondition() {
				return cond
			}

		case OpDisposeEnsurer:
			b, ok := stack.TopBarrier(h, it.stackValue())
			if !ok || b.Genus(h) != value.GenusEnsureSection {
				return value.NewValidationFailed()
			}
			stack.Dispose(h, it.stackValue(), b)
			f.StackOffset = b.Offset
			it.suspend(&f)

		case OpInstallSignalHandler:
			ms := it.pool(&f, operands[0])
			landing := int(operands[1])
			it.suspend(&f)
			stack.PushSignalHandler(h, it.stackValue(), ms, landing, f.HeaderOffset, f.StackOffset)
			it.refresh(&f)
			it.suspend(&f)

		case OpUninstallSignalHandler:
			b, ok := stack.TopBarrier(h, it.stackValue())
			if !ok || b.Genus(h) != value.GenusSignalHandlerSection {
				return value.NewValidationFailed()
			}
			stack.Dispose(h, it.stackValue(), b)
			f.StackOffset = b.Offset
			it.suspend(&f)

		case OpLambda:
			nCaptures := int(operands[1])
			it.suspend(&f)
			captures, cond := object.NewArray(h, it.env.ArraySpecies, nCaptures, value.Null)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			for i := nCaptures - 1; i >= 0; i-- {
				object.ArraySet(h, captures, i, f.Pop(h))
			}
			it.suspend(&f)
			methods := it.pool(&f, operands[0])
			lambda, cond := dispatch.NewLambda(h, it.env.LambdaSpecies, methods, captures)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			f.Push(h, lambda)
			it.suspend(&f)

		case OpCreateBlock:
			methods := it.pool(&f, operands[0])
			it.suspend(&f)
			block, cond := dispatch.NewBlockClosure(h, it.env.BlockSpecies, methods, it.stackValue(), f.HeaderOffset)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			it.suspend(&f)
			stack.PushBlock(h, it.stackValue(), f.HeaderOffset)
			it.refresh(&f)
			f.Push(h, block)
			it.suspend(&f)

		case OpDisposeBlock:
			f.StackOffset-- // the block value
			it.suspend(&f)
			b, ok := stack.TopBarrier(h, it.stackValue())
			if !ok || b.Genus(h) != value.GenusBlockSection {
				return value.NewValidationFailed()
			}
			stack.Dispose(h, it.stackValue(), b)
			f.StackOffset = b.Offset
			it.suspend(&f)

		case OpDelegateToLambda:
			if cond := it.delegate(&f, operands[0], false); cond.IsCondition() {
				return cond
			}

		case OpDelegateToBlock:
			if cond := it.delegate(&f, operands[0], true); cond.IsCondition() {
				return cond
			}

		case OpBuiltin:
			id := it.pool(&f, operands[0])
			fn, ok := it.env.Builtins[id.Int64()]
			if !ok {
				return value.NewUnknownBuiltin()
			}
			it.suspend(&f)
			result := fn(it.env, &f)
			if result.IsCondition() {
				return result
			}
			it.refresh(&f)
			f.Push(h, result)
			it.suspend(&f)

		case OpBuiltinMaybeEscape:
			id := it.pool(&f, operands[0])
			argc := int(operands[1])
			fn, ok := it.env.Builtins[id.Int64()]
			if !ok {
				return value.NewUnknownBuiltin()
			}
			it.suspend(&f)
			result := fn(it.env, &f)
			if result.IsCondition() {
				return result
			}
			it.refresh(&f)
			f.StackOffset -= argc
			f.Push(h, result)
			it.suspend(&f)

		case OpGoto:
			f.PC = int(operands[0])
			it.suspend(&f)

		case OpReturn, OpUncheckedReturn:
			if op == OpReturn && f.StackOffset <= f.HeaderOffset+stack.FrameHeaderWords {
				return value.NewValidationFailed()
			}
			result := f.Pop(h)
			crossPiece := f.PrevFrameOffset(h) < 0
			argc := object.CodeBlockArgCount(h, f.CodeBlock(h))
			it.suspend(&f)
			if !stack.PopFrame(h, it.stackValue()) {
				return result
			}
			it.depth--
			it.refresh(&f)
			if !crossPiece {
				f.StackOffset -= argc
			}
			f.Push(h, result)
			it.suspend(&f)
			if it.depth < stopDepth {
				caller := stack.CurrentFrame(h, it.stackValue())
				res := caller.Pop(h)
				stack.Suspend(h, it.stackValue(), caller)
				return res
			}

		case OpStackBottom:
			return f.Pop(h)

		case OpStackPieceBottom:
			return value.NewCondition(value.CauseWat, 0)

		case OpReifyArguments:
			argc := object.CodeBlockArgCount(h, f.CodeBlock(h))
			it.suspend(&f)
			arr, cond := object.NewArray(h, it.env.ArraySpecies, argc, value.Null)
			if cond.IsCondition() {
				return cond
			}
			it.refresh(&f)
			for i := 0; i < argc; i++ {
				object.ArraySet(h, arr, i, Arg(h, &f, i))
			}
			f.Push(h, arr)
			it.suspend(&f)

		case OpCreateCallData:
			if cond := it.createCallData(&f, int(operands[0])); cond.IsCondition() {
				return cond
			}

		case OpCheckStackHeight:
			expected := int(operands[0])
			got := f.StackOffset - (f.HeaderOffset + stack.FrameHeaderWords)
			if got != expected {
				it.env.Log.Error("interp: stack height check failed",
					zap.Int("expected", expected), zap.Int("got", got), zap.Int("pc", f.PC))
				return value.NewValidationFailed()
			}
			it.suspend(&f)

		default:
			return value.NewCondition(value.CauseWat, uint32(op))
		}
	}
}
