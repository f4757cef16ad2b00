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

package codegen

import (
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/interp"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// Assembler accumulates one method or block body's bytecode. It is a
// host-side (non-heap) Go struct for the duration of compilation;
// Flush materializes the finished stream and value pool as heap
// objects a CodeBlock can reference.
type Assembler struct {
	stream []uint16

	pool    []value.Value
	poolIdx map[value.Value]int

	stackHeight    int
	highWaterMark  int
	expensiveCheck bool

	scope Scope
}

func NewAssembler(scope Scope, expensiveCheck bool) *Assembler {
	return &Assembler{
		poolIdx:        make(map[value.Value]int),
		scope:          scope,
		expensiveCheck: expensiveCheck,
	}
}

// intern returns v's index in the value pool, adding it if this is the
// first occurrence — constants used more than once in a method body
// share one pool slot.
func (a *Assembler) intern(v value.Value) int {
	if idx, ok := a.poolIdx[v]; ok {
		return idx
	}
	idx := len(a.pool)
	a.pool = append(a.pool, v)
	a.poolIdx[v] = idx
	return idx
}

// adjustHeight tracks the assembler's running stack-height counter and
// its all-time high-water mark, which CodeBlock needs so frame push can
// reserve enough slots above the frame header without walking bytecode.
// In expensive-check mode every height change also appends a
// CheckStackHeight pseudo-op recording the post-opcode height; emitters
// call emit first, then adjustHeight, so the check lands right after
// the opcode it verifies.
func (a *Assembler) adjustHeight(delta int) {
	a.stackHeight += delta
	if a.stackHeight > a.highWaterMark {
		a.highWaterMark = a.stackHeight
	}
	if a.stackHeight < 0 {
		panic("codegen: stack height went negative")
	}
	if a.expensiveCheck {
		a.stream = append(a.stream, uint16(interp.OpCheckStackHeight), uint16(a.stackHeight))
	}
}

// emit appends the opcode and its operands, returning the stream index
// of the first operand so jump-style opcodes can hand out back-patch
// tokens.
func (a *Assembler) emit(op interp.Opcode, operands ...uint16) int {
	a.stream = append(a.stream, uint16(op))
	first := len(a.stream)
	a.stream = append(a.stream, operands...)
	return first
}

// Push emits a constant load, interning it in the value pool.
func (a *Assembler) Push(v value.Value) {
	a.emit(interp.OpPush, uint16(a.intern(v)))
	a.adjustHeight(1)
}

func (a *Assembler) Pop(n int) {
	a.emit(interp.OpPop, uint16(n))
	a.adjustHeight(-n)
}

// Slap discards the n values just below the top-of-stack value,
// leaving only the top in place — used to clean up arguments after an
// invocation whose result replaces them.
func (a *Assembler) Slap(n int) {
	a.emit(interp.OpSlap, uint16(n))
	a.adjustHeight(-n)
}

func (a *Assembler) NewArray(n int) {
	a.emit(interp.OpNewArray, uint16(n))
	a.adjustHeight(-n + 1)
}

// LoadBinding emits the load opcode matching b's type and block depth,
// choosing the refracted variant whenever b.BlockDepth > 0.
func (a *Assembler) LoadBinding(b Binding) {
	switch {
	case b.BlockDepth > 0 && b.Type == BindLocal:
		a.emit(interp.OpLoadRefractedLocal, b.BlockDepth, b.Data)
	case b.BlockDepth > 0 && b.Type == BindArgument:
		a.emit(interp.OpLoadRefractedArgument, b.BlockDepth, b.Data)
	case b.BlockDepth > 0 && b.Type == BindLambdaCaptured:
		a.emit(interp.OpLoadRefractedCapture, b.BlockDepth, b.Data)
	case b.Type == BindLocal:
		a.emit(interp.OpLoadLocal, b.Data)
	case b.Type == BindArgument:
		a.emit(interp.OpLoadArgument, b.Data)
	case b.Type == BindLambdaCaptured:
		a.emit(interp.OpLoadLambdaCapture, b.Data)
	}
	a.adjustHeight(1)
}

func (a *Assembler) LoadGlobal(path, fragment value.Value) {
	a.emit(interp.OpLoadGlobal, uint16(a.intern(path)), uint16(a.intern(fragment)))
	a.adjustHeight(1)
}

// Invoke emits an invocation; argc is the number of argument slots
// already pushed (callers account for the subject as argument 0),
// which the assembler consumes and replaces with a single result slot.
func (a *Assembler) Invoke(tags, fragment value.Value, argc int, nextGuards bool) {
	ng := uint16(0)
	if nextGuards {
		ng = 1
	}
	a.emit(interp.OpInvoke, uint16(a.intern(tags)), uint16(a.intern(fragment)), ng)
	a.adjustHeight(-argc + 1)
}

// Builtin calls a native implementation that reads its arguments from
// the frame's argument area and pushes one result.
func (a *Assembler) Builtin(ptr value.Value) {
	a.emit(interp.OpBuiltin, uint16(a.intern(ptr)))
	a.adjustHeight(1)
}

func (a *Assembler) BuiltinMaybeEscape(ptr value.Value, argc int) {
	a.emit(interp.OpBuiltinMaybeEscape, uint16(a.intern(ptr)), uint16(argc))
	a.adjustHeight(-argc + 1)
}

func (a *Assembler) Return()          { a.emit(interp.OpReturn) }
func (a *Assembler) UncheckedReturn() { a.emit(interp.OpUncheckedReturn) }
func (a *Assembler) StackBottom()     { a.emit(interp.OpStackBottom) }

// NewReference boxes the value on top of the stack into a fresh
// mutable reference cell, replacing it.
func (a *Assembler) NewReference() { a.emit(interp.OpNewReference) }

func (a *Assembler) GetReference() { a.emit(interp.OpGetReference) }

// SetReference pops (value, reference) and pushes the value back, so an
// assignment can be used as an expression.
func (a *Assembler) SetReference() {
	a.emit(interp.OpSetReference)
	a.adjustHeight(-1)
}

func (a *Assembler) LoadLocal(index int) {
	a.emit(interp.OpLoadLocal, uint16(index))
	a.adjustHeight(1)
}

func (a *Assembler) LoadArgument(index int) {
	a.emit(interp.OpLoadArgument, uint16(index))
	a.adjustHeight(1)
}

func (a *Assembler) LoadLambdaCapture(index int) {
	a.emit(interp.OpLoadLambdaCapture, uint16(index))
	a.adjustHeight(1)
}

// SignalEscape raises a signal whose arguments are described by tags;
// argc is how many of them occupy stack slots.
func (a *Assembler) SignalEscape(tags value.Value, argc int) {
	a.emit(interp.OpSignalEscape, uint16(a.intern(tags)))
	a.adjustHeight(-argc + 1)
}

func (a *Assembler) SignalContinue(tags value.Value, argc int) {
	a.emit(interp.OpSignalContinue, uint16(a.intern(tags)))
	a.adjustHeight(-argc + 1)
}

func (a *Assembler) DelegateToLambda(tags value.Value) {
	a.emit(interp.OpDelegateToLambda, uint16(a.intern(tags)))
	a.adjustHeight(1)
}

func (a *Assembler) DelegateToBlock(tags value.Value) {
	a.emit(interp.OpDelegateToBlock, uint16(a.intern(tags)))
	a.adjustHeight(1)
}

func (a *Assembler) ReifyArguments(params value.Value) {
	a.emit(interp.OpReifyArguments, uint16(a.intern(params)))
	a.adjustHeight(1)
}

// CreateCallData pops argc (tag, value) pairs and pushes the reified
// call-data record.
func (a *Assembler) CreateCallData(argc int) {
	a.emit(interp.OpCreateCallData, uint16(argc))
	a.adjustHeight(-2*argc + 1)
}

// Goto reserves space for a forward jump and returns a patch token;
// PatchGoto back-fills the target once it is known.
func (a *Assembler) Goto() int {
	return a.emit(interp.OpGoto, 0)
}

func (a *Assembler) PatchGoto(token int, target int) {
	a.stream[token] = uint16(target)
}

func (a *Assembler) Label() int { return len(a.stream) }

// CreateEscape reserves the landing-pc operand for back-patching (the
// landing label usually sits after the guarded body) and returns the
// patch token, like Goto. Height accounting covers the barrier words
// the opcode reserves on the frame plus the escape handle it pushes,
// so the high-water mark covers scoped sections too.
func (a *Assembler) CreateEscape() int {
	token := a.emit(interp.OpCreateEscape, 0)
	a.adjustHeight(stack.BarrierWords + 1)
	return token
}

func (a *Assembler) FireEscapeOrBarrier() {
	a.emit(interp.OpFireEscapeOrBarrier)
	a.adjustHeight(-2)
}

func (a *Assembler) DisposeEscape() {
	a.emit(interp.OpDisposeEscape)
	a.adjustHeight(-(stack.BarrierWords + 1))
}

func (a *Assembler) CreateEnsurer(ensurerCodeBlock value.Value) {
	a.emit(interp.OpCreateEnsurer, uint16(a.intern(ensurerCodeBlock)))
	a.adjustHeight(stack.BarrierWords)
}

func (a *Assembler) CallEnsurer() { a.emit(interp.OpCallEnsurer) }

func (a *Assembler) DisposeEnsurer() {
	a.emit(interp.OpDisposeEnsurer)
	a.adjustHeight(-stack.BarrierWords)
}

// InstallSignalHandler also reserves a landing-pc operand: an escaping
// signal that matches this handler resumes there with the handler's
// result on top.
func (a *Assembler) InstallSignalHandler(methodspace value.Value) int {
	token := a.emit(interp.OpInstallSignalHandler, uint16(a.intern(methodspace)), 0) + 1
	a.adjustHeight(stack.BarrierWords)
	return token
}

func (a *Assembler) UninstallSignalHandler() {
	a.emit(interp.OpUninstallSignalHandler)
	a.adjustHeight(-stack.BarrierWords)
}

func (a *Assembler) Lambda(methods value.Value, nCaptures int) {
	a.emit(interp.OpLambda, uint16(a.intern(methods)), uint16(nCaptures))
	a.adjustHeight(-nCaptures + 1)
}

func (a *Assembler) CreateBlock(methods value.Value) {
	a.emit(interp.OpCreateBlock, uint16(a.intern(methods)))
	a.adjustHeight(stack.BarrierWords + 1)
}

func (a *Assembler) DisposeBlock() {
	a.emit(interp.OpDisposeBlock)
	a.adjustHeight(-(stack.BarrierWords + 1))
}

// Scope returns the assembler's current symbol scope.
func (a *Assembler) Scope() Scope { return a.scope }

func (a *Assembler) PushScope(s Scope) { a.scope = s }
func (a *Assembler) PopScope(to Scope) { a.scope = to }

// Flush packs the accumulated instruction stream and value pool into a
// CodeBlock heap object.
func (a *Assembler) Flush(h *heap.Heap, blobSpecies, arraySpecies, codeBlockSpecies value.Value, argCount int) (value.Value, value.Value) {
	bytes := make([]byte, len(a.stream)*2)
	for i, w := range a.stream {
		bytes[i*2] = byte(w)
		bytes[i*2+1] = byte(w >> 8)
	}
	bytecode, cond := object.NewBlob(h, blobSpecies, bytes)
	if cond.IsCondition() {
		return value.Value(0), cond
	}

	pool, cond := object.NewArray(h, arraySpecies, len(a.pool), value.Null)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	for i, v := range a.pool {
		if cond := object.ArraySet(h, pool, i, v); cond.IsCondition() {
			return value.Value(0), cond
		}
	}

	return object.NewCodeBlock(h, codeBlockSpecies, bytecode, pool, a.highWaterMark, argCount)
}
