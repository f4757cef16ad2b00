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

package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/codegen"
	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/runtime"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

func newTestRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.NewRuntime(runtime.DefaultConfig(), nil)
	require.NoError(t, err)
	return rt
}

// binopTags builds the canonical {subject: 1, selector: sel, 0: 0} call
// tags record of a binary operator invocation.
func binopTags(t *testing.T, rt *runtime.Runtime, sel value.Value) value.Value {
	t.Helper()
	tags, cond := dispatch.BuildCallTags(rt.Heap, rt.Roots.ArraySpecies, []dispatch.TagEntry{
		{Tag: rt.Roots.SubjectKey, Spec: value.NewInteger(1)},
		{Tag: rt.Roots.SelectorKey, Spec: sel},
		{Tag: value.NewInteger(0), Spec: value.NewInteger(0)},
	})
	require.False(t, cond.IsCondition())
	return tags
}

func flush(t *testing.T, rt *runtime.Runtime, a *codegen.Assembler, argc int) value.Value {
	t.Helper()
	cb, cond := a.Flush(rt.Heap, rt.Roots.BlobSpecies, rt.Roots.ArraySpecies, rt.Roots.CodeBlockSpecies, argc)
	require.False(t, cond.IsCondition())
	return cb
}

func TestIntegerArithmetic(t *testing.T) {
	rt := newTestRuntime(t)
	plus, cond := rt.InternString("+")
	require.False(t, cond.IsCondition())

	a := codegen.NewAssembler(codegen.Bottom, false)
	a.Push(value.NewInteger(1))
	a.Push(value.NewInteger(2))
	a.Invoke(binopTags(t, rt, plus), value.Null, 2, false)
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition(), "execution failed: %s", result)
	require.Equal(t, value.NewInteger(3), result)
}

func TestMutableLocalThroughReference(t *testing.T) {
	rt := newTestRuntime(t)
	plus, _ := rt.InternString("+")

	// var x := 5; x := x + 1; x
	a := codegen.NewAssembler(codegen.Bottom, false)
	a.Push(value.NewInteger(5))
	a.NewReference() // local 0 is the boxed x
	a.LoadLocal(0)
	a.LoadLocal(0)
	a.GetReference()
	a.Push(value.NewInteger(1))
	a.Invoke(binopTags(t, rt, plus), value.Null, 2, false)
	a.SetReference()
	a.Pop(1)
	a.LoadLocal(0)
	a.GetReference()
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition(), "execution failed: %s", result)
	require.Equal(t, value.NewInteger(6), result)
}

func TestEscapeSkipsRestOfBody(t *testing.T) {
	rt := newTestRuntime(t)
	plus, _ := rt.InternString("+")

	// with_escape e do { 1 + e(7) }: firing e skips the addition, so the
	// result is 7, not 8.
	a := codegen.NewAssembler(codegen.Bottom, false)
	tok := a.CreateEscape() // handle becomes local BarrierWords
	a.Push(value.NewInteger(1))
	a.LoadLocal(stack.BarrierWords)
	a.Push(value.NewInteger(7))
	a.FireEscapeOrBarrier()
	a.Invoke(binopTags(t, rt, plus), value.Null, 2, false) // skipped by the fire
	a.DisposeEscape()
	a.PatchGoto(tok, a.Label())
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition(), "execution failed: %s", result)
	require.Equal(t, value.NewInteger(7), result)
}

func TestEnsureRunsCleanup(t *testing.T) {
	rt := newTestRuntime(t)

	// cleanup block: x := 2, reading the boxed x refracted one frame up.
	cleanup := codegen.NewAssembler(codegen.Bottom, false)
	cleanup.LoadBinding(codegen.Binding{Type: codegen.BindLocal, Data: 0, BlockDepth: 1})
	cleanup.Push(value.NewInteger(2))
	cleanup.SetReference()
	cleanup.Return()
	cleanupCB := flush(t, rt, cleanup, 0)

	// after { x := 1 } ensure { x := 2 }; x
	a := codegen.NewAssembler(codegen.Bottom, false)
	a.Push(value.NewInteger(0))
	a.NewReference() // local 0 is x
	a.CreateEnsurer(cleanupCB)
	a.LoadLocal(0)
	a.Push(value.NewInteger(1))
	a.SetReference()
	a.Pop(1)
	a.CallEnsurer()
	a.DisposeEnsurer()
	a.LoadLocal(0)
	a.GetReference()
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition(), "execution failed: %s", result)
	require.Equal(t, value.NewInteger(2), result)
}

func TestLambdaCaptureAndDelegate(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap
	plus, _ := rt.InternString("+")
	call, _ := rt.InternString("()")

	// The lambda's private methodspace holds its body: fn(y) => x + y
	// with x captured.
	lambdaMs, cond := dispatch.NewMethodspace(h, rt.Roots.DispatchSpecies(), value.Null)
	require.False(t, cond.IsCondition())

	body := codegen.NewAssembler(codegen.Bottom, false)
	body.LoadLambdaCapture(0)
	body.LoadArgument(2)
	body.Invoke(binopTags(t, rt, plus), value.Null, 2, false)
	body.Return()
	bodyCB := flush(t, rt, body, 3)

	anyGuard, cond := rt.NewGuard(dispatch.GuardAny, value.Null)
	require.False(t, cond.IsCondition())
	sig, cond := rt.NewOperatorSignature(anyGuard, call, []value.Value{anyGuard}, false)
	require.False(t, cond.IsCondition())
	method, cond := dispatch.NewMethod(h, rt.Roots.MethodSpecies, rt.Roots.FreezeCheatSpecies, sig, 0)
	require.False(t, cond.IsCondition())
	dispatch.InstallMethodCode(h, method, bodyCB)
	require.False(t, dispatch.AddMethod(h, rt.Roots.DispatchSpecies(), lambdaMs, sig, method).IsCondition())

	// let f := fn(y) => x + y in f(3), with outer x = 10
	callTags, cond := dispatch.BuildCallTags(h, rt.Roots.ArraySpecies, []dispatch.TagEntry{
		{Tag: rt.Roots.SubjectKey, Spec: value.NewInteger(1)},
		{Tag: rt.Roots.SelectorKey, Spec: call},
		{Tag: value.NewInteger(0), Spec: value.NewInteger(0)},
	})
	require.False(t, cond.IsCondition())

	a := codegen.NewAssembler(codegen.Bottom, false)
	a.Push(value.NewInteger(10)) // the captured x
	a.Lambda(lambdaMs, 1)        // local 0 is f
	a.LoadLocal(0)
	a.Push(value.NewInteger(3))
	a.Invoke(callTags, value.Null, 2, false)
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition(), "execution failed: %s", result)
	require.Equal(t, value.NewInteger(13), result)
}

func TestSignalContinueFallsThroughWithoutHandler(t *testing.T) {
	rt := newTestRuntime(t)
	boom, _ := rt.InternString("boom")

	tags, cond := dispatch.BuildCallTags(rt.Heap, rt.Roots.ArraySpecies, []dispatch.TagEntry{
		{Tag: rt.Roots.SubjectKey, Spec: value.NewInteger(0)},
		{Tag: rt.Roots.SelectorKey, Spec: boom},
	})
	require.False(t, cond.IsCondition())

	a := codegen.NewAssembler(codegen.Bottom, false)
	a.Push(value.NewInteger(99))
	a.SignalContinue(tags, 1)
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition())
	require.True(t, result.IsNothing(), "unhandled continuing signal falls through to Nothing")
}

func TestSignalEscapeWithoutHandlerIsUncaught(t *testing.T) {
	rt := newTestRuntime(t)
	boom, _ := rt.InternString("boom")

	tags, cond := dispatch.BuildCallTags(rt.Heap, rt.Roots.ArraySpecies, []dispatch.TagEntry{
		{Tag: rt.Roots.SubjectKey, Spec: value.NewInteger(0)},
		{Tag: rt.Roots.SelectorKey, Spec: boom},
	})
	require.False(t, cond.IsCondition())

	a := codegen.NewAssembler(codegen.Bottom, false)
	a.Push(value.NewInteger(99))
	a.SignalEscape(tags, 1)
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.True(t, result.IsCondition())
	require.Equal(t, value.CauseUncaughtSignal, result.Cause())
	require.Equal(t, uint32(1), result.Detail(), "the escape bit must be set")
}

func TestSignalHandlerCatchesEscape(t *testing.T) {
	rt := newTestRuntime(t)
	h := rt.Heap
	boom, _ := rt.InternString("boom")

	// Handler methodspace: on (subject anything, selector boom), return 42.
	handlerMs, cond := dispatch.NewMethodspace(h, rt.Roots.DispatchSpecies(), value.Null)
	require.False(t, cond.IsCondition())

	handler := codegen.NewAssembler(codegen.Bottom, false)
	handler.Push(value.NewInteger(42))
	handler.Return()
	handlerCB := flush(t, rt, handler, 2)

	anyGuard, _ := rt.NewGuard(dispatch.GuardAny, value.Null)
	sig, cond := rt.NewOperatorSignature(anyGuard, boom, nil, true)
	require.False(t, cond.IsCondition())
	method, cond := dispatch.NewMethod(h, rt.Roots.MethodSpecies, rt.Roots.FreezeCheatSpecies, sig, 0)
	require.False(t, cond.IsCondition())
	dispatch.InstallMethodCode(h, method, handlerCB)
	require.False(t, dispatch.AddMethod(h, rt.Roots.DispatchSpecies(), handlerMs, sig, method).IsCondition())

	tags, cond := dispatch.BuildCallTags(h, rt.Roots.ArraySpecies, []dispatch.TagEntry{
		{Tag: rt.Roots.SubjectKey, Spec: value.NewInteger(0)},
		{Tag: rt.Roots.SelectorKey, Spec: boom},
	})
	require.False(t, cond.IsCondition())

	a := codegen.NewAssembler(codegen.Bottom, false)
	landing := a.InstallSignalHandler(handlerMs)
	a.Push(value.NewInteger(7)) // signal subject
	a.SignalEscape(tags, 1)
	a.Push(value.NewInteger(0)) // skipped: the escape lands past this
	a.Pop(1)
	a.PatchGoto(landing, a.Label())
	a.Return()

	result := rt.Execute(flush(t, rt, a, 0))
	require.False(t, result.IsCondition(), "execution failed: %s", result)
	require.Equal(t, value.NewInteger(42), result)
}
