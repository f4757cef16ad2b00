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

package runtime

import (
	"github.com/pkg/errors"

	"github.com/neutrino-rt/neutrino/codegen"
	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/interp"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// Builtin parameter layout: every builtin method takes subject
// (parameter 0), selector (parameter 1, statically bound), and any
// operands from parameter 2 on — the canonical order the argument map
// produces.
const (
	builtinParamSubject = 0
	builtinParamFirst   = 2
)

// RegisterBuiltin installs fn in the runtime's builtin table and
// returns the id its code blocks refer to.
func (rt *Runtime) RegisterBuiltin(fn interp.Builtin) int64 {
	id := rt.nextID
	rt.nextID++
	rt.builtins[id] = fn
	return id
}

// newBuiltinCode assembles the standard builtin body: one Builtin call
// followed by Return.
func (rt *Runtime) newBuiltinCode(id int64, argc int) (value.Value, value.Value) {
	a := codegen.NewAssembler(codegen.Bottom, rt.Config.ExpensiveChecks)
	a.Builtin(value.NewInteger(id))
	a.Return()
	return a.Flush(rt.Heap, rt.Roots.BlobSpecies, rt.Roots.ArraySpecies, rt.Roots.CodeBlockSpecies, argc)
}

// NewGuard, NewParameter and NewSignature wrap the dispatch
// constructors with the roots' species.
func (rt *Runtime) NewGuard(gt dispatch.GuardType, guardValue value.Value) (value.Value, value.Value) {
	return dispatch.NewGuard(rt.Heap, rt.Roots.GuardSpecies, gt, guardValue)
}

func (rt *Runtime) NewParameter(guard value.Value, index int, optional bool) (value.Value, value.Value) {
	return dispatch.NewParameter(rt.Heap, rt.Roots.ParameterSpecies, guard, index, optional)
}

func (rt *Runtime) NewSignature(tags, params []value.Value, paramCount int, allowExtra bool) (value.Value, value.Value) {
	return dispatch.NewSignature(rt.Heap, rt.Roots.SignatureSpecies, rt.Roots.ArraySpecies, tags, params, paramCount, allowExtra)
}

// NewOperatorSignature builds the common (subject guard, selector,
// operand guards...) signature shape shared by all builtin operators.
func (rt *Runtime) NewOperatorSignature(subjectGuard, selector value.Value, operandGuards []value.Value, allowExtra bool) (value.Value, value.Value) {
	selGuard, cond := rt.NewGuard(dispatch.GuardEq, selector)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	tags := []value.Value{rt.Roots.SubjectKey, rt.Roots.SelectorKey}
	subjectParam, cond := rt.NewParameter(subjectGuard, 0, false)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	selectorParam, cond := rt.NewParameter(selGuard, 1, false)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	params := []value.Value{subjectParam, selectorParam}
	for i, g := range operandGuards {
		p, cond := rt.NewParameter(g, builtinParamFirst+i, false)
		if cond.IsCondition() {
			return value.Value(0), cond
		}
		tags = append(tags, value.NewInteger(int64(i)))
		params = append(params, p)
	}
	return rt.NewSignature(tags, params, len(params), allowExtra)
}

// AddBuiltinMethod installs a method with the given signature, flags
// and native implementation into the builtin methodspace. A nil fn
// installs a delegate trampoline with no body.
func (rt *Runtime) AddBuiltinMethod(signature value.Value, flags uint32, argc int, fn interp.Builtin) error {
	method, cond := dispatch.NewMethod(rt.Heap, rt.Roots.MethodSpecies, rt.Roots.FreezeCheatSpecies, signature, flags)
	if cond.IsCondition() {
		return errors.Errorf("allocating method: %s", cond)
	}
	if fn != nil {
		id := rt.RegisterBuiltin(fn)
		unpin := rt.Heap.Pin(&method)
		code, cond := rt.newBuiltinCode(id, argc)
		unpin()
		if cond.IsCondition() {
			return errors.Errorf("assembling builtin body: %s", cond)
		}
		dispatch.InstallMethodCode(rt.Heap, method, code)
	}
	if cond := dispatch.AddMethod(rt.Heap, rt.Roots.DispatchSpecies(), rt.Roots.BuiltinMethodspace, signature, method); cond.IsCondition() {
		return errors.Errorf("adding builtin method: %s", cond)
	}
	return nil
}

// integerBinop adapts a Go binary function over the subject and first
// operand integers.
func integerBinop(op func(a, b int64) value.Value) interp.Builtin {
	return func(env *interp.Env, f *stack.Frame) value.Value {
		a := interp.Arg(env.Heap, f, builtinParamSubject)
		b := interp.Arg(env.Heap, f, builtinParamFirst)
		if !a.IsInteger() || !b.IsInteger() {
			return value.NewCondition(value.CauseInvalidInput, 0)
		}
		return op(a.Int64(), b.Int64())
	}
}

// installBuiltins populates the builtin methodspace: integer operators,
// the lambda and block call trampolines.
func (rt *Runtime) installBuiltins() error {
	ms, cond := dispatch.NewMethodspace(rt.Heap, rt.Roots.DispatchSpecies(), value.Null)
	if cond.IsCondition() {
		return errors.Errorf("allocating builtin methodspace: %s", cond)
	}
	rt.Roots.BuiltinMethodspace = ms

	intGuard, cond := rt.NewGuard(dispatch.GuardIs, rt.Roots.IntegerProtocol)
	if cond.IsCondition() {
		return errors.Errorf("allocating integer guard: %s", cond)
	}

	type binop struct {
		selector string
		fn       func(a, b int64) value.Value
	}
	binops := []binop{
		{"+", func(a, b int64) value.Value { return value.NewInteger(a + b) }},
		{"-", func(a, b int64) value.Value { return value.NewInteger(a - b) }},
		{"*", func(a, b int64) value.Value { return value.NewInteger(a * b) }},
		{"/", func(a, b int64) value.Value {
			if b == 0 {
				return value.NewCondition(value.CauseInvalidInput, 0)
			}
			return value.NewInteger(a / b)
		}},
		{"%", func(a, b int64) value.Value {
			if b == 0 {
				return value.NewCondition(value.CauseInvalidInput, 0)
			}
			return value.NewInteger(a % b)
		}},
		{"<", func(a, b int64) value.Value { return value.NewBoolean(a < b) }},
		{"==", func(a, b int64) value.Value { return value.NewBoolean(a == b) }},
	}
	for _, b := range binops {
		selector, cond := rt.InternString(b.selector)
		if cond.IsCondition() {
			return errors.Errorf("interning %q: %s", b.selector, cond)
		}
		sig, cond := rt.NewOperatorSignature(intGuard, selector, []value.Value{intGuard}, false)
		if cond.IsCondition() {
			return errors.Errorf("building %q signature: %s", b.selector, cond)
		}
		if err := rt.AddBuiltinMethod(sig, 0, 3, integerBinop(b.fn)); err != nil {
			return errors.Wrapf(err, "installing %q", b.selector)
		}
	}

	// The call trampolines: any () invocation on a lambda or block
	// delegates to the closure's private methodspace; the trampoline
	// itself never runs a body.
	call, cond := rt.InternString("()")
	if cond.IsCondition() {
		return errors.Errorf("interning call selector: %s", cond)
	}
	lambdaGuard, cond := rt.NewGuard(dispatch.GuardIs, rt.Roots.LambdaProtocol)
	if cond.IsCondition() {
		return errors.Errorf("allocating lambda guard: %s", cond)
	}
	lambdaSig, cond := rt.NewOperatorSignature(lambdaGuard, call, nil, true)
	if cond.IsCondition() {
		return errors.Errorf("building lambda call signature: %s", cond)
	}
	if err := rt.AddBuiltinMethod(lambdaSig, 1<<dispatch.MethodFlagLambdaDelegate, 2, nil); err != nil {
		return errors.Wrap(err, "installing lambda trampoline")
	}

	blockGuard, cond := rt.NewGuard(dispatch.GuardIs, rt.Roots.BlockProtocol)
	if cond.IsCondition() {
		return errors.Errorf("allocating block guard: %s", cond)
	}
	blockSig, cond := rt.NewOperatorSignature(blockGuard, call, nil, true)
	if cond.IsCondition() {
		return errors.Errorf("building block call signature: %s", cond)
	}
	if err := rt.AddBuiltinMethod(blockSig, 1<<dispatch.MethodFlagBlockDelegate, 2, nil); err != nil {
		return errors.Wrap(err, "installing block trampoline")
	}
	return nil
}
