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

// Package service implements the native-service binding surface: a
// service exposes a namespace name and a set of selector-keyed methods;
// at bind time a Binder wraps each native callback in a trampoline that
// adapts the runtime's invocation ABI to a (request) callback whose
// request resolves a pending promise.
package service

import (
	"go.uber.org/zap"

	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/interp"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/stack"
	"github.com/neutrino-rt/neutrino/value"
)

// Request is what a native method receives: the call's arguments in
// parameter order and the pending promise the caller got back.
// Exactly one of Fulfill or Reject should be called, now or later
// (before the owning runtime is deleted).
type Request struct {
	Heap    *heap.Heap
	Args    []value.Value
	Promise value.Value
}

// Fulfill resolves the pending promise with v.
func (r *Request) Fulfill(v value.Value) value.Value {
	return object.PromiseFulfill(r.Heap, r.Promise, v)
}

// Reject settles the pending promise with an error value.
func (r *Request) Reject(err value.Value) value.Value {
	return object.PromiseReject(r.Heap, r.Promise, err)
}

// Callback is the native half of a service method.
type Callback func(*Request)

// Descriptor declares a service: its namespace and its methods by
// selector. Descriptors are read-only; they are consulted once at
// installation.
type Descriptor struct {
	Namespace string
	Methods   map[string]Callback
}

// Binder builds the trampolines adapting the interpreter's builtin ABI
// to service callbacks.
type Binder struct {
	PromiseSpecies value.Value
	Log            *zap.Logger
}

// Bind wraps cb as an interp.Builtin: allocate the promise, reify the
// frame's arguments, hand both to the callback, return the promise as
// the invocation's result.
func (b *Binder) Bind(name string, cb Callback) interp.Builtin {
	return func(env *interp.Env, f *stack.Frame) value.Value {
		h := env.Heap
		promise, cond := object.NewPromise(h, b.PromiseSpecies)
		if cond.IsCondition() {
			return cond
		}
		argc := object.CodeBlockArgCount(h, f.CodeBlock(h))
		args := make([]value.Value, argc)
		for i := 0; i < argc; i++ {
			args[i] = interp.Arg(h, f, i)
		}
		if b.Log != nil {
			b.Log.Debug("service call", zap.String("method", name), zap.Int("args", argc))
		}
		cb(&Request{Heap: h, Args: args, Promise: promise})
		return promise
	}
}
