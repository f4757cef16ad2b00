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

import "github.com/neutrino-rt/neutrino/value"

// Scope resolves a symbol to a Binding, or reports NotFound. Scopes
// form a LIFO chain: the compiler pushes a new scope for every lambda,
// block or parameter list it enters and pops on exit. Three things can
// happen to an outer variable — it is read directly, captured (copied
// into a closure), or refracted (read through the frame chain instead
// of copying) — and those are exactly the three Lookup behaviors below:
// mapScope/singleSymbolScope read directly, lambdaScope captures,
// blockScope refracts.
type Scope interface {
	Lookup(symbol value.Value) (Binding, bool)
	Parent() Scope
}

// bottomScope terminates every chain and always reports NotFound — the
// compiler treats that as "free variable", either a global lookup or a
// compile error depending on context.
type bottomScope struct{}

func (bottomScope) Lookup(value.Value) (Binding, bool) { return Binding{}, false }
func (bottomScope) Parent() Scope                      { return nil }

var Bottom Scope = bottomScope{}

// singleSymbolScope binds exactly one name, used for a lambda or
// method's own recursive-reference binding.
type singleSymbolScope struct {
	parent  Scope
	symbol  value.Value
	binding Binding
}

func NewSingleSymbolScope(parent Scope, symbol value.Value, binding Binding) Scope {
	return &singleSymbolScope{parent: parent, symbol: symbol, binding: binding}
}

func (s *singleSymbolScope) Lookup(symbol value.Value) (Binding, bool) {
	if symbol == s.symbol {
		return s.binding, true
	}
	return s.parent.Lookup(symbol)
}

func (s *singleSymbolScope) Parent() Scope { return s.parent }

// mapScope binds a flat set of names to bindings, used for a method or
// block's parameter and local-variable declarations.
type mapScope struct {
	parent   Scope
	bindings map[value.Value]Binding
}

func NewMapScope(parent Scope) *mapScope {
	return &mapScope{parent: parent, bindings: make(map[value.Value]Binding)}
}

func (s *mapScope) Define(symbol value.Value, b Binding) { s.bindings[symbol] = b }

func (s *mapScope) Lookup(symbol value.Value) (Binding, bool) {
	if b, ok := s.bindings[symbol]; ok {
		return b, true
	}
	return s.parent.Lookup(symbol)
}

func (s *mapScope) Parent() Scope { return s.parent }

// Capture records one variable a lambda scope pulled in from an outer
// scope, in the order captures were first requested — that order is
// the capture list a Lambda opcode builds at runtime.
type Capture struct {
	Symbol value.Value
	Outer  Binding
	Index  int
}

// lambdaScope sits at the root of a lambda body's compilation. The
// first time an outer symbol resolves through it, the resolution is
// recorded as a new capture and the scope henceforth answers that
// symbol with a BindLambdaCaptured binding at the capture's index —
// repeat lookups of the same symbol reuse the same capture slot rather
// than growing the list.
type lambdaScope struct {
	parent   Scope
	captures []Capture
	local    *mapScope
}

func NewLambdaScope(parent Scope) *lambdaScope {
	ls := &lambdaScope{parent: parent}
	ls.local = NewMapScope(ls)
	return ls
}

// Locals returns the mapScope a compiler should Define lambda parameters
// and locals into; Lookup on the lambdaScope itself only handles the
// capture-or-delegate path for names not found there.
func (s *lambdaScope) Locals() *mapScope { return s.local }

func (s *lambdaScope) Lookup(symbol value.Value) (Binding, bool) {
	for i, c := range s.captures {
		if c.Symbol == symbol {
			return Binding{Type: BindLambdaCaptured, Data: uint16(i)}, true
		}
	}
	outer, ok := s.parent.Lookup(symbol)
	if !ok {
		return Binding{}, false
	}
	index := len(s.captures)
	s.captures = append(s.captures, Capture{Symbol: symbol, Outer: outer, Index: index})
	return Binding{Type: BindLambdaCaptured, Data: uint16(index)}, true
}

func (s *lambdaScope) Parent() Scope { return s.parent }

func (s *lambdaScope) Captures() []Capture { return s.captures }

// blockScope is a pure refractor: unlike a lambda scope it never
// copies a captured value, it passes the outer binding straight
// through and bumps BlockDepth by one so the interpreter knows how many
// frames up the chain to read the real storage from at run time.
type blockScope struct {
	parent Scope
	local  *mapScope
}

func NewBlockScope(parent Scope) *blockScope {
	bs := &blockScope{parent: parent}
	bs.local = NewMapScope(bs)
	return bs
}

func (s *blockScope) Locals() *mapScope { return s.local }

func (s *blockScope) Lookup(symbol value.Value) (Binding, bool) {
	outer, ok := s.parent.Lookup(symbol)
	if !ok {
		return Binding{}, false
	}
	return outer.WithBlockDepth(outer.BlockDepth + 1), true
}

func (s *blockScope) Parent() Scope { return s.parent }
