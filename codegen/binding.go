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

// Package codegen implements the assembler (growing bytecode buffer,
// value pool, stack-height tracking) and the LIFO scope chain that
// resolves symbols to bindings during compilation.
package codegen

import "github.com/neutrino-rt/neutrino/value"

// BindingType distinguishes where a resolved symbol's storage lives.
type BindingType uint8

const (
	BindLocal BindingType = iota
	BindArgument
	BindLambdaCaptured
)

// Binding packs (type, 16-bit data, 16-bit block_depth) into one tagged
// integer so it can sit in a scope's symbol map like any other value.
// data is a local/argument slot index for BindLocal/BindArgument, or a
// capture-list index for BindLambdaCaptured. block_depth counts how
// many enclosing block sections a refracted read must walk past the
// current frame to reach the binding's true home; it is zero for a
// binding resolved directly in the current frame.
type Binding struct {
	Type       BindingType
	Data       uint16
	BlockDepth uint16
}

// WithBlockDepth returns a copy of b with BlockDepth set to depth — used
// by blockScope.Lookup, which passes an outer binding through unchanged
// except for refracting it one level deeper (outer.BlockDepth + 1).
func (b Binding) WithBlockDepth(depth uint16) Binding {
	b.BlockDepth = depth
	return b
}

// Encode packs b into a tagged Value for storage in a heap-resident
// scope map.
func (b Binding) Encode() value.Value {
	packed := uint64(b.Type)<<32 | uint64(b.Data)<<16 | uint64(b.BlockDepth)
	return value.NewInteger(int64(packed))
}

func DecodeBinding(v value.Value) Binding {
	packed := uint64(v.Int64())
	return Binding{
		Type:       BindingType(packed >> 32),
		Data:       uint16(packed >> 16),
		BlockDepth: uint16(packed),
	}
}
