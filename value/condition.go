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

package value

import "fmt"

// Cause enumerates the fixed set of reasons a Condition can be raised.
// This is a closed set by design — a runtime fault that doesn't fit one
// of these is a bug in the runtime, not a reason to add a catch-all.
type Cause uint8

const (
	CauseHeapExhausted Cause = iota
	CauseOutOfMemory
	CauseInvalidSyntax
	CauseInvalidInput
	CauseNotDeepFrozen
	CauseInvalidModeChange
	CauseUnsupportedBehavior
	CauseLookupError
	CauseSystemError
	CauseNotFound
	CauseUnknownBuiltin
	CauseSignal
	CauseUncaughtSignal
	CauseValidationFailed
	CauseNothing
	CauseCircular
	CauseWat
)

func (c Cause) String() string {
	names := [...]string{
		"HeapExhausted", "OutOfMemory", "InvalidSyntax", "InvalidInput",
		"NotDeepFrozen", "InvalidModeChange", "UnsupportedBehavior",
		"LookupError", "SystemError", "NotFound", "UnknownBuiltin",
		"Signal", "UncaughtSignal", "ValidationFailed", "Nothing",
		"Circular", "Wat",
	}
	if int(c) < len(names) {
		return names[c]
	}
	return "UnknownCause"
}

// LookupDetail refines a CauseLookupError condition.
type LookupDetail uint32

const (
	LookupAmbiguity LookupDetail = iota
	LookupNoMatch
	LookupTooManyArguments
	LookupInvalidTag
	LookupNoSuchStage
	LookupUnresolvedImport
	LookupNamespace
)

// SystemErrorDetail refines a CauseSystemError condition.
type SystemErrorDetail uint32

const (
	SystemAllocationFailed SystemErrorDetail = iota
	SystemFileNotFound
	SystemCallFailed
)

// InvalidSyntaxDetail refines a CauseInvalidSyntax condition with the
// parser-level failure kind.
type InvalidSyntaxDetail uint32

const (
	SyntaxUnexpectedToken InvalidSyntaxDetail = iota
	SyntaxUnexpectedEOF
	SyntaxUnterminatedString
	SyntaxInvalidEscape
)

// UnsupportedBehaviorDetail refines a CauseUnsupportedBehavior
// condition — which vtable entry a family left unimplemented.
type UnsupportedBehaviorDetail uint32

const (
	BehaviorOrderingCompare UnsupportedBehaviorDetail = iota
	BehaviorSetContents
	BehaviorPostMigrateFixup
)

const detailBits = 32

// NewCondition builds a tagged value carrying a Cause and 32 bits of
// detail. Conditions flow through ordinary value slots exactly like any
// other Value — the interpreter tests Domain() == DomainCondition at
// call boundaries rather than using a side-channel error return.
func NewCondition(cause Cause, detail uint32) Value {
	return fromPayload(DomainCondition, uint64(detail)<<8|uint64(cause))
}

func (v Value) IsCondition() bool { return v.Domain() == DomainCondition }

func (v Value) Cause() Cause { return Cause(v.payload() & 0xff) }

func (v Value) Detail() uint32 { return uint32(v.payload() >> 8) }

// Condition returns v re-typed for readability at call sites that
// already know v.IsCondition().
func (v Value) Condition() Value { return v }

func (v Value) String_ConditionDetail() string {
	return fmt.Sprintf("%s(%#x)", v.Cause(), v.Detail())
}

func NewHeapExhausted() Value { return NewCondition(CauseHeapExhausted, 0) }
func NewNotDeepFrozen() Value { return NewCondition(CauseNotDeepFrozen, 0) }
func NewNotFound() Value      { return NewCondition(CauseNotFound, 0) }
func NewCircular() Value      { return NewCondition(CauseCircular, 0) }
func NewLookupError(d LookupDetail) Value {
	return NewCondition(CauseLookupError, uint32(d))
}
func NewInvalidSyntax(d InvalidSyntaxDetail) Value {
	return NewCondition(CauseInvalidSyntax, uint32(d))
}
func NewUnsupportedBehavior(d UnsupportedBehaviorDetail) Value {
	return NewCondition(CauseUnsupportedBehavior, uint32(d))
}
func NewInvalidModeChange() Value { return NewCondition(CauseInvalidModeChange, 0) }
func NewUncaughtSignal() Value    { return NewCondition(CauseUncaughtSignal, 0) }
func NewValidationFailed() Value  { return NewCondition(CauseValidationFailed, 0) }
func NewUnknownBuiltin() Value    { return NewCondition(CauseUnknownBuiltin, 0) }
func NewSystemError(d SystemErrorDetail) Value {
	return NewCondition(CauseSystemError, uint32(d))
}
func NewSignal(escape bool) Value {
	detail := uint32(0)
	if escape {
		detail = 1
	}
	return NewCondition(CauseSignal, detail)
}
func NewUncaughtSignalEscape(escape bool) Value {
	detail := uint32(0)
	if escape {
		detail = 1
	}
	return NewCondition(CauseUncaughtSignal, detail)
}
