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

// Package interp implements the bytecode dispatch loop: a single
// stack-machine interpreter reading 16-bit opcode/operand pairs out of
// a CodeBlock's Blob, manipulating a stack.Stack, and calling into
// dispatch for every Invoke.
package interp

// Opcode is a 16-bit instruction tag. Operands are packed as additional
// 16-bit words immediately following the opcode in the Blob; how many
// operands an opcode takes is fixed per opcode, looked up in
// operandCounts below rather than encoded in the stream itself.
type Opcode uint16

const (
	// Literals
	OpPush Opcode = iota
	OpPop
	OpSlap
	OpNewArray

	// Locals
	OpLoadLocal
	OpLoadArgument
	OpLoadRawArgument
	OpLoadLambdaCapture
	OpLoadRefractedLocal
	OpLoadRefractedArgument
	OpLoadRefractedCapture

	// References (boxed mutable locals)
	OpNewReference
	OpGetReference
	OpSetReference

	// Globals
	OpLoadGlobal

	// Invocation
	OpInvoke

	// Signals
	OpSignalEscape
	OpSignalContinue

	// Barriers
	OpCreateEscape
	OpFireEscapeOrBarrier
	OpDisposeEscape
	OpCreateEnsurer
	OpCallEnsurer
	OpDisposeEnsurer
	OpInstallSignalHandler
	OpUninstallSignalHandler

	// Closures
	OpLambda
	OpCreateBlock
	OpDisposeBlock
	OpDelegateToLambda
	OpDelegateToBlock

	// Builtins
	OpBuiltin
	OpBuiltinMaybeEscape

	// Control
	OpGoto
	OpReturn
	OpUncheckedReturn
	OpStackBottom
	OpStackPieceBottom

	// Reify
	OpReifyArguments

	// Call data
	OpCreateCallData

	// Pseudo-op inserted by the assembler in expensive-check mode
	OpCheckStackHeight

	opcodeCount
)

var opcodeNames = [...]string{
	"Push", "Pop", "Slap", "NewArray",
	"LoadLocal", "LoadArgument", "LoadRawArgument", "LoadLambdaCapture",
	"LoadRefractedLocal", "LoadRefractedArgument", "LoadRefractedCapture",
	"NewReference", "GetReference", "SetReference",
	"LoadGlobal",
	"Invoke",
	"SignalEscape", "SignalContinue",
	"CreateEscape", "FireEscapeOrBarrier", "DisposeEscape",
	"CreateEnsurer", "CallEnsurer", "DisposeEnsurer",
	"InstallSignalHandler", "UninstallSignalHandler",
	"Lambda", "CreateBlock", "DisposeBlock", "DelegateToLambda", "DelegateToBlock",
	"Builtin", "BuiltinMaybeEscape",
	"Goto", "Return", "UncheckedReturn", "StackBottom", "StackPieceBottom",
	"ReifyArguments",
	"CreateCallData",
	"CheckStackHeight",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "UnknownOpcode"
}

// operandCounts records how many 16-bit operand words follow each
// opcode in the instruction stream. This mirrors the assembler's own
// emission tables (codegen/assembler.go) — the two must agree or the
// interpreter will misparse the stream.
var operandCounts = [opcodeCount]int{
	OpPush:                   1, // pool index
	OpPop:                    1, // n
	OpSlap:                   1, // n
	OpNewArray:               1, // n
	OpLoadLocal:              1,
	OpLoadArgument:           1,
	OpLoadRawArgument:        1,
	OpLoadLambdaCapture:      1,
	OpLoadRefractedLocal:     2, // block_depth, index
	OpLoadRefractedArgument:  2,
	OpLoadRefractedCapture:   2,
	OpNewReference:           0,
	OpGetReference:           0,
	OpSetReference:           0,
	OpLoadGlobal:             2, // path pool index, fragment pool index
	OpInvoke:                 3, // tags pool index, fragment pool index, next_guards flag
	OpSignalEscape:           1, // tags pool index
	OpSignalContinue:         1,
	OpCreateEscape:           1, // landing pc, back-patched like Goto
	OpFireEscapeOrBarrier:    0,
	OpDisposeEscape:          0,
	OpCreateEnsurer:          1, // ensurer code block pool index
	OpCallEnsurer:            0,
	OpDisposeEnsurer:         0,
	OpInstallSignalHandler:   2, // methodspace pool index, landing pc
	OpUninstallSignalHandler: 0,
	OpLambda:                 2, // methods pool index, nCaptures
	OpCreateBlock:            1, // methods pool index
	OpDisposeBlock:           0,
	OpDelegateToLambda:       1, // tags pool index
	OpDelegateToBlock:        1, // tags pool index
	OpBuiltin:                1, // builtin pool index
	OpBuiltinMaybeEscape:     2, // builtin pool index, argc
	OpGoto:                   1, // target pc
	OpReturn:                 0,
	OpUncheckedReturn:        0,
	OpStackBottom:            0,
	OpStackPieceBottom:       0,
	OpReifyArguments:         1, // params pool index
	OpCreateCallData:         1, // argc
	OpCheckStackHeight:       1, // expected height
}

// OperandCount returns how many operand words follow op in the stream.
func OperandCount(op Opcode) int {
	if int(op) < len(operandCounts) {
		return operandCounts[op]
	}
	return 0
}
