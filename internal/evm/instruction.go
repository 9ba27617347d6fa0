// Copyright 2020 ZUP IT SERVICOS EM TECNOLOGIA E INOVACAO SA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package evm

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// SourcePosition locates the source construct an instruction was emitted
// for.
type SourcePosition struct {
	Start  uint32
	End    uint32
	Line   uint32
	Column uint32
}

// CallerPosition records which compiler source line emitted an instruction;
// debug metadata only.
type CallerPosition struct {
	File string
	Line int
}

// Instruction is one emitted opcode with its immediate argument bytes and
// debug sidecar.
type Instruction struct {
	// Position is the absolute byte offset of the instruction once blocks
	// are finalized; -1 until then.
	Position int

	Opcode    Opcode
	Arguments []byte

	// UnresolvedLabel is the symbolic jump target of a push; resolved into
	// Arguments by the final assembly.
	UnresolvedLabel string

	// StackSizeBefore is the block relative stack counter observed before
	// the instruction executed.
	StackSizeBefore int

	Comment string
	Source  *SourcePosition
	Caller  *CallerPosition
	Label   string // Symbolic label attached to this instruction, if any.
}

// ByteLength returns the encoded size of the instruction.
func (i *Instruction) ByteLength() int {
	return 1 + i.Opcode.BytecodeArguments()
}

// ToOpcodeString returns the printable form of the instruction.
func (i *Instruction) ToOpcodeString() string {
	var b strings.Builder

	b.WriteString(i.Opcode.String())

	switch {
	case len(i.Arguments) > 0:
		fmt.Fprintf(&b, " 0x%s", hex.EncodeToString(i.Arguments))
	case i.UnresolvedLabel != "":
		fmt.Fprintf(&b, " @%s", i.UnresolvedLabel)
	}

	if i.Comment != "" {
		fmt.Fprintf(&b, " ;; %s", i.Comment)
	}

	return b.String()
}
