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

package ir

import (
	"fmt"
	"strings"
)

// String returns the disassembled form of the instruction, e.g.:
//
//	x = load[welcome_msg]
//	__imm_0 = extcall builtin__eq(msg, reference)
//	jmp match_exit_1
func (i *Instruction) String() string {
	var b strings.Builder

	if i.SSAName != nil {
		b.WriteString(i.SSAName.String())
		b.WriteString(" = ")
	}

	switch op := i.Operation.(type) {
	case *ResolveSymbol:
		fmt.Fprintf(&b, "alias %s", op.Symbol)
	case *ResolveContextResource:
		fmt.Fprintf(&b, "context %s", op.Symbol)
	case *Literal:
		fmt.Fprintf(&b, "literal %s %q", op.TypeName, op.Data)
	case *IsEqual:
		fmt.Fprintf(&b, "%s == %s", op.Left, op.Right)
	case *CallFunction:
		fmt.Fprintf(&b, "call %s(%s)", op.Name, joinIdentifiers(op.Arguments))
	case *CallExternalFunction:
		fmt.Fprintf(&b, "extcall %s(%s)", op.Name, joinIdentifiers(op.Arguments))
	case *CallStaticFunction:
		fmt.Fprintf(&b, "new %s(%s)", op.Name, joinIdentifiers(op.Arguments))
	case *CallMemberFunction:
		fmt.Fprintf(&b, "membercall %s.%s(%s)", op.Owner, op.Name, joinIdentifiers(op.Arguments))
	case *StateLoad:
		fmt.Fprintf(&b, "load[%s]", op.Address.Name)
	case *StateStore:
		fmt.Fprintf(&b, "store[%s] <- %s", op.Address.Name, op.Value)
	case *MemLoad:
		b.WriteString("memload")
	case *MemStore:
		b.WriteString("memstore")
	case *Jump:
		fmt.Fprintf(&b, "jmp %s", op.Target)
	case *ConditionalJump:
		fmt.Fprintf(&b, "jmp if %s then %s else %s", op.Expression, op.OnSuccess, op.OnFailure)
	case *PhiNode:
		fmt.Fprintf(&b, "phi(%s)", joinIdentifiers(op.Inputs))
	case *Return:
		if op.Value != nil {
			fmt.Fprintf(&b, "return %s", op.Value)
		} else {
			b.WriteString("return")
		}
	case *Revert:
		if op.Value != nil {
			fmt.Fprintf(&b, "revert %s", op.Value)
		} else {
			b.WriteString("revert")
		}
	case *TerminatingRef:
		fmt.Fprintf(&b, "terminating ref %s", op.Ref)
	case *Noop:
		b.WriteString("noop")
	default:
		fmt.Fprintf(&b, "<unknown operation %T>", op)
	}

	return b.String()
}

// String returns the printed form of the block: its label, required
// arguments and instructions.
func (b *FunctionBlock) String() string {
	var out strings.Builder

	fmt.Fprintf(&out, "%s(%s):\n", b.Label(), strings.Join(b.Arguments, ", "))
	for _, instr := range b.Instructions {
		fmt.Fprintf(&out, "  %s\n", instr)
	}

	return out.String()
}

// String returns the printed form of the function.
func (f *ConcreteFunction) String() string {
	var out strings.Builder

	args := make([]string, 0, len(f.Arguments))
	for _, arg := range f.Arguments {
		args = append(args, fmt.Sprintf("%s: %s", arg.Name, arg.TypeName))
	}

	fmt.Fprintf(&out, "%s %s(%s):\n", f.Kind, f.Name, strings.Join(args, ", "))
	for _, block := range f.Body.Blocks {
		out.WriteString(block.String())
	}

	return out.String()
}

func joinIdentifiers(ids []*Identifier) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, id.String())
	}
	return strings.Join(parts, ", ")
}
