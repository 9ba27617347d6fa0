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
	"fmt"
	"runtime"
	"strings"
)

const (
	// AllocationPointer is the fixed memory cell holding the free memory
	// pointer used by the allocation protocol.
	AllocationPointer byte = 0x40

	// MemoryOffset is the initial value of the allocation pointer; the
	// host primes the allocation cell with it before execution.
	MemoryOffset byte = 0x80
)

// Block is a single bytecode block under construction: a named sequence of
// instructions with a stack tracking scope and symbolic jump labels.
type Block struct {
	Name string

	// Position is the absolute byte offset of the block after final
	// assembly; -1 until then.
	Position int

	Instructions []*Instruction

	IsEntry       bool
	IsTerminated  bool
	IsLookupTable bool

	// Consumes is the deepest stack slot, relative to the block entry,
	// any instruction of the block reached.
	Consumes int
	Produces int

	Scope    *Scope
	ArgNames []string

	nextComment string
	nextSource  *SourcePosition
	nextCaller  *CallerPosition
	nextLabel   string

	labelCounter uint32
}

// NewBlock create a block expecting the named arguments on the stack, in
// order, with the first name in the deepest slot. The block opens with its
// jump destination marker.
func NewBlock(name string, argNames []string) *Block {
	b := &Block{
		Name:     name,
		Position: -1,
		Scope:    EmptyScope(len(argNames)),
		ArgNames: append([]string(nil), argNames...),
	}

	for i, arg := range argNames {
		if err := b.Scope.RegisterArgName(arg, i); err != nil {
			panic(fmt.Sprintf("evm.NewBlock: %v", err))
		}
	}
	b.JumpDest()

	return b
}

func (b *Block) String() string {
	var out strings.Builder
	out.WriteString(b.Name)
	out.WriteString(":\n")
	for _, instr := range b.Instructions {
		out.WriteString("  ")
		out.WriteString(instr.ToOpcodeString())
		out.WriteString("\n")
	}
	return out.String()
}

// GenerateLabel returns a block unique label with the given suffix.
func (b *Block) GenerateLabel(label string) string {
	generated := fmt.Sprintf("%s__%s__%d", b.Name, label, b.labelCounter)
	b.labelCounter++
	return generated
}

// SetNextInstructionComment attaches a comment to the next instruction.
func (b *Block) SetNextInstructionComment(comment string) {
	b.nextComment = comment
}

// SetNextInstructionLocation attaches a source position to the next
// instruction.
func (b *Block) SetNextInstructionLocation(position SourcePosition) {
	b.nextSource = &position
}

// SetNextCallerPosition records the compiler source line emitting the next
// instruction.
func (b *Block) SetNextCallerPosition() {
	if _, file, line, ok := runtime.Caller(1); ok {
		b.nextCaller = &CallerPosition{File: file, Line: line}
	}
}

// RegisterArgName names the incoming argument slot argNumber.
func (b *Block) RegisterArgName(name string, argNumber int) error {
	return b.Scope.RegisterArgName(name, argNumber)
}

// RegisterStackName tags the top of stack slot with name.
func (b *Block) RegisterStackName(name string) error {
	return b.Scope.RegisterStackName(name)
}

// RegisterAlias makes dest a second name of the slot named source.
func (b *Block) RegisterAlias(source, dest string) error {
	return b.Scope.RegisterAlias(source, dest)
}

func (b *Block) updateStack(opcode Opcode) {
	deepest := b.Scope.UpdateStack(opcode)
	if deepest > b.Consumes {
		b.Consumes = deepest
	}
}

// WriteInstruction appends opcode, consuming the pending sidecar and
// adjusting the scope by the opcode stack effect.
func (b *Block) WriteInstruction(opcode Opcode, unresolvedLabel string) *Block {
	instr := &Instruction{
		Position:        -1,
		Opcode:          opcode,
		UnresolvedLabel: unresolvedLabel,
		StackSizeBefore: b.Scope.StackCounter,
		Comment:         b.nextComment,
		Source:          b.nextSource,
		Caller:          b.nextCaller,
		Label:           b.nextLabel,
	}
	b.nextComment, b.nextSource, b.nextCaller, b.nextLabel = "", nil, nil, ""

	b.Instructions = append(b.Instructions, instr)
	b.updateStack(opcode)

	return b
}

// WriteInstructionWithArgs appends opcode together with its immediate
// argument bytes.
func (b *Block) WriteInstructionWithArgs(opcode Opcode, arguments []byte) *Block {
	if opcode.BytecodeArguments() != len(arguments) {
		panic(fmt.Sprintf("evm.Block: %s expects %d argument bytes, got %d",
			opcode, opcode.BytecodeArguments(), len(arguments)))
	}

	instr := &Instruction{
		Position:        -1,
		Opcode:          opcode,
		Arguments:       arguments,
		StackSizeBefore: b.Scope.StackCounter,
		Comment:         b.nextComment,
		Source:          b.nextSource,
		Caller:          b.nextCaller,
		Label:           b.nextLabel,
	}
	b.nextComment, b.nextSource, b.nextCaller, b.nextLabel = "", nil, nil, ""

	b.Instructions = append(b.Instructions, instr)
	b.updateStack(opcode)

	return b
}

// ----------------------------------------------------------------------------
// Stack shuffling
//

// MoveValue moves the slot at depth from (0 = top) to depth to. The swap
// triple leaves every other slot in place since swap(0) is a no-op.
func (b *Block) MoveValue(from, to int) error {
	if from == to {
		return nil
	}

	a, c := from, to
	if a > c {
		a, c = c, a
	}

	if err := b.Swap(a); err != nil {
		return err
	}
	if err := b.Swap(c); err != nil {
		return err
	}
	return b.Swap(a)
}

// MoveStackName moves the slot named name to depth pos from the top.
func (b *Block) MoveStackName(name string, pos int) error {
	depth, ok := b.Scope.depthOf(name)
	if !ok {
		return fmt.Errorf("failed to find SSA name %s on stack", name)
	}

	origPos := b.Scope.StackCounter - depth - 1
	return b.MoveValue(origPos, pos)
}

// DuplicateStackName duplicates the slot named name onto the top of stack.
func (b *Block) DuplicateStackName(name string) error {
	position, ok := b.Scope.depthOf(name)
	if !ok {
		return fmt.Errorf("failed to find SSA name %s on stack", name)
	}

	distance := b.Scope.StackCounter - position
	if distance < 1 || distance > 16 {
		return fmt.Errorf("stack too deep: %s is %d slots down", name, distance)
	}

	return b.Dup(distance)
}

// Dup appends DUPn for n in 1..16.
func (b *Block) Dup(n int) error {
	if n < 1 || n > 16 {
		return fmt.Errorf("duplication depth must be between 1 and 16, got %d", n)
	}
	b.WriteInstruction(DUP1+Opcode(n-1), "")
	return nil
}

// Swap appends SWAPn for n in 1..16; Swap(0) is a no-op.
func (b *Block) Swap(n int) error {
	if n == 0 {
		return nil
	}
	if n < 0 || n > 16 {
		return fmt.Errorf("swap depth must be between 0 and 16, got %d", n)
	}

	b.Scope.swap(n)
	b.WriteInstruction(SWAP1+Opcode(n-1), "")
	return nil
}

// ----------------------------------------------------------------------------
// Opcodes
//

func (b *Block) Stop() *Block       { return b.WriteInstruction(STOP, "") }
func (b *Block) Add() *Block        { return b.WriteInstruction(ADD, "") }
func (b *Block) Mul() *Block        { return b.WriteInstruction(MUL, "") }
func (b *Block) Sub() *Block        { return b.WriteInstruction(SUB, "") }
func (b *Block) Div() *Block        { return b.WriteInstruction(DIV, "") }
func (b *Block) SDiv() *Block       { return b.WriteInstruction(SDIV, "") }
func (b *Block) Mod() *Block        { return b.WriteInstruction(MOD, "") }
func (b *Block) SMod() *Block       { return b.WriteInstruction(SMOD, "") }
func (b *Block) AddMod() *Block     { return b.WriteInstruction(ADDMOD, "") }
func (b *Block) MulMod() *Block     { return b.WriteInstruction(MULMOD, "") }
func (b *Block) Exp() *Block        { return b.WriteInstruction(EXP, "") }
func (b *Block) SignExtend() *Block { return b.WriteInstruction(SIGNEXTEND, "") }

func (b *Block) Lt() *Block     { return b.WriteInstruction(LT, "") }
func (b *Block) Gt() *Block     { return b.WriteInstruction(GT, "") }
func (b *Block) Slt() *Block    { return b.WriteInstruction(SLT, "") }
func (b *Block) Sgt() *Block    { return b.WriteInstruction(SGT, "") }
func (b *Block) Eq() *Block     { return b.WriteInstruction(EQ, "") }
func (b *Block) IsZero() *Block { return b.WriteInstruction(ISZERO, "") }
func (b *Block) And() *Block    { return b.WriteInstruction(AND, "") }
func (b *Block) Or() *Block     { return b.WriteInstruction(OR, "") }
func (b *Block) Xor() *Block    { return b.WriteInstruction(XOR, "") }
func (b *Block) Not() *Block    { return b.WriteInstruction(NOT, "") }
func (b *Block) Byte() *Block   { return b.WriteInstruction(BYTE, "") }
func (b *Block) Shl() *Block    { return b.WriteInstruction(SHL, "") }
func (b *Block) Shr() *Block    { return b.WriteInstruction(SHR, "") }
func (b *Block) Sar() *Block    { return b.WriteInstruction(SAR, "") }

func (b *Block) Sha3() *Block { return b.WriteInstruction(SHA3, "") }

func (b *Block) Caller() *Block { return b.WriteInstruction(CALLER, "") }

func (b *Block) Pop() *Block     { return b.WriteInstruction(POP, "") }
func (b *Block) MLoad() *Block   { return b.WriteInstruction(MLOAD, "") }
func (b *Block) MStore() *Block  { return b.WriteInstruction(MSTORE, "") }
func (b *Block) MStore8() *Block { return b.WriteInstruction(MSTORE8, "") }
func (b *Block) SLoad() *Block   { return b.WriteInstruction(SLOAD, "") }
func (b *Block) SStore() *Block  { return b.WriteInstruction(SSTORE, "") }
func (b *Block) Gas() *Block     { return b.WriteInstruction(GAS, "") }

func (b *Block) Jump() *Block     { return b.WriteInstruction(JUMP, "") }
func (b *Block) JumpI() *Block    { return b.WriteInstruction(JUMPI, "") }
func (b *Block) PCOp() *Block     { return b.WriteInstruction(PC, "") }
func (b *Block) MSize() *Block    { return b.WriteInstruction(MSIZE, "") }
func (b *Block) JumpDest() *Block { return b.WriteInstruction(JUMPDEST, "") }

func (b *Block) ReturnOp() *Block   { return b.WriteInstruction(RETURN, "") }
func (b *Block) RevertOp() *Block   { return b.WriteInstruction(REVERT, "") }
func (b *Block) Invalid() *Block    { return b.WriteInstruction(INVALID, "") }
func (b *Block) StaticCall() *Block { return b.WriteInstruction(STATICCALL, "") }

// JumpTo jumps unconditionally to the block labeled label.
func (b *Block) JumpTo(label string) *Block {
	b.WriteInstruction(PUSH4, label)
	return b.WriteInstruction(JUMP, "")
}

// PushLabel pushes the absolute position of label.
func (b *Block) PushLabel(label string) *Block {
	return b.WriteInstruction(PUSH4, label)
}

// JumpIfTo jumps to label when the top of stack is non-zero.
func (b *Block) JumpIfTo(label string) *Block {
	b.WriteInstruction(PUSH4, label)
	return b.WriteInstruction(JUMPI, "")
}

// CreateLabel marks the next jump destination with a symbolic label local
// to this block.
func (b *Block) CreateLabel(label string) *Block {
	b.nextLabel = label
	return b.WriteInstruction(JUMPDEST, "")
}

// Push appends the narrowest PUSH opcode fitting arguments.
func (b *Block) Push(arguments []byte) *Block {
	if len(arguments) < 1 || len(arguments) > 32 {
		panic(fmt.Sprintf("evm.Block: push size %d not supported", len(arguments)))
	}
	return b.WriteInstructionWithArgs(PUSH1+Opcode(len(arguments)-1), arguments)
}

// PushUint64 pushes arg as an 8 byte big-endian immediate.
func (b *Block) PushUint64(arg uint64) *Block {
	return b.Push([]byte{
		byte(arg >> 56), byte(arg >> 48), byte(arg >> 40), byte(arg >> 32),
		byte(arg >> 24), byte(arg >> 16), byte(arg >> 8), byte(arg),
	})
}

// PushUint32 pushes arg as a 4 byte big-endian immediate.
func (b *Block) PushUint32(arg uint32) *Block {
	return b.Push([]byte{byte(arg >> 24), byte(arg >> 16), byte(arg >> 8), byte(arg)})
}

// ----------------------------------------------------------------------------
// Memory protocol
//

// AllocaStatic bumps the free memory pointer by size and leaves the old
// pointer value on the stack.
func (b *Block) AllocaStatic(size uint64) *Block {
	b.Push([]byte{AllocationPointer})
	b.MLoad() // Stack element is the pointer to be left on stack.
	if err := b.Dup(1); err != nil {
		panic(err)
	}
	b.PushUint64(size)
	b.Add()
	b.Push([]byte{AllocationPointer})
	return b.MStore()
}

// AllocateObject lays value out in fresh memory as a 4 byte big-endian
// length prefix followed by the data, rounded up to 32 byte words. The
// object pointer is left on the stack.
func (b *Block) AllocateObject(value []byte) *Block {
	chunks := (4 + len(value) + 31) / 32
	paddedLength := chunks * 32

	b.AllocaStatic(uint64(paddedLength))

	// Storing the length in the upper 32 bits of the first word.
	b.PushUint32(uint32(len(value)))
	b.Push([]byte{224})
	b.Shl()
	mustDup(b, 2)
	b.MStore()

	mustDup(b, 1) // Adding rolling pointer.
	b.Push([]byte{4})
	b.Add()

	for i := 0; i < chunks; i++ {
		start := i * 32
		end := (i + 1) * 32
		if end > len(value) {
			end = len(value)
		}
		if start > end {
			start = end
		}

		chunk := make([]byte, 32)
		copy(chunk, value[start:end])

		b.Push(chunk)
		mustDup(b, 2)
		b.MStore()

		if i != chunks-1 {
			b.Push([]byte{32})
			b.Add()
		}
	}

	return b.Pop() // Removing rolling pointer.
}

// CopyObject copies a length prefixed object; it expects [dest, src] on the
// stack, src on top, and copies length + 4 bytes 32 bytes at a time using a
// monotonic counter loop. The copied length is left on the stack.
func (b *Block) CopyObject() *Block {
	mustDup(b, 1)
	b.MLoad()
	b.Push([]byte{224})
	b.Shr()
	b.SetNextInstructionComment("Copy loop counter")
	// Increasing the copy length by 4 so the length prefix itself is
	// copied as well.
	b.Push([]byte{0x04})
	b.Add()

	b.Push([]byte{0x0})

	lblCondition := b.GenerateLabel("copy_loop_condition")
	lblDone := b.GenerateLabel("copy_done")
	lblBody := b.GenerateLabel("copy_body")

	b.CreateLabel(lblCondition)
	mustDup(b, 2)
	mustDup(b, 2)
	b.Lt()
	b.JumpIfTo(lblBody)
	b.JumpTo(lblDone)

	b.CreateLabel(lblBody)
	// Stack:
	// p_dest  => p_dest + 0x20
	// p_src   => p_src + 0x20
	// len     => len
	// counter => counter + 0x20

	mustDup(b, 3)
	b.Push([]byte{0x20})
	b.Add()
	mustSwap(b, 3)

	b.MLoad()

	mustDup(b, 5)
	b.Push([]byte{0x20})
	b.Add()
	mustSwap(b, 5)

	b.MStore()

	b.Push([]byte{0x20})
	b.Add()
	b.JumpTo(lblCondition)

	b.CreateLabel(lblDone)
	b.Pop()
	mustSwap(b, 2)
	b.Pop()
	return b.Pop()
}

func mustDup(b *Block, n int) {
	if err := b.Dup(n); err != nil {
		panic(err)
	}
}

func mustSwap(b *Block, n int) {
	if err := b.Swap(n); err != nil {
		panic(err)
	}
}

// ----------------------------------------------------------------------------
// Calls
//

// callGas is the gas budget attached to precompile calls.
const callGas = 0x1337

// Call emits the invocation of a declared function. Inline assembly
// signatures expand in place; external signatures are encoded head-tail at
// the allocation pointer and invoked through a static call to the assigned
// address.
func (b *Block) Call(function *FunctionSignature, argTypes []Type) error {
	if function.InlineAssembly != nil {
		function.InlineAssembly(b)
		return nil
	}

	if function.ExternalAddress == nil {
		return fmt.Errorf("function %s has neither an address nor inline assembly", function.Name)
	}

	b.Push([]byte{AllocationPointer})
	// Stack:
	// arg N     => arg N
	// alloc_ptr => p
	//           => p_data

	b.MLoad() // Stack element is the pointer.

	mustDup(b, 1) // p_data = p + 0x20 * len(args)
	b.PushUint32(uint32(0x20 * len(argTypes)))
	b.Add()

	for i := len(argTypes) - 1; i >= 0; i-- {
		if !argTypes[i].IsDynamic() {
			// By default we store in head:
			// arg N -> p + 0x20 * i (p_head)

			// Stack:
			// arg N  => p
			// p      => p_data
			// p_data => arg N
			mustSwap(b, 1)
			mustSwap(b, 2)

			// Stack:
			// p      => p
			// p_data => p_data
			// arg N  => arg N
			//        => p_head
			mustDup(b, 3)
			b.PushUint32(uint32(0x20 * i))
			b.Add()

			b.MStore()
			continue
		}

		// Dynamically sized values store the relative tail offset in the
		// head slot and the payload at the tail.

		// Stack:
		// arg N  => p
		// p      => p_data
		// p_data => arg N
		mustSwap(b, 1)
		mustSwap(b, 2)

		// Stack:
		// p      => p
		// p_data => p_data
		// arg N  => arg N
		//        => tail offset
		mustDup(b, 3)
		mustDup(b, 3)
		b.Sub()

		// Stack:
		// p           => p
		// p_data      => p_data
		// arg N       => arg N
		// tail offset => tail offset
		//             => p_head
		mustDup(b, 4)
		b.PushUint32(uint32(0x20 * i))
		b.Add()

		b.MStore()

		// Storing the tail: arg N -> *p_data.
		mustDup(b, 2)

		b.SetNextInstructionComment("Loading string argument")

		// Stack:
		// p             => p
		// p_data        => p_data
		// arg N (p_str) => p_data (dest)
		// p_data        => p_str  (src)
		mustSwap(b, 1)

		b.SetNextInstructionComment("Copying string to call data")
		b.CopyObject()
		b.Add()
	}

	// Target format: gas address argsOffset argsSize retOffset retSize.

	// Stack:
	// p        => p
	// p_data   => data_size
	mustDup(b, 2)
	mustSwap(b, 1)
	b.Sub()

	// Return size; a single machine word.
	b.Push([]byte{0x20})

	// Stack:
	// p            => 0x20
	// data_size    => p
	// 0x20         => data_size
	mustSwap(b, 2)
	mustSwap(b, 1)

	// Stack:
	// 0x20         => 0x20
	// p            => p
	// data_size    => data_size
	//              => p
	mustDup(b, 2)

	b.Push(UnpaddedBytes(uint64(*function.ExternalAddress)))
	b.Push(UnpaddedBytes(callGas))

	b.StaticCall()

	return nil
}

// ----------------------------------------------------------------------------
// Disassembly
//

// ExtractBlocksFromBytecode splits bytecode into blocks at each jump
// destination. A terminator opcode followed by an invalid opcode delimits
// the data section; everything after is returned verbatim as auxiliary
// payload.
func ExtractBlocksFromBytecode(bytecode []byte) ([]*Block, []byte, error) {
	var blocks []*Block

	blockCounter := 0
	current := &Block{
		Name:     fmt.Sprintf("block%d", blockCounter),
		Position: -1,
		Scope:    EmptyScope(0),
		IsEntry:  true,
	}
	blockCounter++

	i := 0
	for i < len(bytecode) {
		opcode := Opcode(bytecode[i])

		spec, err := opcode.Spec()
		if err != nil {
			return nil, nil, fmt.Errorf("offset %d: %w", i, err)
		}

		instr := &Instruction{
			Position: i,
			Opcode:   opcode,
		}

		i++
		if i+spec.ArgumentLen > len(bytecode) {
			return nil, nil, fmt.Errorf("offset %d: %s arguments exceed the bytecode", instr.Position, opcode)
		}

		instr.Arguments = append(instr.Arguments, bytecode[i:i+spec.ArgumentLen]...)
		i += spec.ArgumentLen

		if opcode == JUMPDEST {
			blocks = append(blocks, current)
			current = &Block{
				Name:     fmt.Sprintf("block%d", blockCounter),
				Position: instr.Position,
				Scope:    EmptyScope(0),
			}
			blockCounter++
		}

		current.Instructions = append(current.Instructions, instr)

		// A terminated block followed by an invalid opcode starts the
		// data section.
		if spec.IsTerminator && i < len(bytecode) && Opcode(bytecode[i]) == INVALID {
			i++
			break
		}
	}

	data := append([]byte(nil), bytecode[i:]...)
	blocks = append(blocks, current)

	return blocks, data, nil
}

// Bytes serializes the block instruction sequence.
func (b *Block) Bytes() []byte {
	var out []byte
	for _, instr := range b.Instructions {
		out = append(out, byte(instr.Opcode))
		out = append(out, instr.Arguments...)
	}
	return out
}
