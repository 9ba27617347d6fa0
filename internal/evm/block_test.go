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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opcodes(b *Block) []Opcode {
	ops := make([]Opcode, 0, len(b.Instructions))
	for _, instr := range b.Instructions {
		ops = append(ops, instr.Opcode)
	}
	return ops
}

func TestNewBlockOpensWithJumpDest(t *testing.T) {
	b := NewBlock("test", []string{"a", "b"})

	require.Len(t, b.Instructions, 1)
	assert.Equal(t, JUMPDEST, b.Instructions[0].Opcode)
	assert.Equal(t, 2, b.Scope.StackCounter)
}

func TestBlockStackCounterFollowsOpcodes(t *testing.T) {
	b := NewBlock("test", nil)

	b.Push([]byte{0x01})
	assert.Equal(t, 1, b.Scope.StackCounter)

	require.NoError(t, b.Dup(1))
	assert.Equal(t, 2, b.Scope.StackCounter)

	b.Add()
	assert.Equal(t, 1, b.Scope.StackCounter)

	b.Pop()
	assert.Equal(t, 0, b.Scope.StackCounter)
}

func TestBlockDuplicateStackName(t *testing.T) {
	b := NewBlock("test", nil)

	b.Push([]byte{0x2a})
	require.NoError(t, b.RegisterStackName("x"))
	b.Push([]byte{0x07})

	require.NoError(t, b.DuplicateStackName("x"))
	assert.Equal(t, DUP2, b.Instructions[len(b.Instructions)-1].Opcode)

	require.Error(t, b.DuplicateStackName("missing"))
}

func TestBlockDuplicateTooDeepFails(t *testing.T) {
	b := NewBlock("test", nil)

	b.Push([]byte{0x01})
	require.NoError(t, b.RegisterStackName("deep"))
	for i := 0; i < 16; i++ {
		b.Push([]byte{0x00})
	}

	err := b.DuplicateStackName("deep")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stack too deep")
}

func TestBlockMoveStackName(t *testing.T) {
	b := NewBlock("test", nil)

	b.Push([]byte{0x01})
	require.NoError(t, b.RegisterStackName("a"))
	b.Push([]byte{0x02})
	require.NoError(t, b.RegisterStackName("b"))
	b.Push([]byte{0x03})
	require.NoError(t, b.RegisterStackName("c"))

	// Moving a from the deepest slot to the top.
	require.NoError(t, b.MoveStackName("a", 0))

	depth, ok := b.Scope.depthOf("a")
	require.True(t, ok)
	assert.Equal(t, b.Scope.StackCounter-1, depth, "a owns the top slot")

	// Moving to the current position is a no-op.
	before := len(b.Instructions)
	require.NoError(t, b.MoveStackName("a", 0))
	assert.Equal(t, before, len(b.Instructions))
}

func TestBlockPushWidths(t *testing.T) {
	b := NewBlock("test", nil)

	b.Push([]byte{0x01})
	b.PushUint32(0xdeadbeef)
	b.PushUint64(1)
	b.Push(make([]byte, 32))

	ops := opcodes(b)
	assert.Equal(t, []Opcode{JUMPDEST, PUSH1, PUSH4, PUSH1 + 7, PUSH32}, ops)
}

func TestBlockConsumesTracksDeepestVisit(t *testing.T) {
	b := NewBlock("test", []string{"a", "b"})

	b.Pop()
	b.Pop()

	assert.Equal(t, 2, b.Consumes)
}

func TestAllocateObjectLayout(t *testing.T) {
	b := NewBlock("test", nil)

	b.AllocateObject([]byte("hi"))

	// The allocation leaves exactly the object pointer on the stack.
	assert.Equal(t, 1, b.Scope.StackCounter)

	ops := opcodes(b)
	assert.Contains(t, ops, SHL, "the length prefix is shifted into the upper 32 bits")
	assert.Contains(t, ops, MSTORE)
}

func TestCopyObjectBalancesStack(t *testing.T) {
	b := NewBlock("test", nil)

	b.Push([]byte{0x80}) // dest
	b.Push([]byte{0xc0}) // src

	b.CopyObject()

	// [dest, src] collapse into the copied length.
	assert.Equal(t, 1, b.Scope.StackCounter)
}

func TestCallRequiresAddressOrAssembly(t *testing.T) {
	b := NewBlock("test", nil)

	err := b.Call(&FunctionSignature{Name: "nowhere::<>"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "neither an address")
}

func TestCallStaticCallShape(t *testing.T) {
	ctx := NewCompilerContext()
	sig := ctx.DeclareFunction("print::<Uint64>", []string{"Uint64"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) { return input, nil })

	b := NewBlock("test", nil)
	b.Push([]byte{0x2a}) // the argument

	require.NoError(t, b.Call(sig, []Type{{Name: "Uint64", Kind: TypeUint, Bits: 64}}))

	ops := opcodes(b)
	assert.Equal(t, STATICCALL, ops[len(ops)-1])
	// The argument is consumed and the success flag produced.
	assert.Equal(t, 1, b.Scope.StackCounter)
}

func TestExtractBlocksRoundTrip(t *testing.T) {
	b := NewBlock("test", nil)
	b.Push([]byte{0x01})
	b.Push([]byte{0x02})
	b.Add()
	b.Pop()
	b.Stop()

	bytecode := b.Bytes()

	blocks, data, err := ExtractBlocksFromBytecode(bytecode)
	require.NoError(t, err)
	assert.Empty(t, data)

	var reassembled []byte
	for _, block := range blocks {
		reassembled = append(reassembled, block.Bytes()...)
	}
	assert.Equal(t, bytecode, reassembled, "disassembly then reassembly preserves the bytes")
}

func TestExtractBlocksSplitsOnJumpDest(t *testing.T) {
	bytecode := []byte{
		byte(PUSH1), 0x01,
		byte(JUMPDEST),
		byte(STOP),
	}

	blocks, _, err := ExtractBlocksFromBytecode(bytecode)
	require.NoError(t, err)
	assert.Len(t, blocks, 2)
}

func TestExtractBlocksAuxiliaryData(t *testing.T) {
	bytecode := []byte{
		byte(STOP),
		byte(INVALID),
		0xde, 0xad, 0xbe, 0xef,
	}

	_, data, err := ExtractBlocksFromBytecode(bytecode)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, data)
}

func TestExtractBlocksTruncatedPush(t *testing.T) {
	_, _, err := ExtractBlocksFromBytecode([]byte{byte(PUSH4), 0x00})
	require.Error(t, err)
}
