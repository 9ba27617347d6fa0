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
	"encoding/binary"
	"fmt"
)

// FunctionDeclaration is one function registered on the builder, with the
// label of its entry block.
type FunctionDeclaration struct {
	Name       string
	Arguments  []string
	ReturnType string

	entryLabel string
}

// Builder accumulates the blocks of every emitted function and resolves
// their symbolic labels into a final byte stream.
type Builder struct {
	Context *CompilerContext

	Blocks    []*Block
	Functions []*FunctionDeclaration

	labelPositions map[string]int
	finalized      bool
}

// NewBuilder create a builder bound to ctx.
func NewBuilder(ctx *CompilerContext) *Builder {
	return &Builder{
		Context:        ctx,
		labelPositions: make(map[string]int),
	}
}

// CodeBuilder is the per function view handed to block emission: it scopes
// block labels to the enclosing function so the same generated label can
// appear in more than one function.
type CodeBuilder struct {
	Context *CompilerContext

	scope        string
	labelCounter int
}

// NewLabel returns a function unique label with the given prefix.
func (cb *CodeBuilder) NewLabel(prefix string) string {
	label := fmt.Sprintf("%s__%d", prefix, cb.labelCounter)
	cb.labelCounter++
	return label
}

// ScopedLabel qualifies a block label with the enclosing function scope.
// Function entry labels are global and are not scoped.
func (cb *CodeBuilder) ScopedLabel(label string) string {
	return cb.scope + "__" + label
}

// NewBlockWithArgs create a block under the function scope expecting the
// named arguments on the stack.
func (cb *CodeBuilder) NewBlockWithArgs(label string, argNames []string) *Block {
	return NewBlock(cb.ScopedLabel(label), argNames)
}

// NewContinuationBlock create the return continuation of an internal call:
// the block inherits a snapshot of the caller scope, so every name of the
// interrupted frame keeps its slot, and records argNames as its declared
// entry arguments.
func (cb *CodeBuilder) NewContinuationBlock(label string, argNames []string, scope *Scope) *Block {
	b := &Block{
		Name:     cb.ScopedLabel(label),
		Position: -1,
		Scope:    scope.Clone(),
		ArgNames: append([]string(nil), argNames...),
	}
	b.JumpDest()
	return b
}

// FunctionBuilder builds the blocks of one declared function.
type FunctionBuilder struct {
	builder     *Builder
	declaration *FunctionDeclaration
}

// DefineFunction declares a function by name with its signature. The
// returned FunctionBuilder emits its body.
func (b *Builder) DefineFunction(name string, argTypes []string, returnType string) *FunctionBuilder {
	declaration := &FunctionDeclaration{
		Name:       name,
		Arguments:  append([]string(nil), argTypes...),
		ReturnType: returnType,
	}
	b.Functions = append(b.Functions, declaration)

	return &FunctionBuilder{builder: b, declaration: declaration}
}

// Build runs the emission closure and appends the produced blocks. The
// first block is the function entry: callers jump to the function name.
func (f *FunctionBuilder) Build(emit func(cb *CodeBuilder) ([]*Block, error)) error {
	cb := &CodeBuilder{Context: f.builder.Context, scope: f.declaration.Name}

	blocks, err := emit(cb)
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		return fmt.Errorf("function %s produced no blocks", f.declaration.Name)
	}

	f.declaration.entryLabel = blocks[0].Name
	blocks[0].IsEntry = true
	f.builder.Blocks = append(f.builder.Blocks, blocks...)

	return nil
}

// FinalizeBlocks resolves every symbolic label into an absolute byte
// offset: the first pass lays out blocks and records positions, the second
// fills in the 4 byte label arguments of the pushes preceding jumps.
func (b *Builder) FinalizeBlocks() error {
	if b.finalized {
		return nil
	}

	offset := 0
	for _, block := range b.Blocks {
		block.Position = offset
		b.labelPositions[block.Name] = offset

		for _, instr := range block.Instructions {
			instr.Position = offset
			if instr.Label != "" {
				b.labelPositions[instr.Label] = offset
			}
			offset += instr.ByteLength()
		}
	}

	// Function names resolve to their entry block.
	for _, fn := range b.Functions {
		position, ok := b.labelPositions[fn.entryLabel]
		if !ok {
			return fmt.Errorf("function %s has no entry block", fn.Name)
		}
		b.labelPositions[fn.Name] = position
	}

	for _, block := range b.Blocks {
		for _, instr := range block.Instructions {
			if instr.UnresolvedLabel == "" {
				continue
			}

			position, ok := b.labelPositions[instr.UnresolvedLabel]
			if !ok {
				return fmt.Errorf("unresolved label %q in block %s", instr.UnresolvedLabel, block.Name)
			}

			argument := make([]byte, 4)
			binary.BigEndian.PutUint32(argument, uint32(position))
			instr.Arguments = argument
		}
	}

	b.finalized = true
	return nil
}

// Build finalizes the blocks and assembles the executable.
func (b *Builder) Build() (*Executable, error) {
	if err := b.FinalizeBlocks(); err != nil {
		return nil, err
	}

	var bytecode []byte
	for _, block := range b.Blocks {
		bytecode = append(bytecode, block.Bytes()...)
	}

	metadata := Metadata{}
	for _, fn := range b.Functions {
		metadata.Functions = append(metadata.Functions, FunctionInfo{
			Name:       fn.Name,
			Arguments:  fn.Arguments,
			ReturnType: fn.ReturnType,
			Position:   b.labelPositions[fn.Name],
		})
	}

	labels := make(map[string]int, len(b.labelPositions))
	for label, position := range b.labelPositions {
		labels[label] = position
	}

	return &Executable{
		ByteCode: bytecode,
		Metadata: metadata,
		labels:   labels,
	}, nil
}
