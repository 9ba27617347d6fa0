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

// Package codegen materializes an annotated IR into stack machine blocks
// and drives the final bytecode assembly.
package codegen

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/zilliqa/bluebell/internal/evm"
	"github.com/zilliqa/bluebell/internal/ir"
)

// StateAddressBase is the first persistent storage slot assigned to
// contract fields. The layout is a compilation artifact: the host must
// preserve offsets across deployments.
const StateAddressBase = 4919

// BytecodeGenerator lowers each IR function into a sequence of stack
// machine blocks, materializing symbolic operands into concrete stack
// moves and opcodes.
type BytecodeGenerator struct {
	builder        *evm.Builder
	representation *ir.IR
}

// NewBytecodeGenerator create a generator emitting through a builder
// bound to ctx.
func NewBytecodeGenerator(ctx *evm.CompilerContext, representation *ir.IR) *BytecodeGenerator {
	return &BytecodeGenerator{
		builder:        ctx.CreateBuilder(),
		representation: representation,
	}
}

// BuildStateLayout assigns each contract field a stable storage slot,
// sequential from StateAddressBase, and records the layout in the symbol
// table before function lowering so state accesses can resolve addresses.
func (g *BytecodeGenerator) BuildStateLayout() error {
	offset := int64(StateAddressBase)

	for _, field := range g.representation.FieldDefinitions {
		name := field.Variable.Name.Unresolved

		g.representation.SymbolTable.StateLayout[name] = &ir.StateLayoutEntry{
			AddressOffset: big.NewInt(offset),
			Size:          1,
			Initializer:   big.NewInt(0),
		}
		offset++
	}

	return nil
}

// WriteFunctionDefinitions emits every IR function into the builder.
func (g *BytecodeGenerator) WriteFunctionDefinitions() error {
	for _, fn := range g.representation.FunctionDefinitions {
		if err := g.writeFunction(fn); err != nil {
			return err
		}
	}
	return nil
}

// BuildExecutable runs the full generation: state layout, function
// emission and label resolution.
func (g *BytecodeGenerator) BuildExecutable() (*evm.Executable, error) {
	if err := g.BuildStateLayout(); err != nil {
		return nil, err
	}
	if err := g.WriteFunctionDefinitions(); err != nil {
		return nil, err
	}
	if err := g.builder.FinalizeBlocks(); err != nil {
		return nil, err
	}
	return g.builder.Build()
}

func qualifiedFunctionName(fn *ir.ConcreteFunction) string {
	if fn.Name.Resolved != "" {
		return fn.Name.Resolved
	}
	if fn.Namespace != nil && fn.Namespace.Resolved != "" {
		return fn.Namespace.Resolved + ir.NamespaceSeparator + fn.Name.Unresolved
	}
	return fn.Name.Unresolved
}

func (g *BytecodeGenerator) writeFunction(fn *ir.ConcreteFunction) error {
	argTypes := make([]string, 0, len(fn.Arguments))
	for _, arg := range fn.Arguments {
		argTypes = append(argTypes, arg.TypeName.Unresolved)
	}

	returnType := fn.ReturnType
	if returnType == "" {
		returnType = ir.MachineWordType
	}

	name := qualifiedFunctionName(fn)

	if len(fn.Body.Blocks) > 0 {
		entry := fn.Body.Blocks[0]
		if len(entry.Arguments) != len(fn.Arguments) {
			return fmt.Errorf(
				"internal error: function %s argument names differ from entry block arguments in length: %d vs %d",
				name, len(fn.Arguments), len(entry.Arguments))
		}
	}

	return g.builder.DefineFunction(name, argTypes, returnType).Build(func(cb *evm.CodeBuilder) ([]*evm.Block, error) {
		var out []*evm.Block

		// The return address and the arguments are expected on the stack.
		for _, block := range fn.Body.Blocks {
			label, err := block.Name.QualifiedName()
			if err != nil {
				return nil, err
			}

			evmBlock := cb.NewBlockWithArgs(label, block.Arguments)

			for _, instr := range block.Instructions {
				evmBlock.SetNextInstructionComment(instr.String())
				if start := instr.Source.Start(); start.IsValid() {
					evmBlock.SetNextInstructionLocation(evm.SourcePosition{
						Start:  instr.Source.Start().Byte,
						End:    instr.Source.End().Byte,
						Line:   start.Row,
						Column: start.Column,
					})
				}

				evmBlock, err = g.writeInstruction(cb, evmBlock, &out, block, instr)
				if err != nil {
					return nil, err
				}

				if err := registerResult(evmBlock, instr); err != nil {
					return nil, err
				}
			}

			out = append(out, evmBlock)
		}

		return out, nil
	})
}

// registerResult names the new top of stack after a value producing
// instruction, except for operations that already performed their own SSA
// registration.
func registerResult(b *evm.Block, instr *ir.Instruction) error {
	if instr.SSAName == nil {
		return nil
	}

	switch instr.Operation.(type) {
	case *ir.ResolveSymbol, *ir.StateLoad, *ir.StateStore, *ir.Literal:
		return nil
	}

	name, err := instr.SSAName.QualifiedName()
	if err != nil {
		return err
	}

	if err := b.RegisterStackName(name); err != nil {
		return fmt.Errorf("failed to register SSA stack name %s: %w", name, err)
	}
	return nil
}

// writeInstruction emits one IR instruction into the current block. It
// returns the block subsequent instructions should land in, which changes
// when an internal call swaps in its return continuation.
//
// nolint:funlen,gocyclo // One dispatch arm per IR operation.
func (g *BytecodeGenerator) writeInstruction(
	cb *evm.CodeBuilder,
	b *evm.Block,
	out *[]*evm.Block,
	block *ir.FunctionBlock,
	instr *ir.Instruction,
) (*evm.Block, error) {
	switch op := instr.Operation.(type) {
	case *ir.CallFunction:
		return g.writeCall(cb, b, out, instr, op.Name, op.Arguments)

	case *ir.CallExternalFunction:
		return g.writeCall(cb, b, out, instr, op.Name, op.Arguments)

	case *ir.Literal:
		return b, g.writeLiteral(cb, b, instr, op)

	case *ir.ResolveContextResource:
		variable, ok := cb.Context.GetSpecialVariable(op.Symbol.Unresolved)
		if !ok {
			return b, fmt.Errorf("special variable %s not found", op.Symbol.Unresolved)
		}
		blocks, err := variable.Generate(cb.Context, b)
		if err != nil {
			return b, err
		}
		*out = append(*out, blocks...)
		return b, nil

	case *ir.ResolveSymbol:
		source, err := op.Symbol.QualifiedName()
		if err != nil {
			return b, err
		}
		dest, err := instr.SSAName.QualifiedName()
		if err != nil {
			return b, err
		}
		// A zero cost alias; no opcodes.
		if err := b.RegisterAlias(source, dest); err != nil {
			return b, fmt.Errorf("failed registering alias: %w", err)
		}
		return b, nil

	case *ir.StateStore:
		return b, g.writeStateStore(b, op)

	case *ir.StateLoad:
		return b, g.writeStateLoad(b, instr, op)

	case *ir.Return:
		// The return address is the last surviving slot; jumping to it
		// returns control to the caller continuation block.
		for b.Scope.StackCounter > 0 {
			b.SetNextCallerPosition()
			b.Pop()
		}
		b.SetNextCallerPosition()
		b.Jump()
		return b, nil

	case *ir.Revert:
		b.SetNextCallerPosition()
		b.Push([]byte{0})
		b.Push([]byte{0})
		b.RevertOp()
		return b, nil

	case *ir.CallStaticFunction:
		return b, g.writeStaticCall(cb, b, op)

	case *ir.IsEqual:
		for _, operand := range []*ir.Identifier{op.Left, op.Right} {
			name, err := operand.QualifiedName()
			if err != nil {
				return b, err
			}
			b.SetNextCallerPosition()
			if err := b.DuplicateStackName(name); err != nil {
				return b, fmt.Errorf("%v in %s", err, b.Name)
			}
		}
		b.Eq()
		return b, nil

	case *ir.Jump:
		return b, g.writeJump(cb, b, block, op)

	case *ir.ConditionalJump:
		return b, g.writeConditionalJump(cb, b, block, op)

	case *ir.TerminatingRef, *ir.Noop:
		// Block terminator sentinels consumed by structural logic.
		return b, nil
	}

	return b, fmt.Errorf("unhandled operation %T", instr.Operation)
}

// writeCall dispatches a function call: inline generics expand in place,
// declared externals go through the head-tail call protocol, everything
// else is an internal jump with a return continuation.
func (g *BytecodeGenerator) writeCall(
	cb *evm.CodeBuilder,
	b *evm.Block,
	out *[]*evm.Block,
	instr *ir.Instruction,
	name *ir.Identifier,
	arguments []*ir.Identifier,
) (*evm.Block, error) {
	qualifiedName, err := name.QualifiedName()
	if err != nil {
		return b, err
	}

	// We have three types of calls: precompiles and external functions,
	// inline assembler generics, and internal calls. The continuation of
	// an internal call resumes with the caller frame exactly as it is now.
	continuationScope := b.Scope.Clone()

	argNames := make([]string, 0, len(arguments))
	argTypeNames := make([]string, 0, len(arguments))
	for _, arg := range arguments {
		resolved, err := arg.QualifiedName()
		if err != nil {
			return b, err
		}
		if arg.TypeReference == "" {
			return b, fmt.Errorf("unable to resolve type for %s", arg.Unresolved)
		}
		argNames = append(argNames, resolved)
		argTypeNames = append(argTypeNames, arg.TypeReference)
	}

	copyArguments := func() error {
		for _, argName := range argNames {
			b.SetNextCallerPosition()
			if err := b.DuplicateStackName(argName); err != nil {
				return fmt.Errorf("%v in %s", err, b.Name)
			}
		}
		return nil
	}

	if generator, ok := cb.Context.GetInlineGeneric(ir.UnmangledName(name.Unresolved)); ok {
		argTypes, err := cb.Context.TypesOf(argTypeNames)
		if err != nil {
			return b, err
		}
		if err := copyArguments(); err != nil {
			return b, err
		}

		helpers, err := generator(cb.Context, b, argTypes)
		if err != nil {
			return b, fmt.Errorf("error in external call: %w", err)
		}
		*out = append(*out, helpers...)
		return b, nil
	}

	if signature, ok := cb.Context.GetFunction(qualifiedName); ok {
		argTypes, err := cb.Context.TypesOf(argTypeNames)
		if err != nil {
			return b, err
		}
		if err := copyArguments(); err != nil {
			return b, err
		}

		b.SetNextCallerPosition()
		return b, b.Call(signature, argTypes)
	}

	// Internal function call: the continuation inherits the caller frame,
	// the callee consumes the argument copies and jumps back through the
	// pushed return address.
	continuation := cb.NewContinuationBlock(cb.NewLabel("exit_block"), argNames, continuationScope)

	b.SetNextCallerPosition()
	b.PushLabel(continuation.Name)

	for _, argName := range argNames {
		b.SetNextCallerPosition()
		if err := b.DuplicateStackName(argName); err != nil {
			return b, err
		}
	}

	// The jump target is the callee entry: the resolved name without the
	// overload suffix. Function labels are global, no scope is added.
	b.SetNextCallerPosition()
	b.JumpTo(ir.UnmangledName(qualifiedName))

	*out = append(*out, b)
	return continuation, nil
}

func (g *BytecodeGenerator) writeLiteral(cb *evm.CodeBuilder, b *evm.Block, instr *ir.Instruction, op *ir.Literal) error {
	typename, err := op.TypeName.QualifiedName()
	if err != nil {
		return err
	}
	if instr.SSAName == nil {
		return fmt.Errorf("literals with no SSA name are not supported")
	}
	ssaName, err := instr.SSAName.QualifiedName()
	if err != nil {
		return err
	}

	literalType, err := cb.Context.TypeOf(typename)
	if err != nil {
		return fmt.Errorf("unhandled literal type %q", typename)
	}

	if literalType.IsDynamic() {
		b.SetNextCallerPosition()
		b.AllocateObject([]byte(op.Data))
		return b.RegisterStackName(ssaName)
	}

	value, ok := new(big.Int).SetString(op.Data, 0)
	if !ok {
		return fmt.Errorf("invalid %s literal %q", typename, op.Data)
	}

	bytes := value.Bytes()
	if len(bytes) == 0 {
		bytes = []byte{0}
	}

	b.SetNextCallerPosition()
	b.Push(bytes)
	return b.RegisterStackName(ssaName)
}

func (g *BytecodeGenerator) writeStateStore(b *evm.Block, op *ir.StateStore) error {
	state, ok := g.representation.SymbolTable.StateLayout[op.Address.Name.Unresolved]
	if !ok {
		return fmt.Errorf(
			"unable to find state %s (storing %s)", op.Address.Name.Unresolved, op.Value.Unresolved)
	}

	valueName, err := op.Value.QualifiedName()
	if err != nil {
		return err
	}

	b.SetNextCallerPosition()
	if err := b.DuplicateStackName(valueName); err != nil {
		return fmt.Errorf("unable to resolve value to be stored: %w", err)
	}

	address, err := evm.WordBytes(state.AddressOffset)
	if err != nil {
		return err
	}

	b.SetNextCallerPosition()
	b.Push(address)
	b.SStore()
	return nil
}

func (g *BytecodeGenerator) writeStateLoad(b *evm.Block, instr *ir.Instruction, op *ir.StateLoad) error {
	if instr.SSAName == nil {
		return fmt.Errorf("load does not assign a value")
	}

	state, ok := g.representation.SymbolTable.StateLayout[op.Address.Name.Unresolved]
	if !ok {
		return fmt.Errorf(
			"unable to find state %s (loading to %s)", op.Address.Name.Unresolved, instr.SSAName.Unresolved)
	}

	valueName, err := instr.SSAName.QualifiedName()
	if err != nil {
		return err
	}

	address, err := evm.WordBytes(state.AddressOffset)
	if err != nil {
		return err
	}

	b.SetNextCallerPosition()
	b.Push(address)
	b.SetNextCallerPosition()
	b.SLoad()
	return b.RegisterStackName(valueName)
}

func (g *BytecodeGenerator) writeStaticCall(cb *evm.CodeBuilder, b *evm.Block, op *ir.CallStaticFunction) error {
	if len(op.Arguments) > 0 {
		return fmt.Errorf("constructors with arguments are not supported")
	}

	name, err := op.Name.QualifiedName()
	if err != nil {
		return err
	}

	if constructor, ok := cb.Context.GetDefaultConstructor(name); ok {
		constructor(b)
		return nil
	}

	// Falling back to plain enum tag naming with no associated data for
	// custom types: the tag is the first 4 bytes of the keccak-256 of the
	// qualified constructor name.
	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(name))

	b.SetNextCallerPosition()
	b.Push(hash.Sum(nil)[:4])
	return nil
}

func (g *BytecodeGenerator) writeJump(cb *evm.CodeBuilder, b *evm.Block, block *ir.FunctionBlock, op *ir.Jump) error {
	label, err := op.Target.QualifiedName()
	if err != nil {
		return err
	}

	popCount := b.Scope.StackCounter
	jumpArgs := block.JumpRequiredArguments[label]

	// Preserving the args to the next block.
	popCount -= len(jumpArgs)

	// Moving arguments. The order is reversed: positions are relative
	// stack depths, so the first argument becomes the deepest slot.
	for i := len(jumpArgs) - 1; i >= 0; i-- {
		arg := jumpArgs[i]
		pos := popCount + (len(jumpArgs) - 1 - i)

		b.SetNextInstructionComment(fmt.Sprintf("Moving argument %d %q behind %d", pos, arg, popCount))
		b.SetNextCallerPosition()
		if err := b.MoveStackName(arg, pos); err != nil {
			return err
		}
	}

	for ; popCount > 0; popCount-- {
		b.SetNextCallerPosition()
		b.Pop()
	}

	b.SetNextCallerPosition()
	b.JumpTo(cb.ScopedLabel(label))
	return nil
}

func (g *BytecodeGenerator) writeConditionalJump(cb *evm.CodeBuilder, b *evm.Block, block *ir.FunctionBlock, op *ir.ConditionalJump) error {
	expression, err := op.Expression.QualifiedName()
	if err != nil {
		return err
	}
	successLabel, err := op.OnSuccess.QualifiedName()
	if err != nil {
		return err
	}
	failureLabel, err := op.OnFailure.QualifiedName()
	if err != nil {
		return err
	}

	b.SetNextCallerPosition()
	if err := b.DuplicateStackName(expression); err != nil {
		return err
	}

	popCount := b.Scope.StackCounter

	successArgs := block.JumpRequiredArguments[successLabel]
	failureArgs := block.JumpRequiredArguments[failureLabel]
	if !equalNames(successArgs, failureArgs) {
		return fmt.Errorf(
			"block termination must require the same live arguments on both edges: %v vs %v",
			successArgs, failureArgs)
	}

	// Preserving the args to the next block and the condition.
	popCount -= len(successArgs)
	if popCount < 1 {
		return fmt.Errorf("internal error: conditional jump with no room for the condition")
	}

	for i := len(successArgs) - 1; i >= 0; i-- {
		arg := successArgs[i]
		pos := popCount + (len(successArgs) - 1 - i)

		b.SetNextInstructionComment(fmt.Sprintf("Moving argument %q to %d", arg, pos))
		b.SetNextCallerPosition()
		if err := b.MoveStackName(arg, pos); err != nil {
			return err
		}
	}

	// Making room for the condition.
	popCount--

	if popCount > 0 {
		b.SetNextInstructionComment(fmt.Sprintf(
			"Preserving jump condition and preparing stack deletion %d", popCount))
		b.SetNextCallerPosition()
		if err := b.Swap(popCount); err != nil {
			return err
		}
	}

	for ; popCount > 0; popCount-- {
		b.SetNextCallerPosition()
		b.Pop()
	}

	b.SetNextCallerPosition()
	b.JumpIfTo(cb.ScopedLabel(successLabel))

	b.SetNextCallerPosition()
	b.JumpTo(cb.ScopedLabel(failureLabel))
	return nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
