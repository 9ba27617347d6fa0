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

package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilliqa/bluebell/internal/ast"
	"github.com/zilliqa/bluebell/internal/ir"
	"github.com/zilliqa/bluebell/internal/testutil"
)

func emit(t *testing.T, program *ast.Program) *ir.IR {
	t.Helper()

	representation, err := ir.NewEmitter(ir.NewSymbolTable()).Emit(program)
	require.NoError(t, err)
	return representation
}

func instructions(fn *ir.ConcreteFunction) []*ir.Instruction {
	var all []*ir.Instruction
	for _, block := range fn.Body.Blocks {
		all = append(all, block.Instructions...)
	}
	return all
}

func TestEmitLiteralAndBuiltinCall(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("x", testutil.IntLit("Uint64", "1")),
			testutil.Print("x2", "x"),
		),
	))

	representation := emit(t, program)
	require.Len(t, representation.FunctionDefinitions, 1)

	fn := representation.FunctionDefinitions[0]
	assert.Equal(t, "setHello", fn.Name.Unresolved)
	assert.Equal(t, ir.FunctionKindTransition, fn.Kind)
	require.Len(t, fn.Arguments, 1)
	assert.Equal(t, "msg", fn.Arguments[0].Name.Unresolved)

	var literal *ir.Literal
	var call *ir.CallExternalFunction
	for _, instr := range instructions(fn) {
		switch op := instr.Operation.(type) {
		case *ir.Literal:
			literal = op
		case *ir.CallExternalFunction:
			call = op
		}
	}

	require.NotNil(t, literal)
	assert.Equal(t, "1", literal.Data)
	assert.Equal(t, "Uint64", literal.TypeName.Unresolved)

	require.NotNil(t, call)
	assert.Equal(t, "builtin__print", call.Name.Unresolved)
	assert.Equal(t, ir.KindTemplateFunctionName, call.Name.Kind)
	require.Len(t, call.Arguments, 1)
	assert.Equal(t, "x", call.Arguments[0].Unresolved)
}

func TestEmitStateStoreAndLoad(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld",
		[]*ast.Field{testutil.Field("welcome_msg", "Uint64", testutil.IntLit("Uint64", "0"))},
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("x", testutil.IntLit("Uint64", "1")),
			testutil.Store("welcome_msg", testutil.Ident("x")),
			testutil.Load("y", "welcome_msg"),
		),
	))

	representation := emit(t, program)

	require.Len(t, representation.FieldDefinitions, 1)
	field := representation.FieldDefinitions[0]
	assert.Equal(t, "welcome_msg", field.Variable.Name.Unresolved)
	assert.Equal(t, ir.KindState, field.Variable.Name.Kind)

	var store *ir.StateStore
	var load *ir.StateLoad
	for _, instr := range instructions(representation.FunctionDefinitions[0]) {
		switch op := instr.Operation.(type) {
		case *ir.StateStore:
			store = op
		case *ir.StateLoad:
			load = op
		}
	}

	require.NotNil(t, store)
	assert.Equal(t, "welcome_msg", store.Address.Name.Unresolved)
	require.NotNil(t, load)
	assert.Equal(t, "welcome_msg", load.Address.Name.Unresolved)
}

func TestEmitEmptyBodyGetsSynthesizedReturn(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		&ast.Transition{Position: testutil.Span(), Name: testutil.Ident("noop")},
	))

	representation := emit(t, program)
	fn := representation.FunctionDefinitions[0]

	require.Len(t, fn.Body.Blocks, 1)
	block := fn.Body.Blocks[0]
	assert.True(t, block.Terminated)
	require.Len(t, block.Instructions, 1)

	ret, ok := block.Instructions[0].Operation.(*ir.Return)
	require.True(t, ok)
	assert.Nil(t, ret.Value)
}

func TestEmitEveryBlockEndsWithOneTerminator(t *testing.T) {
	program := testutil.Program(
		testutil.Library("HelloWorld", testutil.TypeDef("Bool", "True", "False")),
		testutil.Contract("HelloWorld", nil,
			testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
				testutil.Bind("is_owner", testutil.Constructor("False")),
				testutil.Match("is_owner",
					testutil.ConstructorClause("True", testutil.Print("a", "msg")),
					testutil.ConstructorClause("False", testutil.Print("b", "msg"), testutil.Print("c", "msg")),
				),
			),
		),
	)

	representation := emit(t, program)
	fn := representation.FunctionDefinitions[0]

	for _, block := range fn.Body.Blocks {
		last := block.Last()
		require.NotNil(t, last, "block %s is empty", block.Label())
		assert.True(t, last.IsTerminator(), "block %s ends with %T", block.Label(), last.Operation)

		terminators := 0
		for _, instr := range block.Instructions {
			if instr.IsTerminator() {
				terminators++
			}
		}
		assert.Equal(t, 1, terminators, "block %s has %d terminators", block.Label(), terminators)
	}
}

func TestEmitMatchBlockStructure(t *testing.T) {
	program := testutil.Program(
		testutil.Library("HelloWorld", testutil.TypeDef("Bool", "True", "False")),
		testutil.Contract("HelloWorld", nil,
			testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
				testutil.Bind("is_owner", testutil.Constructor("False")),
				testutil.Match("is_owner",
					testutil.ConstructorClause("True", testutil.Print("a", "msg")),
					testutil.ConstructorClause("False", testutil.Print("b", "msg"), testutil.Print("c", "msg")),
				),
			),
		),
	)

	representation := emit(t, program)
	fn := representation.FunctionDefinitions[0]

	// Entry, two condition blocks, two clause blocks, one exit.
	require.Len(t, fn.Body.Blocks, 6)

	conditionals := 0
	for _, block := range fn.Body.Blocks {
		if _, ok := block.Last().Operation.(*ir.ConditionalJump); ok {
			conditionals++
		}
	}
	assert.Equal(t, 2, conditionals)

	// The entry block is first; pattern order follows clause order.
	entry := fn.Body.Blocks[0]
	jump, ok := entry.Last().Operation.(*ir.Jump)
	require.True(t, ok)
	assert.Contains(t, jump.Target.Unresolved, "clause_0_condition")
}

func TestEmitMatchSingleWildcardIsStraightLine(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("x", testutil.IntLit("Uint64", "1")),
			testutil.Match("x",
				testutil.WildcardClause(testutil.Print("a", "msg")),
			),
		),
	))

	representation := emit(t, program)
	fn := representation.FunctionDefinitions[0]

	// Entry, wildcard clause block, exit; no conditional jumps anywhere.
	require.Len(t, fn.Body.Blocks, 3)
	for _, block := range fn.Body.Blocks {
		for _, instr := range block.Instructions {
			_, conditional := instr.Operation.(*ir.ConditionalJump)
			assert.False(t, conditional, "wildcard only matches compile without conditional jumps")
		}
	}
}

func TestEmitLibraryTypeDefinition(t *testing.T) {
	program := testutil.Program(
		testutil.Library("HelloWorld", testutil.TypeDef("Bool", "True", "False")),
		testutil.Contract("HelloWorld", nil),
	)

	representation := emit(t, program)
	require.Len(t, representation.TypeDefinitions, 1)

	variant, ok := representation.TypeDefinitions[0].(*ir.VariantType)
	require.True(t, ok)
	assert.Equal(t, "Bool", variant.Name.Unresolved)
	assert.True(t, variant.Name.IsDefinition)
	require.Len(t, variant.Layout.Fields, 2)
	assert.Equal(t, "True", variant.Layout.Fields[0].Name.Unresolved)
	assert.Equal(t, "False", variant.Layout.Fields[1].Name.Unresolved)
}

func TestEmitUnsupportedConstructs(t *testing.T) {
	tests := []struct {
		name    string
		program *ast.Program
	}{
		{
			name: "multi argument constructor",
			program: testutil.Program(nil, testutil.Contract("C", nil,
				testutil.Transition("t", nil,
					testutil.Bind("x", &ast.ConstructorCall{
						Position: testutil.Span(),
						Name:     testutil.Ident("Pair"),
						Args:     []ast.Expr{testutil.Ident("a")},
					}),
				),
			)),
		},
		{
			name: "send statement",
			program: testutil.Program(nil, testutil.Contract("C", nil,
				testutil.Transition("t", nil,
					&ast.SendStmt{Position: testutil.Span(), Messages: testutil.Ident("msgs")},
				),
			)),
		},
		{
			name: "library let binding",
			program: testutil.Program(
				testutil.Library("L", &ast.LetEntry{
					Position: testutil.Span(),
					Name:     testutil.Ident("one"),
					Expr:     testutil.IntLit("Uint64", "1"),
				}),
				testutil.Contract("C", nil),
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.NewEmitter(ir.NewSymbolTable()).Emit(tt.program)
			require.Error(t, err)
		})
	}
}

func TestEmitThrowTerminatesBlock(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("C", nil,
		testutil.Transition("t", nil,
			&ast.ThrowStmt{Position: testutil.Span()},
		),
	))

	representation := emit(t, program)
	block := representation.FunctionDefinitions[0].Body.Blocks[0]

	require.True(t, block.Terminated)
	_, ok := block.Last().Operation.(*ir.Revert)
	assert.True(t, ok)
}
