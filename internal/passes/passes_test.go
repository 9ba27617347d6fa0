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

package passes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zilliqa/bluebell/internal/ast"
	"github.com/zilliqa/bluebell/internal/ir"
	"github.com/zilliqa/bluebell/internal/passes"
	"github.com/zilliqa/bluebell/internal/testutil"
)

// newSymbolTable seeds the declarations tests rely on, mirroring what the
// driver derives from the compiler context.
func newSymbolTable() *ir.SymbolTable {
	symbols := ir.NewSymbolTable()

	_ = symbols.DeclareType(ir.VoidType)
	for _, name := range []string{"Bool", "Uint64", "Uint256", "String", "ByStr20"} {
		_ = symbols.DeclareType(name)
	}

	_ = symbols.DeclareFunctionType("builtin__print::<Uint64>", []string{"Uint64"}, "Uint256")
	_ = symbols.DeclareFunctionType("builtin__eq::<Uint64,Uint64>", []string{"Uint64", "Uint64"}, "Bool")
	_ = symbols.DeclareFunctionType("__intrinsic_accept_transfer::<>", nil, "Uint256")
	_ = symbols.DeclareSpecialVariable("_sender", "ByStr20")

	symbols.Aliases["True"] = "Bool::True"
	symbols.Aliases["False"] = "Bool::False"
	_ = symbols.DeclareConstructor("Bool::True", nil, "Bool")
	_ = symbols.DeclareConstructor("Bool::False", nil, "Bool")

	return symbols
}

func lower(t *testing.T, program *ast.Program) *ir.IR {
	t.Helper()

	representation, err := ir.NewEmitter(newSymbolTable()).Emit(program)
	require.NoError(t, err)
	return representation
}

func annotate(t *testing.T, representation *ir.IR) {
	t.Helper()

	require.NoError(t, ir.RunPass(passes.NewResolveDeclarations(), representation))
	require.NoError(t, ir.RunPass(passes.NewAnnotateBaseTypes(), representation))
}

func matchProgram() *ast.Program {
	return testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("is_owner", testutil.Constructor("False")),
			testutil.Match("is_owner",
				testutil.ConstructorClause("True", testutil.Print("a", "msg")),
				testutil.ConstructorClause("False", testutil.Print("b", "msg"), testutil.Print("c", "msg")),
			),
		),
	))
}

func forEachOperand(instr *ir.Instruction, visit func(*ir.Identifier)) {
	switch op := instr.Operation.(type) {
	case *ir.ResolveSymbol:
		visit(op.Symbol)
	case *ir.ResolveContextResource:
		visit(op.Symbol)
	case *ir.Literal:
		visit(op.TypeName)
	case *ir.IsEqual:
		visit(op.Left)
		visit(op.Right)
	case *ir.CallFunction:
		for _, arg := range op.Arguments {
			visit(arg)
		}
	case *ir.CallExternalFunction:
		for _, arg := range op.Arguments {
			visit(arg)
		}
	case *ir.CallStaticFunction:
		for _, arg := range op.Arguments {
			visit(arg)
		}
	case *ir.StateLoad:
		visit(op.Address.Name)
	case *ir.StateStore:
		visit(op.Address.Name)
		visit(op.Value)
	case *ir.ConditionalJump:
		visit(op.Expression)
	}
}

func TestAnnotateResolvesEveryOperand(t *testing.T) {
	representation := lower(t, matchProgram())
	annotate(t, representation)

	for _, fn := range representation.FunctionDefinitions {
		for _, block := range fn.Body.Blocks {
			for _, instr := range block.Instructions {
				forEachOperand(instr, func(id *ir.Identifier) {
					if id.Kind == ir.KindBlockLabel {
						return
					}
					assert.NotEmpty(t, id.Resolved, "operand %q of %s is unresolved", id.Unresolved, instr)
					assert.NotEmpty(t, id.TypeReference, "operand %q of %s has no type", id.Unresolved, instr)
				})

				if instr.SSAName != nil {
					assert.NotEmpty(t, instr.SSAName.Resolved)
					assert.NotEmpty(t, instr.SSAName.TypeReference)
				}
			}
		}
	}
}

func TestAnnotateLiftsConstructorPatterns(t *testing.T) {
	representation := lower(t, matchProgram())
	annotate(t, representation)

	// Every IsEqual right operand was an unknown constructor name; after
	// the pass it is an intermediate fed by an injected static call.
	lifted := 0
	for _, block := range representation.FunctionDefinitions[0].Body.Blocks {
		for i, instr := range block.Instructions {
			eq, ok := instr.Operation.(*ir.IsEqual)
			if !ok {
				continue
			}
			lifted++

			assert.Equal(t, ir.KindIntermediate, eq.Right.Kind)

			require.Greater(t, i, 0)
			call, ok := block.Instructions[i-1].Operation.(*ir.CallStaticFunction)
			require.True(t, ok, "the constructor call is injected right before its use")
			assert.Equal(t, ir.KindStaticFunctionName, call.Name.Kind)
			assert.Contains(t, call.Name.Resolved, "Bool::")
		}
	}
	assert.Equal(t, 2, lifted)
}

func TestAnnotateMangledCallNames(t *testing.T) {
	representation := lower(t, testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Print("x", "msg"),
		),
	)))
	annotate(t, representation)

	var call *ir.CallExternalFunction
	for _, instr := range representation.FunctionDefinitions[0].Body.Blocks[0].Instructions {
		if op, ok := instr.Operation.(*ir.CallExternalFunction); ok {
			call = op
		}
	}

	require.NotNil(t, call)
	assert.Equal(t, "builtin__print::<Uint64>", call.Name.Resolved)
}

func TestAnnotateStateAccessTypes(t *testing.T) {
	representation := lower(t, testutil.Program(nil, testutil.Contract("HelloWorld",
		[]*ast.Field{testutil.Field("welcome_msg", "Uint64", testutil.IntLit("Uint64", "0"))},
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("x", testutil.IntLit("Uint64", "1")),
			testutil.Store("welcome_msg", testutil.Ident("x")),
			testutil.Load("y", "welcome_msg"),
		),
	)))
	annotate(t, representation)

	for _, instr := range representation.FunctionDefinitions[0].Body.Blocks[0].Instructions {
		switch op := instr.Operation.(type) {
		case *ir.StateLoad:
			assert.Equal(t, "HelloWorld::welcome_msg", op.Address.Name.Resolved)
			assert.Equal(t, "Uint64", op.Address.Name.TypeReference)
			assert.Equal(t, "Uint64", instr.SSAName.TypeReference)
		case *ir.StateStore:
			assert.Equal(t, "Uint64", op.Value.TypeReference)
		}
	}
}

func TestAnnotateIsIdempotent(t *testing.T) {
	first := lower(t, matchProgram())
	annotate(t, first)

	printed := printFunctions(first)

	require.NoError(t, ir.RunPass(passes.NewAnnotateBaseTypes(), first))
	assert.Equal(t, printed, printFunctions(first))
}

func printFunctions(representation *ir.IR) string {
	out := ""
	for _, fn := range representation.FunctionDefinitions {
		out += fn.String()
	}
	return out
}

func TestAnnotateUnresolvedSymbolFails(t *testing.T) {
	representation := lower(t, testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", nil,
			testutil.Print("x", "ghost"),
		),
	)))

	require.NoError(t, ir.RunPass(passes.NewResolveDeclarations(), representation))
	err := ir.RunPass(passes.NewAnnotateBaseTypes(), representation)
	require.Error(t, err)
}

func TestBlockArgumentsConditionalEdgesAgree(t *testing.T) {
	representation := lower(t, matchProgram())
	annotate(t, representation)
	require.NoError(t, ir.RunPass(passes.NewBlockArguments(), representation))

	fn := representation.FunctionDefinitions[0]
	checked := 0
	for _, block := range fn.Body.Blocks {
		for _, instr := range block.Instructions {
			jump, ok := instr.Operation.(*ir.ConditionalJump)
			if !ok {
				continue
			}
			checked++

			success := block.JumpRequiredArguments[jump.OnSuccess.String()]
			failure := block.JumpRequiredArguments[jump.OnFailure.String()]
			assert.Equal(t, success, failure, "both edges of a conditional jump carry the same arguments")
		}
	}
	assert.Equal(t, 2, checked)
}

func TestBlockArgumentsEntryUsesParameterOrder(t *testing.T) {
	representation := lower(t, testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{
			testutil.TypedIdent("zeta", "Uint64"),
			testutil.TypedIdent("alpha", "Uint64"),
		}),
	)))
	annotate(t, representation)
	require.NoError(t, ir.RunPass(passes.NewBlockArguments(), representation))

	entry := representation.FunctionDefinitions[0].Body.Blocks[0]
	assert.Equal(t, []string{
		"HelloWorld::setHello::zeta",
		"HelloWorld::setHello::alpha",
	}, entry.Arguments, "entry arguments keep declaration order, not lexicographic order")
}

func TestBlockArgumentsTargetMatchesDeclaredArguments(t *testing.T) {
	representation := lower(t, matchProgram())
	annotate(t, representation)
	require.NoError(t, ir.RunPass(passes.NewBlockArguments(), representation))

	fn := representation.FunctionDefinitions[0]
	byLabel := map[string]*ir.FunctionBlock{}
	for _, block := range fn.Body.Blocks {
		byLabel[block.Label()] = block
	}

	for _, block := range fn.Body.Blocks {
		for label, args := range block.JumpRequiredArguments {
			target, ok := byLabel[label]
			require.True(t, ok, "jump target %s exists", label)
			assert.Equal(t, target.Arguments, args,
				"jump arguments match the declared arguments of %s", label)
		}
	}
}
