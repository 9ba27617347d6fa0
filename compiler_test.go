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

package bluebell_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bluebell "github.com/zilliqa/bluebell"
	"github.com/zilliqa/bluebell/internal/ast"
	"github.com/zilliqa/bluebell/internal/evm"
	"github.com/zilliqa/bluebell/internal/evm/evmtest"
	"github.com/zilliqa/bluebell/internal/ir"
	"github.com/zilliqa/bluebell/internal/testutil"
)

// compileAndHost compiles program with the standard modules and returns
// the executable together with a host wired to its precompiles.
func compileAndHost(t *testing.T, program *ast.Program, output *bytes.Buffer) (*evm.Executable, *evmtest.Host, *bluebell.Compiler) {
	t.Helper()

	compiler := bluebell.NewCompiler(
		bluebell.DefaultTypes{},
		bluebell.DefaultBuiltins{},
		bluebell.DebugBuiltins{Output: output},
	)

	executable, err := compiler.Compile(program)
	require.NoError(t, err)

	return executable, evmtest.NewHost(compiler.Context()), compiler
}

func precompileAddress(t *testing.T, compiler *bluebell.Compiler, name string) uint32 {
	t.Helper()

	signature, ok := compiler.Context().GetFunction(name)
	require.True(t, ok)
	require.NotNil(t, signature.ExternalAddress)
	return *signature.ExternalAddress
}

func callsTo(host *evmtest.Host, address uint32) []evmtest.PrecompileCall {
	var calls []evmtest.PrecompileCall
	for _, call := range host.Calls {
		if call.Address == address {
			calls = append(calls, call)
		}
	}
	return calls
}

func TestScenarioLiteralPrint(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("x", testutil.IntLit("Uint64", "1")),
			testutil.Print("x2", "x"),
		),
	))

	// The IR carries one literal and one external call to the print
	// builtin.
	compiler := bluebell.NewCompiler(bluebell.DefaultTypes{}, bluebell.DefaultBuiltins{}, bluebell.DebugBuiltins{})
	representation, err := compiler.EmitIR(program)
	require.NoError(t, err)

	var literals, prints int
	for _, block := range representation.FunctionDefinitions[0].Body.Blocks {
		for _, instr := range block.Instructions {
			switch op := instr.Operation.(type) {
			case *ir.Literal:
				literals++
				assert.Equal(t, "1", op.Data)
				assert.Equal(t, "Uint64", op.TypeName.Unresolved)
			case *ir.CallExternalFunction:
				prints++
				assert.Equal(t, "builtin__print", op.Name.Unresolved)
				require.Len(t, op.Arguments, 1)
				assert.Equal(t, "x", op.Arguments[0].Unresolved)
			}
		}
	}
	assert.Equal(t, 1, literals)
	assert.Equal(t, 1, prints)

	// The executed bytecode hands the value to the print precompile.
	var output bytes.Buffer
	executable, host, hostCompiler := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::setHello", big.NewInt(7)))

	calls := callsTo(host, precompileAddress(t, hostCompiler, "print::<Uint64>"))
	require.Len(t, calls, 1)

	input := calls[0].Input
	require.GreaterOrEqual(t, len(input), 8)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 1}, input[len(input)-8:])
	assert.Equal(t, "1\n", output.String())
}

func TestScenarioStateStoreLoad(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld",
		[]*ast.Field{testutil.Field("welcome_msg", "Uint64", testutil.IntLit("Uint64", "0"))},
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("x", testutil.IntLit("Uint64", "1")),
			testutil.Store("welcome_msg", testutil.Ident("x")),
			testutil.Load("y", "welcome_msg"),
		),
	))

	var output bytes.Buffer
	executable, host, _ := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::setHello", big.NewInt(7)))

	assert.Equal(t, int64(1), host.StorageAt(4919).Int64(),
		"the first field owns persistent slot 4919")
}

func TestScenarioConstructorBranch(t *testing.T) {
	program := testutil.Program(
		testutil.Library("HelloWorld", testutil.TypeDef("Bool", "True", "False")),
		testutil.Contract("HelloWorld", nil,
			testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
				testutil.Bind("is_owner", testutil.Constructor("False")),
				testutil.Match("is_owner",
					testutil.ConstructorClause("True", testutil.Print("a", "msg")),
					testutil.ConstructorClause("False",
						testutil.Print("b", "msg"),
						testutil.Print("c", "msg"),
					),
				),
			),
		),
	)

	var output bytes.Buffer
	executable, host, compiler := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::setHello", big.NewInt(42)))

	// The false arm runs and prints twice.
	calls := callsTo(host, precompileAddress(t, compiler, "print::<Uint64>"))
	assert.Len(t, calls, 2)
	assert.Equal(t, "42\n42\n", output.String())
}

func TestScenarioBuiltinEqualityBranch(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			testutil.Bind("reference", testutil.IntLit("Uint64", "11")),
			testutil.Bind("eq_msg", testutil.StringLit("eq")),
			testutil.Bind("ne_msg", testutil.StringLit("ne")),
			testutil.Bind("is_owner", testutil.Builtin("eq", "msg", "reference")),
			testutil.Match("is_owner",
				testutil.ConstructorClause("True", testutil.Print("a", "eq_msg")),
				testutil.ConstructorClause("False", testutil.Print("b", "ne_msg")),
			),
		),
	))

	var output bytes.Buffer
	executable, host, _ := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::setHello", big.NewInt(11)))
	assert.Equal(t, "eq\n", output.String())

	output.Reset()
	host.Calls = nil
	require.NoError(t, host.Execute(executable, "HelloWorld::setHello", big.NewInt(12)))
	assert.Equal(t, "ne\n", output.String())
}

func TestScenarioSpecialVariable(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", nil,
			testutil.Bind("x", testutil.Special("_sender")),
			testutil.Print("x2", "x"),
		),
	))

	// The IR resolves _sender through the context resource operation.
	compiler := bluebell.NewCompiler(bluebell.DefaultTypes{}, bluebell.DefaultBuiltins{}, bluebell.DebugBuiltins{})
	representation, err := compiler.EmitIR(program)
	require.NoError(t, err)

	found := false
	for _, instr := range representation.FunctionDefinitions[0].Body.Blocks[0].Instructions {
		if op, ok := instr.Operation.(*ir.ResolveContextResource); ok {
			found = true
			assert.Equal(t, "_sender", op.Symbol.Unresolved)
		}
	}
	assert.True(t, found)

	var output bytes.Buffer
	executable, host, hostCompiler := compileAndHost(t, program, &output)

	copy(host.Caller[:], []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x01, 0x02, 0x03, 0x04,
		0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e})

	require.NoError(t, host.Execute(executable, "HelloWorld::setHello"))

	calls := callsTo(host, precompileAddress(t, hostCompiler, "print::<ByStr20>"))
	require.Len(t, calls, 1)

	input := calls[0].Input
	require.Len(t, input, 32)
	assert.Equal(t, make([]byte, 12), input[:12], "the caller address is right aligned")
	assert.Equal(t, host.Caller[:], input[12:])
}

func TestScenarioMatchOnParameter(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("toggle", []*ast.TypedIdent{testutil.TypedIdent("b", "Bool")},
			testutil.Bind("yes", testutil.StringLit("yes")),
			testutil.Bind("no", testutil.StringLit("no")),
			testutil.Match("b",
				testutil.ConstructorClause("True", testutil.Print("p1", "yes")),
				testutil.ConstructorClause("False", testutil.Print("p2", "no")),
			),
		),
	))

	// Structure: two equality checks and three unconditional jumps (one
	// per arm exit plus the dispatch fallthrough).
	compiler := bluebell.NewCompiler(bluebell.DefaultTypes{}, bluebell.DefaultBuiltins{}, bluebell.DebugBuiltins{})
	representation, err := compiler.EmitIR(program)
	require.NoError(t, err)

	var equals, jumps int
	for _, block := range representation.FunctionDefinitions[0].Body.Blocks {
		for _, instr := range block.Instructions {
			switch instr.Operation.(type) {
			case *ir.IsEqual:
				equals++
			case *ir.Jump:
				jumps++
			}
		}
	}
	assert.Equal(t, 2, equals)
	assert.Equal(t, 3, jumps)

	// Both branches execute against the default constructor tags.
	var output bytes.Buffer
	executable, host, _ := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::toggle", big.NewInt(1)))
	assert.Equal(t, "yes\n", output.String())

	output.Reset()
	require.NoError(t, host.Execute(executable, "HelloWorld::toggle", big.NewInt(0)))
	assert.Equal(t, "no\n", output.String())
}

func TestProcedureCall(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld",
		[]*ast.Field{testutil.Field("welcome_msg", "Uint64", testutil.IntLit("Uint64", "0"))},
		testutil.Procedure("remember", []*ast.TypedIdent{testutil.TypedIdent("value", "Uint64")},
			testutil.Store("welcome_msg", testutil.Ident("value")),
		),
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")},
			&ast.CallProcStmt{
				Position: testutil.Span(),
				Name:     testutil.Ident("remember"),
				Args:     []ast.Expr{testutil.Ident("msg")},
			},
		),
	))

	var output bytes.Buffer
	executable, host, _ := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::setHello", big.NewInt(23)))
	assert.Equal(t, int64(23), host.StorageAt(4919).Int64(),
		"the procedure stores through the internal call protocol")
}

func TestAcceptCompilesToIntrinsicCall(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("deposit", nil,
			&ast.AcceptStmt{Position: testutil.Span()},
		),
	))

	var output bytes.Buffer
	executable, host, compiler := compileAndHost(t, program, &output)

	require.NoError(t, host.Execute(executable, "HelloWorld::deposit"))

	calls := callsTo(host, precompileAddress(t, compiler, "__intrinsic_accept_transfer::<>"))
	assert.Len(t, calls, 1)
}

func TestCompileReportsUnresolvedSymbols(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("broken", nil,
			testutil.Print("x", "ghost"),
		),
	))

	compiler := bluebell.NewCompiler(bluebell.DefaultTypes{}, bluebell.DefaultBuiltins{}, bluebell.DebugBuiltins{})
	_, err := compiler.Compile(program)
	require.Error(t, err)
}

func TestOutputReport(t *testing.T) {
	program := testutil.Program(nil, testutil.Contract("HelloWorld", nil,
		testutil.Transition("setHello", []*ast.TypedIdent{testutil.TypedIdent("msg", "Uint64")}),
	))

	var buffer bytes.Buffer
	executable, _, _ := compileAndHost(t, program, &buffer)

	output := bluebell.NewOutput([]bluebell.CompiledContract{{Name: "hello", Executable: executable}})
	reports := output.BuildReport()

	require.Len(t, reports, 1)
	assert.Equal(t, "hello", reports[0].Name)
	assert.Equal(t, executable.Hex(), reports[0].ByteCode)
	require.Len(t, reports[0].Functions, 1)
	assert.Equal(t, "HelloWorld::setHello", reports[0].Functions[0].Name)
}
