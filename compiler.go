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

// Package bluebell compiles smart contract programs into stack machine
// bytecode.
//
// The pipeline is strictly layered and one way:
//
//	[Abstract Syntax Tree]
//	       |
//	       | (ir.Emitter)
//	       v
//	[Intermediate Representation]
//	       |
//	       | (passes)
//	       v
//	[Annotated Intermediate Representation]
//	       |
//	       | (codegen.BytecodeGenerator)
//	       v
//	[Bytecode]
//
// A Compiler owns one compilation: its symbol table, its IR and its block
// builder. The host configures the compiler by attaching Modules to the
// external compiler context before compilation.
package bluebell

import (
	"strings"

	"github.com/zilliqa/bluebell/internal/ast"
	"github.com/zilliqa/bluebell/internal/codegen"
	"github.com/zilliqa/bluebell/internal/evm"
	"github.com/zilliqa/bluebell/internal/ir"
	"github.com/zilliqa/bluebell/internal/passes"
)

// Module attaches a set of runtime provided declarations, like types,
// precompiles or special variables, to a compiler context.
type Module interface {
	Attach(ctx *evm.CompilerContext)
}

// Compiler drives the compilation pipeline of a single source unit.
type Compiler struct {
	context *evm.CompilerContext
}

// NewCompiler create a compiler with the given modules attached. Most
// hosts want at least DefaultTypes and DefaultBuiltins.
func NewCompiler(modules ...Module) *Compiler {
	ctx := evm.NewCompilerContext()
	for _, module := range modules {
		module.Attach(ctx)
	}
	return &Compiler{context: ctx}
}

// Context returns the external compiler context.
func (c *Compiler) Context() *evm.CompilerContext {
	return c.context
}

// EmitIR lowers a program into a fresh IR.
func (c *Compiler) EmitIR(program *ast.Program) (*ir.IR, error) {
	emitter := ir.NewEmitter(c.newSymbolTable())
	return emitter.Emit(program)
}

// DefaultPasses returns the standard pass chain: declaration resolution,
// base type annotation, and block argument computation.
func DefaultPasses() []ir.Pass {
	return []ir.Pass{
		passes.NewResolveDeclarations(),
		passes.NewAnnotateBaseTypes(),
		passes.NewBlockArguments(),
	}
}

// RunPasses runs the given passes, or the default chain when none are
// given, over the IR in order.
func (c *Compiler) RunPasses(representation *ir.IR, irPasses ...ir.Pass) (*ir.IR, error) {
	if len(irPasses) == 0 {
		irPasses = DefaultPasses()
	}

	for _, pass := range irPasses {
		if err := ir.RunPass(pass, representation); err != nil {
			return nil, err
		}
	}

	return representation, nil
}

// BuildExecutable lowers an annotated IR into the final executable.
func (c *Compiler) BuildExecutable(representation *ir.IR) (*evm.Executable, error) {
	generator := codegen.NewBytecodeGenerator(c.context, representation)
	return generator.BuildExecutable()
}

// Compile runs the whole pipeline over program.
func (c *Compiler) Compile(program *ast.Program) (*evm.Executable, error) {
	representation, err := c.EmitIR(program)
	if err != nil {
		return nil, err
	}

	if _, err := c.RunPasses(representation); err != nil {
		return nil, err
	}

	return c.BuildExecutable(representation)
}

// newSymbolTable seeds a fresh symbol table from the compiler context:
// the declared type vocabulary, every raw function declaration, special
// variables, and an alias plus constructor entry per default constructor.
func (c *Compiler) newSymbolTable() *ir.SymbolTable {
	symbols := ir.NewSymbolTable()

	_ = symbols.DeclareType(ir.VoidType)
	for _, t := range c.context.Types() {
		_ = symbols.DeclareType(t.Name)
	}

	for _, fn := range c.context.RawFunctionDeclarations() {
		_ = symbols.DeclareFunctionType(fn.Name, fn.Arguments, fn.ReturnType)
	}

	for _, variable := range c.context.SpecialVariables() {
		_ = symbols.DeclareSpecialVariable(variable.Name, variable.TypeName)
	}

	for _, name := range c.context.DefaultConstructorNames() {
		idx := strings.LastIndex(name, ir.NamespaceSeparator)
		if idx < 0 {
			continue
		}
		typename, short := name[:idx], name[idx+len(ir.NamespaceSeparator):]

		symbols.Aliases[short] = name
		_ = symbols.DeclareConstructor(name, nil, typename)
	}

	return symbols
}
