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
	"sort"
)

// PrecompileAddressBase is the first external address handed out to
// declared precompiles; subsequent declarations get sequential addresses.
const PrecompileAddressBase uint32 = 1024

// PrecompileFn is a host side implementation of a declared function. It
// receives the packed call data and returns the raw output.
type PrecompileFn func(input []byte) ([]byte, error)

// AssemblyFn injects opcodes directly at each call site of a declared
// function.
type AssemblyFn func(b *Block)

// InlineGenericFn generates code for a builtin keyed by its unmangled
// name. It may emit helper blocks which the caller appends after the
// current one. The duplicated arguments are on the stack; the generator
// must consume them and leave exactly the call result on top.
type InlineGenericFn func(ctx *CompilerContext, b *Block, argTypes []Type) ([]*Block, error)

// SpecialVariableFn lowers a context provided name, like _sender, into the
// opcodes producing its value.
type SpecialVariableFn func(ctx *CompilerContext, b *Block) ([]*Block, error)

// ConstructorFn specializes the lowering of a nullary constructor.
type ConstructorFn func(b *Block)

// FunctionSignature is one host declared callable: its argument and return
// types plus either an external address backed by a precompile or an
// inline assembly expansion.
type FunctionSignature struct {
	Name            string
	Arguments       []string
	ReturnType      string
	ExternalAddress *uint32
	InlineAssembly  AssemblyFn
	Runtime         PrecompileFn
}

// AttachRuntime backs the function with a precompile and assigns it the
// next external address.
func (f *FunctionSignature) AttachRuntime(ctx *CompilerContext, runtime PrecompileFn) *FunctionSignature {
	address := ctx.nextPrecompileAddress
	ctx.nextPrecompileAddress++

	f.ExternalAddress = &address
	f.Runtime = runtime
	ctx.precompiles[address] = runtime

	return f
}

// AttachAssembly backs the function with an inline opcode expansion.
func (f *FunctionSignature) AttachAssembly(assembly AssemblyFn) *FunctionSignature {
	f.InlineAssembly = assembly
	return f
}

// SpecialVariable is a host provided name with its declared type.
type SpecialVariable struct {
	Name     string
	TypeName string
	Generate SpecialVariableFn
}

// CompilerContext is the external compiler context the host populates
// before compilation: the primitive type vocabulary, the declared
// functions, and the four runtime extension kinds (precompiles, inline
// generics, default constructors, special variables).
type CompilerContext struct {
	types                map[string]Type
	functionDeclarations map[string]*FunctionSignature
	inlineGenerics       map[string]InlineGenericFn
	defaultConstructors  map[string]ConstructorFn
	specialVariables     map[string]*SpecialVariable
	precompiles          map[uint32]PrecompileFn

	// rawDeclarations preserves declaration order for symbol table seeding.
	rawDeclarations []*FunctionSignature

	nextPrecompileAddress uint32
}

// NewCompilerContext create an empty context.
func NewCompilerContext() *CompilerContext {
	return &CompilerContext{
		types:                 make(map[string]Type),
		functionDeclarations:  make(map[string]*FunctionSignature),
		inlineGenerics:        make(map[string]InlineGenericFn),
		defaultConstructors:   make(map[string]ConstructorFn),
		specialVariables:      make(map[string]*SpecialVariable),
		precompiles:           make(map[uint32]PrecompileFn),
		nextPrecompileAddress: PrecompileAddressBase,
	}
}

// DeclareInteger adds a signed integer type of the given width.
func (c *CompilerContext) DeclareInteger(name string, bits int) {
	c.types[name] = Type{Name: name, Kind: TypeInt, Bits: bits}
}

// DeclareUnsignedInteger adds an unsigned integer type of the given width.
func (c *CompilerContext) DeclareUnsignedInteger(name string, bits int) {
	c.types[name] = Type{Name: name, Kind: TypeUint, Bits: bits}
}

// DeclareDynamicString adds a dynamically sized string type.
func (c *CompilerContext) DeclareDynamicString(name string) {
	c.types[name] = Type{Name: name, Kind: TypeDynamicString}
}

// Types returns every declared type, sorted by name for determinism.
func (c *CompilerContext) Types() []Type {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)

	types := make([]Type, 0, len(names))
	for _, name := range names {
		types = append(types, c.types[name])
	}
	return types
}

// DefaultConstructorNames returns the qualified names of every registered
// default constructor, sorted for determinism.
func (c *CompilerContext) DefaultConstructorNames() []string {
	names := make([]string, 0, len(c.defaultConstructors))
	for name := range c.defaultConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TypeOf returns the declared type with the given name.
func (c *CompilerContext) TypeOf(name string) (Type, error) {
	t, ok := c.types[name]
	if !ok {
		return Type{}, fmt.Errorf("type %q is not declared", name)
	}
	return t, nil
}

// TypesOf resolves a list of type names.
func (c *CompilerContext) TypesOf(names []string) ([]Type, error) {
	types := make([]Type, 0, len(names))
	for _, name := range names {
		t, err := c.TypeOf(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// DeclareFunction registers a callable under its mangled name. The caller
// attaches a runtime or an assembly expansion on the returned signature.
func (c *CompilerContext) DeclareFunction(name string, argTypes []string, returnType string) *FunctionSignature {
	signature := &FunctionSignature{
		Name:       name,
		Arguments:  append([]string(nil), argTypes...),
		ReturnType: returnType,
	}
	c.functionDeclarations[name] = signature
	c.rawDeclarations = append(c.rawDeclarations, signature)
	return signature
}

// GetFunction returns the declared function with the given mangled name.
func (c *CompilerContext) GetFunction(name string) (*FunctionSignature, bool) {
	signature, ok := c.functionDeclarations[name]
	return signature, ok
}

// HasFunction reports whether the mangled name is declared.
func (c *CompilerContext) HasFunction(name string) bool {
	_, ok := c.functionDeclarations[name]
	return ok
}

// DeclareInlineGenerics registers a code generator keyed by the unmangled
// builtin name.
func (c *CompilerContext) DeclareInlineGenerics(name string, generator InlineGenericFn) {
	c.inlineGenerics[name] = generator
}

// GetInlineGeneric returns the generator registered for name.
func (c *CompilerContext) GetInlineGeneric(name string) (InlineGenericFn, bool) {
	generator, ok := c.inlineGenerics[name]
	return generator, ok
}

// DeclareDefaultConstructor specializes the lowering of the qualified
// constructor name.
func (c *CompilerContext) DeclareDefaultConstructor(qualifiedName string, constructor ConstructorFn) {
	c.defaultConstructors[qualifiedName] = constructor
}

// GetDefaultConstructor returns the constructor registered for the name.
func (c *CompilerContext) GetDefaultConstructor(qualifiedName string) (ConstructorFn, bool) {
	constructor, ok := c.defaultConstructors[qualifiedName]
	return constructor, ok
}

// DeclareSpecialVariable registers a host provided name with its type and
// the generator producing its value.
func (c *CompilerContext) DeclareSpecialVariable(name, typename string, generate SpecialVariableFn) {
	c.specialVariables[name] = &SpecialVariable{Name: name, TypeName: typename, Generate: generate}
}

// GetSpecialVariable returns the special variable registered for name.
func (c *CompilerContext) GetSpecialVariable(name string) (*SpecialVariable, bool) {
	variable, ok := c.specialVariables[name]
	return variable, ok
}

// SpecialVariables returns every registered special variable.
func (c *CompilerContext) SpecialVariables() []*SpecialVariable {
	variables := make([]*SpecialVariable, 0, len(c.specialVariables))
	for _, variable := range c.specialVariables {
		variables = append(variables, variable)
	}
	return variables
}

// RawFunctionDeclarations returns every declared signature in declaration
// order, for symbol table seeding.
func (c *CompilerContext) RawFunctionDeclarations() []*FunctionSignature {
	return c.rawDeclarations
}

// Precompiles returns the address to runtime mapping for the host.
func (c *CompilerContext) Precompiles() map[uint32]PrecompileFn {
	return c.precompiles
}

// CreateBuilder returns a bytecode builder bound to this context.
func (c *CompilerContext) CreateBuilder() *Builder {
	return NewBuilder(c)
}
