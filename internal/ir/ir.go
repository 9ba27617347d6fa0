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

// Package ir defines the intermediate representation the compiler lowers a
// contract program into before bytecode generation.
//
// The IR is tree structured: functions own basic blocks, blocks own
// instructions, and blocks refer to one another by symbolic label rather
// than by pointer. Every reference between instructions is an Identifier,
// a name living in one of the namespaces enumerated by Kind.
package ir

import (
	"fmt"

	"github.com/zilliqa/bluebell/internal/ast"
)

// NamespaceSeparator joins namespace segments in qualified symbol names.
const NamespaceSeparator = "::"

// VoidType is the result type of operations producing no value.
const VoidType = "Void"

// MachineWordType is the integer width used throughout for predicates.
const MachineWordType = "Uint256"

// Kind enumerates the namespace an Identifier lives in.
type Kind int

const (
	KindUnknown Kind = iota
	KindVirtualRegister
	KindIntermediate
	KindBlockLabel
	KindComponentName
	KindTransitionName
	KindProcedureName
	KindFunctionName
	KindExternalFunctionName
	KindStaticFunctionName
	KindTemplateFunctionName
	KindTypeName
	KindState
	KindContextResource
	KindMemory
	KindNamespace
)

// Identifier is the universal reference of the IR: a name together with the
// namespace it lives in and, after annotation, its resolved qualified form
// and the name of its type.
type Identifier struct {
	Unresolved    string
	Resolved      string // Qualified name; empty until resolution.
	TypeReference string // Name of the symbol type; empty until annotation.
	Kind          Kind
	IsDefinition  bool
	Source        ast.Position
}

// NewIdentifier create an unresolved Identifier of the given kind.
func NewIdentifier(name string, kind Kind, source ast.Position) *Identifier {
	return &Identifier{Unresolved: name, Kind: kind, Source: source}
}

// IsResolved reports whether the identifier carries a qualified name.
func (id *Identifier) IsResolved() bool { return id.Resolved != "" }

// QualifiedName returns the resolved name of the identifier.
func (id *Identifier) QualifiedName() (string, error) {
	if id.Resolved == "" {
		return "", fmt.Errorf("unresolved symbol %q at %s", id.Unresolved, id.Source.Start())
	}
	return id.Resolved, nil
}

// Clone returns an independent copy of the identifier.
func (id *Identifier) Clone() *Identifier {
	c := *id
	return &c
}

func (id *Identifier) String() string {
	if id.Resolved != "" {
		return id.Resolved
	}
	return id.Unresolved
}

// VariableDeclaration represents a typed name introduced by a function
// parameter or a contract field.
type VariableDeclaration struct {
	Name     *Identifier
	Mutable  bool
	TypeName *Identifier
}

// NewVariableDeclaration create a declaration for name with the given type.
func NewVariableDeclaration(name string, mutable bool, typename *Identifier, source ast.Position) *VariableDeclaration {
	return &VariableDeclaration{
		Name:     &Identifier{Unresolved: name, Kind: KindVirtualRegister, IsDefinition: true, Source: source},
		Mutable:  mutable,
		TypeName: typename,
	}
}

// ----------------------------------------------------------------------------
// Type definitions
//

// TypeDefinition represents a declared composite or named base type.
type TypeDefinition interface {
	typeDefinition()

	// TypeName returns the declared name of the type.
	TypeName() *Identifier
}

// EnumValue is a single constructor of a Variant, optionally carrying a
// reference to the tuple type holding its payload.
type EnumValue struct {
	Name *Identifier
	Data *Identifier // Payload tuple type or nil for nullary constructors.
}

// Variant is a tagged union of constructors.
type Variant struct {
	Fields []*EnumValue
}

// AddField appends a constructor to the variant.
func (v *Variant) AddField(field *EnumValue) {
	v.Fields = append(v.Fields, field)
}

// Tuple is an ordered, anonymous product of type names.
type Tuple struct {
	Fields []*Identifier
}

// AddField appends a field type to the tuple.
func (t *Tuple) AddField(field *Identifier) {
	t.Fields = append(t.Fields, field)
}

// VariantType declares a named tagged union.
type VariantType struct {
	Name      *Identifier
	Namespace *Identifier
	Layout    *Variant
}

// TupleType declares a named product type.
type TupleType struct {
	Name      *Identifier
	Namespace *Identifier
	Layout    *Tuple
}

// BaseType declares a named primitive type.
type BaseType struct {
	Name *Identifier
}

func (*VariantType) typeDefinition() {}
func (*TupleType) typeDefinition()   {}
func (*BaseType) typeDefinition()    {}

func (t *VariantType) TypeName() *Identifier { return t.Name }
func (t *TupleType) TypeName() *Identifier   { return t.Name }
func (t *BaseType) TypeName() *Identifier    { return t.Name }

// ----------------------------------------------------------------------------
// Operations
//

// Operation is a single IR operation. Dispatch over operations is total:
// every pass and the bytecode generator handle the full variant set.
type Operation interface {
	operation()
}

// FieldAddress names a persistent state cell, optionally indexed.
type FieldAddress struct {
	Name  *Identifier
	Index *Identifier // Map key or nil.
}

type (
	// ResolveSymbol makes the instruction SSA name an alias of an already
	// materialized value.
	ResolveSymbol struct {
		Symbol *Identifier
	}

	// ResolveContextResource produces a host supplied value, like _sender.
	ResolveContextResource struct {
		Symbol *Identifier
	}

	// Literal materializes constant data of a declared type.
	Literal struct {
		Data     string
		TypeName *Identifier
	}

	// IsEqual yields whether two operands compare equal.
	IsEqual struct {
		Left  *Identifier
		Right *Identifier
	}

	// CallFunction invokes an internal function, transition or procedure.
	CallFunction struct {
		Name      *Identifier
		Arguments []*Identifier
	}

	// CallExternalFunction invokes a host declared function or builtin.
	CallExternalFunction struct {
		Name      *Identifier
		Arguments []*Identifier
	}

	// CallStaticFunction invokes a constructor.
	CallStaticFunction struct {
		Name      *Identifier
		Owner     *Identifier // Owning type or nil.
		Arguments []*Identifier
	}

	// CallMemberFunction invokes a member function on an owner value.
	CallMemberFunction struct {
		Name      *Identifier
		Owner     *Identifier
		Arguments []*Identifier
	}

	// StateLoad reads a persistent state cell.
	StateLoad struct {
		Address *FieldAddress
	}

	// StateStore writes a persistent state cell.
	StateStore struct {
		Address *FieldAddress
		Value   *Identifier
	}

	// MemLoad reads a memory cell.
	MemLoad struct{}

	// MemStore writes a memory cell.
	MemStore struct{}

	// Jump transfers control to the block named by Target.
	Jump struct {
		Target *Identifier
	}

	// ConditionalJump transfers control to OnSuccess when Expression is
	// non-zero and to OnFailure otherwise.
	ConditionalJump struct {
		Expression *Identifier
		OnSuccess  *Identifier
		OnFailure  *Identifier
	}

	// PhiNode merges values arriving from multiple predecessor blocks.
	PhiNode struct {
		Inputs []*Identifier
	}

	// Return leaves the current function. Value is nil for void returns.
	Return struct {
		Value *Identifier
	}

	// Revert aborts execution and rolls back state. Value is nil when no
	// error value is attached.
	Revert struct {
		Value *Identifier
	}

	// TerminatingRef is a sentinel reference consumed by structural logic.
	TerminatingRef struct {
		Ref *Identifier
	}

	// Noop has no effect.
	Noop struct{}
)

func (*ResolveSymbol) operation()          {}
func (*ResolveContextResource) operation() {}
func (*Literal) operation()                {}
func (*IsEqual) operation()                {}
func (*CallFunction) operation()           {}
func (*CallExternalFunction) operation()   {}
func (*CallStaticFunction) operation()     {}
func (*CallMemberFunction) operation()     {}
func (*StateLoad) operation()              {}
func (*StateStore) operation()             {}
func (*MemLoad) operation()                {}
func (*MemStore) operation()               {}
func (*Jump) operation()                   {}
func (*ConditionalJump) operation()        {}
func (*PhiNode) operation()                {}
func (*Return) operation()                 {}
func (*Revert) operation()                 {}
func (*TerminatingRef) operation()         {}
func (*Noop) operation()                   {}

// Instruction is a single three-address IR instruction.
type Instruction struct {
	SSAName    *Identifier // Defined value name or nil.
	ResultType *Identifier // Declared result type or nil.
	Operation  Operation
	Source     ast.Position
}

// IsTerminator reports whether the instruction ends a basic block.
func (i *Instruction) IsTerminator() bool {
	switch i.Operation.(type) {
	case *Jump, *ConditionalJump, *Return, *Revert:
		return true
	}
	return false
}

// ----------------------------------------------------------------------------
// Functions
//

// FunctionBlock is a basic block: a label, the names required to be live on
// entry, a straight-line instruction sequence and exactly one terminator.
type FunctionBlock struct {
	Name         *Identifier
	Arguments    []string // Required incoming argument names, in fixed order.
	Instructions []*Instruction
	Terminated   bool

	// JumpRequiredArguments enumerates, per outgoing jump label, the names
	// that must remain live across the jump. Filled by the BlockArguments
	// pass before bytecode generation.
	JumpRequiredArguments map[string][]string
}

// NewFunctionBlock create an empty block with the given label text.
func NewFunctionBlock(label string) *FunctionBlock {
	return NewFunctionBlockFromSymbol(&Identifier{
		Unresolved: label,
		Resolved:   label,
		Kind:       KindBlockLabel,
	})
}

// NewFunctionBlockFromSymbol create an empty block labeled by symbol.
func NewFunctionBlockFromSymbol(symbol *Identifier) *FunctionBlock {
	return &FunctionBlock{
		Name:                  symbol,
		JumpRequiredArguments: make(map[string][]string),
	}
}

// Append adds an instruction at the end of the block.
func (b *FunctionBlock) Append(instr *Instruction) {
	b.Instructions = append(b.Instructions, instr)
}

// Last returns the final instruction of the block or nil when empty.
func (b *FunctionBlock) Last() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return b.Instructions[len(b.Instructions)-1]
}

// Label returns the resolved label of the block.
func (b *FunctionBlock) Label() string {
	if b.Name.Resolved != "" {
		return b.Name.Resolved
	}
	return b.Name.Unresolved
}

// FunctionBody is the ordered list of basic blocks of one function.
type FunctionBody struct {
	Blocks []*FunctionBlock
}

// NewFunctionBody create an empty body.
func NewFunctionBody() *FunctionBody {
	return &FunctionBody{}
}

// FunctionKind distinguishes the callable flavors of a contract.
type FunctionKind int

const (
	FunctionKindTransition FunctionKind = iota
	FunctionKindProcedure
	FunctionKindFunction
)

func (k FunctionKind) String() string {
	switch k {
	case FunctionKindTransition:
		return "transition"
	case FunctionKindProcedure:
		return "procedure"
	default:
		return "function"
	}
}

// ConcreteFunction is a fully lowered transition, procedure or library
// function.
type ConcreteFunction struct {
	Name       *Identifier
	Namespace  *Identifier
	Kind       FunctionKind
	ReturnType string // Declared return type or empty for void.
	Arguments  []*VariableDeclaration
	Body       *FunctionBody
}

// ContractField is a persistent field together with its initializer.
type ContractField struct {
	Namespace   *Identifier
	Variable    *VariableDeclaration
	Initializer *Instruction
}

// IR is the complete intermediate representation of one source unit.
type IR struct {
	TypeDefinitions     []TypeDefinition
	FieldDefinitions    []*ContractField
	FunctionDefinitions []*ConcreteFunction
	SymbolTable         *SymbolTable
}

// NewIR create an empty IR owning the given symbol table.
func NewIR(symbols *SymbolTable) *IR {
	return &IR{SymbolTable: symbols}
}
