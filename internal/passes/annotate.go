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

package passes

import (
	"fmt"

	"github.com/zilliqa/bluebell/internal/ir"
)

// AnnotateBaseTypes resolves qualified names, populates type references,
// materializes constructor calls for bare constructor references, and
// declares each computed type in the symbol table.
//
// Running the pass twice is idempotent: resolved names and lifted
// constructors are left untouched by the second run.
type AnnotateBaseTypes struct {
	ir.BasePass

	namespace          string
	previousNamespaces []string
	currentBlock       *ir.FunctionBlock
}

// NewAnnotateBaseTypes create the pass.
func NewAnnotateBaseTypes() *AnnotateBaseTypes {
	return &AnnotateBaseTypes{}
}

func (p *AnnotateBaseTypes) pushNamespace(namespace string) {
	p.previousNamespaces = append(p.previousNamespaces, p.namespace)
	if p.namespace != "" {
		namespace = p.namespace + ir.NamespaceSeparator + namespace
	}
	p.namespace = namespace
}

func (p *AnnotateBaseTypes) popNamespace() {
	p.namespace = p.previousNamespaces[len(p.previousNamespaces)-1]
	p.previousNamespaces = p.previousNamespaces[:len(p.previousNamespaces)-1]
}

// VisitTypeDefinition implements ir.Pass.
func (p *AnnotateBaseTypes) VisitTypeDefinition(ir.TypeDefinition, *ir.SymbolTable) (ir.VisitResult, error) {
	return ir.SkipChildren, nil
}

// VisitVariableDeclaration implements ir.Pass.
func (p *AnnotateBaseTypes) VisitVariableDeclaration(decl *ir.VariableDeclaration, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	if decl.TypeName.Resolved == "" {
		info := symbols.TypeOf(decl.TypeName.Unresolved, p.namespace)
		if info == nil {
			return ir.SkipChildren, fmt.Errorf(
				"could not resolve type for %s, type %s is not declared",
				decl.Name.Unresolved, decl.TypeName.Unresolved)
		}
		decl.TypeName.Resolved = info.SymbolName
		decl.TypeName.TypeReference = info.Typename
	}

	if _, err := p.VisitSymbol(decl.Name, symbols); err != nil {
		return ir.SkipChildren, err
	}
	decl.Name.TypeReference = decl.TypeName.Resolved

	if decl.Name.Resolved == "" {
		return ir.SkipChildren, fmt.Errorf("could not resolve symbol for %s", decl.Name.Unresolved)
	}

	if err := symbols.DeclareTypeOf(decl.Name.Resolved, decl.TypeName.Resolved); err != nil {
		return ir.SkipChildren, err
	}

	return ir.SkipChildren, nil
}

// VisitContractField implements ir.Pass.
func (p *AnnotateBaseTypes) VisitContractField(field *ir.ContractField, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	if field.Namespace.Resolved == "" {
		return ir.SkipChildren, fmt.Errorf(
			"could not determine the namespace of %s", field.Namespace.Unresolved)
	}

	p.pushNamespace(field.Namespace.Resolved)
	defer p.popNamespace()

	if _, err := p.VisitVariableDeclaration(field.Variable, symbols); err != nil {
		return ir.SkipChildren, err
	}
	if _, err := p.VisitInstruction(field.Initializer, symbols); err != nil {
		return ir.SkipChildren, err
	}

	return ir.SkipChildren, nil
}

// VisitFunction implements ir.Pass.
func (p *AnnotateBaseTypes) VisitFunction(fn *ir.ConcreteFunction, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	if fn.Namespace.Resolved == "" {
		return ir.SkipChildren, fmt.Errorf(
			"could not determine the namespace of %s", fn.Name.Unresolved)
	}

	p.pushNamespace(fn.Namespace.Resolved)
	defer p.popNamespace()

	if _, err := p.VisitSymbol(fn.Name, symbols); err != nil {
		return ir.SkipChildren, err
	}

	p.pushNamespace(fn.Name.Unresolved)
	defer p.popNamespace()

	for _, arg := range fn.Arguments {
		if _, err := p.VisitVariableDeclaration(arg, symbols); err != nil {
			return ir.SkipChildren, err
		}
	}

	for _, block := range fn.Body.Blocks {
		if err := p.annotateBlock(block, symbols); err != nil {
			return ir.SkipChildren, err
		}
	}

	return ir.SkipChildren, nil
}

// annotateBlock rebuilds the block instruction list so constructor lifting
// can inject call instructions ahead of the use they serve.
func (p *AnnotateBaseTypes) annotateBlock(block *ir.FunctionBlock, symbols *ir.SymbolTable) error {
	rebuilt := ir.NewFunctionBlockFromSymbol(block.Name)
	rebuilt.Terminated = block.Terminated
	rebuilt.Arguments = block.Arguments
	rebuilt.JumpRequiredArguments = block.JumpRequiredArguments

	p.currentBlock = rebuilt
	defer func() { p.currentBlock = nil }()

	for _, instr := range block.Instructions {
		if _, err := p.VisitInstruction(instr, symbols); err != nil {
			return err
		}
		rebuilt.Append(instr)
	}

	*block = *rebuilt
	return nil
}

// VisitSymbol implements ir.Pass. It performs the per identifier contract:
// constructor lifting for unknown names, state promotion for virtual
// registers, namespace qualification, and type reference population.
//
// nolint:gocyclo // The identifier contract is one decision table.
func (p *AnnotateBaseTypes) VisitSymbol(symbol *ir.Identifier, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	if symbol.Kind == ir.KindUnknown {
		if err := p.liftUnknownSymbol(symbol, symbols); err != nil {
			return ir.SkipChildren, err
		}
	}

	if symbol.Kind == ir.KindVirtualRegister {
		if resolved, ok := symbols.ResolveQualifiedName(symbol.Unresolved, p.namespace); ok {
			if symbols.IsState(resolved) {
				symbol.Kind = ir.KindState
			}
		}
	}

	switch symbol.Kind {
	case ir.KindBlockLabel:
		// Labels live outside the value namespaces.

	case ir.KindFunctionName, ir.KindState, ir.KindTransitionName, ir.KindProcedureName:
		if symbol.IsDefinition {
			// Definitions name themselves inside the enclosing namespace.
			symbol.Resolved = symbol.Unresolved
			if p.namespace != "" {
				symbol.Resolved = p.namespace + ir.NamespaceSeparator + symbol.Unresolved
			}
		} else if resolved, ok := symbols.ResolveQualifiedName(symbol.Unresolved, p.namespace); ok {
			symbol.Resolved = resolved
		}

	case ir.KindVirtualRegister, ir.KindIntermediate, ir.KindMemory:
		if p.namespace != "" {
			symbol.Resolved = p.namespace + ir.NamespaceSeparator + symbol.Unresolved
		} else {
			symbol.Resolved = symbol.Unresolved
		}

	case ir.KindTypeName:
		if !symbol.IsDefinition && symbol.Resolved == "" {
			if info := symbols.TypeOf(symbol.Unresolved, p.namespace); info != nil {
				symbol.Resolved = info.SymbolName
			}
		}

	case ir.KindContextResource:
		symbol.Resolved = symbol.Unresolved
	}

	if typename, ok := symbols.TypenameOf(symbol.Resolved); ok {
		symbol.TypeReference = typename
	}

	return ir.Continue, nil
}

// liftUnknownSymbol resolves a name of unknown kind. When it names a
// nullary constructor, the use is replaced by a fresh intermediate and an
// explicit constructor call is injected ahead of the current instruction,
// so the code generator only ever sees call shaped producers.
func (p *AnnotateBaseTypes) liftUnknownSymbol(symbol *ir.Identifier, symbols *ir.SymbolTable) error {
	info := symbols.TypeOf(symbol.Unresolved, p.namespace)
	if info == nil {
		return fmt.Errorf("unable to resolve type of %q at %s", symbol.Unresolved, symbol.Source.Start())
	}

	symbol.TypeReference = info.Typename

	// We only move constructors out of line.
	if !info.IsConstructor() {
		return nil
	}

	if len(info.Arguments) > 0 {
		return fmt.Errorf("cannot invoke constructor of %q with arguments", symbol.Unresolved)
	}

	if info.ReturnType == "" {
		return fmt.Errorf("internal error: return type not defined for constructor %q", symbol.Unresolved)
	}

	intermediate := symbols.NameGenerator.NewIntermediate()

	name := symbol.Clone()
	name.Kind = ir.KindStaticFunctionName
	name.Resolved = info.SymbolName

	constructorCall := &ir.Instruction{
		SSAName: intermediate.Clone(),
		ResultType: &ir.Identifier{
			Unresolved:    info.ReturnType,
			Resolved:      info.ReturnType,
			TypeReference: info.ReturnType,
			Kind:          ir.KindTypeName,
		},
		Operation: &ir.CallStaticFunction{Name: name},
		Source:    symbol.Source,
	}

	if _, err := p.VisitInstruction(constructorCall, symbols); err != nil {
		return err
	}

	if p.currentBlock == nil {
		return fmt.Errorf("internal error: no block available to push instruction")
	}
	p.currentBlock.Append(constructorCall)

	// The original operand now refers to the lifted value.
	*symbol = *intermediate
	return nil
}

// VisitInstruction implements ir.Pass: it resolves every operand and
// computes the instruction result type.
//
// nolint:funlen,gocyclo // The operation contract is one decision table.
func (p *AnnotateBaseTypes) VisitInstruction(instr *ir.Instruction, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	var typename string

	switch op := instr.Operation.(type) {
	case *ir.TerminatingRef, *ir.Noop, *ir.MemLoad, *ir.MemStore:
		typename = ir.VoidType

	case *ir.Jump:
		typename = ir.VoidType

	case *ir.ConditionalJump:
		for _, symbol := range []*ir.Identifier{op.Expression, op.OnSuccess, op.OnFailure} {
			if _, err := p.VisitSymbol(symbol, symbols); err != nil {
				return ir.SkipChildren, err
			}
		}
		typename = ir.VoidType

	case *ir.StateLoad:
		loaded, err := p.annotateStateAccess(op.Address, instr.SSAName, symbols, "load")
		if err != nil {
			return ir.SkipChildren, err
		}
		typename = loaded

	case *ir.StateStore:
		stored, err := p.annotateStateAccess(op.Address, op.Value, symbols, "store")
		if err != nil {
			return ir.SkipChildren, err
		}
		typename = stored

	case *ir.IsEqual:
		if _, err := p.VisitSymbol(op.Left, symbols); err != nil {
			return ir.SkipChildren, err
		}
		if _, err := p.VisitSymbol(op.Right, symbols); err != nil {
			return ir.SkipChildren, err
		}
		typename = ir.MachineWordType

	case *ir.CallFunction:
		resolved, err := p.annotateCall(op.Name, op.Arguments, symbols)
		if err != nil {
			return ir.SkipChildren, err
		}
		typename = resolved

	case *ir.CallExternalFunction:
		resolved, err := p.annotateCall(op.Name, op.Arguments, symbols)
		if err != nil {
			return ir.SkipChildren, err
		}
		typename = resolved

	case *ir.CallStaticFunction:
		if _, err := p.VisitSymbol(op.Name, symbols); err != nil {
			return ir.SkipChildren, err
		}
		for _, arg := range op.Arguments {
			if _, err := p.VisitSymbol(arg, symbols); err != nil {
				return ir.SkipChildren, err
			}
		}
		if op.Name.TypeReference == "" {
			return ir.SkipChildren, fmt.Errorf(
				"unable to determine return type of %q at %s", op.Name.Unresolved, instr.Source.Start())
		}
		typename = op.Name.TypeReference

	case *ir.CallMemberFunction:
		return ir.SkipChildren, fmt.Errorf(
			"member function calls are not supported at %s", instr.Source.Start())

	case *ir.ResolveSymbol:
		if _, err := p.VisitSymbol(op.Symbol, symbols); err != nil {
			return ir.SkipChildren, err
		}
		if op.Symbol.TypeReference == "" {
			return ir.SkipChildren, fmt.Errorf(
				"unable to determine type for %q at %s", op.Symbol.Unresolved, instr.Source.Start())
		}
		typename = op.Symbol.TypeReference

	case *ir.ResolveContextResource:
		if _, err := p.VisitSymbol(op.Symbol, symbols); err != nil {
			return ir.SkipChildren, err
		}
		if op.Symbol.TypeReference == "" {
			return ir.SkipChildren, fmt.Errorf(
				"unable to determine type for %q at %s", op.Symbol.Unresolved, instr.Source.Start())
		}
		typename = op.Symbol.TypeReference

	case *ir.Literal:
		if _, err := p.VisitSymbol(op.TypeName, symbols); err != nil {
			return ir.SkipChildren, err
		}
		if op.TypeName.TypeReference == "" {
			return ir.SkipChildren, fmt.Errorf(
				"unable to determine type for literal %s %q at %s",
				op.TypeName.Unresolved, op.Data, instr.Source.Start())
		}
		typename = op.TypeName.TypeReference

	case *ir.PhiNode:
		resolved, err := p.annotatePhi(op, symbols)
		if err != nil {
			return ir.SkipChildren, err
		}
		typename = resolved

	case *ir.Return:
		if op.Value != nil {
			return ir.SkipChildren, fmt.Errorf(
				"returning values is not supported at %s", instr.Source.Start())
		}
		typename = ir.VoidType

	case *ir.Revert:
		if op.Value != nil {
			if _, err := p.VisitSymbol(op.Value, symbols); err != nil {
				return ir.SkipChildren, err
			}
		}
		typename = ir.VoidType

	default:
		return ir.SkipChildren, fmt.Errorf("unknown operation %T", op)
	}

	if instr.SSAName != nil {
		if _, err := p.VisitSymbol(instr.SSAName, symbols); err != nil {
			return ir.SkipChildren, err
		}
		if instr.SSAName.Resolved == "" {
			return ir.SkipChildren, fmt.Errorf(
				"unable to resolve symbol name for %q at %s", instr.SSAName.Unresolved, instr.Source.Start())
		}
		if err := symbols.DeclareTypeOf(instr.SSAName.Resolved, typename); err != nil {
			return ir.SkipChildren, err
		}
		instr.SSAName.TypeReference = typename
	}

	return ir.SkipChildren, nil
}

// annotateCall resolves a call target, builds its mangled overload key and
// propagates the declared return type.
func (p *AnnotateBaseTypes) annotateCall(name *ir.Identifier, arguments []*ir.Identifier, symbols *ir.SymbolTable) (string, error) {
	if _, err := p.VisitSymbol(name, symbols); err != nil {
		return "", err
	}

	argTypes := make([]string, 0, len(arguments))
	for _, arg := range arguments {
		if _, err := p.VisitSymbol(arg, symbols); err != nil {
			return "", err
		}
		if arg.TypeReference == "" {
			return "", fmt.Errorf(
				"unable to resolve type for %q in call to %q at %s",
				arg.Unresolved, name.Unresolved, name.Source.Start())
		}
		argTypes = append(argTypes, arg.TypeReference)
	}

	// In the event of a template function the unresolved name is used, as
	// the instantiation may not exist as a symbol of its own.
	nameValue := name.Resolved
	if nameValue == "" {
		nameValue = name.Unresolved
	}

	functionType := ir.MangledName(ir.UnmangledName(nameValue), argTypes)

	info := symbols.TypeOf(functionType, p.namespace)
	if info == nil {
		return "", fmt.Errorf("undeclared function %q at %s", functionType, name.Source.Start())
	}

	name.Resolved = info.SymbolName
	name.TypeReference = info.SymbolName

	if info.ReturnType == "" {
		return ir.VoidType, nil
	}
	return info.ReturnType, nil
}

// annotateStateAccess resolves the field address of a state access and
// propagates the declared field type to the loaded or stored value.
func (p *AnnotateBaseTypes) annotateStateAccess(address *ir.FieldAddress, value *ir.Identifier, symbols *ir.SymbolTable, what string) (string, error) {
	if _, err := p.VisitSymbol(address.Name, symbols); err != nil {
		return "", err
	}
	if value == nil {
		return "", fmt.Errorf("state %s without a value at %s", what, address.Name.Source.Start())
	}
	if _, err := p.VisitSymbol(value, symbols); err != nil {
		return "", err
	}
	if value.Resolved == "" {
		return "", fmt.Errorf(
			"unable to resolve symbol name for %s statement %q at %s",
			what, value.Unresolved, value.Source.Start())
	}

	value.TypeReference = address.Name.TypeReference
	if value.TypeReference == "" {
		return "", fmt.Errorf(
			"unable to deduce type for %s statement %q at %s", what, value.Resolved, value.Source.Start())
	}

	if err := symbols.DeclareTypeOf(value.Resolved, value.TypeReference); err != nil {
		return "", err
	}

	return value.TypeReference, nil
}

func (p *AnnotateBaseTypes) annotatePhi(op *ir.PhiNode, symbols *ir.SymbolTable) (string, error) {
	var typename string

	for _, input := range op.Inputs {
		if _, err := p.VisitSymbol(input, symbols); err != nil {
			return "", err
		}
		if input.TypeReference == typename {
			continue
		}
		if typename == "" {
			typename = input.TypeReference
			continue
		}
		return "", fmt.Errorf("different paths given different return types")
	}

	if typename == "" {
		typename = ir.VoidType
	}
	return typename, nil
}
