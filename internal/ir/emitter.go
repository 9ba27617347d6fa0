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

// nolint:funlen // We need a lot of lines and if's to convert an AST to IR.
package ir

import (
	"fmt"

	"github.com/zilliqa/bluebell/internal/ast"
)

// Emitter lowers a type-checked AST into the IR by structured tree
// traversal. Values produced bottom-up by child nodes travel to their
// parents through an operand stack, never through back pointers.
type Emitter struct {
	// stack holds partial results produced by children and consumed by
	// their parent node: identifiers, instructions, declarations, blocks
	// and bodies.
	stack []interface{}

	currentBlock *FunctionBlock
	currentBody  *FunctionBody

	currentNamespace *Identifier
	namespaceStack   []*Identifier

	representation *IR

	sourcePositions []ast.Position
}

// NewEmitter create an emitter owning a fresh IR backed by symbols.
func NewEmitter(symbols *SymbolTable) *Emitter {
	ns := &Identifier{Kind: KindNamespace}
	return &Emitter{
		currentBlock:     NewFunctionBlock("dummy"),
		currentBody:      NewFunctionBody(),
		currentNamespace: ns,
		namespaceStack:   []*Identifier{ns},
		representation:   NewIR(symbols),
		sourcePositions:  []ast.Position{{}},
	}
}

// Emit lowers program and returns the IR under construction.
func (e *Emitter) Emit(program *ast.Program) (*IR, error) {
	if err := ast.Walk(e, program); err != nil {
		return nil, err
	}
	return e.representation, nil
}

// PushSourcePosition implements ast.Visitor.
func (e *Emitter) PushSourcePosition(start, end ast.Pos) {
	e.sourcePositions = append(e.sourcePositions, ast.NewPosition(start, end))
}

// PopSourcePosition implements ast.Visitor.
func (e *Emitter) PopSourcePosition() {
	e.sourcePositions = e.sourcePositions[:len(e.sourcePositions)-1]
}

func (e *Emitter) currentLocation() ast.Position {
	return e.sourcePositions[len(e.sourcePositions)-1]
}

func (e *Emitter) errorf(format string, args ...interface{}) error {
	pos := e.currentLocation().Start()
	return fmt.Errorf(format+" at %s", append(args, pos)...)
}

func (e *Emitter) pushNamespace(name string) {
	resolved := name
	if e.currentNamespace.Resolved != "" {
		resolved = e.currentNamespace.Resolved + NamespaceSeparator + name
	}

	ns := &Identifier{Unresolved: name, Resolved: resolved, Kind: KindNamespace}
	e.namespaceStack = append(e.namespaceStack, ns)
	e.currentNamespace = ns
}

func (e *Emitter) popNamespace() {
	e.namespaceStack = e.namespaceStack[:len(e.namespaceStack)-1]
	if len(e.namespaceStack) == 0 {
		panic("ir.Emitter: namespace stack is empty")
	}
	e.currentNamespace = e.namespaceStack[len(e.namespaceStack)-1]
}

// ----------------------------------------------------------------------------
// Operand stack
//

func (e *Emitter) push(obj interface{}) {
	e.stack = append(e.stack, obj)
}

func (e *Emitter) pop() (interface{}, bool) {
	if len(e.stack) == 0 {
		return nil, false
	}
	obj := e.stack[len(e.stack)-1]
	e.stack = e.stack[:len(e.stack)-1]
	return obj, true
}

func (e *Emitter) popInstruction() (*Instruction, error) {
	obj, ok := e.pop()
	if !ok {
		return nil, e.errorf("expected instruction, but found nothing")
	}
	instr, ok := obj.(*Instruction)
	if !ok {
		return nil, e.errorf("expected instruction, but found %T", obj)
	}
	return instr, nil
}

func (e *Emitter) popIdentifier() (*Identifier, error) {
	obj, ok := e.pop()
	if !ok {
		return nil, e.errorf("expected symbol name, but found nothing")
	}
	id, ok := obj.(*Identifier)
	if !ok {
		return nil, e.errorf("expected symbol name, but found %T", obj)
	}
	return id, nil
}

func (e *Emitter) popVariableDeclaration() (*VariableDeclaration, error) {
	obj, ok := e.pop()
	if !ok {
		return nil, e.errorf("expected variable declaration, but found nothing")
	}
	decl, ok := obj.(*VariableDeclaration)
	if !ok {
		return nil, e.errorf("expected variable declaration, but found %T", obj)
	}
	return decl, nil
}

func (e *Emitter) popFunctionBlock() (*FunctionBlock, error) {
	obj, ok := e.pop()
	if !ok {
		return nil, e.errorf("expected function block, but found nothing")
	}
	block, ok := obj.(*FunctionBlock)
	if !ok {
		return nil, e.errorf("expected function block, but found %T", obj)
	}
	return block, nil
}

// convertInstructionToSymbol makes sure instruction has been materialized
// in the current block and returns the name its value lives under. A bare
// ResolveSymbol is elided: its source name is used directly instead of an
// intermediate.
func (e *Emitter) convertInstructionToSymbol(instr *Instruction) *Identifier {
	if resolve, ok := instr.Operation.(*ResolveSymbol); ok {
		return resolve.Symbol
	}

	symbol := instr.SSAName
	if symbol == nil {
		symbol = e.representation.SymbolTable.NameGenerator.NewIntermediate()
		instr.SSAName = symbol
	}
	e.currentBlock.Append(instr)

	return symbol
}

// ----------------------------------------------------------------------------
// ast.Visitor
//

// Enter implements ast.Visitor.
//
// nolint:gocyclo // Its better centralize all AST to IR conversion on a single dispatch.
func (e *Emitter) Enter(node ast.Node) (ast.Action, error) {
	switch n := node.(type) {
	case *ast.Program:
		return ast.Continue, nil

	case *ast.Import:
		// Imports only introduce aliases for library symbols; symbols from
		// libraries that were not linked fail resolution later.
		return ast.SkipChildren, nil

	case *ast.Library:
		return e.enterLibrary(n)

	case *ast.LetEntry:
		return ast.SkipChildren, e.errorf("library let bindings are not supported")

	case *ast.TypeEntry:
		return e.enterTypeEntry(n)

	case *ast.Contract:
		return e.enterContract(n)

	case *ast.Field:
		return e.enterField(n)

	case *ast.TypedIdent:
		return e.enterTypedIdent(n)

	case *ast.TypeName:
		e.push(&Identifier{Unresolved: n.Name, Kind: KindUnknown, Source: e.currentLocation()})
		return ast.SkipChildren, nil

	case *ast.Ident:
		operation := &ResolveSymbol{
			Symbol: NewIdentifier(n.Name, KindVirtualRegister, e.currentLocation()),
		}
		e.push(&Instruction{Operation: operation, Source: e.currentLocation()})
		return ast.SkipChildren, nil

	case *ast.SpecialIdent:
		operation := &ResolveContextResource{
			Symbol: NewIdentifier(n.Name, KindContextResource, e.currentLocation()),
		}
		e.push(&Instruction{Operation: operation, Source: e.currentLocation()})
		return ast.SkipChildren, nil

	case *ast.BasicLit:
		return e.enterLiteral(n)

	case *ast.BuiltinCall:
		return e.enterBuiltinCall(n)

	case *ast.ConstructorCall:
		return e.enterConstructorCall(n)

	case *ast.LetExpr, *ast.FnExpr, *ast.AppExpr, *ast.MessageExpr,
		*ast.MatchExpr, *ast.TypeFnExpr, *ast.TypeAppExpr:
		return ast.SkipChildren, e.errorf("expression %T is not supported", n)

	case *ast.StatementBlock:
		// A fresh block becomes current; the interrupted one waits on the
		// operand stack until Exit restores it. Entry labels are fresh so
		// nested statement blocks never collide.
		previous := e.currentBlock
		e.currentBlock = NewFunctionBlockFromSymbol(
			e.representation.SymbolTable.NameGenerator.NewBlockLabel("entry"))
		e.push(previous)
		return ast.Continue, nil

	case *ast.LoadStmt:
		return e.enterLoad(n)

	case *ast.StoreStmt:
		return e.enterStore(n)

	case *ast.BindStmt:
		return e.enterBind(n)

	case *ast.AcceptStmt:
		e.currentBlock.Append(&Instruction{
			Operation: &CallFunction{
				Name: NewIdentifier(IntrinsicAcceptTransfer, KindProcedureName, e.currentLocation()),
			},
			Source: e.currentLocation(),
		})
		return ast.SkipChildren, nil

	case *ast.CallProcStmt:
		return e.enterCallProc(n)

	case *ast.ThrowStmt:
		return e.enterThrow(n)

	case *ast.MatchStmt:
		return e.enterMatch(n)

	case *ast.RemoteFetchStmt, *ast.ReadFromBCStmt, *ast.MapGetStmt,
		*ast.MapUpdateStmt, *ast.SendStmt, *ast.EventStmt, *ast.IterateStmt:
		return ast.SkipChildren, e.errorf("statement %T is not supported", n)

	case *ast.Transition:
		return e.enterComponent(n.Name, n.Params, n.Body, FunctionKindTransition)

	case *ast.Procedure:
		return e.enterComponent(n.Name, n.Params, n.Body, FunctionKindProcedure)
	}

	return ast.Continue, nil
}

// Exit implements ast.Visitor.
func (e *Emitter) Exit(node ast.Node) error {
	if _, ok := node.(*ast.StatementBlock); ok {
		// Restoring the interrupted block and pushing the built one onto
		// the stack for the parent to consume.
		previous, err := e.popFunctionBlock()
		if err != nil {
			return err
		}
		built := e.currentBlock
		e.currentBlock = previous
		e.push(built)
	}
	return nil
}

// IntrinsicAcceptTransfer is the reserved runtime procedure an accept
// statement compiles to.
const IntrinsicAcceptTransfer = "__intrinsic_accept_transfer"

func (e *Emitter) enterLibrary(n *ast.Library) (ast.Action, error) {
	e.pushNamespace(n.Name.Name)
	for _, entry := range n.Entries {
		if err := ast.Walk(e, entry); err != nil {
			return ast.SkipChildren, err
		}
	}
	e.popNamespace()
	return ast.SkipChildren, nil
}

func (e *Emitter) enterTypeEntry(n *ast.TypeEntry) (ast.Action, error) {
	name := &Identifier{
		Unresolved:   n.Name.Name,
		Kind:         KindTypeName,
		IsDefinition: true,
		Source:       e.currentLocation(),
	}

	variant := &Variant{}
	for _, clause := range n.Clauses {
		member := &Identifier{
			Unresolved:   clause.Name.Name,
			Kind:         KindStaticFunctionName,
			IsDefinition: true,
			Source:       e.currentLocation(),
		}

		var data *Identifier
		if len(clause.Args) > 0 {
			tuple := &Tuple{}
			for _, arg := range clause.Args {
				tuple.AddField(&Identifier{Unresolved: arg.Name, Kind: KindTypeName, Source: e.currentLocation()})
			}

			refid := e.representation.SymbolTable.NameGenerator.AnonymousTypeID("Tuple")
			e.representation.TypeDefinitions = append(e.representation.TypeDefinitions, &TupleType{
				Name:      refid,
				Namespace: e.currentNamespace.Clone(),
				Layout:    tuple,
			})
			data = refid
		}

		variant.AddField(&EnumValue{Name: member, Data: data})
	}

	e.representation.TypeDefinitions = append(e.representation.TypeDefinitions, &VariantType{
		Name:      name,
		Namespace: e.currentNamespace.Clone(),
		Layout:    variant,
	})

	return ast.SkipChildren, nil
}

func (e *Emitter) enterContract(n *ast.Contract) (ast.Action, error) {
	e.pushNamespace(n.Name.Name)

	for _, param := range n.Params {
		if err := ast.Walk(e, param); err != nil {
			return ast.SkipChildren, err
		}
		// Contract parameters are immutables; their layout is not modeled
		// at this layer.
		if _, err := e.popVariableDeclaration(); err != nil {
			return ast.SkipChildren, err
		}
	}

	if n.Constraint != nil {
		return ast.SkipChildren, e.errorf("contract constraints are not supported")
	}

	for _, field := range n.Fields {
		if err := ast.Walk(e, field); err != nil {
			return ast.SkipChildren, err
		}
	}

	for _, component := range n.Components {
		if err := ast.Walk(e, component); err != nil {
			return ast.SkipChildren, err
		}
	}

	e.popNamespace()
	return ast.SkipChildren, nil
}

func (e *Emitter) enterField(n *ast.Field) (ast.Action, error) {
	if err := ast.Walk(e, n.Variable); err != nil {
		return ast.SkipChildren, err
	}
	variable, err := e.popVariableDeclaration()
	if err != nil {
		return ast.SkipChildren, err
	}

	if err := ast.Walk(e, n.Init); err != nil {
		return ast.SkipChildren, err
	}
	initializer, err := e.popInstruction()
	if err != nil {
		return ast.SkipChildren, err
	}

	variable.Name.Kind = KindState

	e.representation.FieldDefinitions = append(e.representation.FieldDefinitions, &ContractField{
		Namespace:   e.currentNamespace.Clone(),
		Variable:    variable,
		Initializer: initializer,
	})

	return ast.SkipChildren, nil
}

func (e *Emitter) enterTypedIdent(n *ast.TypedIdent) (ast.Action, error) {
	if err := ast.Walk(e, n.Type); err != nil {
		return ast.SkipChildren, err
	}
	typename, err := e.popIdentifier()
	if err != nil {
		return ast.SkipChildren, err
	}
	typename.Kind = KindTypeName

	e.push(NewVariableDeclaration(n.Name.Name, false, typename, e.currentLocation()))
	return ast.SkipChildren, nil
}

func (e *Emitter) enterLiteral(n *ast.BasicLit) (ast.Action, error) {
	var typename *Identifier

	switch n.Kind {
	case ast.IntLit:
		if n.Type == nil {
			return ast.SkipChildren, e.errorf("integer literal %q has no declared type", n.Value)
		}
		typename = &Identifier{Unresolved: n.Type.Name, Kind: KindTypeName, Source: e.currentLocation()}
	case ast.HexLit:
		payload := len(n.Value)
		if payload >= 2 {
			payload = (payload - 2) / 2
		}
		typename = e.representation.SymbolTable.NameGenerator.HexType(payload)
	case ast.StringLit:
		typename = e.representation.SymbolTable.NameGenerator.StringType()
	default:
		return ast.SkipChildren, e.errorf("unknown literal kind %d", n.Kind)
	}

	e.push(&Instruction{
		Operation: &Literal{Data: n.Value, TypeName: typename},
		Source:    e.currentLocation(),
	})
	return ast.SkipChildren, nil
}

func (e *Emitter) enterBuiltinCall(n *ast.BuiltinCall) (ast.Action, error) {
	if len(n.TypeArgs) > 0 {
		return ast.SkipChildren, e.errorf("builtin type arguments are not supported")
	}

	var arguments []*Identifier
	for _, arg := range n.Args {
		if err := ast.Walk(e, arg); err != nil {
			return ast.SkipChildren, err
		}
		instr, err := e.popInstruction()
		if err != nil {
			return ast.SkipChildren, err
		}
		arguments = append(arguments, e.convertInstructionToSymbol(instr))
	}

	name := &Identifier{
		Unresolved: fmt.Sprintf("builtin__%s", n.Name.Name),
		Kind:       KindTemplateFunctionName,
		Source:     e.currentLocation(),
	}

	e.push(&Instruction{
		Operation: &CallExternalFunction{Name: name, Arguments: arguments},
		Source:    e.currentLocation(),
	})
	return ast.SkipChildren, nil
}

func (e *Emitter) enterConstructorCall(n *ast.ConstructorCall) (ast.Action, error) {
	if len(n.TypeArgs) > 0 {
		return ast.SkipChildren, e.errorf("constructor type arguments are not supported")
	}
	if len(n.Args) > 0 {
		return ast.SkipChildren, e.errorf("constructor calls with arguments are not supported")
	}

	name := NewIdentifier(n.Name.Name, KindFunctionName, e.currentLocation())

	e.push(&Instruction{
		Operation: &CallStaticFunction{Name: name},
		Source:    e.currentLocation(),
	})
	return ast.SkipChildren, nil
}

func (e *Emitter) enterLoad(n *ast.LoadStmt) (ast.Action, error) {
	target := &Identifier{
		Unresolved:   n.Target.Name,
		Kind:         KindVirtualRegister,
		IsDefinition: true,
		Source:       e.currentLocation(),
	}

	e.currentBlock.Append(&Instruction{
		SSAName: target,
		Operation: &StateLoad{
			Address: &FieldAddress{
				Name: NewIdentifier(n.Field.Name, KindState, e.currentLocation()),
			},
		},
		Source: e.currentLocation(),
	})
	return ast.SkipChildren, nil
}

func (e *Emitter) enterStore(n *ast.StoreStmt) (ast.Action, error) {
	if err := ast.Walk(e, n.Value); err != nil {
		return ast.SkipChildren, err
	}
	value, err := e.popInstruction()
	if err != nil {
		return ast.SkipChildren, err
	}

	symbol := NewIdentifier(n.Field.Name, KindVirtualRegister, e.currentLocation())
	value.SSAName = symbol.Clone()
	e.currentBlock.Append(value)

	e.currentBlock.Append(&Instruction{
		Operation: &StateStore{
			Address: &FieldAddress{
				Name: NewIdentifier(n.Field.Name, KindState, e.currentLocation()),
			},
			Value: symbol,
		},
		Source: e.currentLocation(),
	})
	return ast.SkipChildren, nil
}

func (e *Emitter) enterBind(n *ast.BindStmt) (ast.Action, error) {
	if err := ast.Walk(e, n.Value); err != nil {
		return ast.SkipChildren, err
	}
	value, err := e.popInstruction()
	if err != nil {
		return ast.SkipChildren, err
	}

	value.SSAName = NewIdentifier(n.Target.Name, KindVirtualRegister, e.currentLocation())
	e.currentBlock.Append(value)
	return ast.SkipChildren, nil
}

func (e *Emitter) enterCallProc(n *ast.CallProcStmt) (ast.Action, error) {
	var arguments []*Identifier
	for _, arg := range n.Args {
		if err := ast.Walk(e, arg); err != nil {
			return ast.SkipChildren, err
		}
		instr, err := e.popInstruction()
		if err != nil {
			return ast.SkipChildren, err
		}
		arguments = append(arguments, e.convertInstructionToSymbol(instr))
	}

	e.currentBlock.Append(&Instruction{
		Operation: &CallFunction{
			Name:      NewIdentifier(n.Name.Name, KindProcedureName, e.currentLocation()),
			Arguments: arguments,
		},
		Source: e.currentLocation(),
	})
	return ast.SkipChildren, nil
}

func (e *Emitter) enterThrow(n *ast.ThrowStmt) (ast.Action, error) {
	var value *Identifier
	if n.Error != nil {
		if err := ast.Walk(e, n.Error); err != nil {
			return ast.SkipChildren, err
		}
		instr, err := e.popInstruction()
		if err != nil {
			return ast.SkipChildren, err
		}
		value = e.convertInstructionToSymbol(instr)
	}

	e.currentBlock.Append(&Instruction{
		Operation: &Revert{Value: value},
		Source:    e.currentLocation(),
	})
	e.currentBlock.Terminated = true
	return ast.SkipChildren, nil
}

// enterMatch lowers a match statement into a chain of condition blocks and
// clause blocks. Clause order in the source defines pattern-match order:
// the on-failure edge of clause i becomes the condition entry of clause
// i+1, and the final on-failure edge is the exit block.
func (e *Emitter) enterMatch(n *ast.MatchStmt) (ast.Action, error) {
	if err := ast.Walk(e, n.Expr); err != nil {
		return ast.SkipChildren, err
	}
	expression, err := e.popInstruction()
	if err != nil {
		return ast.SkipChildren, err
	}

	source := expression.Source
	mainSymbol := e.convertInstructionToSymbol(expression)
	generator := e.representation.SymbolTable.NameGenerator

	matchExit := generator.NewBlockLabel("match_exit")

	// Terminating the current block with a placeholder jump; the first
	// clause rewrites it to its own entry label, and each later clause
	// rewrites the failure edge of the condition block before it. The
	// block moves onto the body now so condition and clause blocks follow
	// it in emission order.
	e.currentBlock.Append(&Instruction{
		Operation: &Jump{Target: matchExit.Clone()},
		Source:    source,
	})
	e.currentBody.Blocks = append(e.currentBody.Blocks, e.currentBlock)

	for i, clause := range n.Clauses {
		labelCondition := generator.NewBlockLabel(fmt.Sprintf("clause_%d_condition", i))
		labelBlock := generator.NewBlockLabel(fmt.Sprintf("clause_%d_block", i))

		var nextJumpLabel *Identifier
		switch pattern := clause.Pattern.(type) {
		case *ast.WildcardPattern:
			// A wildcard has no condition block; its condition label is its
			// block label.
			nextJumpLabel = labelBlock
		case *ast.BinderPattern:
			return ast.SkipChildren, e.errorf("binder patterns are not supported")
		case *ast.ConstructorPattern:
			nextJumpLabel = labelCondition
		default:
			return ast.SkipChildren, e.errorf("unknown pattern %T", pattern)
		}

		last := e.currentBlock.Last()
		if last == nil {
			return ast.SkipChildren, e.errorf("expected previous block to be a terminating jump")
		}
		switch op := last.Operation.(type) {
		case *Jump:
			op.Target = nextJumpLabel.Clone()
		case *ConditionalJump:
			op.OnFailure = nextJumpLabel.Clone()
		default:
			return ast.SkipChildren, e.errorf("expected previous block to be a terminating jump")
		}

		if pattern, ok := clause.Pattern.(*ast.ConstructorPattern); ok {
			if len(pattern.Args) > 0 {
				return ast.SkipChildren, e.errorf("constructor patterns with arguments are not supported")
			}

			// Instating the condition checking block as the current block.
			e.currentBlock = NewFunctionBlockFromSymbol(labelCondition)
			e.currentBody.Blocks = append(e.currentBody.Blocks, e.currentBlock)

			expected := &Identifier{Unresolved: pattern.Name.Name, Kind: KindUnknown, Source: source}
			condition := e.convertInstructionToSymbol(&Instruction{
				Operation: &IsEqual{Left: mainSymbol.Clone(), Right: expected},
				Source:    source,
			})

			e.currentBlock.Append(&Instruction{
				Operation: &ConditionalJump{
					Expression: condition.Clone(),
					OnSuccess:  labelBlock.Clone(),
					// Exit or placeholder; overwritten by the next clause.
					OnFailure: matchExit.Clone(),
				},
				Source: source,
			})
		}

		var clauseBlock *FunctionBlock
		if clause.Body != nil {
			if err := ast.Walk(e, clause.Body); err != nil {
				return ast.SkipChildren, err
			}
			clauseBlock, err = e.popFunctionBlock()
			if err != nil {
				return ast.SkipChildren, err
			}
		} else {
			clauseBlock = NewFunctionBlock("empty_block")
		}

		clauseBlock.Name = labelBlock
		clauseBlock.Append(&Instruction{
			Operation: &Jump{Target: matchExit.Clone()},
			Source:    source,
		})
		clauseBlock.Terminated = true
		e.currentBody.Blocks = append(e.currentBody.Blocks, clauseBlock)
	}

	e.currentBlock = NewFunctionBlockFromSymbol(matchExit)

	return ast.SkipChildren, nil
}

func (e *Emitter) enterComponent(name *ast.Ident, params []*ast.TypedIdent, body *ast.StatementBlock, kind FunctionKind) (ast.Action, error) {
	var arguments []*VariableDeclaration
	for _, param := range params {
		if err := ast.Walk(e, param); err != nil {
			return ast.SkipChildren, err
		}
		decl, err := e.popVariableDeclaration()
		if err != nil {
			return ast.SkipChildren, err
		}
		arguments = append(arguments, decl)
	}

	savedBody := e.currentBody
	e.currentBody = NewFunctionBody()

	var lastBlock *FunctionBlock
	if body != nil {
		if err := ast.Walk(e, body); err != nil {
			return ast.SkipChildren, err
		}
		var err error
		lastBlock, err = e.popFunctionBlock()
		if err != nil {
			return ast.SkipChildren, err
		}
	} else {
		lastBlock = NewFunctionBlockFromSymbol(
			e.representation.SymbolTable.NameGenerator.NewBlockLabel("entry"))
	}

	built := e.currentBody
	e.currentBody = savedBody
	built.Blocks = append(built.Blocks, lastBlock)

	// Terminating the final block with a void return in the event it is
	// not terminated.
	if last := built.Blocks[len(built.Blocks)-1]; !last.Terminated {
		last.Append(&Instruction{
			Operation: &Return{},
			Source:    e.currentLocation(),
		})
		last.Terminated = true
	}

	nameKind := KindTransitionName
	if kind == FunctionKindProcedure {
		nameKind = KindProcedureName
	}

	e.representation.FunctionDefinitions = append(e.representation.FunctionDefinitions, &ConcreteFunction{
		Name: &Identifier{
			Unresolved:   name.Name,
			Kind:         nameKind,
			IsDefinition: true,
			Source:       e.currentLocation(),
		},
		Namespace: e.currentNamespace.Clone(),
		Kind:      kind,
		Arguments: arguments,
		Body:      built,
	})

	return ast.SkipChildren, nil
}
