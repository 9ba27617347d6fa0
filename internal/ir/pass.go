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

package ir

// VisitResult is the verdict a Pass returns on visiting a node.
type VisitResult int

const (
	// Continue lets the driver recurse into the node children.
	Continue VisitResult = iota

	// SkipChildren makes the driver move on; the pass takes full
	// responsibility for the subtree.
	SkipChildren
)

// Pass is a mutating visitor over the IR. The driver visits the IR in
// deterministic order: type definitions, contract fields, then functions
// (parameters, then body blocks in order, then instructions in order),
// giving the pass the symbol table as mutable context.
type Pass interface {
	// Initiate is called once before traversal starts.
	Initiate(symbols *SymbolTable) error

	// Finalize is called once after traversal completes.
	Finalize(symbols *SymbolTable) error

	VisitTypeDefinition(def TypeDefinition, symbols *SymbolTable) (VisitResult, error)
	VisitContractField(field *ContractField, symbols *SymbolTable) (VisitResult, error)
	VisitFunction(fn *ConcreteFunction, symbols *SymbolTable) (VisitResult, error)
	VisitFunctionBody(body *FunctionBody, symbols *SymbolTable) (VisitResult, error)
	VisitFunctionBlock(block *FunctionBlock, symbols *SymbolTable) (VisitResult, error)
	VisitInstruction(instr *Instruction, symbols *SymbolTable) (VisitResult, error)
	VisitVariableDeclaration(decl *VariableDeclaration, symbols *SymbolTable) (VisitResult, error)
	VisitSymbol(symbol *Identifier, symbols *SymbolTable) (VisitResult, error)
}

// BasePass implements Pass with no-op methods so concrete passes only
// declare the visits they care about.
type BasePass struct{}

func (BasePass) Initiate(*SymbolTable) error { return nil }
func (BasePass) Finalize(*SymbolTable) error { return nil }

func (BasePass) VisitTypeDefinition(TypeDefinition, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitContractField(*ContractField, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitFunction(*ConcreteFunction, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitFunctionBody(*FunctionBody, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitFunctionBlock(*FunctionBlock, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitInstruction(*Instruction, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitVariableDeclaration(*VariableDeclaration, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

func (BasePass) VisitSymbol(*Identifier, *SymbolTable) (VisitResult, error) {
	return Continue, nil
}

// RunPass drives pass p over the whole IR in deterministic order.
//
// nolint:gocyclo // The traversal order is one linear protocol.
func RunPass(p Pass, representation *IR) error {
	symbols := representation.SymbolTable

	if err := p.Initiate(symbols); err != nil {
		return err
	}

	for _, def := range representation.TypeDefinitions {
		if _, err := p.VisitTypeDefinition(def, symbols); err != nil {
			return err
		}
	}

	for _, field := range representation.FieldDefinitions {
		result, err := p.VisitContractField(field, symbols)
		if err != nil {
			return err
		}
		if result == SkipChildren {
			continue
		}
		if _, err := p.VisitVariableDeclaration(field.Variable, symbols); err != nil {
			return err
		}
		if _, err := p.VisitInstruction(field.Initializer, symbols); err != nil {
			return err
		}
	}

	for _, fn := range representation.FunctionDefinitions {
		result, err := p.VisitFunction(fn, symbols)
		if err != nil {
			return err
		}
		if result == SkipChildren {
			continue
		}

		for _, arg := range fn.Arguments {
			if _, err := p.VisitVariableDeclaration(arg, symbols); err != nil {
				return err
			}
		}

		if err := runPassOverBody(p, fn.Body, symbols); err != nil {
			return err
		}
	}

	return p.Finalize(symbols)
}

func runPassOverBody(p Pass, body *FunctionBody, symbols *SymbolTable) error {
	result, err := p.VisitFunctionBody(body, symbols)
	if err != nil {
		return err
	}
	if result == SkipChildren {
		return nil
	}

	for _, block := range body.Blocks {
		result, err := p.VisitFunctionBlock(block, symbols)
		if err != nil {
			return err
		}
		if result == SkipChildren {
			continue
		}

		for _, instr := range block.Instructions {
			if _, err := p.VisitInstruction(instr, symbols); err != nil {
				return err
			}
		}
	}

	return nil
}
