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

// Package passes implements the IR passes run between lowering and
// bytecode generation: declaration resolution, base type annotation and
// block argument computation.
package passes

import (
	"fmt"

	"github.com/zilliqa/bluebell/internal/ir"
)

// ResolveDeclarations walks the IR once and enters every declared name
// into the symbol table: user types and their constructors, contract
// fields with their storage types, and functions under both their
// qualified base name and their mangled overload name. Later passes and
// the bytecode generator resolve against these entries.
type ResolveDeclarations struct {
	ir.BasePass
}

// NewResolveDeclarations create the pass.
func NewResolveDeclarations() *ResolveDeclarations {
	return &ResolveDeclarations{}
}

// VisitTypeDefinition implements ir.Pass.
func (p *ResolveDeclarations) VisitTypeDefinition(def ir.TypeDefinition, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	switch t := def.(type) {
	case *ir.VariantType:
		qualified := qualify(t.Namespace, t.Name.Unresolved)
		t.Name.Resolved = qualified

		if err := symbols.DeclareType(qualified); err != nil {
			return ir.SkipChildren, err
		}

		for _, field := range t.Layout.Fields {
			constructor := qualify(t.Namespace, field.Name.Unresolved)
			field.Name.Resolved = constructor

			var args []string
			if field.Data != nil {
				args = append(args, field.Data.Unresolved)
			}

			if err := symbols.DeclareConstructor(constructor, args, qualified); err != nil {
				return ir.SkipChildren, err
			}
		}

	case *ir.TupleType:
		if err := symbols.DeclareType(t.Name.Unresolved); err != nil {
			return ir.SkipChildren, err
		}

	case *ir.BaseType:
		if err := symbols.DeclareType(t.Name.Unresolved); err != nil {
			return ir.SkipChildren, err
		}
	}

	return ir.SkipChildren, nil
}

// VisitContractField implements ir.Pass.
func (p *ResolveDeclarations) VisitContractField(field *ir.ContractField, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	qualified := qualify(field.Namespace, field.Variable.Name.Unresolved)

	if err := symbols.DeclareStateField(qualified, field.Variable.TypeName.Unresolved); err != nil {
		return ir.SkipChildren, err
	}

	return ir.SkipChildren, nil
}

// VisitFunction implements ir.Pass.
func (p *ResolveDeclarations) VisitFunction(fn *ir.ConcreteFunction, symbols *ir.SymbolTable) (ir.VisitResult, error) {
	qualified := qualify(fn.Namespace, fn.Name.Unresolved)

	argTypes := make([]string, 0, len(fn.Arguments))
	for _, arg := range fn.Arguments {
		argTypes = append(argTypes, arg.TypeName.Unresolved)
	}

	returnType := fn.ReturnType
	if returnType == "" {
		returnType = ir.VoidType
	}

	// The base name resolves call targets; the mangled name carries the
	// overload signature.
	if err := symbols.DeclareFunctionType(qualified, argTypes, returnType); err != nil {
		return ir.SkipChildren, err
	}
	if err := symbols.DeclareFunctionType(ir.MangledName(qualified, argTypes), argTypes, returnType); err != nil {
		return ir.SkipChildren, err
	}

	return ir.SkipChildren, nil
}

func qualify(namespace *ir.Identifier, name string) string {
	if namespace == nil || namespace.Resolved == "" {
		return name
	}
	return fmt.Sprintf("%s%s%s", namespace.Resolved, ir.NamespaceSeparator, name)
}
