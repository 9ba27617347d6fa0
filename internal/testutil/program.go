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

// Package testutil builds compact AST fixtures for compiler tests, taking
// the place of the out of scope parser.
package testutil

import "github.com/zilliqa/bluebell/internal/ast"

var row uint32

// Span returns a fresh single-row source range so every fixture node has
// a distinct, valid position.
func Span() ast.Position {
	row++
	return ast.NewPosition(
		ast.Pos{Byte: row * 10, Row: row, Column: 1},
		ast.Pos{Byte: row*10 + 8, Row: row, Column: 9},
	)
}

// Ident builds an identifier node.
func Ident(name string) *ast.Ident {
	return &ast.Ident{Name: name, Position: Span()}
}

// Special builds a context identifier node like _sender.
func Special(name string) *ast.SpecialIdent {
	return &ast.SpecialIdent{Name: name, Position: Span()}
}

// TypeName builds a type reference node.
func TypeName(name string) *ast.TypeName {
	return &ast.TypeName{Name: name, Position: Span()}
}

// TypedIdent builds a typed parameter or field declaration.
func TypedIdent(name, typename string) *ast.TypedIdent {
	return &ast.TypedIdent{Position: Span(), Name: Ident(name), Type: TypeName(typename)}
}

// IntLit builds an integer literal of the given declared type.
func IntLit(typename, value string) *ast.BasicLit {
	return &ast.BasicLit{Position: Span(), Kind: ast.IntLit, Type: TypeName(typename), Value: value}
}

// StringLit builds a string literal.
func StringLit(value string) *ast.BasicLit {
	return &ast.BasicLit{Position: Span(), Kind: ast.StringLit, Value: value}
}

// Bind builds the statement target = value.
func Bind(target string, value ast.Expr) *ast.BindStmt {
	return &ast.BindStmt{Position: Span(), Target: Ident(target), Value: value}
}

// Store builds the statement field := value.
func Store(field string, value ast.Expr) *ast.StoreStmt {
	return &ast.StoreStmt{Position: Span(), Field: Ident(field), Value: value}
}

// Load builds the statement target <- field.
func Load(target, field string) *ast.LoadStmt {
	return &ast.LoadStmt{Position: Span(), Target: Ident(target), Field: Ident(field)}
}

// Builtin builds the expression builtin name args.
func Builtin(name string, args ...string) *ast.BuiltinCall {
	call := &ast.BuiltinCall{Position: Span(), Name: Ident(name)}
	for _, arg := range args {
		call.Args = append(call.Args, Ident(arg))
	}
	return call
}

// Constructor builds a nullary constructor call expression.
func Constructor(name string) *ast.ConstructorCall {
	return &ast.ConstructorCall{Position: Span(), Name: Ident(name)}
}

// Print builds the statement target = builtin print arg.
func Print(target, arg string) *ast.BindStmt {
	return Bind(target, Builtin("print", arg))
}

// Match builds a match statement over the named variable.
func Match(scrutinee string, clauses ...*ast.MatchClause) *ast.MatchStmt {
	return &ast.MatchStmt{Position: Span(), Expr: Ident(scrutinee), Clauses: clauses}
}

// ConstructorClause builds a match clause guarded by a constructor.
func ConstructorClause(constructor string, statements ...ast.Stmt) *ast.MatchClause {
	return &ast.MatchClause{
		Position: Span(),
		Pattern:  &ast.ConstructorPattern{Position: Span(), Name: Ident(constructor)},
		Body:     Block(statements...),
	}
}

// WildcardClause builds a catch-all match clause.
func WildcardClause(statements ...ast.Stmt) *ast.MatchClause {
	return &ast.MatchClause{
		Position: Span(),
		Pattern:  &ast.WildcardPattern{Position: Span()},
		Body:     Block(statements...),
	}
}

// Block builds a statement block.
func Block(statements ...ast.Stmt) *ast.StatementBlock {
	return &ast.StatementBlock{Position: Span(), Statements: statements}
}

// Transition builds a transition component.
func Transition(name string, params []*ast.TypedIdent, statements ...ast.Stmt) *ast.Transition {
	return &ast.Transition{
		Position: Span(),
		Name:     Ident(name),
		Params:   params,
		Body:     Block(statements...),
	}
}

// Procedure builds a procedure component.
func Procedure(name string, params []*ast.TypedIdent, statements ...ast.Stmt) *ast.Procedure {
	return &ast.Procedure{
		Position: Span(),
		Name:     Ident(name),
		Params:   params,
		Body:     Block(statements...),
	}
}

// Field builds a persistent contract field.
func Field(name, typename string, init ast.Expr) *ast.Field {
	return &ast.Field{Position: Span(), Variable: TypedIdent(name, typename), Init: init}
}

// TypeDef builds a library algebraic type with nullary constructors.
func TypeDef(name string, constructors ...string) *ast.TypeEntry {
	entry := &ast.TypeEntry{Position: Span(), Name: Ident(name)}
	for _, constructor := range constructors {
		entry.Clauses = append(entry.Clauses, &ast.TypeAlternative{
			Position: Span(),
			Name:     Ident(constructor),
		})
	}
	return entry
}

// Library builds a library block.
func Library(name string, entries ...ast.LibraryEntry) *ast.Library {
	return &ast.Library{Position: Span(), Name: Ident(name), Entries: entries}
}

// Contract builds a contract with fields and components.
func Contract(name string, fields []*ast.Field, components ...ast.Component) *ast.Contract {
	return &ast.Contract{
		Position:   Span(),
		Name:       Ident(name),
		Fields:     fields,
		Components: components,
	}
}

// Program builds a complete source unit.
func Program(library *ast.Library, contract *ast.Contract) *ast.Program {
	return &ast.Program{
		Position: Span(),
		Version:  "0",
		Library:  library,
		Contract: contract,
	}
}
