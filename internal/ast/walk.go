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

package ast

import "fmt"

// Action is the verdict a Visitor returns on entering a node.
type Action int

const (
	// Continue lets Walk recurse into the node children.
	Continue Action = iota

	// SkipChildren makes Walk call Exit without recursing; the visitor
	// takes full responsibility for the subtree.
	SkipChildren
)

// A Visitor's Enter and Exit methods are invoked for each node encountered
// by Walk. Enter is called before the node children are traversed, Exit
// after. Returning SkipChildren from Enter suppresses the recursion.
//
// Walk keeps the visitor informed of the source range currently being
// traversed through PushSourcePosition/PopSourcePosition; the top of that
// stack is the position of the node whose subtree is active.
type Visitor interface {
	Enter(node Node) (Action, error)
	Exit(node Node) error

	PushSourcePosition(start, end Pos)
	PopSourcePosition()
}

// Walk traverses an AST in depth-first order: It pushes the node source
// range, calls v.Enter(node), visits each of the non-nil children of node,
// and finishes with v.Exit(node). An error from the visitor aborts the
// traversal and is propagated to the caller.
//
// nolint:funlen,gocognit,gocyclo // To many type checks to do.
func Walk(v Visitor, node Node) error {
	v.PushSourcePosition(node.Pos().Start(), node.Pos().End())
	defer v.PopSourcePosition()

	action, err := v.Enter(node)
	if err != nil {
		return err
	}

	if action == SkipChildren {
		return v.Exit(node)
	}

	// walk children
	// (the order of the cases matches the order
	// of the corresponding node types in ast.go)
	switch n := node.(type) {
	// Expressions
	case *Ident, *SpecialIdent, *TypeName, *BasicLit:
		// Nothing to do.
	case *LetExpr:
		if err := walkNodes(v, n.Name, n.Type, n.Expr, n.Body); err != nil {
			return err
		}
	case *FnExpr:
		for _, param := range n.Params {
			if err := Walk(v, param); err != nil {
				return err
			}
		}
		if err := Walk(v, n.Body); err != nil {
			return err
		}
	case *AppExpr:
		if err := Walk(v, n.Fun); err != nil {
			return err
		}
		if err := walkExprList(v, n.Args); err != nil {
			return err
		}
	case *BuiltinCall:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, targ := range n.TypeArgs {
			if err := Walk(v, targ); err != nil {
				return err
			}
		}
		if err := walkExprList(v, n.Args); err != nil {
			return err
		}
	case *MessageExpr:
		for _, entry := range n.Entries {
			if err := Walk(v, entry); err != nil {
				return err
			}
		}
	case *MessageEntry:
		if err := walkNodes(v, n.Key, n.Value); err != nil {
			return err
		}
	case *MatchExpr:
		if err := Walk(v, n.Expr); err != nil {
			return err
		}
		for _, clause := range n.Clauses {
			if err := Walk(v, clause); err != nil {
				return err
			}
		}
	case *MatchExprClause:
		if err := walkNodes(v, n.Pattern, n.Body); err != nil {
			return err
		}
	case *ConstructorCall:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, targ := range n.TypeArgs {
			if err := Walk(v, targ); err != nil {
				return err
			}
		}
		if err := walkExprList(v, n.Args); err != nil {
			return err
		}
	case *TypeFnExpr:
		if err := walkNodes(v, n.Param, n.Body); err != nil {
			return err
		}
	case *TypeAppExpr:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, targ := range n.TypeArgs {
			if err := Walk(v, targ); err != nil {
				return err
			}
		}

	// Patterns
	case *WildcardPattern:
		// Nothing to do.
	case *BinderPattern:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
	case *ConstructorPattern:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, arg := range n.Args {
			if err := Walk(v, arg); err != nil {
				return err
			}
		}

	// Statements
	case *StatementBlock:
		for _, stmt := range n.Statements {
			if err := Walk(v, stmt); err != nil {
				return err
			}
		}
	case *LoadStmt:
		if err := walkNodes(v, n.Target, n.Field); err != nil {
			return err
		}
	case *StoreStmt:
		if err := walkNodes(v, n.Field, n.Value); err != nil {
			return err
		}
	case *BindStmt:
		if err := walkNodes(v, n.Target, n.Value); err != nil {
			return err
		}
	case *RemoteFetchStmt:
		if err := walkNodes(v, n.Target, n.Address, n.Field); err != nil {
			return err
		}
	case *ReadFromBCStmt:
		if err := walkNodes(v, n.Target, n.Type); err != nil {
			return err
		}
		for _, arg := range n.Args {
			if err := Walk(v, arg); err != nil {
				return err
			}
		}
	case *MapGetStmt:
		if err := walkNodes(v, n.Target, n.Map); err != nil {
			return err
		}
		if err := walkExprList(v, n.Keys); err != nil {
			return err
		}
	case *MapUpdateStmt:
		if err := Walk(v, n.Map); err != nil {
			return err
		}
		if err := walkExprList(v, n.Keys); err != nil {
			return err
		}
		if n.Value != nil {
			if err := Walk(v, n.Value); err != nil {
				return err
			}
		}
	case *AcceptStmt:
		// Nothing to do.
	case *SendStmt:
		if err := Walk(v, n.Messages); err != nil {
			return err
		}
	case *EventStmt:
		if err := Walk(v, n.Event); err != nil {
			return err
		}
	case *ThrowStmt:
		if n.Error != nil {
			if err := Walk(v, n.Error); err != nil {
				return err
			}
		}
	case *MatchStmt:
		if err := Walk(v, n.Expr); err != nil {
			return err
		}
		for _, clause := range n.Clauses {
			if err := Walk(v, clause); err != nil {
				return err
			}
		}
	case *MatchClause:
		if err := walkNodes(v, n.Pattern, n.Body); err != nil {
			return err
		}
	case *CallProcStmt:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		if err := walkExprList(v, n.Args); err != nil {
			return err
		}
	case *IterateStmt:
		if err := walkNodes(v, n.List, n.Proc); err != nil {
			return err
		}

	// Declarations
	case *Import:
		if err := walkNodes(v, n.Name, n.Alias); err != nil {
			return err
		}
	case *Library:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, entry := range n.Entries {
			if err := Walk(v, entry); err != nil {
				return err
			}
		}
	case *LetEntry:
		if err := walkNodes(v, n.Name, n.Type, n.Expr); err != nil {
			return err
		}
	case *TypeEntry:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, clause := range n.Clauses {
			if err := Walk(v, clause); err != nil {
				return err
			}
		}
	case *TypeAlternative:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, arg := range n.Args {
			if err := Walk(v, arg); err != nil {
				return err
			}
		}
	case *TypedIdent:
		if err := walkNodes(v, n.Name, n.Type); err != nil {
			return err
		}
	case *Field:
		if err := walkNodes(v, n.Variable, n.Init); err != nil {
			return err
		}
	case *Contract:
		if err := Walk(v, n.Name); err != nil {
			return err
		}
		for _, param := range n.Params {
			if err := Walk(v, param); err != nil {
				return err
			}
		}
		if n.Constraint != nil {
			if err := Walk(v, n.Constraint); err != nil {
				return err
			}
		}
		for _, field := range n.Fields {
			if err := Walk(v, field); err != nil {
				return err
			}
		}
		for _, component := range n.Components {
			if err := Walk(v, component); err != nil {
				return err
			}
		}
	case *Transition:
		if err := walkComponent(v, n.Name, n.Params, n.Body); err != nil {
			return err
		}
	case *Procedure:
		if err := walkComponent(v, n.Name, n.Params, n.Body); err != nil {
			return err
		}

	// Programs
	case *Program:
		for _, imp := range n.Imports {
			if err := Walk(v, imp); err != nil {
				return err
			}
		}
		if n.Library != nil {
			if err := Walk(v, n.Library); err != nil {
				return err
			}
		}
		if n.Contract != nil {
			if err := Walk(v, n.Contract); err != nil {
				return err
			}
		}

	default:
		panic(fmt.Sprintf("ast.Walk: unexpected node type %T", n))
	}

	return v.Exit(node)
}

func walkComponent(v Visitor, name *Ident, params []*TypedIdent, body *StatementBlock) error {
	if err := Walk(v, name); err != nil {
		return err
	}
	for _, param := range params {
		if err := Walk(v, param); err != nil {
			return err
		}
	}
	if body != nil {
		return Walk(v, body)
	}
	return nil
}

// walkNodes visits every non-nil node of list in order.
func walkNodes(v Visitor, list ...Node) error {
	for _, n := range list {
		if n == nil || isNilNode(n) {
			continue
		}
		if err := Walk(v, n); err != nil {
			return err
		}
	}
	return nil
}

func walkExprList(v Visitor, list []Expr) error {
	for _, x := range list {
		if err := Walk(v, x); err != nil {
			return err
		}
	}
	return nil
}

// isNilNode reports whether a Node interface holds a nil typed pointer.
func isNilNode(n Node) bool {
	switch t := n.(type) {
	case *Ident:
		return t == nil
	case *TypeName:
		return t == nil
	case *TypedIdent:
		return t == nil
	case *StatementBlock:
		return t == nil
	default:
		return false
	}
}
