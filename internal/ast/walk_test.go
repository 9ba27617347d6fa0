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

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the traversal protocol for assertions.
type recorder struct {
	events    []string
	skip      map[string]bool
	failOn    string
	positions int
}

func (r *recorder) name(n Node) string {
	switch node := n.(type) {
	case *Ident:
		return fmt.Sprintf("ident:%s", node.Name)
	case *BasicLit:
		return fmt.Sprintf("lit:%s", node.Value)
	default:
		return fmt.Sprintf("%T", n)
	}
}

func (r *recorder) Enter(n Node) (Action, error) {
	name := r.name(n)
	r.events = append(r.events, "enter "+name)

	if r.failOn == name {
		return Continue, errors.New("boom")
	}
	if r.skip[name] {
		return SkipChildren, nil
	}
	return Continue, nil
}

func (r *recorder) Exit(n Node) error {
	r.events = append(r.events, "exit "+r.name(n))
	return nil
}

func (r *recorder) PushSourcePosition(_, _ Pos) { r.positions++ }
func (r *recorder) PopSourcePosition()          { r.positions-- }

func span(row uint32) Position {
	return NewPosition(Pos{Row: row, Column: 1}, Pos{Row: row, Column: 9})
}

func TestWalkVisitsChildrenBetweenEnterAndExit(t *testing.T) {
	bind := &BindStmt{
		Position: span(1),
		Target:   &Ident{Name: "x", Position: span(1)},
		Value:    &BasicLit{Position: span(1), Kind: IntLit, Type: &TypeName{Name: "Uint64", Position: span(1)}, Value: "1"},
	}

	r := &recorder{}
	require.NoError(t, Walk(r, bind))

	assert.Equal(t, []string{
		"enter *ast.BindStmt",
		"enter ident:x",
		"exit ident:x",
		"enter lit:1",
		"exit lit:1",
		"exit *ast.BindStmt",
	}, r.events)
	assert.Zero(t, r.positions, "source position stack should be balanced")
}

func TestWalkSkipChildren(t *testing.T) {
	block := &StatementBlock{
		Position: span(1),
		Statements: []Stmt{
			&BindStmt{
				Position: span(2),
				Target:   &Ident{Name: "x", Position: span(2)},
				Value:    &BasicLit{Position: span(2), Kind: IntLit, Type: &TypeName{Name: "Uint64", Position: span(2)}, Value: "1"},
			},
		},
	}

	r := &recorder{skip: map[string]bool{"*ast.BindStmt": true}}
	require.NoError(t, Walk(r, block))

	assert.Equal(t, []string{
		"enter *ast.StatementBlock",
		"enter *ast.BindStmt",
		"exit *ast.BindStmt",
		"exit *ast.StatementBlock",
	}, r.events)
}

func TestWalkPropagatesErrors(t *testing.T) {
	block := &StatementBlock{
		Position: span(1),
		Statements: []Stmt{
			&AcceptStmt{Position: span(2)},
			&AcceptStmt{Position: span(3)},
		},
	}

	r := &recorder{failOn: "*ast.AcceptStmt"}
	err := Walk(r, block)

	require.EqualError(t, err, "boom")
	assert.Equal(t, []string{
		"enter *ast.StatementBlock",
		"enter *ast.AcceptStmt",
	}, r.events, "traversal aborts on the first failure")
}

func TestWalkMatchStatement(t *testing.T) {
	match := &MatchStmt{
		Position: span(1),
		Expr:     &Ident{Name: "flag", Position: span(1)},
		Clauses: []*MatchClause{
			{
				Position: span(2),
				Pattern:  &ConstructorPattern{Position: span(2), Name: &Ident{Name: "True", Position: span(2)}},
				Body:     &StatementBlock{Position: span(2)},
			},
			{
				Position: span(3),
				Pattern:  &WildcardPattern{Position: span(3)},
			},
		},
	}

	r := &recorder{}
	require.NoError(t, Walk(r, match))

	assert.Contains(t, r.events, "enter ident:flag")
	assert.Contains(t, r.events, "enter ident:True")
	assert.Contains(t, r.events, "enter *ast.WildcardPattern")
}
