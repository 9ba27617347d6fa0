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

package bluebell_test

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bluebell "github.com/zilliqa/bluebell"
	"github.com/zilliqa/bluebell/internal/ast"
	"github.com/zilliqa/bluebell/internal/testutil"
)

func storeProgram(contract string) *ast.Program {
	return testutil.Program(nil, testutil.Contract(contract,
		[]*ast.Field{testutil.Field("value", "Uint64", testutil.IntLit("Uint64", "0"))},
		testutil.Transition("set", []*ast.TypedIdent{testutil.TypedIdent("v", "Uint64")},
			testutil.Store("value", testutil.Ident("v")),
		),
	))
}

func TestEngineCompilesBatch(t *testing.T) {
	var sources []bluebell.Source
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("Contract%d", i)
		sources = append(sources, bluebell.Source{Name: name, Program: storeProgram(name)})
	}

	engine := bluebell.NewEngine(4,
		bluebell.DefaultTypes{},
		bluebell.DefaultBuiltins{},
		bluebell.DebugBuiltins{Output: io.Discard},
	)

	compiled, err := engine.Run(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, compiled, 8)

	seen := map[string]bool{}
	for _, contract := range compiled {
		seen[contract.Name] = true
		require.NotEmpty(t, contract.Executable.ByteCode)

		fn := contract.Executable.Metadata.Functions
		require.Len(t, fn, 1)
	}
	assert.Len(t, seen, 8, "every source compiled exactly once")
}

func TestEngineReportsFailures(t *testing.T) {
	broken := testutil.Program(nil, testutil.Contract("Broken", nil,
		testutil.Transition("t", nil,
			testutil.Print("x", "ghost"),
		),
	))

	engine := bluebell.NewEngine(2,
		bluebell.DefaultTypes{},
		bluebell.DefaultBuiltins{},
		bluebell.DebugBuiltins{Output: io.Discard},
	)

	compiled, err := engine.Run(context.Background(), []bluebell.Source{
		{Name: "good", Program: storeProgram("Good")},
		{Name: "bad", Program: broken},
	})

	require.Error(t, err)
	for _, contract := range compiled {
		assert.Equal(t, "good", contract.Name, "successful compilations survive a failing sibling")
	}
}

func TestEngineDefaultPoolSize(t *testing.T) {
	engine := bluebell.NewEngine(0,
		bluebell.DefaultTypes{},
		bluebell.DefaultBuiltins{},
		bluebell.DebugBuiltins{Output: io.Discard},
	)

	compiled, err := engine.Run(context.Background(), []bluebell.Source{
		{Name: "only", Program: storeProgram("Only")},
	})
	require.NoError(t, err)
	assert.Len(t, compiled, 1)
}
