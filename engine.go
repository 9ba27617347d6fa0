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

package bluebell

import (
	"context"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"github.com/zilliqa/bluebell/internal/ast"
	"github.com/zilliqa/bluebell/internal/evm"
)

const (
	// DefaultPoolSize is the number of concurrent compilations used when
	// the caller does not inform one.
	DefaultPoolSize = 10

	// workerExpiry is the interval time to clean up idle pool workers
	// between batches.
	workerExpiry = 10 * time.Second
)

// Source is one contract program to compile, identified by name.
type Source struct {
	Name    string
	Program *ast.Program
}

// CompiledContract is the result of compiling one Source.
type CompiledContract struct {
	Name       string
	Executable *evm.Executable
}

// Engine compiles batches of independent sources in a pool of goroutines.
// Every source gets its own Compiler, so symbol tables, name generators
// and contexts are never shared: a single compilation stays sequential.
type Engine struct {
	poolSize int
	modules  []Module
}

// NewEngine creates a new engine instance. poolSize is the number of go
// routines to open (DefaultPoolSize is used when 0 or lower); modules are
// attached to the compiler of every source.
func NewEngine(poolSize int, modules ...Module) *Engine {
	if poolSize <= 0 {
		poolSize = DefaultPoolSize
	}

	return &Engine{
		poolSize: poolSize,
		modules:  modules,
	}
}

// newWorkerPool opens the goroutine pool one Run call compiles through.
func (e *Engine) newWorkerPool() (*ants.Pool, error) {
	return ants.NewPool(e.poolSize, ants.WithOptions(ants.Options{
		ExpiryDuration: workerExpiry,
	}))
}

// Run compiles every source in a pool of goroutines. If a compilation
// fails, the remaining ones still run; the first error and the
// successfully compiled contracts are returned.
func (e *Engine) Run(ctx context.Context, sources []Source) ([]CompiledContract, error) {
	var compiled []CompiledContract

	mutex := new(sync.Mutex)
	wg := sync.WaitGroup{}

	workerPool, err := e.newWorkerPool()
	if err != nil {
		return nil, err
	}
	defer workerPool.Release()

	group, _ := errgroup.WithContext(ctx)

	wg.Add(len(sources))

	for _, source := range sources {
		sourceCopy := source

		errSubmit := workerPool.Submit(func() {
			group.Go(func() error {
				defer wg.Done()

				executable, errCompile := NewCompiler(e.modules...).Compile(sourceCopy.Program)
				if errCompile != nil {
					return errCompile
				}

				mutex.Lock()
				compiled = append(compiled, CompiledContract{
					Name:       sourceCopy.Name,
					Executable: executable,
				})
				mutex.Unlock()

				return nil
			})
		})
		if errSubmit != nil {
			return nil, errSubmit
		}
	}

	wg.Wait()
	err = group.Wait()

	return compiled, err
}
