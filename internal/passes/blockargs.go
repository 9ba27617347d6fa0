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
	"sort"

	"github.com/zilliqa/bluebell/internal/ir"
)

// BlockArguments computes, for every block, the set of names that must be
// live on entry, and per outgoing jump the names that must survive the
// jump. Live-in sets come from a backward dataflow fixpoint; every round
// of it also equalizes the two targets of every conditional jump to the
// union of their live-ins, so both edges always agree on the argument set.
//
// Required argument order is fixed once: lexicographic by resolved name
// for jump targets, parameter declaration order for function entries. The
// bytecode generator uses the same order on both sides of every jump.
type BlockArguments struct {
	ir.BasePass
}

// NewBlockArguments create the pass.
func NewBlockArguments() *BlockArguments {
	return &BlockArguments{}
}

// VisitFunction implements ir.Pass.
//
// nolint:funlen,gocyclo // The dataflow fixpoint is one algorithm.
func (p *BlockArguments) VisitFunction(fn *ir.ConcreteFunction, _ *ir.SymbolTable) (ir.VisitResult, error) {
	blocks := fn.Body.Blocks
	if len(blocks) == 0 {
		return ir.SkipChildren, nil
	}

	entryLabel := blocks[0].Label()

	params := make([]string, 0, len(fn.Arguments))
	for _, arg := range fn.Arguments {
		if arg.Name.Resolved == "" {
			return ir.SkipChildren, fmt.Errorf(
				"unresolved function argument %q in %s", arg.Name.Unresolved, fn.Name.Unresolved)
		}
		params = append(params, arg.Name.Resolved)
	}

	uses := make(map[string]map[string]bool, len(blocks))
	defs := make(map[string]map[string]bool, len(blocks))
	succs := make(map[string][]string, len(blocks))
	conds := make(map[string][2]string)
	required := make(map[string]map[string]bool, len(blocks))

	for _, block := range blocks {
		label := block.Label()
		use, def := blockUsesAndDefs(block)
		uses[label] = use
		defs[label] = def
		required[label] = map[string]bool{}

		for _, instr := range block.Instructions {
			switch op := instr.Operation.(type) {
			case *ir.Jump:
				succs[label] = append(succs[label], op.Target.String())
			case *ir.ConditionalJump:
				success, failure := op.OnSuccess.String(), op.OnFailure.String()
				succs[label] = append(succs[label], success, failure)
				conds[label] = [2]string{success, failure}
			}
		}
	}

	for _, param := range params {
		required[entryLabel][param] = true
	}

	for changed := true; changed; {
		changed = false

		for i := len(blocks) - 1; i >= 0; i-- {
			label := blocks[i].Label()
			if label == entryLabel {
				continue
			}

			// The transfer is monotone: sets only ever grow, so the
			// equalization step below cannot oscillate with it.
			next := cloneSet(required[label])
			for name := range uses[label] {
				next[name] = true
			}
			for _, succ := range succs[label] {
				for name := range required[succ] {
					if !defs[label][name] {
						next[name] = true
					}
				}
			}

			if !sameSet(required[label], next) {
				required[label] = next
				changed = true
			}
		}

		// Both edges of a conditional jump must carry the same arguments.
		for _, pair := range conds {
			success, failure := required[pair[0]], required[pair[1]]
			if sameSet(success, failure) {
				continue
			}
			union := map[string]bool{}
			for name := range success {
				union[name] = true
			}
			for name := range failure {
				union[name] = true
			}
			required[pair[0]] = union
			required[pair[1]] = cloneSet(union)
			changed = true
		}
	}

	for _, block := range blocks {
		label := block.Label()

		if label == entryLabel {
			block.Arguments = params
		} else {
			block.Arguments = sortedNames(required[label])
		}

		block.JumpRequiredArguments = make(map[string][]string)
		for _, succ := range succs[label] {
			block.JumpRequiredArguments[succ] = sortedNames(required[succ])
		}
	}

	return ir.SkipChildren, nil
}

// blockUsesAndDefs scans the block in order and splits register names into
// those read before being defined and those defined.
func blockUsesAndDefs(block *ir.FunctionBlock) (use, def map[string]bool) {
	use = map[string]bool{}
	def = map[string]bool{}

	read := func(id *ir.Identifier) {
		if id == nil || !isRegister(id) {
			return
		}
		if name := id.String(); !def[name] {
			use[name] = true
		}
	}

	for _, instr := range block.Instructions {
		switch op := instr.Operation.(type) {
		case *ir.ResolveSymbol:
			read(op.Symbol)
		case *ir.IsEqual:
			read(op.Left)
			read(op.Right)
		case *ir.CallFunction:
			readAll(read, op.Arguments)
		case *ir.CallExternalFunction:
			readAll(read, op.Arguments)
		case *ir.CallStaticFunction:
			readAll(read, op.Arguments)
		case *ir.CallMemberFunction:
			read(op.Owner)
			readAll(read, op.Arguments)
		case *ir.StateStore:
			read(op.Value)
		case *ir.ConditionalJump:
			read(op.Expression)
		case *ir.PhiNode:
			readAll(read, op.Inputs)
		case *ir.Return:
			read(op.Value)
		case *ir.Revert:
			read(op.Value)
		case *ir.TerminatingRef:
			read(op.Ref)
		}

		if instr.SSAName != nil && isRegister(instr.SSAName) {
			def[instr.SSAName.String()] = true
		}
	}

	return use, def
}

func readAll(read func(*ir.Identifier), ids []*ir.Identifier) {
	for _, id := range ids {
		read(id)
	}
}

func isRegister(id *ir.Identifier) bool {
	return id.Kind == ir.KindVirtualRegister || id.Kind == ir.KindIntermediate
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if !b[name] {
			return false
		}
	}
	return true
}

func cloneSet(set map[string]bool) map[string]bool {
	clone := make(map[string]bool, len(set))
	for name := range set {
		clone[name] = true
	}
	return clone
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
