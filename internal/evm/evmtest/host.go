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

// Package evmtest provides a stub host virtual machine used by tests to
// run compiled executables: a word stack, byte addressed memory, a
// persistent storage map and the precompile registry of a compiler
// context. It implements just enough of the instruction set for the
// bytecode this compiler emits.
package evmtest

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/sha3"

	"github.com/zilliqa/bluebell/internal/evm"
)

// HaltAddress is the sentinel return address the host pushes before
// dispatching into a function; jumping to it ends execution.
const HaltAddress = 0xffffffff

// stepLimit bounds execution so a miscompiled loop fails the test instead
// of hanging it.
const stepLimit = 1 << 20

// PrecompileCall records one static call observed during execution.
type PrecompileCall struct {
	Address uint32
	Input   []byte
}

// Host is a stub execution environment for one executable.
type Host struct {
	Caller  [20]byte
	Storage map[string]*big.Int
	Calls   []PrecompileCall

	precompiles map[uint32]evm.PrecompileFn

	stack  []*big.Int
	memory []byte
}

// NewHost create a host wired to the precompiles of ctx.
func NewHost(ctx *evm.CompilerContext) *Host {
	return &Host{
		Storage:     make(map[string]*big.Int),
		precompiles: ctx.Precompiles(),
	}
}

// StorageAt returns the value of the persistent slot, or zero.
func (h *Host) StorageAt(slot int64) *big.Int {
	if value, ok := h.Storage[big.NewInt(slot).String()]; ok {
		return value
	}
	return new(big.Int)
}

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 256)

func (h *Host) push(v *big.Int) {
	h.stack = append(h.stack, new(big.Int).Mod(v, wordModulus))
}

func (h *Host) pop() (*big.Int, error) {
	if len(h.stack) == 0 {
		return nil, fmt.Errorf("stack underflow")
	}
	v := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return v, nil
}

func (h *Host) ensureMemory(size int) {
	if size > len(h.memory) {
		grown := make([]byte, ((size+31)/32)*32)
		copy(grown, h.memory)
		h.memory = grown
	}
}

func (h *Host) mstore(offset int, word *big.Int) {
	h.ensureMemory(offset + 32)
	bytes := word.Bytes()
	for i := 0; i < 32; i++ {
		h.memory[offset+i] = 0
	}
	copy(h.memory[offset+32-len(bytes):], bytes)
}

func (h *Host) mload(offset int) *big.Int {
	h.ensureMemory(offset + 32)
	return new(big.Int).SetBytes(h.memory[offset : offset+32])
}

// Execute runs the named function of the executable with the given
// argument words, using the spec calling convention: the sentinel return
// address below the arguments, arguments in declaration order.
//
// nolint:funlen,gocyclo // One arm per opcode.
func (h *Host) Execute(executable *evm.Executable, function string, args ...*big.Int) error {
	entry, ok := executable.Function(function)
	if !ok {
		return fmt.Errorf("function %q is not in the executable metadata", function)
	}

	h.stack = nil
	h.memory = nil

	// Priming the allocation pointer cell.
	h.mstore(int(evm.AllocationPointer), big.NewInt(int64(evm.MemoryOffset)))

	h.push(big.NewInt(HaltAddress))
	for _, arg := range args {
		h.push(arg)
	}

	code := executable.ByteCode
	pc := entry.Position

	for steps := 0; ; steps++ {
		if steps > stepLimit {
			return fmt.Errorf("execution exceeded %d steps", stepLimit)
		}
		if pc < 0 || pc >= len(code) {
			return fmt.Errorf("program counter %d out of bounds", pc)
		}

		op := evm.Opcode(code[pc])

		switch {
		case op.IsPush():
			n := op.BytecodeArguments()
			if pc+1+n > len(code) {
				return fmt.Errorf("push arguments exceed the bytecode at %d", pc)
			}
			h.push(new(big.Int).SetBytes(code[pc+1 : pc+1+n]))
			pc += 1 + n
			continue

		case op.IsDup():
			n := int(op-evm.DUP1) + 1
			if len(h.stack) < n {
				return fmt.Errorf("stack underflow on %s", op)
			}
			h.push(new(big.Int).Set(h.stack[len(h.stack)-n]))
			pc++
			continue

		case op.IsSwap():
			n := int(op-evm.SWAP1) + 1
			if len(h.stack) < n+1 {
				return fmt.Errorf("stack underflow on %s", op)
			}
			top := len(h.stack) - 1
			h.stack[top], h.stack[top-n] = h.stack[top-n], h.stack[top]
			pc++
			continue
		}

		switch op {
		case evm.STOP:
			return nil

		case evm.ADD, evm.MUL, evm.SUB, evm.DIV, evm.MOD, evm.SMOD,
			evm.LT, evm.GT, evm.EQ, evm.AND, evm.OR, evm.XOR,
			evm.SHL, evm.SHR:
			if err := h.binaryOp(op); err != nil {
				return err
			}

		case evm.ISZERO:
			x, err := h.pop()
			if err != nil {
				return err
			}
			h.push(boolWord(x.Sign() == 0))

		case evm.NOT:
			x, err := h.pop()
			if err != nil {
				return err
			}
			max := new(big.Int).Sub(wordModulus, big.NewInt(1))
			h.push(new(big.Int).Xor(x, max))

		case evm.SHA3:
			offset, err := h.pop()
			if err != nil {
				return err
			}
			size, err := h.pop()
			if err != nil {
				return err
			}
			h.ensureMemory(int(offset.Int64()) + int(size.Int64()))
			hash := sha3.NewLegacyKeccak256()
			hash.Write(h.memory[offset.Int64() : offset.Int64()+size.Int64()])
			h.push(new(big.Int).SetBytes(hash.Sum(nil)))

		case evm.CALLER:
			h.push(new(big.Int).SetBytes(h.Caller[:]))

		case evm.POP:
			if _, err := h.pop(); err != nil {
				return err
			}

		case evm.MLOAD:
			offset, err := h.pop()
			if err != nil {
				return err
			}
			h.push(h.mload(int(offset.Int64())))

		case evm.MSTORE:
			offset, err := h.pop()
			if err != nil {
				return err
			}
			value, err := h.pop()
			if err != nil {
				return err
			}
			h.mstore(int(offset.Int64()), value)

		case evm.MSTORE8:
			offset, err := h.pop()
			if err != nil {
				return err
			}
			value, err := h.pop()
			if err != nil {
				return err
			}
			h.ensureMemory(int(offset.Int64()) + 1)
			h.memory[offset.Int64()] = byte(value.Uint64())

		case evm.SLOAD:
			slot, err := h.pop()
			if err != nil {
				return err
			}
			if value, ok := h.Storage[slot.String()]; ok {
				h.push(new(big.Int).Set(value))
			} else {
				h.push(new(big.Int))
			}

		case evm.SSTORE:
			slot, err := h.pop()
			if err != nil {
				return err
			}
			value, err := h.pop()
			if err != nil {
				return err
			}
			h.Storage[slot.String()] = new(big.Int).Set(value)

		case evm.JUMP:
			dest, err := h.pop()
			if err != nil {
				return err
			}
			if dest.Int64() == HaltAddress {
				return nil
			}
			pc = int(dest.Int64())
			continue

		case evm.JUMPI:
			dest, err := h.pop()
			if err != nil {
				return err
			}
			cond, err := h.pop()
			if err != nil {
				return err
			}
			if cond.Sign() != 0 {
				if dest.Int64() == HaltAddress {
					return nil
				}
				pc = int(dest.Int64())
				continue
			}

		case evm.JUMPDEST:
			// No effect.

		case evm.PC:
			h.push(big.NewInt(int64(pc)))

		case evm.MSIZE:
			h.push(big.NewInt(int64(len(h.memory))))

		case evm.GAS:
			h.push(big.NewInt(1 << 30))

		case evm.STATICCALL:
			if err := h.staticCall(); err != nil {
				return err
			}

		case evm.RETURN:
			return nil

		case evm.REVERT:
			return fmt.Errorf("execution reverted")

		case evm.INVALID:
			return fmt.Errorf("invalid opcode at %d", pc)

		default:
			return fmt.Errorf("unsupported opcode %s at %d", op, pc)
		}

		pc++
	}
}

func (h *Host) binaryOp(op evm.Opcode) error {
	x, err := h.pop()
	if err != nil {
		return err
	}
	y, err := h.pop()
	if err != nil {
		return err
	}

	switch op {
	case evm.ADD:
		h.push(new(big.Int).Add(x, y))
	case evm.MUL:
		h.push(new(big.Int).Mul(x, y))
	case evm.SUB:
		h.push(new(big.Int).Sub(x, y))
	case evm.DIV, evm.SDIV:
		if y.Sign() == 0 {
			h.push(new(big.Int))
		} else {
			h.push(new(big.Int).Div(x, y))
		}
	case evm.MOD, evm.SMOD:
		if y.Sign() == 0 {
			h.push(new(big.Int))
		} else {
			h.push(new(big.Int).Mod(x, y))
		}
	case evm.LT:
		h.push(boolWord(x.Cmp(y) < 0))
	case evm.GT:
		h.push(boolWord(x.Cmp(y) > 0))
	case evm.EQ:
		h.push(boolWord(x.Cmp(y) == 0))
	case evm.AND:
		h.push(new(big.Int).And(x, y))
	case evm.OR:
		h.push(new(big.Int).Or(x, y))
	case evm.XOR:
		h.push(new(big.Int).Xor(x, y))
	case evm.SHL:
		h.push(new(big.Int).Lsh(y, uint(x.Uint64())))
	case evm.SHR:
		h.push(new(big.Int).Rsh(y, uint(x.Uint64())))
	default:
		return fmt.Errorf("unsupported binary opcode %s", op)
	}

	return nil
}

// staticCall pops the call frame, dispatches into the precompile registry
// and writes the output back into memory.
func (h *Host) staticCall() error {
	frame := make([]*big.Int, 6)
	for i := range frame {
		value, err := h.pop()
		if err != nil {
			return err
		}
		frame[i] = value
	}

	address := uint32(frame[1].Uint64())
	argsOffset := int(frame[2].Int64())
	argsSize := int(frame[3].Int64())
	retOffset := int(frame[4].Int64())
	retSize := int(frame[5].Int64())

	h.ensureMemory(argsOffset + argsSize)
	input := append([]byte(nil), h.memory[argsOffset:argsOffset+argsSize]...)
	h.Calls = append(h.Calls, PrecompileCall{Address: address, Input: input})

	precompile, ok := h.precompiles[address]
	if !ok {
		return fmt.Errorf("no precompile at address %d", address)
	}

	output, err := precompile(input)
	if err != nil {
		return err
	}

	h.ensureMemory(retOffset + retSize)
	copy(h.memory[retOffset:retOffset+retSize], output)

	h.push(big.NewInt(1))
	return nil
}

func boolWord(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}
