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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zilliqa/bluebell/internal/evm"
)

// DefaultTypes declares the primitive type vocabulary of the source
// language and the boolean default constructors.
type DefaultTypes struct{}

// Attach implements Module.
func (DefaultTypes) Attach(ctx *evm.CompilerContext) {
	ctx.DeclareInteger("Bool", 1)
	ctx.DeclareInteger("Int8", 8)
	ctx.DeclareInteger("Int16", 16)
	ctx.DeclareInteger("Int32", 32)
	ctx.DeclareInteger("Int64", 64)
	ctx.DeclareInteger("Int128", 128)
	ctx.DeclareInteger("Int256", 256)
	ctx.DeclareUnsignedInteger("Uint8", 8)
	ctx.DeclareUnsignedInteger("Uint16", 16)
	ctx.DeclareUnsignedInteger("Uint32", 32)
	ctx.DeclareUnsignedInteger("Uint64", 64)
	ctx.DeclareUnsignedInteger("Uint128", 128)
	ctx.DeclareUnsignedInteger("Uint256", 256)

	for i := 0; i <= 32; i++ {
		ctx.DeclareUnsignedInteger(fmt.Sprintf("ByStr%d", i), i*8)
	}

	ctx.DeclareDynamicString("String")

	ctx.DeclareDefaultConstructor("Bool::False", func(b *evm.Block) {
		b.Push([]byte{0})
	})
	ctx.DeclareDefaultConstructor("Bool::True", func(b *evm.Block) {
		b.Push([]byte{1})
	})
}

// DefaultBuiltins declares the arithmetic, comparison, boolean and hashing
// builtins together with the _sender special variable.
type DefaultBuiltins struct{}

// Attach implements Module.
//
// nolint:funlen // One declaration per builtin.
func (DefaultBuiltins) Attach(ctx *evm.CompilerContext) {
	ctx.DeclareFunction("builtin__eq::<Uint64,Uint64>", []string{"Uint64", "Uint64"}, "Bool").
		AttachAssembly(func(b *evm.Block) {
			b.Eq()
		})

	ctx.DeclareFunction("builtin__eq::<Bool,Bool>", []string{"Bool", "Bool"}, "Bool").
		AttachAssembly(func(b *evm.Block) {
			b.Eq()
		})

	ctx.DeclareFunction("builtin__fibonacci::<Uint64,Uint64>", []string{"Uint64", "Uint64"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			return input, nil
		})

	ctx.DeclareSpecialVariable("_sender", "ByStr20", func(_ *evm.CompilerContext, b *evm.Block) ([]*evm.Block, error) {
		b.Caller()
		return nil, nil
	})

	// Builtin arguments arrive on the stack in call order, second operand
	// on top; order sensitive operations swap before consuming.

	ctx.DeclareInlineGenerics("builtin__add", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Add()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__sub", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		if err := b.Swap(1); err != nil {
			return nil, err
		}
		b.Sub()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__mul", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Mul()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__div", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		if err := b.Swap(1); err != nil {
			return nil, err
		}
		b.Div()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__rem", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		if err := b.Swap(1); err != nil {
			return nil, err
		}
		b.SMod()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__lt", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		if err := b.Swap(1); err != nil {
			return nil, err
		}
		b.Lt()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__lte", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Lt()
		b.IsZero()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__gt", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		if err := b.Swap(1); err != nil {
			return nil, err
		}
		b.Gt()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__gte", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Gt()
		b.IsZero()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__and", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.And()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__orb", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Or()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__notb", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Not()
		return nil, nil
	})

	ctx.DeclareInlineGenerics("builtin__keccak256hash", func(_ *evm.CompilerContext, b *evm.Block, _ []evm.Type) ([]*evm.Block, error) {
		b.Sha3()
		return nil, nil
	})
}

// DebugBuiltins declares the print and panic precompiles together with
// the transfer accepting intrinsic. Output goes to Output, or standard
// output when nil.
type DebugBuiltins struct {
	Output io.Writer
}

func (d DebugBuiltins) out() io.Writer {
	if d.Output != nil {
		return d.Output
	}
	return os.Stdout
}

// Attach implements Module.
//
// nolint:funlen // One declaration per runtime function.
func (d DebugBuiltins) Attach(ctx *evm.CompilerContext) {
	out := d.out()

	ctx.DeclareFunction("builtin__print::<>", nil, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			fmt.Fprintln(out)
			return input, nil
		})

	// Overload signatures of the print builtin; code generation routes
	// them through the builtin__print inline generic below.
	ctx.DeclareFunction("builtin__print::<Uint64>", []string{"Uint64"}, "Uint256")
	ctx.DeclareFunction("builtin__print::<Bool>", []string{"Bool"}, "Uint256")
	ctx.DeclareFunction("builtin__print::<String>", []string{"String"}, "Uint256")
	ctx.DeclareFunction("builtin__print::<ByStr20>", []string{"ByStr20"}, "Uint256")

	ctx.DeclareFunction("print::<Uint64>", []string{"Uint64"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			if len(input) >= 8 {
				value := binary.BigEndian.Uint64(input[len(input)-8:])
				fmt.Fprintf(out, "%d\n", value)
			}
			return input, nil
		})

	ctx.DeclareFunction("print::<ByStr20>", []string{"ByStr20"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			fmt.Fprintf(out, "%s\n", hex.EncodeToString(input))
			return input, nil
		})

	ctx.DeclareFunction("print::<Bool>", []string{"Bool"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			for _, b := range input {
				if b != 0 {
					fmt.Fprintln(out, "true")
					return input, nil
				}
			}
			fmt.Fprintln(out, "false")
			return input, nil
		})

	ctx.DeclareFunction("print::<String>", []string{"String"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			payload, err := decodeStringArgument(input)
			if err != nil {
				return nil, err
			}
			fmt.Fprintf(out, "%s\n", payload)
			return input, nil
		})

	ctx.DeclareFunction("panic::<String>", []string{"String"}, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			payload, err := decodeStringArgument(input)
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("contract panic: %s", payload)
		})

	ctx.DeclareFunction("__intrinsic_accept_transfer::<>", nil, "Uint256").
		AttachRuntime(ctx, func(input []byte) ([]byte, error) {
			fmt.Fprintln(out, "--- accepting incoming transfer ---")
			return input, nil
		})

	ctx.DeclareInlineGenerics("builtin__print", func(ctx *evm.CompilerContext, b *evm.Block, argTypes []evm.Type) ([]*evm.Block, error) {
		if len(argTypes) == 0 {
			signature, ok := ctx.GetFunction("builtin__print::<>")
			if !ok {
				return nil, fmt.Errorf("no print implementation without arguments")
			}
			return nil, b.Call(signature, nil)
		}

		// Arguments sit on the stack in call order; each call consumes
		// the topmost one. Intermediate results are dropped so exactly
		// one value remains.
		for i := len(argTypes) - 1; i >= 0; i-- {
			signature, ok := ctx.GetFunction(fmt.Sprintf("print::<%s>", argTypes[i].Name))
			if !ok {
				return nil, fmt.Errorf("no print implementation for %s", argTypes[i].Name)
			}
			if err := b.Call(signature, []evm.Type{argTypes[i]}); err != nil {
				return nil, err
			}
			if i > 0 {
				b.Pop()
			}
		}
		return nil, nil
	})
}

// decodeStringArgument unpacks the head-tail encoding of a dynamic string
// argument: a head word holding the tail offset, then a 4 byte big-endian
// length prefix followed by the payload.
func decodeStringArgument(input []byte) ([]byte, error) {
	if len(input) <= 32 {
		return nil, fmt.Errorf("string argument of %d bytes is too short", len(input))
	}

	head, tail := input[:32], input[32:]

	offset := binary.BigEndian.Uint32(head[28:32])
	if offset != 0x20 {
		return nil, fmt.Errorf("unexpected string tail offset 0x%x", offset)
	}

	length := binary.BigEndian.Uint32(tail[:4])
	if int(length) > len(tail)-4 {
		return nil, fmt.Errorf("string length %d exceeds the %d payload bytes", length, len(tail)-4)
	}

	return tail[4 : 4+length], nil
}
