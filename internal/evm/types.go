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

// Package evm implements the bytecode layer of the compiler: the opcode
// table, the stack tracked block builder, the compiler context holding the
// host provided runtime extensions, and the final executable assembly.
package evm

import (
	"encoding/binary"
	"fmt"
	"math/big"
)

// TypeKind classifies the primitive vocabulary declared by the host.
type TypeKind int

const (
	// TypeInt is a signed integer of a fixed bit width.
	TypeInt TypeKind = iota

	// TypeUint is an unsigned integer of a fixed bit width.
	TypeUint

	// TypeDynamicString is a length prefixed byte string of dynamic size.
	TypeDynamicString
)

// Type is a primitive machine type declared on the compiler context.
type Type struct {
	Name string
	Kind TypeKind
	Bits int
}

// IsDynamic reports whether values of the type are dynamically sized and
// therefore tail encoded on calls.
func (t Type) IsDynamic() bool {
	return t.Kind == TypeDynamicString
}

// UnpaddedBytes returns the shortest big-endian encoding of v, at least one
// byte long.
func UnpaddedBytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	i := 0
	for i < len(buf)-1 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

// WordBytes returns the 32 byte big-endian encoding of v.
func WordBytes(v *big.Int) ([]byte, error) {
	raw := v.Bytes()
	if len(raw) > 32 {
		return nil, fmt.Errorf("value %s does not fit a machine word", v)
	}

	word := make([]byte, 32)
	copy(word[32-len(raw):], raw)
	return word, nil
}
