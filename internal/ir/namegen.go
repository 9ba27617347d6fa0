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

package ir

import "fmt"

// NameGenerator produces fresh SSA names, block labels and anonymous type
// identifiers. It is owned by the symbol table, scoped to one compilation
// and never reused across compilations.
type NameGenerator struct {
	intermediateCounter uint64
	blockCounter        uint64
	typeCounter         uint64
}

// NewNameGenerator create a generator with all counters at zero.
func NewNameGenerator() *NameGenerator {
	return &NameGenerator{}
}

// NewIntermediate returns a fresh intermediate SSA name.
func (g *NameGenerator) NewIntermediate() *Identifier {
	name := fmt.Sprintf("__imm_%d", g.intermediateCounter)
	g.intermediateCounter++
	return &Identifier{Unresolved: name, Kind: KindIntermediate}
}

// NewBlockLabel returns a fresh block label with the given prefix. Labels
// are born resolved: they never go through namespace qualification.
func (g *NameGenerator) NewBlockLabel(prefix string) *Identifier {
	name := fmt.Sprintf("%s_%d", prefix, g.blockCounter)
	g.blockCounter++
	return &Identifier{Unresolved: name, Resolved: name, Kind: KindBlockLabel}
}

// AnonymousTypeID returns a fresh name for a synthesized type.
func (g *NameGenerator) AnonymousTypeID(prefix string) *Identifier {
	name := fmt.Sprintf("__%s_%d", prefix, g.typeCounter)
	g.typeCounter++
	return &Identifier{Unresolved: name, Resolved: name, Kind: KindTypeName}
}

// HexType returns the byte-string type of a hex literal with the given
// payload length in bytes.
func (g *NameGenerator) HexType(byteLen int) *Identifier {
	name := fmt.Sprintf("ByStr%d", byteLen)
	return &Identifier{Unresolved: name, Kind: KindTypeName}
}

// StringType returns the dynamic string type.
func (g *NameGenerator) StringType() *Identifier {
	return &Identifier{Unresolved: "String", Kind: KindTypeName}
}
