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

import (
	"fmt"
	"math/big"
	"strings"
)

// TypeInfoKind classifies symbol table declarations.
type TypeInfoKind int

const (
	// TypeInfoPrimitive is a declared base type.
	TypeInfoPrimitive TypeInfoKind = iota

	// TypeInfoFunction is a callable with argument and return types.
	TypeInfoFunction

	// TypeInfoConstructor is a static constructor of a declared type.
	TypeInfoConstructor
)

// TypeInfo describes one declaration held by the symbol table.
type TypeInfo struct {
	SymbolName string
	Typename   string
	Kind       TypeInfoKind
	Arguments  []string
	ReturnType string // Declared return type; empty for none.
}

// IsConstructor reports whether the declaration is a static constructor.
func (t *TypeInfo) IsConstructor() bool { return t.Kind == TypeInfoConstructor }

// StateLayoutEntry assigns a contract field its persistent storage slot.
type StateLayoutEntry struct {
	AddressOffset *big.Int
	Size          uint64
	Initializer   *big.Int
}

// SymbolTable is the process wide map from names to declarations of one
// compilation. It also owns the fresh name generator.
type SymbolTable struct {
	declarations map[string]*TypeInfo // Declared types, functions and constructors.
	typeOf       map[string]string    // Symbol name -> typename.
	stateNames   map[string]bool      // Qualified names of contract fields.

	Aliases       map[string]string
	StateLayout   map[string]*StateLayoutEntry
	NameGenerator *NameGenerator
}

// NewSymbolTable create an empty symbol table with a fresh name generator.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{
		declarations:  make(map[string]*TypeInfo),
		typeOf:        make(map[string]string),
		stateNames:    make(map[string]bool),
		Aliases:       make(map[string]string),
		StateLayout:   make(map[string]*StateLayoutEntry),
		NameGenerator: NewNameGenerator(),
	}
}

// DeclareType registers a named base type.
func (st *SymbolTable) DeclareType(name string) error {
	if _, exists := st.declarations[name]; exists {
		return fmt.Errorf("type %q is already declared", name)
	}
	st.declarations[name] = &TypeInfo{SymbolName: name, Typename: name, Kind: TypeInfoPrimitive}
	return nil
}

// DeclareFunctionType registers a callable signature under its mangled name.
func (st *SymbolTable) DeclareFunctionType(name string, args []string, returnType string) error {
	st.declarations[name] = &TypeInfo{
		SymbolName: name,
		Typename:   name,
		Kind:       TypeInfoFunction,
		Arguments:  append([]string(nil), args...),
		ReturnType: returnType,
	}
	return nil
}

// DeclareConstructor registers a static constructor producing returnType.
func (st *SymbolTable) DeclareConstructor(name string, args []string, returnType string) error {
	st.declarations[name] = &TypeInfo{
		SymbolName: name,
		Typename:   returnType,
		Kind:       TypeInfoConstructor,
		Arguments:  append([]string(nil), args...),
		ReturnType: returnType,
	}
	return nil
}

// DeclareSpecialVariable registers a host supplied value with its type.
func (st *SymbolTable) DeclareSpecialVariable(name, typename string) error {
	return st.DeclareTypeOf(name, typename)
}

// DeclareStateField registers a persistent field under its qualified name.
func (st *SymbolTable) DeclareStateField(qualifiedName, typename string) error {
	st.stateNames[qualifiedName] = true
	return st.DeclareTypeOf(qualifiedName, typename)
}

// DeclareTypeOf records the typename of a symbol.
func (st *SymbolTable) DeclareTypeOf(symbol, typename string) error {
	if existing, ok := st.typeOf[symbol]; ok && existing != typename {
		return fmt.Errorf("symbol %q redeclared with type %q, previously %q", symbol, typename, existing)
	}
	st.typeOf[symbol] = typename
	return nil
}

// TypenameOf returns the recorded typename of a symbol.
func (st *SymbolTable) TypenameOf(symbol string) (string, bool) {
	if typename, ok := st.typeOf[symbol]; ok {
		return typename, true
	}
	if info, ok := st.declarations[symbol]; ok {
		return info.Typename, true
	}
	return "", false
}

// IsState reports whether the qualified name refers to a contract field.
func (st *SymbolTable) IsState(qualifiedName string) bool {
	return st.stateNames[qualifiedName]
}

// ResolveQualifiedName resolves basename against the namespace chain: the
// alias table first, then every namespace suffix from the innermost to the
// global one. It returns the first qualified form that has a declaration.
func (st *SymbolTable) ResolveQualifiedName(basename, namespace string) (string, bool) {
	if alias, ok := st.Aliases[basename]; ok {
		basename = alias
	}

	ns := namespace
	for ns != "" {
		candidate := ns + NamespaceSeparator + basename
		if st.isKnown(candidate) {
			return candidate, true
		}

		if idx := strings.LastIndex(ns, NamespaceSeparator); idx >= 0 {
			ns = ns[:idx]
		} else {
			ns = ""
		}
	}

	if st.isKnown(basename) {
		return basename, true
	}

	return "", false
}

// TypeOf resolves symbol against namespace and returns its declaration.
func (st *SymbolTable) TypeOf(symbol, namespace string) *TypeInfo {
	if info, ok := st.declarations[symbol]; ok {
		return info
	}

	if resolved, ok := st.ResolveQualifiedName(symbol, namespace); ok {
		if info, ok := st.declarations[resolved]; ok {
			return info
		}
		if typename, ok := st.typeOf[resolved]; ok {
			return &TypeInfo{SymbolName: resolved, Typename: typename, Kind: TypeInfoPrimitive}
		}
	}

	if typename, ok := st.typeOf[symbol]; ok {
		return &TypeInfo{SymbolName: symbol, Typename: typename, Kind: TypeInfoPrimitive}
	}

	return nil
}

func (st *SymbolTable) isKnown(name string) bool {
	if _, ok := st.typeOf[name]; ok {
		return true
	}
	_, ok := st.declarations[name]
	return ok
}

// MangledName builds the overload discriminating form name::<t1,t2,...>.
func MangledName(name string, argTypes []string) string {
	return fmt.Sprintf("%s%s<%s>", name, NamespaceSeparator, strings.Join(argTypes, ","))
}

// UnmangledName strips the argument type suffix of a mangled name.
func UnmangledName(name string) string {
	if idx := strings.LastIndex(name, NamespaceSeparator+"<"); idx >= 0 {
		return name[:idx]
	}
	return name
}
