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

package evm

import "encoding/hex"

// FunctionInfo describes one compiled function so the host runtime can
// dispatch calls into the executable.
type FunctionInfo struct {
	Name       string   `json:"name"`
	Arguments  []string `json:"arguments"`
	ReturnType string   `json:"return_type"`
	Position   int      `json:"position"`
}

// Metadata is the dispatch table of an executable.
type Metadata struct {
	Functions []FunctionInfo `json:"functions"`
}

// Executable is the final compilation artifact: the resolved byte stream
// plus the metadata the host needs to run it.
type Executable struct {
	ByteCode []byte   `json:"bytecode"`
	Metadata Metadata `json:"metadata"`

	labels map[string]int
}

// PositionOf returns the byte offset of the given label or function name.
func (e *Executable) PositionOf(label string) (int, bool) {
	position, ok := e.labels[label]
	return position, ok
}

// Function returns the dispatch entry of the named function.
func (e *Executable) Function(name string) (FunctionInfo, bool) {
	for _, fn := range e.Metadata.Functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return FunctionInfo{}, false
}

// Hex returns the bytecode as a hexadecimal string.
func (e *Executable) Hex() string {
	return hex.EncodeToString(e.ByteCode)
}
