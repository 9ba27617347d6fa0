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
	"encoding/json"
	"os"

	"github.com/zilliqa/bluebell/internal/evm"
)

// IOutput exposes the report of a batch compilation.
type IOutput interface {
	Value() []CompiledContract
	BuildReport() []Report
	GenerateReportInOutputFilePath(outputFilePath string) error
}

// Report is the serialized form of one compiled contract: the bytecode
// and the dispatch metadata the host runtime needs.
type Report struct {
	Name      string             `json:"name"`
	ByteCode  string             `json:"bytecode"`
	Functions []evm.FunctionInfo `json:"functions"`
}

// Output wraps the results of a batch compilation.
type Output struct {
	contracts []CompiledContract
}

// NewOutput create an output over the compiled contracts.
func NewOutput(contracts []CompiledContract) IOutput {
	return &Output{contracts: contracts}
}

// Value returns the compiled contracts.
func (o *Output) Value() []CompiledContract {
	return o.contracts
}

// BuildReport builds the serializable report of every contract.
func (o *Output) BuildReport() []Report {
	reports := make([]Report, 0, len(o.contracts))
	for _, contract := range o.contracts {
		reports = append(reports, Report{
			Name:      contract.Name,
			ByteCode:  contract.Executable.Hex(),
			Functions: contract.Executable.Metadata.Functions,
		})
	}
	return reports
}

// GenerateReportInOutputFilePath writes the report as JSON to the given
// path.
func (o *Output) GenerateReportInOutputFilePath(outputFilePath string) error {
	report, err := json.MarshalIndent(o.BuildReport(), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(outputFilePath, report, 0600)
}
