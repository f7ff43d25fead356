// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package builtin

import "github.com/cascadeflow/cascade/registry"

// All returns the built-in node entries in registration order.
func All() []registry.Entry {
	return []registry.Entry{
		readFileEntry(),
		writeFileEntry(),
		httpRequestEntry(),
		shellCommandEntry(),
		llmGenerateEntry(),
		readFileBatchEntry(),
		llmGenerateBatchEntry(),
		subflowEntry(),
	}
}

// RegisterAll adds every built-in node type to reg.
func RegisterAll(reg *registry.Registry) error {
	for _, e := range All() {
		if err := reg.Register(e); err != nil {
			return err
		}
	}
	return nil
}
