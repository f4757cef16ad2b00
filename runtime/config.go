// Copyright 2026 The Neutrino Authors
// This file is part of Neutrino.
//
// Neutrino is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Neutrino is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Neutrino. If not, see <http://www.gnu.org/licenses/>.

// Package runtime assembles the core into a usable whole: the roots
// table, the bootstrap/shutdown lifecycle, configuration, processes and
// tasks, module fragments, and the embedding façade.
package runtime

import (
	"os"

	"github.com/c2h5oh/datasize"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Config carries every runtime option. The TOML-mapped fields can be
// loaded from a file; the rest (plugins, collaborator interfaces, the
// module decoder) are wired programmatically by the embedder.
type Config struct {
	// SemispaceSize is the byte size of each of the two heap spaces.
	SemispaceSize datasize.ByteSize `toml:"semispace_size_bytes"`

	// SystemMemoryLimit is a hard ceiling across all allocations; zero
	// means no limit beyond the semispace size.
	SystemMemoryLimit datasize.ByteSize `toml:"system_memory_limit"`

	// GCFuzzFreq enables fuzz-induced collections with approximately
	// this mean allocation interval; zero disables fuzzing.
	GCFuzzFreq int `toml:"gc_fuzz_freq"`

	// GCFuzzSeed seeds the fuzzer's distribution.
	GCFuzzSeed uint64 `toml:"gc_fuzz_seed"`

	// RandomSeed seeds the runtime's pseudo-random hash stream.
	RandomSeed uint64 `toml:"random_seed"`

	// ExpensiveChecks turns on the assembler's CheckStackHeight
	// pseudo-ops and extra debug validation.
	ExpensiveChecks bool `toml:"expensive_checks"`

	// Plugins are c-object factories installed at initialization.
	Plugins []Plugin `toml:"-"`

	// Services are native-service descriptors bound into the builtin
	// methodspace during initialization, before the roots freeze.
	Services []ServiceDescriptor `toml:"-"`

	// FileSystem and SystemTime are the pluggable collaborators; nil
	// selects the native defaults.
	FileSystem FileSystem `toml:"-"`
	SystemTime Clock      `toml:"-"`

	// ModuleDecoder turns a serialized module blob into the ModuleImage
	// whose literal stage bindings the runtime installs on load; the
	// runtime compiles no code from the image. The codec itself is an
	// external collaborator; a runtime without a decoder cannot load
	// libraries.
	ModuleDecoder ModuleDecoder `toml:"-"`
}

// DefaultConfig returns the options a bare NewRuntime call runs with.
func DefaultConfig() Config {
	return Config{
		SemispaceSize: 4 * datasize.MB,
		RandomSeed:    1,
	}
}

// LoadConfig reads a TOML config file over the defaults. Size fields
// accept human-readable forms ("64MB").
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "reading config %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "decoding config %s", path)
	}
	return cfg, nil
}

func (c Config) semispaceWords() int {
	words := int(c.SemispaceSize.Bytes()) / 8
	if c.SystemMemoryLimit > 0 {
		limit := int(c.SystemMemoryLimit.Bytes()) / 16 // two spaces share the ceiling
		if words > limit {
			words = limit
		}
	}
	if words < 1024 {
		words = 1024
	}
	return words
}
