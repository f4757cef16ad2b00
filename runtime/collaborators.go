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

package runtime

import (
	"io"
	"os"
	"time"
)

// FileSystem is the pluggable file-system collaborator; the runtime
// itself only ever opens streams it is told about.
type FileSystem interface {
	Open(name string) (io.ReadCloser, error)
}

type nativeFileSystem struct{}

func (nativeFileSystem) Open(name string) (io.ReadCloser, error) { return os.Open(name) }

// NativeFileSystem returns the default os-backed file system.
func NativeFileSystem() FileSystem { return nativeFileSystem{} }

// Clock is the pluggable real-time clock collaborator.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the default wall-clock.
func SystemClock() Clock { return systemClock{} }

// Plugin describes a c-object factory a native extension installs at
// initialization: the namespace it binds under and the byte/value
// region sizes of the objects its factory produces.
type Plugin struct {
	Namespace  string
	DataBytes  int
	ValueCount int
}

// ModuleImage is the decoded form of a serialized module: the boundary
// type between the external plankton codec and the core. Installing an
// image accepts nil, booleans, int/int64 integers and strings as stage
// values; any other value (arrays, maps and tagged instances included)
// makes the install fail with an error.
type ModuleImage struct {
	Name string
	// Stages lists the module's fragments in stage order; each maps
	// namespace paths to literal values. Compiled code arrives through
	// the assembler, not through the image.
	Stages []map[string]any
}

// ModuleDecoder turns a serialized blob into a ModuleImage.
type ModuleDecoder func(data []byte) (*ModuleImage, error)
