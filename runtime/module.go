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
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// A ModuleFragment is one stage of a module: a namespace (path ->
// value), the methodspace its methods dispatch through, and the
// predecessor fragment of the previous stage. Global lookup walks the
// fragment's own namespace first, then its predecessors.
const (
	fragmentFieldStage       = heap.HeaderWords + 0
	fragmentFieldNamespace   = heap.HeaderWords + 1
	fragmentFieldMethodspace = heap.HeaderWords + 2
	fragmentFieldPredecessor = heap.HeaderWords + 3
	fragmentWords            = heap.HeaderWords + 4
)

func NewModuleFragment(h *heap.Heap, r *Roots, stage int, methodspace, predecessor value.Value) (value.Value, value.Value) {
	ns, cond := object.NewIdHashMap(h, r.IdHashMapSpecies, 8)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(fragmentWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, r.ModuleFragmentSpecies)
	h.Set(addr+fragmentFieldStage, value.NewInteger(int64(stage)))
	h.Set(addr+fragmentFieldNamespace, ns)
	h.Set(addr+fragmentFieldMethodspace, methodspace)
	h.Set(addr+fragmentFieldPredecessor, predecessor)
	return value.NewHeapObject(addr), value.Value(0)
}

func FragmentStage(h *heap.Heap, f value.Value) int {
	return int(h.Get(f.HeapAddress() + fragmentFieldStage).Int64())
}

func FragmentNamespace(h *heap.Heap, f value.Value) value.Value {
	return h.Get(f.HeapAddress() + fragmentFieldNamespace)
}

func FragmentMethodspace(h *heap.Heap, f value.Value) value.Value {
	return h.Get(f.HeapAddress() + fragmentFieldMethodspace)
}

func FragmentPredecessor(h *heap.Heap, f value.Value) value.Value {
	return h.Get(f.HeapAddress() + fragmentFieldPredecessor)
}

// FragmentDefine binds path to v in the fragment's namespace.
func FragmentDefine(h *heap.Heap, r *Roots, f, path, v value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, f); cond.IsCondition() {
		return cond
	}
	grown, cond := object.IdHashMapSet(h, r.IdHashMapSpecies, FragmentNamespace(h, f), path, v)
	if cond.IsCondition() {
		return cond
	}
	h.Set(f.HeapAddress()+fragmentFieldNamespace, grown)
	return value.Value(0)
}

// FragmentLookup resolves path through the fragment chain, innermost
// stage first.
func FragmentLookup(h *heap.Heap, f, path value.Value) value.Value {
	for cur := f; cur.IsHeapObject(); cur = FragmentPredecessor(h, cur) {
		if v, ok := object.IdHashMapGet(h, FragmentNamespace(h, cur), path); ok {
			return v
		}
	}
	return value.NewLookupError(value.LookupNamespace)
}

// A Module is a named collection of staged fragments.
const (
	moduleFieldName      = heap.HeaderWords + 0
	moduleFieldFragments = heap.HeaderWords + 1
	moduleWords          = heap.HeaderWords + 2
)

func NewModule(h *heap.Heap, r *Roots, name value.Value) (value.Value, value.Value) {
	fragments, cond := object.NewArrayBuffer(h, r.ArrayBufferSpecies, r.ArraySpecies, 2)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	addr, cond := h.Allocate(moduleWords)
	if cond.IsCondition() {
		return value.Value(0), cond
	}
	h.Set(addr, r.ModuleSpecies)
	h.Set(addr+moduleFieldName, name)
	h.Set(addr+moduleFieldFragments, fragments)
	return value.NewHeapObject(addr), value.Value(0)
}

func ModuleName(h *heap.Heap, m value.Value) value.Value {
	return h.Get(m.HeapAddress() + moduleFieldName)
}

func moduleFragments(h *heap.Heap, m value.Value) value.Value {
	return h.Get(m.HeapAddress() + moduleFieldFragments)
}

func ModuleFragmentCount(h *heap.Heap, m value.Value) int {
	return object.ArrayBufferCount(h, moduleFragments(h, m))
}

func ModuleFragmentAt(h *heap.Heap, m value.Value, i int) (value.Value, value.Value) {
	return object.ArrayBufferGet(h, moduleFragments(h, m), i)
}

// ModuleAddFragment appends the next stage's fragment.
func ModuleAddFragment(h *heap.Heap, r *Roots, m, fragment value.Value) value.Value {
	if cond := freeze.MustBeMutable(h, m); cond.IsCondition() {
		return cond
	}
	return object.ArrayBufferAppend(h, r.ArraySpecies, moduleFragments(h, m), fragment)
}

// ModuleStageFragment finds the fragment for one stage ordinal.
func ModuleStageFragment(h *heap.Heap, m value.Value, stage int) (value.Value, value.Value) {
	n := ModuleFragmentCount(h, m)
	for i := 0; i < n; i++ {
		f, cond := ModuleFragmentAt(h, m, i)
		if cond.IsCondition() {
			return value.Value(0), cond
		}
		if FragmentStage(h, f) == stage {
			return f, value.Value(0)
		}
	}
	return value.Value(0), value.NewLookupError(value.LookupNoSuchStage)
}

// LoadLibraryFromStream ingests a serialized module: the stream's bytes
// are handed to the configured decoder and the resulting image is
// installed as a module with one fragment per stage. Compilation of
// serialized method bodies belongs to the caller (the codec and
// compiler driver are external collaborators); literal bindings install
// directly.
func (rt *Runtime) LoadLibraryFromStream(r io.Reader, displayName string) (value.Value, error) {
	if rt.Config.ModuleDecoder == nil {
		return value.Value(0), errors.Errorf("loading %s: no module decoder installed", displayName)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return value.Value(0), errors.Wrapf(err, "reading %s", displayName)
	}
	image, err := rt.Config.ModuleDecoder(data)
	if err != nil {
		return value.Value(0), errors.Wrapf(err, "decoding %s", displayName)
	}
	return rt.InstallModule(image)
}

// InstallModule materializes a decoded module image on the heap.
func (rt *Runtime) InstallModule(image *ModuleImage) (value.Value, error) {
	h := rt.Heap
	name, cond := rt.InternString(image.Name)
	if cond.IsCondition() {
		return value.Value(0), errors.Errorf("interning module name: %s", cond)
	}
	m, cond := NewModule(h, rt.Roots, name)
	if cond.IsCondition() {
		return value.Value(0), errors.Errorf("allocating module: %s", cond)
	}
	unpin := h.Pin(&m)
	defer unpin()

	predecessor := value.Null
	for stage, bindings := range image.Stages {
		ms, cond := rt.newMethodspace()
		if cond.IsCondition() {
			return value.Value(0), errors.Errorf("allocating stage %d methodspace: %s", stage, cond)
		}
		f, cond := NewModuleFragment(h, rt.Roots, stage, ms, predecessor)
		if cond.IsCondition() {
			return value.Value(0), errors.Errorf("allocating stage %d fragment: %s", stage, cond)
		}
		unpinF := h.Pin(&f)
		for path, raw := range bindings {
			pathVal, cond := rt.InternString(path)
			if cond.IsCondition() {
				unpinF()
				return value.Value(0), errors.Errorf("interning %s: %s", path, cond)
			}
			bound, err := rt.importLiteral(raw)
			if err != nil {
				unpinF()
				return value.Value(0), errors.Wrapf(err, "binding %s", path)
			}
			if cond := FragmentDefine(h, rt.Roots, f, pathVal, bound); cond.IsCondition() {
				unpinF()
				return value.Value(0), errors.Errorf("defining %s: %s", path, cond)
			}
		}
		if cond := ModuleAddFragment(h, rt.Roots, m, f); cond.IsCondition() {
			unpinF()
			return value.Value(0), errors.Errorf("adding stage %d: %s", stage, cond)
		}
		predecessor = f
		unpinF()
	}
	rt.modules = append(rt.modules, moduleBox{v: m})
	return m, nil
}

// importLiteral converts the decoder's host-side literal into a heap
// value, covering nil, booleans, int/int64 and strings; any other type
// is an error.
func (rt *Runtime) importLiteral(raw any) (value.Value, error) {
	switch v := raw.(type) {
	case nil:
		return value.Null, nil
	case bool:
		return value.NewBoolean(v), nil
	case int:
		return value.NewInteger(int64(v)), nil
	case int64:
		return value.NewInteger(v), nil
	case string:
		s, cond := rt.InternString(v)
		if cond.IsCondition() {
			return value.Value(0), errors.Errorf("interning literal: %s", cond)
		}
		return s, nil
	default:
		return value.Value(0), errors.Errorf("unsupported literal type %T", raw)
	}
}

func init() {
	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyModuleFragment,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error {
			if !h.Get(addr + fragmentFieldNamespace).IsHeapObject() {
				return fmt.Errorf("module fragment at %d has non-heap namespace", addr)
			}
			return nil
		},
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 40503
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return fmt.Sprintf("#<fragment stage=%d>", h.Get(addr+fragmentFieldStage).Int64())
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: fragmentWords, ValueOffset: fragmentFieldNamespace}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+fragmentFieldNamespace))
			return nil
		},
	})

	heap.RegisterFamily(&heap.Behavior{
		Family:   heap.FamilyModule,
		Division: heap.DivisionCompact,
		Validate: func(h *heap.Heap, addr value.Address) error { return nil },
		TransientHash: func(h *heap.Heap, addr value.Address, depth int) uint32 {
			return uint32(addr) * 2654435761
		},
		IdentityCompare: func(h *heap.Heap, a, b value.Address) bool { return a == b },
		Print: func(h *heap.Heap, addr value.Address) string {
			return "#<module>"
		},
		GetLayout: func(h *heap.Heap, addr value.Address) heap.ObjectLayout {
			return heap.ObjectLayout{SizeWords: moduleWords, ValueOffset: moduleFieldName}
		},
		EnsureOwnedValuesFrozen: func(h *heap.Heap, addr value.Address) error {
			freeze.EnsureFrozen(h, h.Get(addr+moduleFieldFragments))
			return nil
		},
	})
}
