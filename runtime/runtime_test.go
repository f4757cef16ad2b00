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
	"strings"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"

	"github.com/neutrino-rt/neutrino/freeze"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/service"
	"github.com/neutrino-rt/neutrino/value"
)

func newRuntime(t *testing.T, cfg Config) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg, nil)
	require.NoError(t, err)
	return rt
}

func TestBootstrapRootsAreDeepFrozen(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	h := rt.Heap

	require.True(t, freeze.PeekDeepFrozen(h, rt.Roots.BuiltinMethodspace))
	require.True(t, freeze.PeekDeepFrozen(h, rt.Roots.IntegerProtocol))
	require.True(t, freeze.PeekDeepFrozen(h, rt.Roots.ArraySpecies))
	require.True(t, freeze.PeekDeepFrozen(h, rt.Roots.StackBottomCode))

	// The self-describing loop: the species-species' own header is itself.
	meta := rt.Roots.SpeciesSpecies
	require.Equal(t, meta, h.SpeciesOf(meta.HeapAddress()))
}

func TestHeapValidatesAfterBootstrap(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	require.NoError(t, rt.Heap.Validate())
}

func TestSafeValueSurvivesCollections(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	h := rt.Heap

	arr, cond := object.NewArray(h, rt.Roots.ArraySpecies, 10, value.Null)
	require.False(t, cond.IsCondition())
	object.ArraySet(h, arr, 3, value.NewInteger(777))

	sv := rt.ProtectValue(arr)
	for i := 0; i < 4; i++ {
		rt.GarbageCollect()
	}

	got := sv.Deref()
	require.True(t, got.IsHeapObject())
	require.Equal(t, 10, object.ArrayLength(h, got))
	elem, cond := object.ArrayGet(h, got, 3)
	require.False(t, cond.IsCondition())
	require.Equal(t, value.NewInteger(777), elem)
	rt.DisposeSafeValue(sv)
}

func TestWeakSafeValueClearsWhenUnreachable(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	h := rt.Heap

	arr, cond := object.NewArray(h, rt.Roots.ArraySpecies, 4, value.Null)
	require.False(t, cond.IsCondition())
	sv := rt.ProtectValueWithFlags(arr, heap.TrackerWeak)

	rt.GarbageCollect()
	require.True(t, sv.Deref().IsNull(), "weakly held garbage must read as Null")
	rt.DisposeSafeValue(sv)
}

// Allocation pressure with the fuzzer on: every tracked array keeps its
// length and contents across the induced collections.
func TestGCUnderFuzzPressurePreservesArrays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GCFuzzFreq = 16
	cfg.GCFuzzSeed = 7
	rt := newRuntime(t, cfg)
	h := rt.Heap

	const n = 1000
	handles := make([]*SafeValue, 0, n)
	for i := 0; i < n; i++ {
		arr, cond := object.NewArray(h, rt.Roots.ArraySpecies, 10, value.Null)
		require.False(t, cond.IsCondition(), "allocation %d failed: %s", i, cond)
		handles = append(handles, rt.ProtectValue(arr))
		// drop every other handle so there is real garbage to collect
		if i%2 == 1 {
			rt.DisposeSafeValue(handles[i-1])
			handles[i-1] = nil
		}
	}

	for _, sv := range handles {
		if sv == nil {
			continue
		}
		arr := sv.Deref()
		require.Equal(t, 10, object.ArrayLength(h, arr))
		for j := 0; j < 10; j++ {
			elem, cond := object.ArrayGet(h, arr, j)
			require.False(t, cond.IsCondition())
			require.True(t, elem.IsNull(), "no lost updates under fuzz")
		}
	}
}

func TestProcessWorkQueueFIFOOrder(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	h := rt.Heap

	p, cond := NewProcess(h, rt.Roots, 1)
	require.False(t, cond.IsCondition())

	for i := 0; i < 5; i++ {
		require.False(t, ProcessOfferWork(h, p, value.NewInteger(int64(i))).IsCondition())
	}
	for i := 0; i < 5; i++ {
		got, ok := ProcessTakeWork(h, p)
		require.True(t, ok)
		require.Equal(t, value.NewInteger(int64(i)), got)
	}
	_, ok := ProcessTakeWork(h, p)
	require.False(t, ok)
}

func TestModuleFragmentLookupWalksStages(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	h := rt.Heap

	m, err := rt.InstallModule(&ModuleImage{
		Name: "demo",
		Stages: []map[string]any{
			{"x": 1, "shadowed": "old"},
			{"shadowed": "new"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ModuleFragmentCount(h, m))

	top, cond := ModuleStageFragment(h, m, 1)
	require.False(t, cond.IsCondition())

	xPath, _ := rt.InternString("x")
	shadowedPath, _ := rt.InternString("shadowed")

	require.Equal(t, value.NewInteger(1), FragmentLookup(h, top, xPath))
	newStr, _ := rt.InternString("new")
	require.Equal(t, newStr, FragmentLookup(h, top, shadowedPath))

	missing, _ := rt.InternString("missing")
	cond = FragmentLookup(h, top, missing)
	require.True(t, cond.IsCondition())
	require.Equal(t, uint32(value.LookupNamespace), cond.Detail())
}

func TestModuleStageFragmentMissingStage(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	m, err := rt.InstallModule(&ModuleImage{Name: "tiny", Stages: []map[string]any{{}}})
	require.NoError(t, err)
	_, cond := ModuleStageFragment(rt.Heap, m, 9)
	require.True(t, cond.IsCondition())
	require.Equal(t, uint32(value.LookupNoSuchStage), cond.Detail())
}

func TestLoadLibraryWithoutDecoderFails(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	_, err := rt.LoadLibraryFromStream(strings.NewReader("blob"), "x.nl")
	require.Error(t, err)
}

func TestServiceFulfillsPromise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Services = []ServiceDescriptor{{
		Namespace: "echo",
		Methods: map[string]service.Callback{
			"ping": func(req *service.Request) {
				req.Fulfill(value.NewInteger(1234))
			},
		},
	}}
	rt := newRuntime(t, cfg)
	require.True(t, rt.ServiceToken("echo").IsHeapObject())

	p, cond := object.NewPromise(rt.Heap, rt.Roots.PromiseSpecies)
	require.False(t, cond.IsCondition())
	cfg.Services[0].Methods["ping"](&service.Request{Heap: rt.Heap, Promise: p})
	require.Equal(t, object.PromiseFulfilled, object.PromiseGetState(rt.Heap, p))
	require.Equal(t, value.NewInteger(1234), object.PromiseValue(rt.Heap, p))
}

func TestConfigHumanReadableSizes(t *testing.T) {
	var size datasize.ByteSize
	require.NoError(t, size.UnmarshalText([]byte("64MB")))
	cfg := DefaultConfig()
	cfg.SemispaceSize = size
	require.Equal(t, int(size.Bytes())/8, cfg.semispaceWords())
}

func TestRuntimeDeleteIsIdempotentError(t *testing.T) {
	rt := newRuntime(t, DefaultConfig())
	require.NoError(t, rt.Delete())
	require.Error(t, rt.Delete())
}
