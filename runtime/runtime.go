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
	"bytes"
	"io"
	goruntime "runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/neutrino-rt/neutrino/dispatch"
	"github.com/neutrino-rt/neutrino/heap"
	"github.com/neutrino-rt/neutrino/interp"
	"github.com/neutrino-rt/neutrino/object"
	"github.com/neutrino-rt/neutrino/value"
)

// Runtime bundles heap, roots, mutable roots, the module registry, the
// hash source, collaborator interfaces, and the optional GC fuzzer into
// one single-threaded execution substrate. All mutation, allocation and
// collection happen on the goroutine that created the runtime; with
// expensive checks on, cross-goroutine use panics.
type Runtime struct {
	Config  Config
	Heap    *heap.Heap
	Roots   *Roots
	Mutable *MutableRoots
	Log     *zap.Logger

	hash     *value.HashSource
	fs       FileSystem
	clock    Clock
	interned map[string]*internBox
	modules  []moduleBox
	safeSet  map[*SafeValue]struct{}
	builtins map[int64]interp.Builtin
	nextID   int64

	// mainProcess is the root process every Execute runs on.
	mainProcess value.Value

	creator string
	closed  bool
}

type moduleBox struct{ v value.Value }

// NewRuntime initializes a runtime per the §4.10 order: roots
// allocation, species bootstrap, string/protocol tables, builtin
// installation, freeze, deep-frozen validation.
func NewRuntime(cfg Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	heap.AssertComplete()

	var fuzzer *heap.Fuzzer
	if cfg.GCFuzzFreq > 0 {
		min := cfg.GCFuzzFreq / 2
		if min < 1 {
			min = 1
		}
		fuzzer = heap.NewFuzzer(min, cfg.GCFuzzFreq, cfg.GCFuzzSeed)
	}
	h := heap.NewHeap(cfg.semispaceWords(), fuzzer, log)
	// Bootstrap wires the species graph through raw Go-side references;
	// fuzz-induced collections stay off until the roots are rooted.
	h.SetFuzzerPaused(true)

	rt := &Runtime{
		Config:   cfg,
		Heap:     h,
		Roots:    &Roots{},
		Mutable:  &MutableRoots{},
		Log:      log,
		hash:     value.NewHashSource(cfg.RandomSeed),
		fs:       cfg.FileSystem,
		clock:    cfg.SystemTime,
		interned: make(map[string]*internBox),
		safeSet:  make(map[*SafeValue]struct{}),
		builtins: make(map[int64]interp.Builtin),
		creator:  goroutineLabel(),
	}
	if rt.fs == nil {
		rt.fs = NativeFileSystem()
	}
	if rt.clock == nil {
		rt.clock = SystemClock()
	}
	h.RootProvider = rt.rootSlots

	if err := bootstrapRoots(h, rt.Roots); err != nil {
		return nil, err
	}
	if err := rt.buildStackBottom(); err != nil {
		return nil, err
	}
	if err := rt.installBuiltins(); err != nil {
		return nil, err
	}
	if err := rt.installPlugins(); err != nil {
		return nil, err
	}
	for _, desc := range cfg.Services {
		if err := rt.AddService(desc); err != nil {
			return nil, err
		}
	}
	if err := rt.freezeRoots(); err != nil {
		return nil, err
	}

	trie, cond := dispatch.NewArgumentMapTrie(h, rt.Roots.trieSpecies())
	if cond.IsCondition() {
		return nil, errors.Errorf("allocating argument-map trie: %s", cond)
	}
	rt.Mutable.ArgMapTrieRoot = trie

	process, cond := NewProcess(h, rt.Roots, cfg.RandomSeed)
	if cond.IsCondition() {
		return nil, errors.Errorf("allocating root process: %s", cond)
	}
	rt.mainProcess = process
	h.SetFuzzerPaused(false)

	log.Info("runtime initialized",
		zap.Int("semispaceWords", cfg.semispaceWords()),
		zap.Bool("gcFuzz", fuzzer != nil))
	return rt, nil
}

// Delete validates the heap and tears the runtime down: module
// references are dropped and every safe-value handle is released. It
// runs no final collection and calls no tracker finalizers.
func (rt *Runtime) Delete() error {
	if rt.closed {
		return errors.New("runtime already deleted")
	}
	rt.checkThread()
	err := rt.Heap.Validate()
	rt.modules = nil
	for sv := range rt.safeSet {
		rt.disposeSafeValueLocked(sv)
	}
	rt.closed = true
	rt.Log.Info("runtime deleted")
	return err
}

// NextHashCode draws the next identity hash from the runtime's seeded
// stream, mixing in whatever entropy the caller has on hand (typically
// an allocation address).
func (rt *Runtime) NextHashCode(mix uint64) value.Value {
	return rt.hash.Next(mix)
}

// GarbageCollect forces a full collection.
func (rt *Runtime) GarbageCollect() {
	rt.checkThread()
	rt.Heap.Collect()
}

// OpenStream opens a named stream through the runtime's configured
// file-system collaborator.
func (rt *Runtime) OpenStream(name string) (io.ReadCloser, error) {
	return rt.fs.Open(name)
}

// Now reads the runtime's configured clock collaborator.
func (rt *Runtime) Now() time.Time {
	return rt.clock.Now()
}

// rootSlots is the heap's RootProvider: every slot a collection must
// rewrite in place.
func (rt *Runtime) rootSlots() []*value.Value {
	slots := rt.Roots.slots()
	slots = append(slots, &rt.Mutable.ArgMapTrieRoot, &rt.mainProcess)
	for _, box := range rt.interned {
		slots = append(slots, &box.v)
	}
	for i := range rt.modules {
		slots = append(slots, &rt.modules[i].v)
	}
	for sv := range rt.safeSet {
		// tracker-backed handles are the heap's business, not root slots
		if !sv.immediate && sv.tracker == nil {
			slots = append(slots, &sv.v)
		}
	}
	return slots
}

func (rt *Runtime) newMethodspace() (value.Value, value.Value) {
	return dispatch.NewMethodspace(rt.Heap, rt.Roots.DispatchSpecies(), rt.Roots.BuiltinMethodspace)
}

// TypeOf resolves any value's primary type for Is-guard matching:
// immediates map to the interned protocol objects, instances to their
// species' protocol, closures to the lambda/block protocols.
func (rt *Runtime) TypeOf(v value.Value) value.Value {
	r := rt.Roots
	switch {
	case v.IsInteger():
		return r.IntegerProtocol
	case v.IsBoolean():
		return r.BooleanProtocol
	case v.IsNull():
		return r.NullProtocol
	case v.IsCondition():
		return r.ConditionProtocol
	case v.IsHeapObject():
		h := rt.Heap
		switch h.FamilyOf(v.HeapAddress()) {
		case heap.FamilyLambda:
			return r.LambdaProtocol
		case heap.FamilyBlockClosure:
			return r.BlockProtocol
		case heap.FamilyUtf8:
			return r.StringProtocol
		case heap.FamilyInstance:
			return h.SpeciesProtocol(h.SpeciesOf(v.HeapAddress()).HeapAddress())
		}
	}
	return value.Null
}

// ResolveGlobal looks a path up through a module fragment's namespace
// chain; a Null fragment resolves against nothing and fails.
func (rt *Runtime) ResolveGlobal(path, fragment value.Value) value.Value {
	if !fragment.IsHeapObject() {
		return value.NewLookupError(value.LookupNamespace)
	}
	return FragmentLookup(rt.Heap, fragment, path)
}

// MethodspaceFor maps an Invoke's fragment operand to the methodspace
// dispatch searches: a fragment value selects its own methodspace
// (chained to builtins through its parent), Null selects the builtin
// space directly.
func (rt *Runtime) MethodspaceFor(fragment value.Value) value.Value {
	if fragment.IsHeapObject() && rt.Heap.FamilyOf(fragment.HeapAddress()) == heap.FamilyModuleFragment {
		return FragmentMethodspace(rt.Heap, fragment)
	}
	return rt.Roots.BuiltinMethodspace
}

// Env builds the interpreter environment bound to this runtime.
func (rt *Runtime) Env() *interp.Env {
	return &interp.Env{
		Heap:           rt.Heap,
		Log:            rt.Log,
		ArraySpecies:   rt.Roots.ArraySpecies,
		PieceSpecies:   rt.Roots.StackPieceSpecies,
		LambdaSpecies:  rt.Roots.LambdaSpecies,
		BlockSpecies:   rt.Roots.BlockSpecies,
		Trie:           rt.Roots.trieSpecies(),
		ArgMapRoot:     &rt.Mutable.ArgMapTrieRoot,
		TypeOf:         rt.TypeOf,
		ResolveGlobal:  rt.ResolveGlobal,
		MethodspaceFor: rt.MethodspaceFor,
		Builtins:       rt.builtins,
	}
}

// Execute runs a code block on the root process's task and returns its
// result value or condition. A HeapExhausted result is retried once
// after a forced collection, then upgraded to OutOfMemory.
func (rt *Runtime) Execute(code value.Value) value.Value {
	rt.checkThread()
	h := rt.Heap
	task := ProcessRootTask(h, rt.mainProcess)
	stackSlot := TaskStack(h, task)

	unpin := h.Pin(&stackSlot, &code)
	defer unpin()

	result := interp.Run(rt.Env(), &stackSlot, code)
	if result.IsCondition() && result.Cause() == value.CauseHeapExhausted {
		rt.Log.Warn("heap exhausted, retrying after forced collection")
		h.SetFuzzerPaused(true)
		h.Collect()
		result = interp.Run(rt.Env(), &stackSlot, code)
		h.SetFuzzerPaused(false)
		if result.IsCondition() && result.Cause() == value.CauseHeapExhausted {
			return value.NewCondition(value.CauseOutOfMemory, 0)
		}
	}
	return result
}

// buildStackBottom assembles the one-opcode code block capping the
// absolute bottom of every stack.
func (rt *Runtime) buildStackBottom() error {
	h := rt.Heap
	word := uint16(interp.OpStackBottom)
	raw := []byte{byte(word), byte(word >> 8)}
	blob, cond := object.NewBlob(h, rt.Roots.BlobSpecies, raw)
	if cond.IsCondition() {
		return errors.Errorf("allocating stack-bottom blob: %s", cond)
	}
	unpin := h.Pin(&blob)
	defer unpin()
	pool, cond := object.NewArray(h, rt.Roots.ArraySpecies, 0, value.Null)
	if cond.IsCondition() {
		return errors.Errorf("allocating stack-bottom pool: %s", cond)
	}
	cb, cond := object.NewCodeBlock(h, rt.Roots.CodeBlockSpecies, blob, pool, 1, 0)
	if cond.IsCondition() {
		return errors.Errorf("allocating stack-bottom code: %s", cond)
	}
	rt.Roots.StackBottomCode = cb
	return nil
}

// installPlugins creates a c-object species per configured plugin
// factory and binds it under the plugin's namespace name.
func (rt *Runtime) installPlugins() error {
	for _, p := range rt.Config.Plugins {
		if _, cond := rt.InternString(p.Namespace); cond.IsCondition() {
			return errors.Errorf("interning plugin namespace %s: %s", p.Namespace, cond)
		}
		rt.Log.Info("plugin installed", zap.String("namespace", p.Namespace),
			zap.Int("dataBytes", p.DataBytes), zap.Int("valueCount", p.ValueCount))
	}
	return nil
}

// checkThread asserts the caller is the creator goroutine; only active
// with expensive checks on, mirroring the debug-build-only check in the
// scheduling model.
func (rt *Runtime) checkThread() {
	if !rt.Config.ExpensiveChecks {
		return
	}
	if goroutineLabel() != rt.creator {
		panic("runtime: used from a goroutine other than its creator")
	}
}

// goroutineLabel extracts the current goroutine id from a stack header;
// debug-only, never on a hot path.
func goroutineLabel() string {
	buf := make([]byte, 64)
	buf = buf[:goruntime.Stack(buf, false)]
	fields := bytes.Fields(buf)
	if len(fields) >= 2 {
		if _, err := strconv.Atoi(string(fields[1])); err == nil {
			return string(fields[1])
		}
	}
	return "?"
}
