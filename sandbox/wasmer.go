package sandbox

import (
	hclog "github.com/hashicorp/go-hclog"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/wasmerio/wasmer-go/wasmer"
	"github.com/zeebo/blake3"
)

const moduleCacheSize = 16

// WasmerRuntime runs guests on the wasmer engine. Compiled modules are
// cached in serialized form keyed by content digest, so relaunching an
// application skips compilation.
type WasmerRuntime struct {
	engine *wasmer.Engine
	cache  *lru.Cache
	log    hclog.Logger
}

func NewWasmerRuntime(l hclog.Logger) (*WasmerRuntime, error) {
	cache, err := lru.New(moduleCacheSize)
	if err != nil {
		return nil, err
	}

	return &WasmerRuntime{
		engine: wasmer.NewEngine(),
		cache:  cache,
		log:    l,
	}, nil
}

func (r *WasmerRuntime) Load(module []byte, host HostTable) (Instance, error) {
	store := wasmer.NewStore(r.engine)

	mod, err := r.compile(store, module)
	if err != nil {
		return nil, errors.Wrap(err, "compiling module")
	}

	imports := wasmer.NewImportObject()

	callType := wasmer.NewFunctionType(
		wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32),
		wasmer.NewValueTypes(wasmer.I32),
	)

	call := wasmer.NewFunction(store, callType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		ret := host.Invoke(args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32())
		return []wasmer.Value{wasmer.NewI32(ret)}, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"munal_call": call,
	})

	inst, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, errors.Wrap(err, "instantiating module")
	}

	mem, err := inst.Exports.GetMemory("memory")
	if err != nil {
		return nil, ErrNoMemory
	}

	return &wasmerInstance{instance: inst, memory: mem, log: r.log}, nil
}

func (r *WasmerRuntime) compile(store *wasmer.Store, module []byte) (*wasmer.Module, error) {
	key := blake3.Sum256(module)

	if v, ok := r.cache.Get(key); ok {
		mod, err := wasmer.DeserializeModule(store, v.([]byte))
		if err == nil {
			r.log.Debug("module cache hit", "digest", key[:8])
			return mod, nil
		}
		r.cache.Remove(key)
	}

	mod, err := wasmer.NewModule(store, module)
	if err != nil {
		return nil, err
	}

	if ser, err := mod.Serialize(); err == nil {
		r.cache.Add(key, ser)
	}

	return mod, nil
}

type wasmerInstance struct {
	instance *wasmer.Instance
	memory   *wasmer.Memory
	log      hclog.Logger
}

func (w *wasmerInstance) Call(entry string) error {
	fn, err := w.instance.Exports.GetFunction(entry)
	if err != nil {
		return errors.Wrapf(ErrNoEntry, "entry=%s", entry)
	}

	if _, err := fn(); err != nil {
		// wasmer reports traps as call errors; the fault stays with the guest
		return &TrapError{Reason: err.Error()}
	}

	return nil
}

func (w *wasmerInstance) MemorySize() uint32 {
	return uint32(w.memory.DataSize())
}

func (w *wasmerInstance) MemoryRead(addr, length uint32) ([]byte, error) {
	data := w.memory.Data()

	if uint64(addr)+uint64(length) > uint64(len(data)) {
		return nil, errors.Wrapf(ErrOutOfBounds, "addr=%#x len=%d mem=%d", addr, length, len(data))
	}

	out := make([]byte, length)
	copy(out, data[addr:addr+length])

	return out, nil
}

func (w *wasmerInstance) MemoryWrite(addr uint32, b []byte) error {
	data := w.memory.Data()

	if uint64(addr)+uint64(len(b)) > uint64(len(data)) {
		return errors.Wrapf(ErrOutOfBounds, "addr=%#x len=%d mem=%d", addr, len(b), len(data))
	}

	copy(data[addr:], b)

	return nil
}

func (w *wasmerInstance) Close() {
	w.instance.Close()
}
