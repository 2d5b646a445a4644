// Package wasm hosts small WebAssembly modules whose exported functions are
// used as field transform algorithms.
package wasm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// Error codes
const (
	ErrCodeCompileFailed     = 1
	ErrCodeNoModuleLoaded    = 2
	ErrCodeInstantiateFailed = 3
	ErrCodeFunctionNotFound  = 9
	ErrCodeCallFailed        = 10
	ErrCodeUnsupportedType   = 19
	ErrCodeSignature         = 20
	ErrCodeDuplicateModule   = 21
	ErrCodeCloseFailed       = 15
)

// WASMError represents a WASM-specific error
type WASMError struct {
	Code    uint16
	Message string
	Err     error
}

func (e *WASMError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("WASM error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("WASM error %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error if any
func (e *WASMError) Unwrap() error {
	return e.Err
}

func newError(code uint16, err error, format string, args ...any) *WASMError {
	return &WASMError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Config holds configuration options for the WASM runtime
type Config struct {
	// MemoryLimitPages sets the maximum memory size in pages (64KB per page)
	MemoryLimitPages uint32
	// Timeout sets the maximum execution time of a single call
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MemoryLimitPages: 16, // 1MB
		Timeout:          time.Second * 5,
	}
}

// Runtime owns a wazero runtime and the modules instantiated in it.
//
// wazero module instances are not safe for concurrent calls, so every call
// goes through the runtime mutex.
type Runtime struct {
	// Config holds the runtime configuration
	Config *Config

	runtime  wazero.Runtime
	modules  map[string]api.Module
	compiled map[string]wazero.CompiledModule
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewRuntime creates a new Runtime with the given configuration. A nil
// config selects DefaultConfig and a nil logger discards output.
func NewRuntime(ctx context.Context, config *Config, logger *zap.Logger) *Runtime {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wazeroConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(config.MemoryLimitPages).
		WithCloseOnContextDone(true)

	return &Runtime{
		Config:   config,
		runtime:  wazero.NewRuntimeWithConfig(ctx, wazeroConfig),
		modules:  make(map[string]api.Module),
		compiled: make(map[string]wazero.CompiledModule),
		logger:   logger,
	}
}

// Load compiles and instantiates a module under the given name.
func (r *Runtime) Load(ctx context.Context, name string, wasmBytes []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.modules[name]; exists {
		return newError(ErrCodeDuplicateModule, nil, "module %q already loaded", name)
	}

	compiled, err := r.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return newError(ErrCodeCompileFailed, err, "failed to compile module %q", name)
	}

	instance, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = compiled.Close(ctx)
		return newError(ErrCodeInstantiateFailed, err, "failed to instantiate module %q", name)
	}

	r.modules[name] = instance
	r.compiled[name] = compiled
	r.logger.Debug("wasm module loaded", zap.String("module", name), zap.Int("bytes", len(wasmBytes)))
	return nil
}

// Exports returns the names of the functions a module exports, sorted.
func (r *Runtime) Exports(module string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	compiled, ok := r.compiled[module]
	if !ok {
		return nil, newError(ErrCodeNoModuleLoaded, nil, "module %q not loaded", module)
	}
	names := make([]string, 0)
	for name := range compiled.ExportedFunctions() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CallFunction calls an exported function with raw wasm parameters.
func (r *Runtime) CallFunction(ctx context.Context, module, name string, params ...interface{}) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, err := r.lookupLocked(module, name)
	if err != nil {
		return nil, err
	}
	args, err := marshalParams(params...)
	if err != nil {
		return nil, err
	}
	return r.callLocked(ctx, fn, module, name, args)
}

// CallF64 calls an exported f64 -> f64 function.
func (r *Runtime) CallF64(ctx context.Context, module, name string, x float64) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fn, err := r.lookupLocked(module, name)
	if err != nil {
		return 0, err
	}
	def := fn.Definition()
	if !isF64Unary(def.ParamTypes(), def.ResultTypes()) {
		return 0, newError(ErrCodeSignature, nil, "%s.%s is not f64 -> f64", module, name)
	}
	results, err := r.callLocked(ctx, fn, module, name, []uint64{api.EncodeF64(x)})
	if err != nil {
		return 0, err
	}
	return api.DecodeF64(results[0]), nil
}

func isF64Unary(params, results []api.ValueType) bool {
	return len(params) == 1 && params[0] == api.ValueTypeF64 &&
		len(results) == 1 && results[0] == api.ValueTypeF64
}

func (r *Runtime) lookupLocked(module, name string) (api.Function, error) {
	instance, ok := r.modules[module]
	if !ok {
		return nil, newError(ErrCodeNoModuleLoaded, nil, "module %q not loaded", module)
	}
	fn := instance.ExportedFunction(name)
	if fn == nil {
		return nil, newError(ErrCodeFunctionNotFound, nil, "function %q not exported by %q", name, module)
	}
	return fn, nil
}

func (r *Runtime) callLocked(ctx context.Context, fn api.Function, module, name string, args []uint64) ([]uint64, error) {
	if r.Config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Config.Timeout)
		defer cancel()
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return nil, newError(ErrCodeCallFailed, err, "call %s.%s failed", module, name)
	}
	return results, nil
}

// marshalParams marshals parameters for a function call
func marshalParams(params ...interface{}) ([]uint64, error) {
	args := make([]uint64, len(params))
	for i, param := range params {
		switch v := param.(type) {
		case uint32:
			args[i] = uint64(v)
		case uint64:
			args[i] = v
		case int32:
			args[i] = uint64(uint32(v))
		case int64:
			args[i] = uint64(v)
		case float32:
			args[i] = uint64(math.Float32bits(v))
		case float64:
			args[i] = math.Float64bits(v)
		default:
			return nil, newError(ErrCodeUnsupportedType, nil, "unsupported parameter type %T", v)
		}
	}
	return args, nil
}

// Close closes every module and the runtime
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.modules = make(map[string]api.Module)
	r.compiled = make(map[string]wazero.CompiledModule)
	if err := r.runtime.Close(ctx); err != nil {
		return newError(ErrCodeCloseFailed, err, "failed to close runtime")
	}
	return nil
}
