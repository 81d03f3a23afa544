package risk

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/synheart/synheart-seizure/internal/models"
)

const assessExport = "assess_risk"

// WasmAssessor runs an on-device model compiled to WebAssembly. The
// module exports assess_risk(bpm f64, hrv f64, activity i32, sleep f64) f64
// returning a 0..100 score.
type WasmAssessor struct {
	runtime wazero.Runtime
	module  api.Module
	fn      api.Function
	now     func() time.Time

	mu sync.Mutex
}

// NewWasmAssessor loads the model at path.
func NewWasmAssessor(ctx context.Context, path string) (*WasmAssessor, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm file: %w", err)
	}
	return NewWasmAssessorFromBytes(ctx, wasmBytes)
}

// NewWasmAssessorFromBytes compiles and instantiates a model.
func NewWasmAssessorFromBytes(ctx context.Context, wasmBytes []byte) (*WasmAssessor, error) {
	r := wazero.NewRuntime(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to compile wasm module: %w", err)
	}

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("risk"))
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate wasm module: %w", err)
	}

	fn := mod.ExportedFunction(assessExport)
	if fn == nil {
		r.Close(ctx)
		return nil, fmt.Errorf("%s not exported", assessExport)
	}

	return &WasmAssessor{runtime: r, module: mod, fn: fn, now: time.Now}, nil
}

// Close releases the runtime.
func (a *WasmAssessor) Close(ctx context.Context) error {
	return a.runtime.Close(ctx)
}

// Assess scores the sample. Module instances are not safe for concurrent
// calls, so calls are serialized.
func (a *WasmAssessor) Assess(ctx context.Context, s models.TelemetrySample) (models.RiskAssessment, error) {
	a.mu.Lock()
	results, err := a.fn.Call(ctx,
		api.EncodeF64(s.HeartRate),
		api.EncodeF64(s.HRV),
		api.EncodeI32(s.Activity.Code()),
		api.EncodeF64(s.SleepScore),
	)
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call %s: %v", ErrNoPrediction, assessExport, err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", ErrNoPrediction, assessExport, len(results))
	}

	score := api.DecodeF64(results[0])
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, fmt.Errorf("%w: score is not a number", ErrNoPrediction)
	}
	n := int(math.Round(score))
	return models.AssessmentForScore(n, a.now(), DefaultGuidance[models.BucketForScore(n)]), nil
}
