package models

import (
	"runtime"

	"codeflow/corpus"
	"codeflow/flow"
	"github.com/klauspost/cpuid/v2"
	"go.uber.org/zap"
)

// Device decides how many goroutines the matrix kernels use and converts
// batches into tensors.
type Device struct {
	Name    string
	Workers int
}

// CPU is the plain single-threaded device.
var CPU = Device{Name: "cpu", Workers: 1}

// ResolveDevice picks the accelerated device when accel is set and the
// processor supports AVX2 and FMA3, falling back to CPU with a warning.
func ResolveDevice(accel bool, log *zap.Logger) Device {
	if log == nil {
		log = zap.NewNop()
	}
	if !accel {
		return CPU
	}
	if !cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) {
		log.Warn("accelerated device requested but AVX2/FMA3 unavailable, using cpu",
			zap.String("cpu", cpuid.CPU.BrandName))
		return CPU
	}

	workers := cpuid.CPU.LogicalCores
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	log.Info("using accelerated device",
		zap.String("cpu", cpuid.CPU.BrandName),
		zap.Int("workers", workers))
	return Device{Name: "cpu-parallel", Workers: workers}
}

// Place converts a batch into token [rows, T] and target [docs, Y] tensors.
func (d Device) Place(b *corpus.Batch) (*flow.Tensor, *flow.Tensor) {
	tokens := flow.NewTensor(len(b.Inputs), b.SeqLen())
	for i, row := range b.Inputs {
		dst := tokens.Row(i)
		for j, tok := range row {
			dst[j] = float64(tok)
		}
	}
	return tokens, flow.FromRows(b.Labels)
}
