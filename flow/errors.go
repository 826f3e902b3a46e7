package flow

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// =============================================================================
// FLOW ERROR TYPES
// Concise, informative error messages with location and context
// =============================================================================

// TensorInfo captures tensor state for error reporting
type TensorInfo struct {
	Shape      []int
	Size       int
	NaNCount   int
	InfCount   int
	MinValue   float64
	MaxValue   float64
	BadIndices []int // First 10 corrupted indices
}

// Format returns a compact string representation
func (t *TensorInfo) Format() string {
	s := fmt.Sprintf("%v size=%d", t.Shape, t.Size)
	if t.NaNCount > 0 || t.InfCount > 0 {
		s += fmt.Sprintf(" (corrupt: %d NaN, %d Inf)", t.NaNCount, t.InfCount)
	} else {
		s += fmt.Sprintf(" range=[%.4f, %.4f]", t.MinValue, t.MaxValue)
	}
	return s
}

// FlowError is the standard error type for layer failures
type FlowError struct {
	Component    string      // "Conv1D", "Dense", etc.
	ErrorType    string      // "shape mismatch", "NaN detected"
	LayerIndex   int         // 0-indexed position
	Phase        string      // "forward", "backward", "build"
	InputInfo    *TensorInfo // nil if not relevant
	ExpectedInfo string      // what was expected
	Cause        string      // human-readable cause
}

// Error implements the error interface
func (e *FlowError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "flow: %s %s at layer %d during %s", e.Component, e.ErrorType, e.LayerIndex, e.Phase)
	if e.InputInfo != nil {
		fmt.Fprintf(&b, "\n  input:    %s", e.InputInfo.Format())
	}
	if e.ExpectedInfo != "" {
		fmt.Fprintf(&b, "\n  expected: %s", e.ExpectedInfo)
	}
	fmt.Fprintf(&b, "\n  cause:    %s", e.Cause)

	return b.String()
}

// ScanTensor checks for NaN/Inf and collects stats
func ScanTensor(t *Tensor) *TensorInfo {
	if t == nil {
		return nil
	}

	info := &TensorInfo{
		Shape:      t.Shape,
		Size:       len(t.Data),
		MinValue:   math.Inf(1),
		MaxValue:   math.Inf(-1),
		BadIndices: make([]int, 0, 10),
	}

	for i, v := range t.Data {
		switch {
		case math.IsNaN(v):
			info.NaNCount++
		case math.IsInf(v, 0):
			info.InfCount++
		default:
			if v < info.MinValue {
				info.MinValue = v
			}
			if v > info.MaxValue {
				info.MaxValue = v
			}
			continue
		}
		if len(info.BadIndices) < 10 {
			info.BadIndices = append(info.BadIndices, i)
		}
	}

	// Handle empty or all-corrupt tensors
	if math.IsInf(info.MinValue, 1) {
		info.MinValue = 0
	}
	if math.IsInf(info.MaxValue, -1) {
		info.MaxValue = 0
	}

	return info
}

// ValidateOutput reports a FlowError when a layer produced NaN or Inf values.
func ValidateOutput(t *Tensor, component string, layerIndex int) error {
	info := ScanTensor(t)
	if info == nil {
		return &FlowError{
			Component:  component,
			ErrorType:  "nil output",
			LayerIndex: layerIndex,
			Phase:      "forward",
			Cause:      "layer returned nil",
		}
	}
	if info.NaNCount > 0 || info.InfCount > 0 {
		return &FlowError{
			Component:  component,
			ErrorType:  "non-finite output",
			LayerIndex: layerIndex,
			Phase:      "forward",
			InputInfo:  info,
			Cause:      fmt.Sprintf("%d NaN, %d Inf values at indices %v", info.NaNCount, info.InfCount, info.BadIndices),
		}
	}
	return nil
}

// errorf creates a formatted error with a stack trace attached
func errorf(format string, args ...interface{}) error {
	return errors.Errorf("flow: "+format, args...)
}
