// Package config holds the run configuration shared by every codeflow
// component.
package config

import (
	"strings"
)

// Architecture names.
const (
	ModelCNNVanilla = "cnn_vanilla"
	ModelCNNMulti   = "cnn_multi"
	ModelLSTM       = "lstm"
	ModelMLP        = "mlp"
	ModelLogReg     = "logreg"
	ModelSaved      = "saved"
)

// Objective names.
const (
	ObjectiveRanking      = "ranking"
	ObjectiveCrossEntropy = "cross-entropy"
)

// Run holds all run configuration - build it once and pass it down.
// Architecture hyperparameters left at 0 are treated as not given.
type Run struct {
	Labels         int // size of the label space
	VocabMin       int // vocabulary cutoff, selects the vocab table
	Model          string
	Epochs         int
	Objective      string
	NormConstraint float64

	LSTMDim       int
	FilterSize    int
	MinFilter     int
	MaxFilter     int
	NumFilterMaps int
	EmbedSize     int

	SavedModel string // run directory to resume from
	DataPath   string // training corpus, "" for the default under DataDir
	DataDir    string
	ModelDir   string

	GPU              bool
	SplitBatch       bool
	Stochastic       bool
	BatchSize        int
	ChunkLen         int
	RankingBatchSize int
	Seed             int64
	Diagnostics      bool // margin scan on the held-out split
	CheckFinite      bool // fail on NaN/Inf layer outputs
}

// Default returns a Run with every optional setting filled in.
func Default() Run {
	return Run{
		EmbedSize:        100,
		DataDir:          "data",
		ModelDir:         "saved_models",
		BatchSize:        16,
		ChunkLen:         1000,
		RankingBatchSize: 1,
		Seed:             1,
	}
}

// Normalize maps accepted spellings onto canonical names: dashes in model
// names become underscores, and "warp"/"bce" select the ranking and
// cross-entropy objectives.
func (r Run) Normalize() Run {
	r.Model = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(r.Model)), "-", "_")

	switch obj := strings.ToLower(strings.TrimSpace(r.Objective)); obj {
	case "warp", "rank":
		r.Objective = ObjectiveRanking
	case "bce", "cross_entropy", "crossentropy":
		r.Objective = ObjectiveCrossEntropy
	default:
		r.Objective = obj
	}
	return r
}

// MinInputSize is the shortest batch sequence the configured architecture
// accepts.
func (r Run) MinInputSize() int {
	switch r.Model {
	case ModelCNNMulti:
		return r.MaxFilter
	case ModelCNNVanilla:
		return r.FilterSize
	}
	return 0
}

// TrainBatchSize is the batch size used for sequential training passes.
func (r Run) TrainBatchSize() int {
	if r.Objective == ObjectiveRanking && !r.Stochastic {
		return r.RankingBatchSize
	}
	return r.BatchSize
}

// Resuming reports whether the run continues a saved model.
func (r Run) Resuming() bool {
	return r.Model == ModelSaved
}
