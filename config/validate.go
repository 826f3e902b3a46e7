package config

import "fmt"

// ConfigError is a configuration problem found before any I/O.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func invalid(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}

// Validate checks a normalized Run. Architecture checks come first and use
// the same wording users of the command line already know.
func (r Run) Validate() error {
	switch r.Model {
	case ModelSaved:
		if r.SavedModel == "" {
			return invalid("Specified 'saved' but no model path given")
		}
	case ModelLSTM:
		if r.LSTMDim <= 0 {
			return invalid("Specified 'lstm' but no lstm dim given")
		}
	case ModelCNNVanilla:
		if r.FilterSize <= 0 {
			return invalid("Specified 'cnn_vanilla' but no filter size given")
		}
	case ModelCNNMulti:
		if r.MinFilter <= 0 || r.MaxFilter <= 0 {
			return invalid("Specified 'cnn_multi', but (min_filter, max_filter) not fully specified")
		}
	case ModelMLP, ModelLogReg:
	default:
		return invalid("Unknown model %q", r.Model)
	}
	if (r.Model == ModelCNNVanilla || r.Model == ModelCNNMulti) && r.NumFilterMaps <= 0 {
		return invalid("Specified a cnn model but no num_filter_maps given")
	}
	if r.Model == ModelCNNMulti && r.MinFilter > r.MaxFilter {
		return invalid("min_filter %d is larger than max_filter %d", r.MinFilter, r.MaxFilter)
	}

	switch r.Objective {
	case ObjectiveRanking, ObjectiveCrossEntropy:
	default:
		return invalid("Unknown objective %q", r.Objective)
	}

	if r.Labels <= 0 {
		return invalid("Y must be > 0, got %d", r.Labels)
	}
	if r.Epochs <= 0 {
		return invalid("n_epochs must be > 0, got %d", r.Epochs)
	}
	if r.NormConstraint <= 0 {
		return invalid("norm_constraint must be > 0, got %v", r.NormConstraint)
	}
	if r.EmbedSize <= 0 {
		return invalid("embed size must be > 0, got %d", r.EmbedSize)
	}
	if r.BatchSize <= 0 || r.RankingBatchSize <= 0 {
		return invalid("batch sizes must be > 0, got %d and %d", r.BatchSize, r.RankingBatchSize)
	}
	if r.SplitBatch && r.ChunkLen <= 0 {
		return invalid("chunk length must be > 0 with split batching, got %d", r.ChunkLen)
	}
	if r.ModelDir == "" {
		return invalid("model dir must be set")
	}
	return nil
}
