package persist

import (
	"path/filepath"

	"codeflow/config"
	"codeflow/models"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v2"
)

// Params is the run-configuration record kept next to a snapshot. It holds
// what a resumed run needs to rebuild the model and continue the bookkeeping.
type Params struct {
	Model            string      `yaml:"model"`
	Labels           int         `yaml:"Y"`
	VocabMin         int         `yaml:"vocab_min"`
	Epochs           int         `yaml:"n_epochs"`
	Objective        string      `yaml:"objective"`
	DataPath         string      `yaml:"data_path"`
	SplitBatch       bool        `yaml:"split_batch"`
	Stochastic       bool        `yaml:"stochastic"`
	BatchSize        int         `yaml:"batch_size"`
	ChunkLen         int         `yaml:"chunk_len,omitempty"`
	RankingBatchSize int         `yaml:"ranking_batch_size"`
	Spec             models.Spec `yaml:"spec"`
}

// NewParams records a run configuration and the model it built.
func NewParams(cfg config.Run, dataPath string, spec models.Spec) Params {
	return Params{
		Model:            spec.Name,
		Labels:           cfg.Labels,
		VocabMin:         cfg.VocabMin,
		Epochs:           cfg.Epochs,
		Objective:        cfg.Objective,
		DataPath:         dataPath,
		SplitBatch:       cfg.SplitBatch,
		Stochastic:       cfg.Stochastic,
		BatchSize:        cfg.BatchSize,
		ChunkLen:         cfg.ChunkLen,
		RankingBatchSize: cfg.RankingBatchSize,
		Spec:             spec,
	}
}

// SaveParams overwrites the params record of a run.
func (s *Store) SaveParams(dir string, p Params) error {
	buf, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "error encoding params")
	}
	return s.write(filepath.Join(dir, ParamsFile), buf)
}

// LoadParams reads the params record of a run.
func (s *Store) LoadParams(dir string) (Params, error) {
	var p Params
	path := filepath.Join(dir, ParamsFile)
	buf, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return p, errors.Wrapf(err, "error reading %s", path)
	}
	if err := yaml.UnmarshalStrict(buf, &p); err != nil {
		return p, errors.Wrapf(err, "error decoding %s", path)
	}
	return p, nil
}
