// Package persist lays out and reads codeflow run directories.
//
// A run directory holds the run parameters (params.yaml), the held-out and
// training-split metric histories (metrics.json, metrics_tr.json) and the
// latest model snapshot (model.snappy). Every save overwrites the previous
// file through a temporary file and a rename.
package persist

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"codeflow/flow"
	"codeflow/metrics"
	"github.com/dustin/go-humanize"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// File names inside a run directory.
const (
	ParamsFile       = "params.yaml"
	MetricsFile      = "metrics.json"
	TrainMetricsFile = "metrics_tr.json"
	ModelFile        = "model.snappy"
)

// Store reads and writes run directories on a filesystem.
type Store struct {
	fs  afero.Fs
	log *zap.Logger
}

// NewStore creates a Store. A nil fs uses the OS filesystem and a nil logger
// discards output.
func NewStore(fs afero.Fs, log *zap.Logger) *Store {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{fs: fs, log: log}
}

// Fs is the filesystem the store writes to.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// RunDir names the directory of a new run: the architecture followed by the
// UTC creation time.
func RunDir(modelDir, model string, now time.Time) string {
	return filepath.Join(modelDir, model+"_"+now.UTC().Format("Jan_02_15:04"))
}

// CreateRunDir creates dir and its parents. It fails if dir already exists so
// two runs never share a directory.
func (s *Store) CreateRunDir(dir string) error {
	if err := s.fs.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return errors.Wrapf(err, "error creating %s", filepath.Dir(dir))
	}
	if err := s.fs.Mkdir(dir, 0755); err != nil {
		return errors.Wrapf(err, "error creating run directory %s", dir)
	}
	s.log.Info("created run directory", zap.String("dir", dir))
	return nil
}

// Exists reports whether name exists inside dir.
func (s *Store) Exists(dir, name string) bool {
	ok, err := afero.Exists(s.fs, filepath.Join(dir, name))
	return err == nil && ok
}

// SaveMetrics overwrites both metric histories of a run.
func (s *Store) SaveMetrics(dir string, dev, train metrics.History) error {
	if err := s.writeJSON(filepath.Join(dir, MetricsFile), dev); err != nil {
		return err
	}
	return s.writeJSON(filepath.Join(dir, TrainMetricsFile), train)
}

// LoadMetrics reads both metric histories of a run.
func (s *Store) LoadMetrics(dir string) (metrics.History, metrics.History, error) {
	var dev, train metrics.History
	if err := s.readJSON(filepath.Join(dir, MetricsFile), &dev); err != nil {
		return nil, nil, err
	}
	if err := s.readJSON(filepath.Join(dir, TrainMetricsFile), &train); err != nil {
		return nil, nil, err
	}
	return dev, train, nil
}

// SaveModel overwrites the model snapshot of a run.
func (s *Store) SaveModel(dir string, state flow.ModelState) error {
	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if err := gob.NewEncoder(w).Encode(state); err != nil {
		return errors.Wrap(err, "error encoding model snapshot")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "error compressing model snapshot")
	}
	return s.write(filepath.Join(dir, ModelFile), buf.Bytes())
}

// LoadModel reads the model snapshot of a run.
func (s *Store) LoadModel(dir string) (flow.ModelState, error) {
	var state flow.ModelState
	path := filepath.Join(dir, ModelFile)
	f, err := s.fs.Open(path)
	if err != nil {
		return state, errors.Wrapf(err, "error opening %s", path)
	}
	defer f.Close()

	if err := gob.NewDecoder(snappy.NewReader(f)).Decode(&state); err != nil {
		return state, errors.Wrapf(err, "error decoding %s", path)
	}
	return state, nil
}

func (s *Store) writeJSON(path string, v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "error encoding %s", path)
	}
	return s.write(path, buf)
}

func (s *Store) readJSON(path string, v interface{}) error {
	buf, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return errors.Wrapf(err, "error reading %s", path)
	}
	if err := json.Unmarshal(buf, v); err != nil {
		return errors.Wrapf(err, "error decoding %s", path)
	}
	return nil
}

// write replaces path with buf through a temporary file in the same
// directory.
func (s *Store) write(path string, buf []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, buf, 0644); err != nil {
		return errors.Wrapf(err, "error writing %s", tmp)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		s.fs.Remove(tmp)
		return errors.Wrapf(err, "error replacing %s", path)
	}
	s.log.Debug("wrote file", zap.String("path", path), zap.String("size", humanize.Bytes(uint64(len(buf)))))
	return nil
}

// IsNotExist reports whether err was caused by a missing file.
func IsNotExist(err error) bool {
	return os.IsNotExist(errors.Cause(err))
}
