package persist

import (
	"path/filepath"
	"testing"
	"time"

	"codeflow/config"
	"codeflow/flow"
	"codeflow/metrics"
	"codeflow/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDir(t *testing.T) {
	now := time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)
	assert.Equal(t, filepath.Join("saved_models", "cnn_vanilla_Mar_05_14:07"), RunDir("saved_models", "cnn_vanilla", now))
}

func TestCreateRunDirRefusesExisting(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), nil)
	dir := RunDir("out/models", "logreg", time.Now())
	require.NoError(t, s.CreateRunDir(dir))
	require.Error(t, s.CreateRunDir(dir))
}

func TestMetricsRoundTrip(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), nil)
	require.NoError(t, s.CreateRunDir("run"))

	dev := metrics.NewHistory(true)
	dev.Append(map[string]float64{"f1": 0.5, "loss": 1.25})
	train := metrics.NewHistory(false)
	train.Append(map[string]float64{"f1": 0.75})

	require.NoError(t, s.SaveMetrics("run", dev, train))
	gotDev, gotTrain, err := s.LoadMetrics("run")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.25}, gotDev["loss"])
	assert.Equal(t, []float64{0.75}, gotTrain["f1"])
	_, hasLoss := gotTrain["loss"]
	assert.False(t, hasLoss)
	assert.False(t, s.Exists("run", MetricsFile+".tmp"))
}

func TestModelSnapshotOverwrite(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), nil)
	require.NoError(t, s.CreateRunDir("run"))

	first := flow.ModelState{Weights: [][]float64{{1, 2, 3}}, Shapes: [][]int{{3}}}
	require.NoError(t, s.SaveModel("run", first))
	second := flow.ModelState{Weights: [][]float64{{4, 5, 6}}, Shapes: [][]int{{3}}}
	require.NoError(t, s.SaveModel("run", second))

	got, err := s.LoadModel("run")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	_, err = s.LoadModel("missing")
	require.Error(t, err)
	assert.True(t, IsNotExist(err))
}

func TestParamsRoundTrip(t *testing.T) {
	s := NewStore(afero.NewMemMapFs(), nil)
	require.NoError(t, s.CreateRunDir("run"))

	cfg := config.Default()
	cfg.Labels = 50
	cfg.Epochs = 3
	cfg.Objective = config.ObjectiveCrossEntropy
	spec := models.Spec{Name: models.CNNVanilla, Labels: 50, VocabSize: 100, EmbedSize: 8, FilterSize: 4, NumFilterMaps: 10, NormConstraint: 3, Workers: 8}

	require.NoError(t, s.SaveParams("run", NewParams(cfg, "data/notes_50_train.csv", spec)))
	p, err := s.LoadParams("run")
	require.NoError(t, err)
	assert.Equal(t, models.CNNVanilla, p.Model)
	assert.Equal(t, 3, p.Epochs)
	assert.Equal(t, "data/notes_50_train.csv", p.DataPath)
	assert.Equal(t, 4, p.Spec.FilterSize)
	assert.Zero(t, p.Spec.Workers)
}
