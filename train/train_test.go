package train

import (
	"bytes"
	"io"
	"testing"

	"codeflow/config"
	"codeflow/corpus"
	"codeflow/flow"
	"codeflow/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batchIterator replays fixed batches, calling onNext before each Next.
type batchIterator struct {
	batches []*corpus.Batch
	pos     int
	onNext  func()
}

func (it *batchIterator) Next() (*corpus.Batch, error) {
	if it.onNext != nil {
		it.onNext()
	}
	if it.pos >= len(it.batches) {
		return nil, io.EOF
	}
	b := it.batches[it.pos]
	it.pos++
	return b, nil
}

func (it *batchIterator) Close() error { return nil }

func batch(labels [][]float64, rows ...[]int) *corpus.Batch {
	return &corpus.Batch{Inputs: rows, Labels: labels}
}

func newModel(t *testing.T, name string, norm float64) models.Model {
	m, err := models.New(models.Spec{
		Name:           name,
		Labels:         3,
		VocabSize:      10,
		EmbedSize:      4,
		FilterSize:     3,
		MinFilter:      2,
		MaxFilter:      3,
		NumFilterMaps:  4,
		NormConstraint: norm,
		Seed:           5,
	})
	require.NoError(t, err)
	return m
}

func newTrainer(t *testing.T, m models.Model, objective string, minSize int) *Trainer {
	obj, err := NewObjective(objective, flow.Adam(flow.DefaultAdamConfig()))
	require.NoError(t, err)
	return &Trainer{Model: m, Objective: obj, Device: models.CPU, MinSize: minSize, LogEvery: 1}
}

func TestMargins(t *testing.T) {
	scores := []float64{0.9, 0.1, 0.4}
	labels := []float64{1, 0, 1}
	assert.False(t, MarginWorseThan(-0.5, scores, labels))
	assert.True(t, MarginBetterThan(0.2, scores, labels))
	assert.False(t, MarginBetterThan(0.35, scores, labels))
	assert.True(t, MarginWorseThan(0.31, scores, labels))

	// no false labels: the gap is +Inf
	assert.True(t, MarginBetterThan(0.5, []float64{0.2, 0.3}, []float64{1, 1}))
	assert.False(t, MarginWorseThan(-0.5, []float64{0.2, 0.3}, []float64{1, 1}))
}

func TestCrossEntropyStepsEveryRetainedBatch(t *testing.T) {
	m := newModel(t, models.CNNVanilla, 3)
	tr := newTrainer(t, m, config.ObjectiveCrossEntropy, m.MinInputSize())

	var sums []float64
	it := &batchIterator{
		batches: []*corpus.Batch{
			batch([][]float64{{1, 0, 1}, {0, 1, 0}}, []int{1, 2, 3, 4}, []int{5, 6, 7, 0}),
			batch([][]float64{{1, 1, 0}}, []int{8, 9}),
			batch([][]float64{{0, 0, 1}}, []int{1, 3, 5, 7, 9}),
		},
		onNext: func() { sums = append(sums, flow.Checksum(m.Parameters())) },
	}

	res, err := tr.Epoch(0, it)
	require.NoError(t, err)
	assert.Len(t, res.Losses, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Steps)
	assert.InDelta(t, (res.Losses[0]+res.Losses[1])/2, res.Loss, 1e-12)

	require.Len(t, sums, 4)
	assert.NotEqual(t, sums[0], sums[1])
	assert.Equal(t, sums[1], sums[2])
	assert.NotEqual(t, sums[2], sums[3])
}

func TestRankingSkipsSingleDocumentBatches(t *testing.T) {
	m := newModel(t, models.LogReg, 1e6)
	tr := newTrainer(t, m, config.ObjectiveRanking, 0)

	var sums []float64
	it := &batchIterator{
		batches: []*corpus.Batch{
			batch([][]float64{{1, 0, 1}}, []int{1, 2, 3, 4}),
			batch([][]float64{{1, 0, 1}, {0, 1, 1}}, []int{1, 2, 3, 4}, []int{5, 6, 7, 8}),
		},
		onNext: func() { sums = append(sums, flow.Checksum(m.Parameters())) },
	}

	res, err := tr.Epoch(0, it)
	require.NoError(t, err)
	assert.Len(t, res.Losses, 2)
	assert.Equal(t, 1, res.Steps)
	assert.Greater(t, res.Losses[0], 0.0)

	require.Len(t, sums, 3)
	assert.Equal(t, sums[0], sums[1])
	assert.NotEqual(t, sums[1], sums[2])
}

func TestNormBoundAfterEveryStep(t *testing.T) {
	const bound = 0.05
	m := newModel(t, models.CNNMulti, bound)
	tr := newTrainer(t, m, config.ObjectiveCrossEntropy, m.MinInputSize())
	norms := m.(interface{ OutputNorms() []float64 })

	var batches []*corpus.Batch
	for i := 0; i < 5; i++ {
		batches = append(batches, batch([][]float64{{1, 0, 1}, {0, 1, 0}}, []int{1, 2, 3, 4}, []int{5, 6, 7, 8}))
	}
	checked := 0
	it := &batchIterator{
		batches: batches,
		onNext: func() {
			if checked > 0 {
				for _, n := range norms.OutputNorms() {
					assert.LessOrEqual(t, n, bound+1e-9)
				}
			}
			checked++
		},
	}
	res, err := tr.Epoch(0, it)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Steps)
	assert.Equal(t, 6, checked)
}

func TestEpochWithoutRetainedBatches(t *testing.T) {
	m := newModel(t, models.CNNVanilla, 3)
	tr := newTrainer(t, m, config.ObjectiveCrossEntropy, m.MinInputSize())
	res, err := tr.Epoch(0, &batchIterator{batches: []*corpus.Batch{batch([][]float64{{1, 0, 0}}, []int{1})}})
	require.NoError(t, err)
	assert.Zero(t, res.Loss)
	assert.Equal(t, 1, res.Skipped)
}

func TestProgressInterval(t *testing.T) {
	assert.Equal(t, 5000, ProgressInterval(config.ObjectiveRanking, false))
	assert.Equal(t, 5000, ProgressInterval(config.ObjectiveRanking, true))
	assert.Equal(t, 10, ProgressInterval(config.ObjectiveCrossEntropy, false))
	assert.Equal(t, 50, ProgressInterval(config.ObjectiveCrossEntropy, true))
	_, err := NewObjective("hinge", nil)
	assert.Error(t, err)
}

// fixedModel returns preset logits.
type fixedModel struct {
	models.Model
	logits [][]float64
}

func (m *fixedModel) Eval()          {}
func (m *fixedModel) ResetState(int) {}
func (m *fixedModel) Forward(*flow.Tensor, []int) (*flow.Tensor, error) {
	return flow.FromRows(m.logits), nil
}

func TestEvaluatorDiagnostics(t *testing.T) {
	var out bytes.Buffer
	e := &Evaluator{
		Model:   &fixedModel{logits: [][]float64{{3, -3, 3}, {-3, 3, -3}}},
		Device:  models.CPU,
		MinSize: 3,
		Lookups: &corpus.Lookups{
			Vocab:        map[int]string{1: "chest", 2: "pain", 3: "fever"},
			Codes:        map[int]string{0: "401.9", 1: "250.00", 2: "428.0"},
			Descriptions: map[string]string{"401.9": "hypertension", "250.00": "diabetes", "428.0": "heart failure"},
		},
		Out: &out,
	}
	it := &batchIterator{batches: []*corpus.Batch{
		batch([][]float64{{1, 0, 0}}, []int{1, 2}),
		batch([][]float64{{1, 0, 1}, {1, 0, 0}}, []int{1, 2, 3}, []int{3, 1, 0}),
	}}

	res, err := e.Evaluate(0, "dev", it, EvalOptions{Diagnostics: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Docs)
	assert.Equal(t, 1, res.Skipped)
	assert.Contains(t, res.Metrics, "f1_micro")

	text := out.String()
	assert.Contains(t, text, "did good on this one")
	assert.Contains(t, text, "did bad on this one")
	assert.Contains(t, text, "chest pain fever")
	assert.Contains(t, text, "401.9: hypertension, 428.0: heart failure")

	out.Reset()
	it.pos = 1
	_, err = e.Evaluate(0, "train", it, EvalOptions{})
	require.NoError(t, err)
	assert.Empty(t, out.String())
}
