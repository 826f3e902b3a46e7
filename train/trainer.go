package train

import (
	"io"

	"codeflow/config"
	"codeflow/corpus"
	"codeflow/models"
	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
)

// ProgressInterval is the number of batches between progress logs.
func ProgressInterval(objective string, stochastic bool) int {
	switch {
	case objective == config.ObjectiveRanking:
		return 5000
	case stochastic:
		return 50
	}
	return 10
}

// Trainer runs training epochs over batch iterators.
type Trainer struct {
	Model     models.Model
	Objective Objective
	Device    models.Device
	MinSize   int // batches with a shorter sequence length are skipped
	LogEvery  int
	Log       *zap.Logger
}

// EpochResult summarizes one training epoch.
type EpochResult struct {
	Loss    float64   // mean over retained batches
	Losses  []float64 // one per retained batch
	Skipped int
	Steps   int
}

// Epoch runs one pass over it in training mode.
func (t *Trainer) Epoch(epoch int, it corpus.Iterator) (EpochResult, error) {
	log := t.Log
	if log == nil {
		log = zap.NewNop()
	}
	every := t.LogEvery
	if every <= 0 {
		every = 1
	}

	var res EpochResult
	t.Model.Train()
	for idx := 0; ; idx++ {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		if b.SeqLen() < t.MinSize {
			res.Skipped++
			log.Debug("skipping short batch", zap.Int("batch", idx), zap.Int("seq_len", b.SeqLen()), zap.Int("min_size", t.MinSize))
			continue
		}

		tokens, targets := t.Device.Place(b)
		t.Model.ZeroGrad()
		t.Model.ResetState(len(b.Inputs))
		logits, err := t.Model.Forward(tokens, b.DocStarts)
		if err != nil {
			return res, err
		}
		loss, stepped, err := t.Objective.Step(t.Model, logits, targets)
		if err != nil {
			return res, err
		}
		if stepped {
			res.Steps++
		}
		res.Losses = append(res.Losses, loss)
		t.Model.EnforceNormConstraint()

		if idx%every == 0 {
			log.Info("train",
				zap.Int("epoch", epoch),
				zap.Int("batch", idx),
				zap.Int("batch_size", b.Size()),
				zap.Int("seq_len", b.SeqLen()),
				zap.Float64("loss", loss))
		}
	}

	if len(res.Losses) == 0 {
		log.Warn("no batches retained this epoch", zap.Int("epoch", epoch), zap.Int("skipped", res.Skipped))
		return res, nil
	}
	res.Loss, _ = stats.Mean(res.Losses)
	log.Info("epoch done",
		zap.Int("epoch", epoch),
		zap.String("batches", humanize.Comma(int64(len(res.Losses)))),
		zap.Int("skipped", res.Skipped),
		zap.Int("steps", res.Steps),
		zap.Float64("loss", res.Loss))
	return res, nil
}
