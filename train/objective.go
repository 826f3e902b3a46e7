// Package train runs the codeflow training, evaluation and run bookkeeping
// loops.
package train

import (
	"codeflow/config"
	"codeflow/flow"
	"codeflow/models"
	"github.com/pkg/errors"
)

// Objective turns one batch of logits into a loss and, when its policy
// allows, one optimizer step.
type Objective interface {
	// Step returns the recorded loss and whether the optimizer stepped.
	Step(m models.Model, logits, targets *flow.Tensor) (float64, bool, error)
	Name() string
}

// NewObjective selects an objective by its canonical config name.
func NewObjective(name string, opt flow.Optimizer) (Objective, error) {
	switch name {
	case config.ObjectiveCrossEntropy:
		return &CrossEntropy{loss: flow.SigmoidBCE(flow.SigmoidBCEConfig{}), opt: opt}, nil
	case config.ObjectiveRanking:
		return &Ranking{loss: flow.PairwiseRanking(flow.PairwiseRankingConfig{}), opt: opt}, nil
	}
	return nil, errors.Errorf("unknown objective %q", name)
}

// CrossEntropy is sigmoid binary cross-entropy averaged over every label of
// every document. It steps on every batch.
type CrossEntropy struct {
	loss *flow.SigmoidBCELoss
	opt  flow.Optimizer
}

func (o *CrossEntropy) Step(m models.Model, logits, targets *flow.Tensor) (float64, bool, error) {
	loss, grad := o.loss.Compute(logits, targets)
	if err := m.Backward(grad); err != nil {
		return 0, false, err
	}
	o.opt.Step(m.Parameters(), m.Gradients())
	return loss, true, nil
}

func (o *CrossEntropy) Name() string { return config.ObjectiveCrossEntropy }

// Ranking is the per-document pairwise hinge loss. A batch whose loss vector
// holds a single document records its loss without stepping; the recorded
// loss is the sum over documents.
type Ranking struct {
	loss *flow.PairwiseRankingLoss
	opt  flow.Optimizer
}

func (o *Ranking) Step(m models.Model, logits, targets *flow.Tensor) (float64, bool, error) {
	losses, grad := o.loss.Compute(logits, targets)
	total := 0.0
	for _, l := range losses {
		total += l
	}
	if len(losses) <= 1 {
		return total, false, nil
	}
	if err := m.Backward(grad); err != nil {
		return 0, false, err
	}
	o.opt.Step(m.Parameters(), m.Gradients())
	return total, true, nil
}

func (o *Ranking) Name() string { return config.ObjectiveRanking }
