package flow

import "math"

// =============================================================================
// MULTI-LABEL OBJECTIVES
// Both operate on raw logits [batch, labels] against 0/1 targets.
// =============================================================================

// SigmoidBCELoss - binary cross-entropy on logits, numerically stable form
type SigmoidBCELoss struct {
	Reduction string // "mean" or "sum"
}

type SigmoidBCEConfig struct {
	Reduction string
}

func SigmoidBCE(config SigmoidBCEConfig) *SigmoidBCELoss {
	if config.Reduction == "" {
		config.Reduction = "mean"
	}
	return &SigmoidBCELoss{Reduction: config.Reduction}
}

// Compute returns the loss and its gradient with respect to logits.
func (l *SigmoidBCELoss) Compute(logits, target *Tensor) (float64, *Tensor) {
	grad := NewTensor(logits.Shape...)
	n := float64(len(logits.Data))
	scale := 1.0
	if l.Reduction == "mean" {
		scale = 1.0 / n
	}

	sum := 0.0
	for i, x := range logits.Data {
		t := target.Data[i]
		// max(x,0) - x*t + log(1 + exp(-|x|))
		sum += math.Max(x, 0) - x*t + math.Log1p(math.Exp(-math.Abs(x)))
		grad.Data[i] = (sigmoid(x) - t) * scale
	}
	return sum * scale, grad
}

func (l *SigmoidBCELoss) Name() string { return "bce" }

// PairwiseRankingLoss - per-instance hinge over (positive, negative) label
// pairs: mean of max(0, margin - s_pos + s_neg).
type PairwiseRankingLoss struct {
	Margin float64
}

type PairwiseRankingConfig struct {
	Margin float64
}

func PairwiseRanking(config PairwiseRankingConfig) *PairwiseRankingLoss {
	if config.Margin == 0 {
		config.Margin = 1.0
	}
	return &PairwiseRankingLoss{Margin: config.Margin}
}

// Compute returns one loss per row and the gradient of their sum with
// respect to logits. A row with no positive or no negative label scores 0.
func (l *PairwiseRankingLoss) Compute(logits, target *Tensor) ([]float64, *Tensor) {
	rows, labels := logits.Shape[0], logits.Shape[1]
	grad := NewTensor(logits.Shape...)
	losses := make([]float64, rows)

	for r := 0; r < rows; r++ {
		scores := logits.Data[r*labels : (r+1)*labels]
		truth := target.Data[r*labels : (r+1)*labels]
		g := grad.Data[r*labels : (r+1)*labels]

		var pos, neg []int
		for j, t := range truth {
			if t > 0.5 {
				pos = append(pos, j)
			} else {
				neg = append(neg, j)
			}
		}
		if len(pos) == 0 || len(neg) == 0 {
			continue
		}

		pairs := float64(len(pos) * len(neg))
		sum := 0.0
		for _, p := range pos {
			for _, q := range neg {
				hinge := l.Margin - scores[p] + scores[q]
				if hinge <= 0 {
					continue
				}
				sum += hinge
				g[p] -= 1 / pairs
				g[q] += 1 / pairs
			}
		}
		losses[r] = sum / pairs
	}
	return losses, grad
}

func (l *PairwiseRankingLoss) Name() string { return "warp" }
