// Package metrics scores multi-label predictions.
package metrics

import (
	"sort"

	"github.com/montanaflynn/stats"
)

// Names are the metric keys, macro first then micro.
var Names = []string{
	"acc", "prec", "rec", "f1", "auc",
	"acc_micro", "prec_micro", "rec_micro", "f1_micro", "auc_micro",
}

// All scores hard predictions yhat against truth y. yhatRaw holds the
// underlying scores used for AUC; when nil, yhat is used instead. All rows
// must share the label width of y.
func All(yhat, y, yhatRaw [][]float64) map[string]float64 {
	if yhatRaw == nil {
		yhatRaw = yhat
	}
	out := make(map[string]float64, len(Names))
	if len(y) == 0 {
		for _, name := range Names {
			out[name] = 0
		}
		return out
	}

	labels := len(y[0])
	var accs, precs, recs, aucs []float64
	var total counts
	for j := 0; j < labels; j++ {
		var c counts
		truth := make([]float64, len(y))
		scores := make([]float64, len(y))
		for i := range y {
			c.add(yhat[i][j], y[i][j])
			truth[i] = y[i][j]
			scores[i] = yhatRaw[i][j]
		}
		total.tp += c.tp
		total.fp += c.fp
		total.fn += c.fn

		accs = append(accs, c.accuracy())
		precs = append(precs, c.precision())
		recs = append(recs, c.recall())
		if auc, ok := rankAUC(scores, truth); ok {
			aucs = append(aucs, auc)
		}
	}

	out["acc"] = mean(accs)
	out["prec"] = mean(precs)
	out["rec"] = mean(recs)
	out["f1"] = harmonic(out["prec"], out["rec"])
	out["auc"] = mean(aucs)

	out["acc_micro"] = total.accuracy()
	out["prec_micro"] = total.precision()
	out["rec_micro"] = total.recall()
	out["f1_micro"] = harmonic(out["prec_micro"], out["rec_micro"])

	var flatScores, flatTruth []float64
	for i := range y {
		flatScores = append(flatScores, yhatRaw[i]...)
		flatTruth = append(flatTruth, y[i]...)
	}
	out["auc_micro"], _ = rankAUC(flatScores, flatTruth)

	return out
}

type counts struct {
	tp, fp, fn float64
}

func (c *counts) add(pred, truth float64) {
	switch {
	case pred == 1 && truth == 1:
		c.tp++
	case pred == 1:
		c.fp++
	case truth == 1:
		c.fn++
	}
}

// accuracy is the intersection over union of predicted and true positives.
func (c counts) accuracy() float64 { return ratio(c.tp, c.tp+c.fp+c.fn) }
func (c counts) precision() float64 { return ratio(c.tp, c.tp+c.fp) }
func (c counts) recall() float64    { return ratio(c.tp, c.tp+c.fn) }

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func harmonic(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func mean(values []float64) float64 {
	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}

// rankAUC is the Mann-Whitney estimate of ROC AUC with tied scores sharing
// their average rank. It reports false when either class is absent.
func rankAUC(scores, truth []float64) (float64, bool) {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && scores[idx[j+1]] == scores[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var pos, neg, posRanks float64
	for i, t := range truth {
		if t == 1 {
			pos++
			posRanks += ranks[i]
		} else {
			neg++
		}
	}
	if pos == 0 || neg == 0 {
		return 0, false
	}
	return (posRanks - pos*(pos+1)/2) / (pos * neg), true
}
