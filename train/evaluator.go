package train

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"

	"codeflow/corpus"
	"codeflow/flow"
	"codeflow/metrics"
	"codeflow/models"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const (
	sampleGate   = 0.999
	worseMargin  = -0.5
	betterMargin = 0.5
	wordLimit    = 100
)

// Evaluator scores a model over a split.
type Evaluator struct {
	Model   models.Model
	Device  models.Device
	MinSize int
	Lookups *corpus.Lookups // needed for margin diagnostics
	Out     io.Writer       // diagnostics sink
	Log     *zap.Logger
	Rng     *rand.Rand
}

// EvalOptions controls what an evaluation prints.
type EvalOptions struct {
	// PrintSamples prints a randomly gated sample prediction.
	PrintSamples bool
	// Diagnostics scans every document for strongly wrong or strongly
	// right rankings.
	Diagnostics bool
}

// EvalResult is the outcome of one evaluation pass.
type EvalResult struct {
	Metrics map[string]float64
	Docs    int
	Skipped int
}

// Evaluate runs a full pass over it in inference mode and scores the
// thresholded predictions.
func (e *Evaluator) Evaluate(epoch int, split string, it corpus.Iterator, opts EvalOptions) (EvalResult, error) {
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	out := e.Out
	if out == nil {
		out = io.Discard
	}
	scan := opts.Diagnostics && e.Lookups.HasDescriptions()

	var res EvalResult
	var y, yhat, yhatRaw [][]float64
	e.Model.Eval()
	for idx := 0; ; idx++ {
		b, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}
		if b.SeqLen() < e.MinSize {
			res.Skipped++
			log.Debug("skipping short batch", zap.String("split", split), zap.Int("batch", idx), zap.Int("seq_len", b.SeqLen()))
			continue
		}

		tokens, _ := e.Device.Place(b)
		e.Model.ResetState(len(b.Inputs))
		logits, err := e.Model.Forward(tokens, b.DocStarts)
		if err != nil {
			return res, err
		}
		scores := flow.ApplySigmoid(logits).Rows()

		if opts.PrintSamples && e.Rng != nil && e.Rng.Float64() > sampleGate {
			fmt.Fprintln(out, "sample prediction")
			fmt.Fprintf(out, "Y_true: %v\n", b.Labels[0])
			fmt.Fprintf(out, "Y_hat: %v\n", scores[0])
			fmt.Fprintf(out, "Y_hat: %v\n\n", round(scores[0]))
		}
		if scan {
			for i := range scores {
				if MarginWorseThan(worseMargin, scores[i], b.Labels[i]) {
					e.printInstance(out, "did bad on this one", b, i, scores[i])
				}
				if MarginBetterThan(betterMargin, scores[i], b.Labels[i]) {
					e.printInstance(out, "did good on this one", b, i, scores[i])
				}
			}
		}

		for i := range scores {
			y = append(y, b.Labels[i])
			yhat = append(yhat, round(scores[i]))
			yhatRaw = append(yhatRaw, scores[i])
		}
	}

	res.Docs = len(y)
	if res.Docs == 0 {
		log.Warn("no documents evaluated", zap.String("split", split), zap.Int("skipped", res.Skipped))
	}
	res.Metrics = metrics.All(yhat, y, yhatRaw)

	fields := []zap.Field{
		zap.Int("epoch", epoch),
		zap.String("split", split),
		zap.String("docs", humanize.Comma(int64(res.Docs))),
	}
	for _, name := range metrics.Names {
		fields = append(fields, zap.Float64(name, res.Metrics[name]))
	}
	log.Info("evaluation", fields...)
	return res, nil
}

func (e *Evaluator) printInstance(out io.Writer, header string, b *corpus.Batch, i int, scores []float64) {
	fmt.Fprintln(out, header)
	fmt.Fprintf(out, "Y_true: %v\n", b.Labels[i])
	fmt.Fprintf(out, "Y_hat: %v\n", scores)
	fmt.Fprintf(out, "first %d words:\n", wordLimit)
	fmt.Fprintln(out, strings.Join(e.Lookups.Words(b.DocTokens(i), wordLimit), " "))
	fmt.Fprintln(out, "codes / descriptions")
	fmt.Fprintf(out, "%s\n\n", e.Lookups.CodeDescriptions(b.Labels[i]))
}

// round thresholds scores at 0.5.
func round(scores []float64) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Round(s)
	}
	return out
}
