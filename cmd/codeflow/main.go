package main

import (
	"fmt"
	"os"

	"codeflow/config"
	"codeflow/train"
	"github.com/alexflint/go-arg"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type args struct {
	Y              int     `arg:"positional,required" help:"size of the label space"`
	VocabMin       int     `arg:"positional,required" help:"vocabulary cutoff, selects vocab_<n>.csv"`
	Model          string  `arg:"positional,required" help:"cnn_vanilla, cnn_multi, lstm, mlp, logreg or saved"`
	Epochs         int     `arg:"positional,required" help:"number of epochs to train"`
	Objective      string  `arg:"positional,required" help:"ranking or cross-entropy (warp and bce also accepted)"`
	NormConstraint float64 `arg:"positional,required" help:"bound on the L2 norm of each output unit"`

	LSTMDim          int    `arg:"--lstm-dim" help:"lstm hidden size"`
	FilterSize       int    `arg:"--filter-size" help:"cnn_vanilla filter width"`
	MinFilter        int    `arg:"--min-filter" help:"cnn_multi smallest filter width"`
	MaxFilter        int    `arg:"--max-filter" help:"cnn_multi largest filter width"`
	NumFilterMaps    int    `arg:"--num-filter-maps" help:"feature maps per filter width"`
	EmbedSize        int    `arg:"--embed-size" help:"embedding size"`
	SavedModel       string `arg:"--saved-model" help:"run directory to resume with model 'saved'"`
	DataPath         string `arg:"--data-path" help:"training corpus, other splits replace 'train' in the path"`
	DataDir          string `arg:"--data-dir" help:"directory holding corpora and lookup tables"`
	ModelDir         string `arg:"--model-dir" help:"directory new runs are written under"`
	GPU              bool   `arg:"--gpu" help:"use the accelerated device when available"`
	SplitBatch       bool   `arg:"--split-batch" help:"split long documents into chunks"`
	Stochastic       bool   `arg:"--stochastic" help:"cache all batches and shuffle them every epoch"`
	BatchSize        int    `arg:"--batch-size"`
	ChunkLen         int    `arg:"--chunk-len" help:"chunk length with --split-batch"`
	RankingBatchSize int    `arg:"--ranking-batch-size" help:"sequential batch size under the ranking objective"`
	Seed             int64  `arg:"--seed"`
	Diagnostics      bool   `arg:"--diagnostics" help:"print ranking-margin diagnostics on the dev split"`
	CheckFinite      bool   `arg:"--check-finite" help:"fail on NaN or Inf layer outputs"`
	Debug            bool   `arg:"--debug" help:"human-readable debug logging"`
}

func (args) Description() string {
	return "codeflow trains and evaluates multi-label code classifiers on clinical notes"
}

func (a args) run() config.Run {
	return config.Run{
		Labels:           a.Y,
		VocabMin:         a.VocabMin,
		Model:            a.Model,
		Epochs:           a.Epochs,
		Objective:        a.Objective,
		NormConstraint:   a.NormConstraint,
		LSTMDim:          a.LSTMDim,
		FilterSize:       a.FilterSize,
		MinFilter:        a.MinFilter,
		MaxFilter:        a.MaxFilter,
		NumFilterMaps:    a.NumFilterMaps,
		EmbedSize:        a.EmbedSize,
		SavedModel:       a.SavedModel,
		DataPath:         a.DataPath,
		DataDir:          a.DataDir,
		ModelDir:         a.ModelDir,
		GPU:              a.GPU,
		SplitBatch:       a.SplitBatch,
		Stochastic:       a.Stochastic,
		BatchSize:        a.BatchSize,
		ChunkLen:         a.ChunkLen,
		RankingBatchSize: a.RankingBatchSize,
		Seed:             a.Seed,
		Diagnostics:      a.Diagnostics,
		CheckFinite:      a.CheckFinite,
	}
}

// newLogger writes JSON with RFC3339 times, errors to stderr and the rest to
// stdout.
func newLogger(debug bool) *zap.Logger {
	if debug {
		log, err := zap.NewDevelopment()
		if err == nil {
			return log
		}
	}
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.InfoLevel && lvl < zapcore.ErrorLevel
	})

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder
	encoder := zapcore.NewJSONEncoder(config)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), isErrorLevel),
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), isInfoLevel),
	)
	return zap.New(core, zap.AddCaller())
}

func main() {
	defaults := config.Default()
	a := args{
		EmbedSize:        defaults.EmbedSize,
		DataDir:          defaults.DataDir,
		ModelDir:         defaults.ModelDir,
		BatchSize:        defaults.BatchSize,
		ChunkLen:         defaults.ChunkLen,
		RankingBatchSize: defaults.RankingBatchSize,
		Seed:             defaults.Seed,
	}
	arg.MustParse(&a)

	log := newLogger(a.Debug)
	defer log.Sync()

	_, err := train.Run(a.run(), train.Options{Log: log})
	switch cause := errors.Cause(err).(type) {
	case nil:
	case *config.ConfigError:
		fmt.Println(cause.Message)
		os.Exit(2)
	default:
		if err == train.ErrDeclined {
			fmt.Println(err)
			return
		}
		log.Fatal("run failed", zap.Error(err))
	}
}
