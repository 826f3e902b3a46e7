package train

import (
	"io"
	"math/rand"
	"os"
	"time"

	"codeflow/config"
	"codeflow/corpus"
	"codeflow/flow"
	"codeflow/metrics"
	"codeflow/models"
	"codeflow/persist"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Options are the collaborators of a run. Zero values fall back to the OS
// filesystem, stdin/stdout, a no-op logger and the wall clock.
type Options struct {
	Fs       afero.Fs
	Prompter Prompter
	Log      *zap.Logger
	Out      io.Writer // diagnostics
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Prompter == nil {
		o.Prompter = StdinPrompter{In: os.Stdin, Out: o.Out}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Result is what a finished run leaves behind.
type Result struct {
	Dir   string // run directory written to
	Dev   metrics.History
	Train metrics.History
	Model models.Model
}

// Run trains and evaluates a model for cfg.Epochs epochs. A fresh run
// persists its histories, params and snapshot after every epoch. A resumed
// run appends to the saved run once all epochs are done, asking first when
// the corpus differs from the one the run was trained on.
func Run(cfg config.Run, opts Options) (*Result, error) {
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	log := opts.Log
	store := persist.NewStore(opts.Fs, log)
	device := models.ResolveDevice(cfg.GPU, log)
	dataPath := corpus.SplitPath(cfg.DataDir, cfg.Labels, cfg.DataPath, "train")

	lookups, err := corpus.LoadLookups(opts.Fs, cfg.DataDir, cfg.Labels, cfg.VocabMin, cfg.Diagnostics)
	if err != nil {
		return nil, err
	}

	var (
		model    models.Model
		params   persist.Params
		prevDev  metrics.History
		prevTr   metrics.History
		minSize  = cfg.MinInputSize()
		resuming = cfg.Resuming()
	)
	if resuming {
		model, params, err = loadRun(store, cfg, device)
		if err != nil {
			return nil, err
		}
		if prevDev, prevTr, err = store.LoadMetrics(cfg.SavedModel); err != nil {
			return nil, err
		}
		minSize = model.MinInputSize()
	} else {
		model, err = models.New(models.Spec{
			Name:           cfg.Model,
			Labels:         cfg.Labels,
			VocabSize:      lookups.VocabSize(),
			EmbedSize:      cfg.EmbedSize,
			FilterSize:     cfg.FilterSize,
			MinFilter:      cfg.MinFilter,
			MaxFilter:      cfg.MaxFilter,
			NumFilterMaps:  cfg.NumFilterMaps,
			LSTMDim:        cfg.LSTMDim,
			NormConstraint: cfg.NormConstraint,
			Seed:           cfg.Seed,
			Workers:        device.Workers,
			CheckFinite:    cfg.CheckFinite,
		})
		if err != nil {
			return nil, err
		}
		params = persist.NewParams(cfg, dataPath, model.Spec())
	}
	log.Info("model ready", zap.String("model", model.Name()), zap.String("device", device.Name))
	log.Debug(model.Summary())

	objective, err := NewObjective(cfg.Objective, flow.Adam(flow.DefaultAdamConfig()))
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	source := func(split string, batchSize int) corpus.Source {
		return corpus.Source{
			Fs:         opts.Fs,
			Path:       corpus.SplitPath(cfg.DataDir, cfg.Labels, cfg.DataPath, split),
			BatchSize:  batchSize,
			LabelCount: cfg.Labels,
			SplitDocs:  cfg.SplitBatch,
			ChunkLen:   cfg.ChunkLen,
			MinSize:    minSize,
		}
	}

	var cache *corpus.Cache
	if cfg.Stochastic {
		src := source("train", cfg.BatchSize)
		src.SplitDocs = false
		if cache, err = corpus.BuildCache(src); err != nil {
			return nil, err
		}
		log.Info("cached training instances", zap.Int("batches", cache.Len()))
	}

	trainer := &Trainer{
		Model:     model,
		Objective: objective,
		Device:    device,
		MinSize:   minSize,
		LogEvery:  ProgressInterval(cfg.Objective, cfg.Stochastic),
		Log:       log,
	}
	evaluator := &Evaluator{
		Model:   model,
		Device:  device,
		MinSize: minSize,
		Lookups: lookups,
		Out:     opts.Out,
		Log:     log,
		Rng:     rng,
	}

	res := &Result{Model: model, Dev: metrics.NewHistory(true), Train: metrics.NewHistory(false)}
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		start := opts.Now()
		var it corpus.Iterator
		if cache != nil {
			cache.Shuffle(rng)
			it = cache.Iter()
		} else if it, err = source("train", cfg.TrainBatchSize()).Open(); err != nil {
			return nil, err
		}
		epochRes, err := trainer.Epoch(epoch, it)
		it.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "epoch %d", epoch)
		}
		log.Info("train time", zap.Int("epoch", epoch), zap.Duration("elapsed", opts.Now().Sub(start)))

		dev, err := evaluate(evaluator, source("dev", cfg.BatchSize), epoch, "dev",
			EvalOptions{PrintSamples: true, Diagnostics: cfg.Diagnostics})
		if err != nil {
			return nil, err
		}
		dev.Metrics["loss"] = epochRes.Loss
		res.Dev.Append(dev.Metrics)

		sanity, err := evaluate(evaluator, source("train", cfg.BatchSize), epoch, "train", EvalOptions{})
		if err != nil {
			return nil, err
		}
		res.Train.Append(sanity.Metrics)

		if resuming {
			continue
		}
		if epoch == 0 {
			res.Dir = persist.RunDir(cfg.ModelDir, cfg.Model, opts.Now())
			if err := store.CreateRunDir(res.Dir); err != nil {
				return nil, err
			}
		}
		if err := saveRun(store, res.Dir, params, res.Dev, res.Train, model); err != nil {
			return nil, err
		}
	}

	if !resuming {
		return res, nil
	}
	return resume(store, cfg, opts, dataPath, params, prevDev, prevTr, res)
}

func evaluate(e *Evaluator, src corpus.Source, epoch int, split string, opts EvalOptions) (EvalResult, error) {
	it, err := src.Open()
	if err != nil {
		return EvalResult{}, err
	}
	defer it.Close()
	res, err := e.Evaluate(epoch, split, it, opts)
	if err != nil {
		return res, errors.Wrapf(err, "evaluating %s", split)
	}
	return res, nil
}

// loadRun rebuilds the model of a saved run from its params and snapshot.
func loadRun(store *persist.Store, cfg config.Run, device models.Device) (models.Model, persist.Params, error) {
	params, err := store.LoadParams(cfg.SavedModel)
	if err != nil {
		return nil, params, err
	}
	if params.Labels != cfg.Labels {
		return nil, params, errors.Errorf("saved run %s has %d labels, asked for %d", cfg.SavedModel, params.Labels, cfg.Labels)
	}
	spec := params.Spec
	spec.Workers = device.Workers
	spec.CheckFinite = cfg.CheckFinite
	model, err := models.New(spec)
	if err != nil {
		return nil, params, err
	}
	state, err := store.LoadModel(cfg.SavedModel)
	if err != nil {
		return nil, params, err
	}
	if err := model.LoadState(state); err != nil {
		return nil, params, errors.Wrapf(err, "restoring %s", cfg.SavedModel)
	}
	return model, params, nil
}

// resume appends this run's results to the saved run in place.
func resume(store *persist.Store, cfg config.Run, opts Options, dataPath string,
	params persist.Params, prevDev, prevTr metrics.History, res *Result) (*Result, error) {
	if dataPath != params.DataPath {
		ok, err := opts.Prompter.Confirm(overwritePrompt)
		if err != nil {
			return nil, err
		}
		if !ok {
			opts.Log.Warn(ErrDeclined.Error())
			return nil, ErrDeclined
		}
		params.DataPath = params.DataPath + "," + dataPath
	}
	params.Epochs += cfg.Epochs

	res.Dir = cfg.SavedModel
	res.Dev = metrics.Merge(prevDev, res.Dev)
	res.Train = metrics.Merge(prevTr, res.Train)
	if err := saveRun(store, res.Dir, params, res.Dev, res.Train, res.Model); err != nil {
		return nil, err
	}
	opts.Log.Info("updated saved run", zap.String("dir", res.Dir), zap.Int("epochs", params.Epochs))
	return res, nil
}

func saveRun(store *persist.Store, dir string, params persist.Params, dev, train metrics.History, model models.Model) error {
	if err := store.SaveMetrics(dir, dev, train); err != nil {
		return err
	}
	if err := store.SaveParams(dir, params); err != nil {
		return err
	}
	return store.SaveModel(dir, model.State())
}
