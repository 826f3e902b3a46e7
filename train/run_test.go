package train

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"codeflow/config"
	"codeflow/persist"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingFs counts opens and renames by base name.
type countingFs struct {
	afero.Fs
	mu      sync.Mutex
	opens   map[string]int
	renames map[string]int
}

func newCountingFs() *countingFs {
	return &countingFs{Fs: afero.NewMemMapFs(), opens: map[string]int{}, renames: map[string]int{}}
}

func (fs *countingFs) Open(name string) (afero.File, error) {
	fs.mu.Lock()
	fs.opens[filepath.Base(name)]++
	fs.mu.Unlock()
	return fs.Fs.Open(name)
}

func (fs *countingFs) Rename(oldname, newname string) error {
	fs.mu.Lock()
	fs.renames[filepath.Base(newname)]++
	fs.mu.Unlock()
	return fs.Fs.Rename(oldname, newname)
}

const notes = `doc_id,tokens,labels
1,1 2 3 4 5,0;2
2,6 7 8 9,1
3,2 4 6 8 1 3,0;1
4,9 8 7 6 5,2
`

func writeFixture(t *testing.T, fs afero.Fs, prefix string) {
	for _, split := range []string{"train", "dev"} {
		require.NoError(t, afero.WriteFile(fs, filepath.Join("data", prefix+split+".csv"), []byte(notes), 0644))
	}
	require.NoError(t, afero.WriteFile(fs, "data/vocab_5.csv",
		[]byte("index,token\n1,chest\n2,pain\n3,fever\n4,cough\n5,edema\n6,insulin\n7,glucose\n8,renal\n9,dyspnea\n"), 0644))
}

func testConfig() config.Run {
	cfg := config.Default()
	cfg.Labels = 3
	cfg.VocabMin = 5
	cfg.Model = "logreg"
	cfg.Epochs = 2
	cfg.Objective = "bce"
	cfg.NormConstraint = 3
	cfg.EmbedSize = 4
	cfg.BatchSize = 2
	cfg.ModelDir = "models"
	return cfg
}

type fakePrompter struct {
	answer bool
	asked  int
}

func (p *fakePrompter) Confirm(string) (bool, error) {
	p.asked++
	return p.answer, nil
}

func fixedNow() time.Time {
	return time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)
}

func TestRunTwoEpochs(t *testing.T) {
	fs := newCountingFs()
	writeFixture(t, fs, "notes_3_")

	res, err := Run(testConfig(), Options{Fs: fs, Now: fixedNow, Prompter: &fakePrompter{}})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("models", "logreg_Mar_05_14:07"), res.Dir)

	for _, name := range []string{"f1", "auc_micro", "loss"} {
		assert.Len(t, res.Dev[name], 2, name)
	}
	assert.Len(t, res.Train["f1"], 2)
	assert.NotContains(t, res.Train, "loss")

	store := persist.NewStore(fs, nil)
	assert.True(t, store.Exists(res.Dir, persist.ModelFile))
	assert.Equal(t, 2, fs.renames[persist.ModelFile])
	assert.Equal(t, 2, fs.renames[persist.MetricsFile])

	dev, train, err := store.LoadMetrics(res.Dir)
	require.NoError(t, err)
	assert.Len(t, dev["loss"], 2)
	assert.Len(t, train["acc"], 2)

	params, err := store.LoadParams(res.Dir)
	require.NoError(t, err)
	assert.Equal(t, "data/notes_3_train.csv", params.DataPath)
	assert.Equal(t, 10, params.Spec.VocabSize)

	// sequential: one pass for training and one sanity pass per epoch
	assert.Equal(t, 4, fs.opens["notes_3_train.csv"])
	assert.Equal(t, 2, fs.opens["notes_3_dev.csv"])
}

func TestRunStochasticBuildsCacheOnce(t *testing.T) {
	fs := newCountingFs()
	writeFixture(t, fs, "notes_3_")
	cfg := testConfig()
	cfg.Stochastic = true
	cfg.Epochs = 3

	res, err := Run(cfg, Options{Fs: fs, Now: fixedNow})
	require.NoError(t, err)
	assert.Len(t, res.Dev["loss"], 3)
	// one cache pass plus one sanity pass per epoch
	assert.Equal(t, 4, fs.opens["notes_3_train.csv"])
}

func TestRunConfigErrorTouchesNothing(t *testing.T) {
	fs := newCountingFs()
	cfg := testConfig()
	cfg.Model = "cnn_vanilla"

	_, err := Run(cfg, Options{Fs: fs})
	require.Error(t, err)
	assert.Equal(t, "Specified 'cnn_vanilla' but no filter size given", err.Error())
	assert.IsType(t, &config.ConfigError{}, err)
	assert.Empty(t, fs.opens)
}

func savedRun(t *testing.T, fs afero.Fs) string {
	res, err := Run(testConfig(), Options{Fs: fs, Now: fixedNow})
	require.NoError(t, err)
	return res.Dir
}

func resumeConfig(dir string) config.Run {
	cfg := testConfig()
	cfg.Model = "saved"
	cfg.SavedModel = dir
	cfg.Epochs = 1
	return cfg
}

func TestResumeSameCorpus(t *testing.T) {
	fs := newCountingFs()
	writeFixture(t, fs, "notes_3_")
	dir := savedRun(t, fs)

	prompter := &fakePrompter{}
	res, err := Run(resumeConfig(dir), Options{Fs: fs, Prompter: prompter})
	require.NoError(t, err)
	assert.Zero(t, prompter.asked)
	assert.Equal(t, dir, res.Dir)
	assert.Len(t, res.Dev["f1"], 3)

	store := persist.NewStore(fs, nil)
	params, err := store.LoadParams(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, params.Epochs)
	assert.Equal(t, "data/notes_3_train.csv", params.DataPath)

	dev, train, err := store.LoadMetrics(dir)
	require.NoError(t, err)
	assert.Len(t, dev["loss"], 3)
	assert.Len(t, train["f1"], 3)
}

func TestResumeDifferentCorpusDeclined(t *testing.T) {
	fs := newCountingFs()
	writeFixture(t, fs, "notes_3_")
	writeFixture(t, fs, "other_")
	dir := savedRun(t, fs)
	before, err := afero.ReadFile(fs, filepath.Join(dir, persist.MetricsFile))
	require.NoError(t, err)
	renames := fs.renames[persist.ModelFile]

	cfg := resumeConfig(dir)
	cfg.DataPath = "data/other_train.csv"
	prompter := &fakePrompter{answer: false}
	_, err = Run(cfg, Options{Fs: fs, Prompter: prompter})
	assert.Equal(t, ErrDeclined, err)
	assert.Equal(t, 1, prompter.asked)

	after, err := afero.ReadFile(fs, filepath.Join(dir, persist.MetricsFile))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, renames, fs.renames[persist.ModelFile])
}

func TestResumeDifferentCorpusConfirmed(t *testing.T) {
	fs := newCountingFs()
	writeFixture(t, fs, "notes_3_")
	writeFixture(t, fs, "other_")
	dir := savedRun(t, fs)

	cfg := resumeConfig(dir)
	cfg.DataPath = "data/other_train.csv"
	prompter := &fakePrompter{answer: true}
	_, err := Run(cfg, Options{Fs: fs, Prompter: prompter})
	require.NoError(t, err)
	assert.Equal(t, 1, prompter.asked)

	params, err := persist.NewStore(fs, nil).LoadParams(dir)
	require.NoError(t, err)
	assert.Equal(t, "data/notes_3_train.csv,data/other_train.csv", params.DataPath)
	assert.Equal(t, 3, params.Epochs)
}

func TestStdinPrompter(t *testing.T) {
	var out bytes.Buffer
	ok, err := StdinPrompter{In: strings.NewReader("yes\n"), Out: &out}.Confirm(overwritePrompt)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, overwritePrompt, out.String())

	ok, err = StdinPrompter{In: strings.NewReader("n"), Out: &out}.Confirm(overwritePrompt)
	require.NoError(t, err)
	assert.False(t, ok)
}
