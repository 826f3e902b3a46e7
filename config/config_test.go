package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRun(model string) Run {
	r := Default()
	r.Labels = 50
	r.VocabMin = 3
	r.Model = model
	r.Epochs = 2
	r.Objective = ObjectiveCrossEntropy
	r.NormConstraint = 3
	return r
}

func TestValidateMessages(t *testing.T) {
	cases := []struct {
		run Run
		msg string
	}{
		{validRun(ModelSaved), "Specified 'saved' but no model path given"},
		{validRun(ModelLSTM), "Specified 'lstm' but no lstm dim given"},
		{validRun(ModelCNNVanilla), "Specified 'cnn_vanilla' but no filter size given"},
		{validRun(ModelCNNMulti), "Specified 'cnn_multi', but (min_filter, max_filter) not fully specified"},
	}
	vanilla := validRun(ModelCNNVanilla)
	vanilla.FilterSize = 4
	cases = append(cases, struct {
		run Run
		msg string
	}{vanilla, "Specified a cnn model but no num_filter_maps given"})

	multi := validRun(ModelCNNMulti)
	multi.MinFilter = 3
	cases = append(cases, struct {
		run Run
		msg string
	}{multi, "Specified 'cnn_multi', but (min_filter, max_filter) not fully specified"})

	for _, c := range cases {
		err := c.run.Validate()
		require.Error(t, err, c.msg)
		cerr, ok := err.(*ConfigError)
		require.True(t, ok)
		assert.Equal(t, c.msg, cerr.Message)
	}
}

func TestValidateOK(t *testing.T) {
	for _, model := range []string{ModelMLP, ModelLogReg} {
		require.NoError(t, validRun(model).Validate())
	}

	r := validRun(ModelCNNMulti)
	r.MinFilter, r.MaxFilter, r.NumFilterMaps = 3, 5, 10
	require.NoError(t, r.Validate())
	assert.Equal(t, 5, r.MinInputSize())

	r = validRun(ModelCNNVanilla)
	r.FilterSize, r.NumFilterMaps = 4, 10
	require.NoError(t, r.Validate())
	assert.Equal(t, 4, r.MinInputSize())

	r = validRun(ModelSaved)
	r.SavedModel = "saved_models/cnn_vanilla_Jan_01_00:00"
	require.NoError(t, r.Validate())
	assert.True(t, r.Resuming())
}

func TestValidateRanges(t *testing.T) {
	r := validRun(ModelLogReg)
	r.Objective = "hinge"
	assert.Error(t, r.Validate())

	r = validRun(ModelLogReg)
	r.Epochs = 0
	assert.Error(t, r.Validate())

	r = validRun("svm")
	assert.EqualError(t, r.Validate(), `Unknown model "svm"`)

	r = validRun(ModelCNNMulti)
	r.MinFilter, r.MaxFilter, r.NumFilterMaps = 6, 3, 10
	assert.Error(t, r.Validate())
}

func TestNormalize(t *testing.T) {
	r := Run{Model: "cnn-vanilla", Objective: "warp"}.Normalize()
	assert.Equal(t, ModelCNNVanilla, r.Model)
	assert.Equal(t, ObjectiveRanking, r.Objective)

	r = Run{Model: "LogReg", Objective: "bce"}.Normalize()
	assert.Equal(t, ModelLogReg, r.Model)
	assert.Equal(t, ObjectiveCrossEntropy, r.Objective)

	r = Run{Model: "lstm", Objective: "cross-entropy"}.Normalize()
	assert.Equal(t, ObjectiveCrossEntropy, r.Objective)
}

func TestTrainBatchSize(t *testing.T) {
	r := validRun(ModelLogReg)
	assert.Equal(t, 16, r.TrainBatchSize())

	r.Objective = ObjectiveRanking
	assert.Equal(t, 1, r.TrainBatchSize())

	r.Stochastic = true
	assert.Equal(t, 16, r.TrainBatchSize())
}
