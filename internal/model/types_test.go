package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTPSUndefinedWithoutDuration(t *testing.T) {
	s := InferenceStats{EvalCount: 128}
	assert.Nil(t, s.DecodeTPS())

	s.EvalDurationS = 2
	require.NotNil(t, s.DecodeTPS())
	assert.InDelta(t, 64.0, *s.DecodeTPS(), 1e-9)
}

func TestPrefillTPS(t *testing.T) {
	s := InferenceStats{PromptEvalCount: 30, PromptEvalDurationS: 0.5}
	require.NotNil(t, s.PrefillTPS())
	assert.InDelta(t, 60.0, *s.PrefillTPS(), 1e-9)

	s.PromptEvalDurationS = 0
	assert.Nil(t, s.PrefillTPS())
}

func TestPromptHash(t *testing.T) {
	// sha1("abc") = a9993e36...
	assert.Equal(t, "a9993e36", PromptHash("abc"))
	assert.Len(t, PromptHash(""), 8)
}

func TestCombinationKeyAndMode(t *testing.T) {
	text := Combination{Prompt: "hi", Context: 4096, NumPredict: 128, Temperature: 0.4, Seed: lo.ToPtr(42)}
	vision := text
	vision.ImagePath = lo.ToPtr("img/cat.png")

	assert.Equal(t, ModeText, text.Mode())
	assert.Equal(t, ModeVision, vision.Mode())
	assert.NotEqual(t, text.Key(), vision.Key())
	assert.Contains(t, vision.Key(), "img/cat.png")
	assert.Contains(t, text.Key(), "seed=42")

	noSeed := text
	noSeed.Seed = nil
	assert.Contains(t, noSeed.Key(), "seed=none")
	assert.Equal(t, text.Key(), text.Key())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("both")
	require.NoError(t, err)
	assert.Equal(t, ModeBoth, m)

	_, err = ParseMode("audio")
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "mode", cfgErr.Field)
}

func TestErrorsUnwrap(t *testing.T) {
	base := fmt.Errorf("boom")
	assert.True(t, errors.Is(&JobError{Err: base}, base))
	assert.True(t, errors.Is(&ConnectivityError{Err: base}, base))
	assert.True(t, errors.Is(&PersistenceError{Err: base}, base))
	assert.Contains(t, (&PersistenceError{Sink: "csv", Path: "/x.csv", Err: base}).Error(), "csv sink")
}
