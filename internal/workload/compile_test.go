package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Compiles(t *testing.T) {
	spec, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "test", spec.Database)
	assert.Equal(t, "test.localhost", spec.Host)
	assert.Equal(t, "SELECT 1", spec.Statement)
	assert.Equal(t, 200, spec.OKStatus)

	presence, err := spec.Policy("presence")
	require.NoError(t, err)
	assert.Equal(t, ClassEmpty, presence.Class)
	assert.InDelta(t, 0.1, presence.Probability, 1e-9)
	assert.Equal(t, 400, presence.RejectStatus)

	corruption, err := spec.Policy("corruption")
	require.NoError(t, err)
	assert.Equal(t, ClassFuzzed, corruption.Class)
	assert.Equal(t, "FUZZ FUZZ FUZZ", corruption.Noise)
	assert.Equal(t, 400, corruption.RejectStatus)
}

func TestSpec_Policy_Unknown(t *testing.T) {
	spec, err := Default()
	require.NoError(t, err)

	_, err = spec.Policy("nope")
	assert.Error(t, err)
}

func TestCompileSource_MissingStatement(t *testing.T) {
	_, err := CompileSource(`workload: {
		database: "test"
		host:     "test.localhost"
		policies: presence: {class: "empty", probability: 0.1}
	}`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "statement", ce.Field)
}

func TestCompileSource_ProbabilityOutOfRange(t *testing.T) {
	_, err := CompileSource(`workload: {
		database:  "test"
		host:      "test.localhost"
		statement: "SELECT 1"
		policies: presence: {class: "empty", probability: 1.5}
	}`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Field, "probability")
}

func TestCompileSource_UnknownClass(t *testing.T) {
	_, err := CompileSource(`workload: {
		database:  "test"
		host:      "test.localhost"
		statement: "SELECT 1"
		policies: weird: {class: "gamma-ray", probability: 0.1}
	}`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Field, "class")
}

func TestCompileSource_FuzzedRequiresNoise(t *testing.T) {
	_, err := CompileSource(`workload: {
		database:  "test"
		host:      "test.localhost"
		statement: "SELECT 1"
		policies: corruption: {class: "fuzzed", probability: 0.1}
	}`)
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Field, "noise")
}

func TestCompileSource_NoWorkloadStruct(t *testing.T) {
	_, err := CompileSource(`other: {}`)
	assert.Error(t, err)
}
