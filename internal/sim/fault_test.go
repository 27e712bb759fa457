package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louhi-db/louhi/internal/workload"
)

// countingSource wraps a source and counts draws.
type countingSource struct {
	inner FaultSource
	n     int
}

func (s *countingSource) Draw() float64 {
	s.n++
	return s.inner.Draw()
}

func TestNewSeededRand_SameSeedSameSequence(t *testing.T) {
	a := NewSeededRand(42)
	b := NewSeededRand(42)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64(), "draw %d diverged", i)
	}
}

func TestNewSeededRand_DifferentSeedsDiverge(t *testing.T) {
	a := NewSeededRand(1)
	b := NewSeededRand(2)
	same := true
	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			same = false
			break
		}
	}
	assert.False(t, same, "different seeds should not produce the same stream")
}

func TestInjector_Decide_DeterministicAcrossRuns(t *testing.T) {
	spec, err := workload.Default()
	require.NoError(t, err)

	const seed = 7
	a, err := NewInjector(spec, "presence", NewRandSource(NewSeededRand(seed)))
	require.NoError(t, err)
	b, err := NewInjector(spec, "presence", NewRandSource(NewSeededRand(seed)))
	require.NoError(t, err)

	sawFault := false
	for i := 0; i < 200; i++ {
		da, err := a.Decide()
		require.NoError(t, err)
		db, err := b.Decide()
		require.NoError(t, err)
		require.Equal(t, da.Class, db.Class, "cycle %d", i)
		require.Equal(t, da.Payload, db.Payload, "cycle %d buffers must be byte-identical", i)
		if da.Class != ClassNormal {
			sawFault = true
		}
	}
	assert.True(t, sawFault, "200 cycles at p=0.1 should inject at least one fault")
}

func TestInjector_Decide_OneDrawPerCycle(t *testing.T) {
	spec, err := workload.Default()
	require.NoError(t, err)

	src := &countingSource{inner: NewScriptedSource(0.05, 0.5)}
	in, err := NewInjector(spec, "presence", src)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		_, err := in.Decide()
		require.NoError(t, err)
	}
	assert.Equal(t, 10, src.n, "exactly one draw per cycle, fault or not")
}

func TestInjector_Decide_PresenceMapping(t *testing.T) {
	spec, err := workload.Default()
	require.NoError(t, err)

	in, err := NewInjector(spec, "presence", NewScriptedSource(0.05, 0.5))
	require.NoError(t, err)

	fault, err := in.Decide()
	require.NoError(t, err)
	assert.Equal(t, ClassEmpty, fault.Class)
	assert.Empty(t, fault.Payload)
	assert.Equal(t, 400, fault.WantStatus)

	normal, err := in.Decide()
	require.NoError(t, err)
	assert.Equal(t, ClassNormal, normal.Class)
	assert.NotEmpty(t, normal.Payload)
	assert.Equal(t, 200, normal.WantStatus)
}

func TestInjector_Decide_CorruptionMapping(t *testing.T) {
	spec, err := workload.Default()
	require.NoError(t, err)

	in, err := NewInjector(spec, "corruption", NewScriptedSource(0.05))
	require.NoError(t, err)

	fault, err := in.Decide()
	require.NoError(t, err)
	assert.Equal(t, ClassFuzzed, fault.Class)
	assert.Equal(t, []byte("FUZZ FUZZ FUZZ"), fault.Payload)
	assert.Equal(t, 400, fault.WantStatus)
}

func TestInjector_UnknownPolicy(t *testing.T) {
	spec, err := workload.Default()
	require.NoError(t, err)

	_, err = NewInjector(spec, "nope", NewScriptedSource(0.5))
	assert.Error(t, err)
}

func TestScriptedSource_RepeatsScript(t *testing.T) {
	src := NewScriptedSource(0.1, 0.2)
	assert.Equal(t, 0.1, src.Draw())
	assert.Equal(t, 0.2, src.Draw())
	assert.Equal(t, 0.1, src.Draw())
}
