package sim

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/louhi-db/louhi/internal/manager"
	"github.com/louhi-db/louhi/internal/trace"
)

// SeedEnvVar names the environment variable that pins the run's seed.
const SeedEnvVar = "SEED"

// Context holds the state shared by one simulation run: the exclusively
// owned seeded generator, the resource manager handle, and the trace
// recorder. It lives for the whole process and is only touched from the
// single thread of control.
type Context struct {
	// Seed reproduces the run: same seed, same fault decisions, same
	// request bytes per cycle.
	Seed uint64

	// RunID correlates log lines across replays. It is random and carries
	// no simulation semantics.
	RunID uuid.UUID

	// Rand is the run's only source of randomness in the core.
	Rand *rand.Rand

	Manager  *manager.Manager
	Recorder *trace.Recorder
}

// NewContext creates the run context with a ChaCha8 generator seeded from
// seed.
func NewContext(seed uint64, mgr *manager.Manager, rec *trace.Recorder) *Context {
	return &Context{
		Seed:     seed,
		RunID:    uuid.New(),
		Rand:     NewSeededRand(seed),
		Manager:  mgr,
		Recorder: rec,
	}
}

// NewSeededRand builds a ChaCha8-backed generator from a 64-bit seed.
func NewSeededRand(seed uint64) *rand.Rand {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	return rand.New(rand.NewChaCha8(key))
}

// ResolveSeed returns the seed from the SEED environment variable, or a
// freshly drawn one. The caller must log the seed either way so a failing
// run can be replayed.
func ResolveSeed() (uint64, error) {
	raw, ok := os.LookupEnv(SeedEnvVar)
	if !ok || raw == "" {
		return rand.Uint64(), nil
	}
	seed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", SeedEnvVar, err)
	}
	return seed, nil
}
