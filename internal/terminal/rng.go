package terminal

import (
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
)

// globalRNG is the process-wide, thread-safe PRNG described in spec.md
// §4.2.1 ("process-wide, thread-safe PRNG seeded from wall-clock at first
// use"). It is lazily seeded on first use, mirroring the teacher's
// sync.Once-guarded lazy-init pattern used for the config/logger singletons.
var (
	globalRNGOnce sync.Once
	globalRNG     *rand.Rand
	globalRNGMu   sync.Mutex
)

func rng() *rand.Rand {
	globalRNGOnce.Do(func() {
		globalRNG = rand.New(rand.NewSource(time.Now().UnixNano()))
	})
	return globalRNG
}

// drawFloat64/drawExpFloat64/drawNormFloat64 take the package mutex around
// the shared *rand.Rand: rand.Rand is not itself safe for concurrent use.
func drawFloat64() float64 {
	globalRNGMu.Lock()
	defer globalRNGMu.Unlock()
	return rng().Float64()
}

func drawExpFloat64() float64 {
	globalRNGMu.Lock()
	defer globalRNGMu.Unlock()
	return rng().ExpFloat64()
}

func drawNormFloat64() float64 {
	globalRNGMu.Lock()
	defer globalRNGMu.Unlock()
	return rng().NormFloat64()
}

// newLocalSource returns a per-call *rand.Rand seeded from the global PRNG,
// the same per-call-local-RNG idiom used by the teacher's simulation-svc
// Monte Carlo engine (internal/engine/monte_carlo.go: rand.New(rand.NewSource(seed))
// scoped to one call rather than sharing a single *rand.Rand across calls).
func newLocalSource() *rand.Rand {
	globalRNGMu.Lock()
	seed := rng().Int63()
	globalRNGMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// newGammaDist builds a distuv.Gamma sampler seeded from the global PRNG.
// distuv.Gamma parameterizes by rate (Beta), not scale; spec.md §4.2.1's
// Gamma(shape k, scale θ) converts at the call site as Beta = 1/θ.
func newGammaDist(shape, scale float64) distuv.Gamma {
	return distuv.Gamma{Alpha: shape, Beta: 1.0 / scale, Src: newLocalSource()}
}
