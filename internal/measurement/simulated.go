package measurement

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimulatedOptions configures SimulatedSource.
type SimulatedOptions struct {
	// FailRatio is the probability of a Fail verdict.
	FailRatio float64
	// Seed fixes the random stream. Zero seeds from the clock.
	Seed      int64
	MoldCodes []string
	// Clock overrides time.Now for registration timestamps.
	Clock func() time.Time
}

// SimulatedSource produces random but plausible measurements.
type SimulatedSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	failRatio float64
	molds     []string
	clock     func() time.Time
}

// NewSimulatedSource constructs a simulated source.
func NewSimulatedSource(opts SimulatedOptions) *SimulatedSource {
	seed := uint64(opts.Seed)
	if opts.Seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	molds := append([]string(nil), opts.MoldCodes...)
	if len(molds) == 0 {
		molds = []string{"8412"}
	}
	return &SimulatedSource{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		failRatio: math.Min(math.Max(opts.FailRatio, 0), 1),
		molds:     molds,
		clock:     clock,
	}
}

// Name implements Source.
func (s *SimulatedSource) Name() string { return "simulated" }

// Close implements Source.
func (s *SimulatedSource) Close() error { return nil }

// FetchNext implements Source. It always yields a record unless ctx is done.
func (s *SimulatedSource) FetchNext(ctx context.Context) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	readings := make(map[string]float64, len(KnownReadings))
	for _, known := range KnownReadings {
		value := known.Min + s.rng.Float64()*(known.Max-known.Min)
		readings[known.Name] = math.Round(value*10) / 10
	}
	verdict := Pass
	if s.rng.Float64() < s.failRatio {
		verdict = Fail
	}
	return &Record{
		ID:               uuid.NewString(),
		MoldCode:         s.molds[s.rng.IntN(len(s.molds))],
		Readings:         readings,
		Verdict:          verdict,
		RegistrationTime: now.Format(time.DateTime),
		SourceTimestamp:  now.UTC().Format(time.RFC3339Nano),
	}, nil
}
