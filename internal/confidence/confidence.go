package confidence

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
)

// #region types
// Interval is a bootstrap confidence interval around an aggregate.
type Interval struct {
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	Method     string  `json:"method"`
	NResamples int     `json:"n_resamples"`
	Level      float64 `json:"level"`
}

// Width returns Upper − Lower.
func (iv Interval) Width() float64 {
	return iv.Upper - iv.Lower
}

// Shift moves the interval down by delta and clamps it to [lo, hi].
func (iv Interval) Shift(delta, lo, hi float64) Interval {
	iv.Lower = math.Min(hi, math.Max(lo, iv.Lower-delta))
	iv.Upper = math.Min(hi, math.Max(lo, iv.Upper-delta))
	return iv
}

// Config controls resampling.
type Config struct {
	NResamples int     `yaml:"n_resamples" validate:"gte=0"`
	Level      float64 `yaml:"level" validate:"gt=0,lt=1"`
	Seed       uint64  `yaml:"seed"`
	Chunks     int     `yaml:"chunks" validate:"gte=1"`
	ScaleMin   float64 `yaml:"scale_min"`
	ScaleMax   float64 `yaml:"scale_max" validate:"gtfield=ScaleMin"`
}

// DefaultConfig returns 1000 resamples at 95% on the raw 0..3 scale.
func DefaultConfig() Config {
	return Config{
		NResamples: 1000,
		Level:      0.95,
		Seed:       0x5eed,
		Chunks:     8,
		ScaleMin:   0,
		ScaleMax:   3,
	}
}

// #endregion types

// ErrInvalidInput is returned for empty or mismatched inputs.
var ErrInvalidInput = errors.New("invalid confidence input")

// #region estimator
// Estimator computes weighted means with a percentile bootstrap interval.
// Results are a pure function of inputs, config and seed.
type Estimator struct {
	config Config
}

// NewEstimator creates an estimator.
func NewEstimator(config Config) *Estimator {
	if config.Chunks < 1 {
		config.Chunks = 1
	}
	return &Estimator{config: config}
}

// Seeded returns an estimator whose stream is derived from key, so every
// group resamples independently and reproducibly.
func (e *Estimator) Seeded(key string) *Estimator {
	h := fnv.New64a()
	h.Write([]byte(key))
	c := e.config
	c.Seed ^= h.Sum64()
	return &Estimator{config: c}
}

// Config returns the estimator's configuration.
func (e *Estimator) Config() Config {
	return e.config
}

// AggregateWithConfidence returns the weighted mean of scores and its
// bootstrap interval at level (the configured level when level is 0).
// The interval always contains the aggregate and lies within the scale.
// A single input or identical inputs collapse the interval to a point.
func (e *Estimator) AggregateWithConfidence(scores, weights []float64, level float64) (float64, Interval, error) {
	if level == 0 {
		level = e.config.Level
	}
	if level <= 0 || level >= 1 {
		return 0, Interval{}, fmt.Errorf("%w: level %.3f outside (0, 1)", ErrInvalidInput, level)
	}
	agg, err := WeightedMean(scores, weights)
	if err != nil {
		return 0, Interval{}, err
	}
	agg = e.clamp(agg)

	iv := Interval{Lower: agg, Upper: agg, Method: "bootstrap", Level: level}
	if len(scores) < 2 || identical(scores) || e.config.NResamples == 0 {
		return agg, iv, nil
	}

	samples, err := e.resample(scores, weights)
	if err != nil {
		return 0, Interval{}, err
	}
	sort.Float64s(samples)

	alpha := (1 - level) / 2
	iv.Lower = e.clamp(math.Min(percentile(samples, alpha), agg))
	iv.Upper = e.clamp(math.Max(percentile(samples, 1-alpha), agg))
	iv.NResamples = len(samples)
	return agg, iv, nil
}

// resample splits the work into chunks, each with its own PCG stream.
func (e *Estimator) resample(scores, weights []float64) ([]float64, error) {
	n := e.config.NResamples
	chunks := min(e.config.Chunks, n)
	out := make([]float64, n)
	per := (n + chunks - 1) / chunks

	var g errgroup.Group
	for c := 0; c < chunks; c++ {
		start := c * per
		end := min(start+per, n)
		if start >= end {
			break
		}
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(e.config.Seed, uint64(c)))
			for r := start; r < end; r++ {
				var num, den float64
				for range len(scores) {
					k := rng.IntN(len(scores))
					num += weights[k] * scores[k]
					den += weights[k]
				}
				if den == 0 {
					// Every drawn weight was zero; fall back to the plain mean.
					for range len(scores) {
						num += scores[rng.IntN(len(scores))]
					}
					den = float64(len(scores))
				}
				out[r] = num / den
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}
	return out, nil
}

func (e *Estimator) clamp(v float64) float64 {
	return math.Min(e.config.ScaleMax, math.Max(e.config.ScaleMin, v))
}

// #endregion estimator

// #region helpers
// WeightedMean returns Σ wᵢxᵢ / Σ wᵢ.
func WeightedMean(scores, weights []float64) (float64, error) {
	if len(scores) == 0 {
		return 0, fmt.Errorf("%w: no scores", ErrInvalidInput)
	}
	if len(scores) != len(weights) {
		return 0, fmt.Errorf("%w: %d scores but %d weights", ErrInvalidInput, len(scores), len(weights))
	}
	var num, den float64
	for i, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return 0, fmt.Errorf("%w: weight %d is %g", ErrInvalidInput, i, w)
		}
		num += w * scores[i]
		den += w
	}
	if den == 0 {
		return 0, fmt.Errorf("%w: weights sum to zero", ErrInvalidInput)
	}
	return num / den, nil
}

// percentile interpolates linearly between closest ranks of sorted data.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func identical(scores []float64) bool {
	for _, s := range scores[1:] {
		if s != scores[0] {
			return false
		}
	}
	return true
}

// #endregion helpers
