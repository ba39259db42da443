package confidence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBoundsContainAggregate(t *testing.T) {
	e := NewEstimator(DefaultConfig())
	scores := []float64{0.5, 1.2, 2.9, 2.1, 1.7, 0.3}
	weights := []float64{1, 1, 2, 1, 1, 0.5}

	agg, iv, err := e.AggregateWithConfidence(scores, weights, 0.95)
	require.NoError(t, err)
	assert.LessOrEqual(t, iv.Lower, agg)
	assert.GreaterOrEqual(t, iv.Upper, agg)
	assert.GreaterOrEqual(t, iv.Lower, 0.0)
	assert.LessOrEqual(t, iv.Upper, 3.0)
	assert.Greater(t, iv.Width(), 0.0)
	assert.Equal(t, 1000, iv.NResamples)
	assert.Equal(t, "bootstrap", iv.Method)
}

func TestDeterministicForSeed(t *testing.T) {
	scores := []float64{0.1, 0.9, 2.2, 1.4}
	weights := []float64{1, 1, 1, 1}

	_, a, err := NewEstimator(DefaultConfig()).Seeded("CL01").AggregateWithConfidence(scores, weights, 0)
	require.NoError(t, err)
	_, b, err := NewEstimator(DefaultConfig()).Seeded("CL01").AggregateWithConfidence(scores, weights, 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, c, err := NewEstimator(DefaultConfig()).Seeded("CL02").AggregateWithConfidence(scores, weights, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "different groups should draw different streams")
}

func TestChunkCountDoesNotChangeSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NResamples = 101
	cfg.Chunks = 7
	_, iv, err := NewEstimator(cfg).AggregateWithConfidence([]float64{1, 2, 3}, []float64{1, 1, 1}, 0.9)
	require.NoError(t, err)
	assert.Equal(t, 101, iv.NResamples)
	assert.Equal(t, 0.9, iv.Level)
}

func TestPointIntervals(t *testing.T) {
	e := NewEstimator(DefaultConfig())

	agg, iv, err := e.AggregateWithConfidence([]float64{2.4}, []float64{1}, 0.95)
	require.NoError(t, err)
	assert.Equal(t, 2.4, agg)
	assert.Equal(t, agg, iv.Lower)
	assert.Equal(t, agg, iv.Upper)

	agg, iv, err = e.AggregateWithConfidence([]float64{1.5, 1.5, 1.5}, []float64{1, 2, 3}, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, agg, 1e-12)
	assert.Zero(t, iv.Width())
}

func TestWeightedMean(t *testing.T) {
	got, err := WeightedMean([]float64{1, 3}, []float64{3, 1})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 1e-12)

	_, err = WeightedMean(nil, nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = WeightedMean([]float64{1}, []float64{1, 2})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = WeightedMean([]float64{1, 2}, []float64{0, 0})
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = WeightedMean([]float64{1, 2}, []float64{1, -1})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestPercentileInterpolation(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	assert.Equal(t, 1.0, percentile(data, 0))
	assert.Equal(t, 5.0, percentile(data, 1))
	assert.Equal(t, 3.0, percentile(data, 0.5))
	assert.InDelta(t, 1.4, percentile(data, 0.1), 1e-12)
}

func TestShiftClamps(t *testing.T) {
	iv := Interval{Lower: 0.1, Upper: 0.6}.Shift(0.3, 0, 3)
	assert.Equal(t, 0.0, iv.Lower)
	assert.InDelta(t, 0.3, iv.Upper, 1e-12)
}

func TestInvalidLevel(t *testing.T) {
	_, _, err := NewEstimator(DefaultConfig()).AggregateWithConfidence([]float64{1, 2}, []float64{1, 1}, 1.5)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
