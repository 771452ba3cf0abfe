package analytics

import (
	"errors"
	"math"
	"testing"

	"PairPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEstimatorsRecoverExactLine(t *testing.T) {
	a, b := linear(50, -4, 0.8)
	for _, est := range []models.Estimator{models.EstimatorOLS, models.EstimatorHuber, models.EstimatorTheilSen} {
		f, err := estimateStatic(est, a, b, 500)
		require.NoError(t, err, est)
		assert.InDelta(t, 0.8, f.Beta, 1e-9, est)
		assert.InDelta(t, -4.0, f.Alpha, 1e-7, est)
	}
}

func TestStaticEstimatorsFailClosedOnFlatLeg(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{9, 9, 9, 9}
	for _, est := range []models.Estimator{models.EstimatorOLS, models.EstimatorHuber, models.EstimatorTheilSen} {
		_, err := estimateStatic(est, a, b, 500)
		assert.True(t, errors.Is(err, models.ErrSingular), est)
	}
}

func TestTheilSenWindowIsCapped(t *testing.T) {
	a, b := linear(60, 0, 1)
	// a regime change early in the window is ignored once capped to the tail
	for i := 0; i < 40; i++ {
		a[i] = 3 * b[i]
	}
	f, err := estimateStatic(models.EstimatorTheilSen, a, b, 20)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, f.Beta, 1e-9)
}

func TestZScoresAndPearson(t *testing.T) {
	x := []float64{1, 2, 3, 10}
	z := rollingZScores(x, 4, 3)
	assert.Equal(t, 0.0, z[0])
	assert.InDelta(t, 1.0, z[1], 1e-12)
	assert.InDelta(t, math.Sqrt(1.5), z[2], 1e-12)
	assert.InDelta(t, 5/math.Sqrt(38.0/3), z[3], 1e-12)

	// each score sees only its trailing points
	assert.Equal(t, z[:3], rollingZScores(x[:3], 3, 3))
	assert.Equal(t, z[2:], rollingZScores(x, 2, 3))

	assert.Equal(t, []float64{0, 0, 0}, rollingZScores([]float64{5, 5, 5}, 3, 3))
	assert.Equal(t, []float64{0}, rollingZScores([]float64{9, 5, 5, 5}, 1, 3))
	assert.True(t, math.IsNaN(pearson([]float64{1, 1, 1}, []float64{1, 2, 3})))
	assert.True(t, math.IsNaN(pearson([]float64{1}, []float64{1})))
	assert.InDelta(t, -1.0, pearson([]float64{1, 2, 3}, []float64{3, 2, 1}), 1e-12)
}

func TestKalmanFilterStep(t *testing.T) {
	k := newKalmanFilter(1e-4, 1e-3)
	assert.Equal(t, 2.0, k.step(20, 10))
	assert.Equal(t, 2.0, k.step(24, 12))
	beta := k.step(36, 12)
	assert.Greater(t, beta, 2.0)
}
