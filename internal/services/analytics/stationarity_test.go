package analytics

import (
	"errors"
	"math/rand"
	"testing"

	"PairPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ar1(n int, phi float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	y := make([]float64, n)
	for i := 1; i < n; i++ {
		y[i] = phi*y[i-1] + rng.NormFloat64()
	}
	return y
}

func TestADFRejectsUnitRootForMeanReversion(t *testing.T) {
	res, err := ADF(ar1(500, 0.2, 1))
	require.NoError(t, err)
	assert.Less(t, res.Statistic, -5.0)
	assert.Less(t, res.PValue, 0.01)
	assert.True(t, res.Stationary(0.05))
	assert.Less(t, res.Statistic, res.CriticalValues["1%"])
	assert.GreaterOrEqual(t, res.Lags, 0)
	assert.Greater(t, res.NObs, 400)
}

func TestADFRandomWalkScoresAboveMeanReversion(t *testing.T) {
	walk, err := ADF(ar1(500, 1.0, 2))
	require.NoError(t, err)
	rev, err := ADF(ar1(500, 0.2, 2))
	require.NoError(t, err)
	assert.Greater(t, walk.Statistic, rev.Statistic)
	assert.Greater(t, walk.PValue, rev.PValue)
}

func TestADFNeedsTwentyPoints(t *testing.T) {
	_, err := ADF(ar1(19, 0.5, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientData))

	_, err = ADF(ar1(20, 0.5, 3))
	assert.NoError(t, err)
}

func TestADFConstantSeriesIsSingular(t *testing.T) {
	y := make([]float64, 30)
	for i := range y {
		y[i] = 4.2
	}
	_, err := ADF(y)
	assert.True(t, errors.Is(err, models.ErrSingular))
}

func TestMackinnonP(t *testing.T) {
	assert.InDelta(t, 0.05, mackinnonP(-2.86), 0.005)
	assert.InDelta(t, 0.01, mackinnonP(-3.43), 0.005)
	assert.Greater(t, mackinnonP(0), 0.9)
	assert.Equal(t, 1.0, mackinnonP(3))
	assert.Equal(t, 0.0, mackinnonP(-25))
}
