package features

import (
	"time"

	"PairPulse/internal/domain/models"
	"PairPulse/internal/domain/repository"
)

// Aligned holds two series restricted to their common timestamps.
type Aligned struct {
	Times []time.Time
	A     []float64
	B     []float64
}

func (a Aligned) Len() int { return len(a.Times) }

// Tail returns the last n aligned points (all of them if fewer exist).
func (a Aligned) Tail(n int) Aligned {
	if n >= len(a.Times) || n < 0 {
		return a
	}
	off := len(a.Times) - n
	return Aligned{Times: a.Times[off:], A: a.A[off:], B: a.B[off:]}
}

// Align intersects two ascending series on timestamp. Points present in only
// one series are skipped.
func Align(a, b []models.SeriesPoint) Aligned {
	n := min(len(a), len(b))
	out := Aligned{
		Times: make([]time.Time, 0, n),
		A:     make([]float64, 0, n),
		B:     make([]float64, 0, n),
	}
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch ta, tb := a[i].Timestamp, b[j].Timestamp; {
		case ta.Equal(tb):
			out.Times = append(out.Times, ta)
			out.A = append(out.A, a[i].Value)
			out.B = append(out.B, b[j].Value)
			i++
			j++
		case ta.Before(tb):
			i++
		default:
			j++
		}
	}
	return out
}

// Points zips timestamps and values into a series.
func Points(times []time.Time, values []float64) []models.SeriesPoint {
	out := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = models.SeriesPoint{Timestamp: times[i], Value: v}
	}
	return out
}

// AlignFromTo rounds a time range down to candle boundaries of tf.
func AlignFromTo(from, to time.Time, tf repository.Timeframe) (time.Time, time.Time) {
	if !from.IsZero() {
		from = tf.Bucket(from)
	}
	if !to.IsZero() {
		to = tf.Bucket(to)
	}
	return from, to
}
