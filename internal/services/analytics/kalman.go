package analytics

import (
	"time"
)

// kalmanFilter tracks state (alpha, beta) of a = alpha + beta*b as a random
// walk. Each observation moves the estimate instead of refitting the window.
type kalmanFilter struct {
	alpha, beta float64
	p           [2][2]float64
	q           float64 // state noise per step
	r           float64 // observation noise
	ready       bool
}

func newKalmanFilter(delta, obsVar float64) *kalmanFilter {
	return &kalmanFilter{q: delta / (1 - delta), r: obsVar}
}

// step folds one observation in and returns the updated beta.
func (k *kalmanFilter) step(a, b float64) float64 {
	if !k.ready {
		k.alpha, k.beta = 0, a/b
		k.p = [2][2]float64{{1, 0}, {0, 1}}
		k.ready = true
		return k.beta
	}

	// predict
	k.p[0][0] += k.q
	k.p[1][1] += k.q

	// update with H = [1, b]
	ph0 := k.p[0][0] + k.p[0][1]*b
	ph1 := k.p[1][0] + k.p[1][1]*b
	s := ph0 + b*ph1 + k.r
	k0, k1 := ph0/s, ph1/s
	e := a - (k.alpha + k.beta*b)

	k.alpha += k0 * e
	k.beta += k1 * e

	// P = P - K H P, with H P = [ph0, ph1] by symmetry of P
	p00 := k.p[0][0] - k0*ph0
	p01 := k.p[0][1] - k0*ph1
	p10 := k.p[1][0] - k1*ph0
	p11 := k.p[1][1] - k1*ph1
	k.p = [2][2]float64{{p00, p01}, {p10, p11}}
	return k.beta
}

// kalmanState is the filter for one (pair, timeframe) plus the betas it has
// committed, keyed by bucket time.
type kalmanState struct {
	filter *kalmanFilter
	last   time.Time
	betas  map[time.Time]float64
	used   time.Time
}

func newKalmanState(delta, obsVar float64) *kalmanState {
	return &kalmanState{filter: newKalmanFilter(delta, obsVar), betas: make(map[time.Time]float64)}
}

// trial is a beta computed for a point that may still change.
type trial struct {
	at   time.Time
	beta float64
	ok   bool
}

// advance commits every observation newer than the last one seen, except the
// newest. The newest may belong to a candle that is still open, so it is
// stepped on a copy of the filter and returned without being committed.
func (s *kalmanState) advance(times []time.Time, a, b []float64) trial {
	n := len(times)
	if n == 0 {
		return trial{}
	}
	for i, ts := range times[:n-1] {
		if !s.last.IsZero() && !ts.After(s.last) {
			continue
		}
		s.betas[ts] = s.filter.step(a[i], b[i])
		s.last = ts
	}

	ts := times[n-1]
	if !s.last.IsZero() && !ts.After(s.last) {
		return trial{}
	}
	f := *s.filter
	return trial{at: ts, beta: f.step(a[n-1], b[n-1]), ok: true}
}

// ratios returns the beta in effect at each of times. A time the filter
// never saw gets the current estimate.
func (s *kalmanState) ratios(times []time.Time, pending trial) []float64 {
	out := make([]float64, len(times))
	for i, ts := range times {
		if v, ok := s.betas[ts]; ok {
			out[i] = v
		} else if pending.ok && ts.Equal(pending.at) {
			out[i] = pending.beta
		} else {
			out[i] = s.filter.beta
		}
	}
	return out
}

// prune drops betas older than cutoff.
func (s *kalmanState) prune(cutoff time.Time) {
	for ts := range s.betas {
		if ts.Before(cutoff) {
			delete(s.betas, ts)
		}
	}
}
