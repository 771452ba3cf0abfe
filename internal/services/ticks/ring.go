package ticks

import (
	"sort"
	"time"

	"PairPulse/internal/domain/models"
)

// ring is a fixed-capacity buffer of ticks kept in ascending timestamp order.
// It is not safe for concurrent use.
type ring struct {
	buf  []models.Tick
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]models.Tick, capacity)}
}

func (r *ring) len() int { return r.size }

func (r *ring) at(i int) models.Tick {
	return r.buf[(r.head+i)%len(r.buf)]
}

func (r *ring) set(i int, t models.Tick) {
	r.buf[(r.head+i)%len(r.buf)] = t
}

// push inserts t in timestamp order and reports whether the oldest entry was
// evicted to make room. Ticks normally arrive in order, so the insertion walk
// stops immediately; ticks within the skew tolerance move back a few slots.
// A full ring refuses a tick older than its oldest entry and is left as is.
func (r *ring) push(t models.Tick) (evicted, stored bool) {
	if r.size == len(r.buf) {
		if t.Timestamp.Before(r.at(0).Timestamp) {
			return false, false
		}
		r.buf[r.head] = models.Tick{}
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		evicted = true
	}

	i := r.size
	r.size++
	for i > 0 && r.at(i-1).Timestamp.After(t.Timestamp) {
		r.set(i, r.at(i-1))
		i--
	}
	r.set(i, t)
	return evicted, true
}

func (r *ring) oldest() (models.Tick, bool) {
	if r.size == 0 {
		return models.Tick{}, false
	}
	return r.at(0), true
}

func (r *ring) newest() (models.Tick, bool) {
	if r.size == 0 {
		return models.Tick{}, false
	}
	return r.at(r.size - 1), true
}

// window copies the ticks in [from, to], keeping only the last limit entries.
// Zero bounds are open.
func (r *ring) window(from, to time.Time, limit int) []models.Tick {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(r.size, func(i int) bool { return !r.at(i).Timestamp.Before(from) })
	}
	hi := r.size
	if !to.IsZero() {
		hi = sort.Search(r.size, func(i int) bool { return r.at(i).Timestamp.After(to) })
	}
	if hi <= lo {
		return nil
	}
	if limit > 0 && hi-lo > limit {
		lo = hi - limit
	}

	out := make([]models.Tick, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, r.at(i))
	}
	return out
}

func (r *ring) reset() {
	clear(r.buf)
	r.head, r.size = 0, 0
}
