// Package pick selects one entry from a pool of canned messages.
//
// The engine never calls a global random source directly. Callers inject a
// Picker so production code gets uniform random choice while tests pin the
// selection to a known index.
package pick

import (
	"math/rand/v2"
	"sync"
)

// Picker returns an index in [0, n). n is always > 0.
type Picker interface {
	Pick(n int) int
}

// String returns options[p.Pick(len(options))], or "" for an empty pool.
func String(p Picker, options []string) string {
	if len(options) == 0 {
		return ""
	}
	if p == nil {
		p = First()
	}
	i := p.Pick(len(options))
	if i < 0 || i >= len(options) {
		i = 0
	}
	return options[i]
}

// Random is a uniform Picker backed by a PCG source. Safe for concurrent use.
type Random struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandom returns a Picker seeded with seed. The same seed yields the same
// sequence of picks.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Pick returns a uniformly distributed index in [0, n).
func (r *Random) Pick(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.IntN(n)
}

// Func adapts a plain function to Picker.
type Func func(n int) int

// Pick calls f(n).
func (f Func) Pick(n int) int { return f(n) }

// First always picks the first option.
func First() Picker { return Fixed(0) }

// Last always picks the last option.
func Last() Picker { return Func(func(n int) int { return n - 1 }) }

// Fixed always picks index i, clamped into range.
func Fixed(i int) Picker {
	return Func(func(n int) int {
		if i >= n {
			return n - 1
		}
		if i < 0 {
			return 0
		}
		return i
	})
}
