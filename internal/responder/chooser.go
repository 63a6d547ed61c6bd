package responder

import (
	"math/rand/v2"
	"sync"
)

// Chooser makes the weighted trained-versus-generative decision. A fixed
// seed makes the sequence of decisions reproducible.
type Chooser struct {
	mu     sync.Mutex
	rng    *rand.Rand
	weight float64
}

func NewChooser(weight float64, seed uint64) *Chooser {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &Chooser{
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		weight: clamp(weight),
	}
}

// UseTrained reports whether a trained match should be used this time.
func (c *Chooser) UseTrained() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Float64() < c.weight
}

func (c *Chooser) Weight() float64 {
	return c.weight
}

func clamp(weight float64) float64 {
	switch {
	case weight < 0:
		return 0
	case weight > 1:
		return 1
	default:
		return weight
	}
}
