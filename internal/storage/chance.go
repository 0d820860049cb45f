package storage

import (
	"math/rand"
	"sync"
)

// Chance decides whether a create skips ahead in the id sequence, and by
// how much. The sequence stays strictly increasing and ids are never
// reused; they are just not guaranteed contiguous. Injectable so tests can
// force both branches deterministically.
type Chance interface {
	// Gap returns 0 for a normal assignment, or the number of ids to skip
	// before the one actually assigned.
	Gap() int64
}

const (
	chaosProbability = 23
	chaosMinSkip     = 1
	chaosMaxSkip     = 23
)

// chaosChance skips between 1 and 23 ids with probability 1/23.
type chaosChance struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewChance returns the default chance source seeded from seed.
func NewChance(seed int64) Chance {
	return &chaosChance{rng: rand.New(rand.NewSource(seed))}
}

func (c *chaosChance) Gap() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rng.Intn(chaosProbability) != 0 {
		return 0
	}
	return int64(chaosMinSkip + c.rng.Intn(chaosMaxSkip-chaosMinSkip+1))
}

// FixedChance always returns the same gap. Test helper, also useful to
// disable skipping entirely with FixedChance(0).
type FixedChance int64

func (f FixedChance) Gap() int64 { return int64(f) }
