package pursuit

import (
	"math/rand"
	"sync"
	"time"
)

const (
	MinDepth       = 3
	MaxDepth       = 14
	MinCooldownMin = 1
	MaxCooldownMin = 3
)

// Randomizer picks tip selection depth and cooldown after successful action.
// Random depth keeps concurrent promoters from selecting the same tips
type Randomizer interface {
	Depth() uint64   // in [MinDepth, MaxDepth]
	CooldownMin() int // in [MinCooldownMin, MaxCooldownMin]
}

type randomizer struct {
	sync.Mutex
	rnd *rand.Rand
}

func NewRandomizer() Randomizer {
	return NewSeededRandomizer(time.Now().UnixNano())
}

func NewSeededRandomizer(seed int64) Randomizer {
	return &randomizer{rnd: rand.New(rand.NewSource(seed))}
}

func (r *randomizer) intIn(min, max int) int {
	r.Lock()
	defer r.Unlock()
	return min + r.rnd.Intn(max-min+1)
}

func (r *randomizer) Depth() uint64 {
	return uint64(r.intIn(MinDepth, MaxDepth))
}

func (r *randomizer) CooldownMin() int {
	return r.intIn(MinCooldownMin, MaxCooldownMin)
}
