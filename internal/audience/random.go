package audience

import (
	"math/rand"
	"time"
)

// RandomSource yields floats in [0, 1).
type RandomSource interface {
	Float64() float64
}

// NewRandomSource returns a deterministic source for the given seed.
func NewRandomSource(seed int64) RandomSource {
	return rand.New(rand.NewSource(seed))
}

func defaultRandomSource() RandomSource {
	return NewRandomSource(time.Now().UnixNano())
}
