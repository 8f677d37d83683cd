package obf

import "math/rand"

// NewRand builds the default Rand implementation: a seeded, non-global
// math/rand source. Passing the same seed to two pipeline runs over
// identical input reproduces identical output -- the property the
// original's unseeded global RNG could not offer.
func NewRand(seed int64) Rand {
	return &mathRand{r: rand.New(rand.NewSource(seed))}
}

type mathRand struct {
	r *rand.Rand
}

func (m *mathRand) Intn(n int) int {
	return m.r.Intn(n)
}

func (m *mathRand) Uint32() uint32 {
	return m.r.Uint32()
}
