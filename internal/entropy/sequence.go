package entropy

// Sequence replays scripted draws. Float64 returns the next value (cycling);
// Intn scales the next value into [0, n). Read is backed by a seeded generator
// so ids stay deterministic.
type Sequence struct {
	values []float64
	next   int
	bytes  Source
}

// NewSequence scripts the given draws, each expected in [0, 1).
func NewSequence(values ...float64) *Sequence {
	if len(values) == 0 {
		values = []float64{0}
	}
	return &Sequence{values: values, bytes: NewSeeded(1)}
}

// Float64 returns the next scripted value.
func (s *Sequence) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

// Intn maps the next scripted value into [0, n).
func (s *Sequence) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	i := int(s.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

// Read fills p deterministically.
func (s *Sequence) Read(p []byte) (int, error) {
	return s.bytes.Read(p)
}

// Draws reports how many Float64/Intn draws were consumed.
func (s *Sequence) Draws() int {
	return s.next
}
