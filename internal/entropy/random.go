// Package entropy provides the random source injected into the event engine,
// dialogue engine and creature director. Production runs use a seeded
// math/rand generator; the seed itself comes from crypto/rand when not configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
)

// Source is the randomness every stochastic sub-system draws from.
// Read lets a Source feed id generators.
type Source interface {
	Float64() float64 // uniform in [0, 1)
	Intn(n int) int   // uniform in [0, n)
	Read(p []byte) (int, error)
}

// NewSeeded returns a deterministic source for the given seed.
func NewSeeded(seed int64) Source {
	return mrand.New(mrand.NewSource(seed))
}

// NewSeed draws a seed from crypto/rand.
func NewSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		slog.Warn("crypto seed unavailable, using fixed seed", "error", err)
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}
