// Package entropy picks seeds for the simulation's random source.
// A configured seed makes a run reproducible; seed 0 asks for a fresh one
// from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"log/slog"
	mrand "math/rand"
	"time"
)

// ResolveSeed returns seed unchanged when non-zero, otherwise a random
// non-zero seed.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	for {
		s := CryptoSeed()
		if s != 0 {
			return s
		}
	}
}

// CryptoSeed returns a random int64 using crypto/rand. If the system source
// fails it falls back to the clock.
func CryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		slog.Debug("crypto/rand read failed, seeding from clock", "error", err)
		return time.Now().UnixNano()
	}
	// Clear the sign bit so seeds print as positive numbers.
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}

// NewRand returns a math/rand source for the resolved seed, along with
// the seed actually used.
func NewRand(seed int64) (*mrand.Rand, int64) {
	seed = ResolveSeed(seed)
	return mrand.New(mrand.NewSource(seed)), seed
}
