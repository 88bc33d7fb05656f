package store

import (
	"crypto/rand"
	"sync"
	"time"
)

// Push keys follow the RTDB convention: 8 characters of millisecond
// timestamp followed by 12 random characters, all drawn from a 64-symbol
// alphabet that sorts in ASCII order. Keys generated later therefore
// compare greater, and keys generated within the same millisecond are
// disambiguated by incrementing the random suffix.
const pushAlphabet = "-0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ_abcdefghijklmnopqrstuvwxyz"

// PushIDs generates collection keys. Safe for concurrent use.
type PushIDs struct {
	mu       sync.Mutex
	lastTime int64
	lastRand [12]byte // alphabet indices of the previous suffix
}

// NewPushIDs creates a push key generator.
func NewPushIDs() *PushIDs {
	return &PushIDs{lastTime: -1}
}

// Next returns a new 20-character key greater than every key this
// generator has produced before.
func (g *PushIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UnixMilli()
	if now == g.lastTime {
		// Same millisecond: bump the previous suffix instead of rolling
		// new randomness, keeping keys strictly increasing.
		for i := len(g.lastRand) - 1; i >= 0; i-- {
			if g.lastRand[i] < 63 {
				g.lastRand[i]++
				break
			}
			g.lastRand[i] = 0
		}
	} else {
		var buf [12]byte
		if _, err := rand.Read(buf[:]); err != nil {
			// crypto/rand does not fail on supported platforms; fall
			// back to the clock so key generation never blocks a send.
			for i := range buf {
				buf[i] = byte(now >> (uint(i) * 5))
			}
		}
		for i, b := range buf {
			g.lastRand[i] = b & 63
		}
		g.lastTime = now
	}

	var key [20]byte
	ts := now
	for i := 7; i >= 0; i-- {
		key[i] = pushAlphabet[ts&63]
		ts >>= 6
	}
	for i, idx := range g.lastRand {
		key[8+i] = pushAlphabet[idx]
	}
	return string(key[:])
}
