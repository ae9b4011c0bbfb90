package executor

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// Armory issues the short-lived tokens that gate live execution. Arm
// returns a token; a start-live call must present it while still
// valid. State is process-scoped and lost on restart, so a restarted
// engine always comes up disarmed.
type Armory struct {
	mu     sync.Mutex
	tokens map[string]time.Time // token -> expiry
	now    func() time.Time
}

// ArmoryOption configures an Armory.
type ArmoryOption func(*Armory)

// WithArmoryClock replaces the wall clock, used by tests.
func WithArmoryClock(now func() time.Time) ArmoryOption {
	return func(a *Armory) { a.now = now }
}

func NewArmory(opts ...ArmoryOption) *Armory {
	a := &Armory{tokens: make(map[string]time.Time), now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Arm issues a fresh token valid for ttl.
func (a *Armory) Arm(ttl time.Duration) string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	token := hex.EncodeToString(buf)

	a.mu.Lock()
	a.sweepLocked()
	a.tokens[token] = a.now().Add(ttl)
	a.mu.Unlock()
	return token
}

// Valid reports whether token is issued and unexpired.
func (a *Armory) Valid(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sweepLocked()
	_, ok := a.tokens[token]
	return ok
}

// Revoke invalidates a token immediately.
func (a *Armory) Revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, token)
}

func (a *Armory) sweepLocked() {
	now := a.now()
	for t, exp := range a.tokens {
		if !exp.After(now) {
			delete(a.tokens, t)
		}
	}
}
