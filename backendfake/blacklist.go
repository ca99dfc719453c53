package backendfake

import (
	"sync"
	"time"
)

// blacklist holds the jti of every refresh token that was rotated out or
// logged out, until the token would have expired anyway.
type blacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newBlacklist() *blacklist {
	return &blacklist{revoked: make(map[string]time.Time)}
}

// add blacklists jti and reports whether it was newly added. Two rotations
// racing on the same refresh token see exactly one true.
func (b *blacklist) add(jti string, exp time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.purgeLocked(time.Now())
	if _, exists := b.revoked[jti]; exists {
		return false
	}
	b.revoked[jti] = exp
	return true
}

func (b *blacklist) contains(jti string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, exists := b.revoked[jti]
	return exists
}

func (b *blacklist) purgeLocked(now time.Time) {
	for jti, exp := range b.revoked {
		if now.After(exp) {
			delete(b.revoked, jti)
		}
	}
}
