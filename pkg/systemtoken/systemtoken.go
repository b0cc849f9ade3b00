// Package systemtoken maintains the platform's own cached registry token:
// the credential the Match Coordinator and Machine Provider use to pull and
// push agent images, issued by the Registry Auth Service to the "system"
// subject with full catalog access (spec §4.4, "System Token Cache").
package systemtoken

import (
	"context"
	"sync"
	"time"
)

// Issuer mints a signed registry token. Satisfied by registryauth.Service.
type Issuer interface {
	IssueSystemToken(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// refreshMargin is how far ahead of expiry a cached token is proactively
// refreshed, so callers never observe a token that expires mid-use.
const refreshMargin = 5 * time.Minute

// Cache holds the single system token in memory, guarded by an RWMutex so
// many concurrent readers (Public API requests, registry-auth requests) don't
// serialize on a refresh that only happens a few times an hour.
type Cache struct {
	issuer Issuer

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
}

// NewCache creates an empty cache; the first Get call triggers issuance.
func NewCache(issuer Issuer) *Cache {
	return &Cache{issuer: issuer}
}

// Get returns a valid system token, refreshing it first if it is missing or
// within refreshMargin of expiry.
func (c *Cache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	tok, exp := c.token, c.expiresAt
	c.mu.RUnlock()

	if tok != "" && time.Until(exp) > refreshMargin {
		return tok, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another goroutine may have refreshed while we waited for
	// the write lock.
	if c.token != "" && time.Until(c.expiresAt) > refreshMargin {
		return c.token, nil
	}

	tok, exp, err := c.issuer.IssueSystemToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = tok
	c.expiresAt = exp
	return tok, nil
}
