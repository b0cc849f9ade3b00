// Package machine implements the Machine Provider contract (spec §4.1): an
// abstract interface to provision and destroy an isolated compute unit
// (private network + IP + container) from a cloud platform, plus orphan
// listing/destruction consumed by the reaper.
package machine

import (
	"context"
	"crypto/rand"
	"time"
)

// Handle is the opaque (app, machine, ip) tuple returned by Spawn and
// consumed by Destroy (spec §3, "Machine Handle").
type Handle struct {
	AppName   string
	MachineID string
	PrivateIP string
}

// SpawnConfig is the input to Spawn (spec §4.1).
type SpawnConfig struct {
	ImageURL      string
	RegistryToken string
	Env           map[string]string
}

// OrphanedResource is a single entry returned by ListOrphaned (spec §4.1).
type OrphanedResource struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Provider is the capability interface the Match Coordinator and Orphan
// Reaper depend on. Exactly one concrete implementation (Cloud, in this
// package) targets a real machines API; tests substitute a fake.
type Provider interface {
	Spawn(ctx context.Context, cfg SpawnConfig) (Handle, error)
	Destroy(ctx context.Context, h Handle) error
	ListOrphaned(ctx context.Context, prefix string, maxAge time.Duration) ([]OrphanedResource, error)
	DestroyOrphaned(ctx context.Context, r OrphanedResource) error
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const idLength = 12

// generateID produces a 12-char lowercase alphanumeric id (spec §4.1 step 1).
func generateID() (string, error) {
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, idLength)
	for i, v := range b {
		out[i] = idAlphabet[int(v)%len(idAlphabet)]
	}
	return string(out), nil
}
