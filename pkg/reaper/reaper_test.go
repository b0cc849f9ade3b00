package reaper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ch1nq/agentarena/pkg/machine"
)

type fakeProvider struct {
	orphans     []machine.OrphanedResource
	destroyErrs map[string]error
	destroyed   []string
}

func (f *fakeProvider) Spawn(ctx context.Context, cfg machine.SpawnConfig) (machine.Handle, error) {
	return machine.Handle{}, nil
}

func (f *fakeProvider) Destroy(ctx context.Context, h machine.Handle) error { return nil }

func (f *fakeProvider) ListOrphaned(ctx context.Context, prefix string, maxAge time.Duration) ([]machine.OrphanedResource, error) {
	return f.orphans, nil
}

func (f *fakeProvider) DestroyOrphaned(ctx context.Context, r machine.OrphanedResource) error {
	f.destroyed = append(f.destroyed, r.Name)
	return f.destroyErrs[r.Name]
}

func TestSweepDestroysAllDespiteFailures(t *testing.T) {
	provider := &fakeProvider{
		orphans: []machine.OrphanedResource{
			{ID: "1", Name: "a"},
			{ID: "2", Name: "b"},
			{ID: "3", Name: "c"},
		},
		destroyErrs: map[string]error{"b": context.DeadlineExceeded},
	}

	r := New(provider, Config{Prefix: "agentarena-", MaxAge: time.Hour}, slog.New(slog.DiscardHandler))
	r.Sweep(context.Background())

	if len(provider.destroyed) != 3 {
		t.Fatalf("destroyed %d resources, want 3 (one failure should not stop the sweep)", len(provider.destroyed))
	}
}

func TestSweepNoOrphans(t *testing.T) {
	provider := &fakeProvider{}
	r := New(provider, Config{Prefix: "agentarena-", MaxAge: time.Hour}, slog.New(slog.DiscardHandler))
	r.Sweep(context.Background())

	if len(provider.destroyed) != 0 {
		t.Errorf("destroyed %d resources, want 0", len(provider.destroyed))
	}
}
