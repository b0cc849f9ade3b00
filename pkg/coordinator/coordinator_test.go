package coordinator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ch1nq/agentarena/pkg/agent"
	"github.com/ch1nq/agentarena/pkg/machine"
)

type fakeRepo struct {
	agents []agent.Agent
}

func (f fakeRepo) GetRandomActive(ctx context.Context, n int) ([]agent.Agent, error) {
	if n > len(f.agents) {
		n = len(f.agents)
	}
	return f.agents[:n], nil
}

type fakeProvider struct {
	spawned   int
	destroyed int
	failSpawn bool
}

func (f *fakeProvider) Spawn(ctx context.Context, cfg machine.SpawnConfig) (machine.Handle, error) {
	f.spawned++
	// The first spawn (the game host) succeeds; every agent spawn after it fails.
	if f.failSpawn && f.spawned > 1 {
		return machine.Handle{}, &machine.SpawnError{Stage: machine.StageMachineCreation, Err: context.DeadlineExceeded}
	}
	return machine.Handle{AppName: "app", MachineID: "m", PrivateIP: "10.0.0.1"}, nil
}

func (f *fakeProvider) Destroy(ctx context.Context, h machine.Handle) error {
	f.destroyed++
	return nil
}

func (f *fakeProvider) ListOrphaned(ctx context.Context, prefix string, maxAge time.Duration) ([]machine.OrphanedResource, error) {
	return nil, nil
}

func (f *fakeProvider) DestroyOrphaned(ctx context.Context, r machine.OrphanedResource) error {
	return nil
}

func newParticipants(n int) []agent.Agent {
	img := "registry.example.com/user-1/agent:latest"
	out := make([]agent.Agent, n)
	for i := range out {
		out[i] = agent.Agent{ID: uuid.New(), Name: "agent", UserID: 1, Status: agent.StatusActive, ImageURL: &img}
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunSingleGameNotEnoughAgents(t *testing.T) {
	repo := fakeRepo{agents: newParticipants(1)}
	provider := &fakeProvider{}

	c := New(repo, provider, nil, func(context.Context) (string, error) { return "tok", nil }, Config{AgentsPerGame: 4}, discardLogger())

	if err := c.RunSingleGame(context.Background()); err != nil {
		t.Fatalf("RunSingleGame() error = %v, want nil (should skip quietly)", err)
	}
	if provider.spawned != 0 {
		t.Errorf("spawned = %d, want 0 when too few agents", provider.spawned)
	}
}

func TestRunSingleGameShortRosterBelowConfiguredSize(t *testing.T) {
	repo := fakeRepo{agents: newParticipants(3)}
	provider := &fakeProvider{}

	c := New(repo, provider, nil, func(context.Context) (string, error) { return "tok", nil }, Config{AgentsPerGame: 4}, discardLogger())

	if err := c.RunSingleGame(context.Background()); err != nil {
		t.Fatalf("RunSingleGame() error = %v, want nil (should skip quietly)", err)
	}
	if provider.spawned != 0 {
		t.Errorf("spawned = %d, want 0 when fewer than AgentsPerGame are active", provider.spawned)
	}
}

func TestRunSingleGameSpawnFailureCleansUp(t *testing.T) {
	repo := fakeRepo{agents: newParticipants(4)}
	provider := &fakeProvider{failSpawn: true}

	c := New(repo, provider, nil, func(context.Context) (string, error) { return "tok", nil }, Config{AgentsPerGame: 4, WarmupDelay: time.Millisecond}, discardLogger())

	if err := c.RunSingleGame(context.Background()); err == nil {
		t.Fatal("RunSingleGame() error = nil, want spawn error")
	}
	if provider.destroyed == 0 {
		t.Error("expected cleanup to destroy the game host even though agent spawn failed")
	}
}
