// Package coordinator implements the Match Coordinator (spec §4.3): a
// single long-lived loop that repeatedly picks a set of active agents,
// provisions one game-host and one machine per agent, runs a match to
// completion, and tears every machine down — never letting one cycle's
// failure stop the next.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/ch1nq/agentarena/pkg/agent"
	"github.com/ch1nq/agentarena/pkg/gamehost"
	"github.com/ch1nq/agentarena/pkg/machine"
)

// AgentRepository is the Coordinator's sole source of participants (spec
// §4.3 step 1). Satisfied by pkg/agent.Store.
type AgentRepository interface {
	GetRandomActive(ctx context.Context, n int) ([]agent.Agent, error)
}

// HostDialer opens a Client to a freshly spawned game-host machine.
type HostDialer func(ctx context.Context, addr string) (gamehost.Client, error)

// Config holds the tunables a match cycle runs with (spec §6 env vars).
type Config struct {
	AgentsPerGame  int
	GameHostImage  string
	WarmupDelay    time.Duration
	PollInterval   time.Duration
	MatchTimeout   time.Duration
	MatchConfig    gamehost.MatchConfig
	GameHostPort   string
	AgentPort      string
}

// DefaultConfig fills in the spec's defaults for anything the caller leaves
// zero-valued.
func DefaultConfig(cfg Config) Config {
	if cfg.AgentsPerGame == 0 {
		cfg.AgentsPerGame = 4
	}
	if cfg.WarmupDelay == 0 {
		cfg.WarmupDelay = 5 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = gamehost.DefaultPollInterval
	}
	if cfg.MatchTimeout == 0 {
		cfg.MatchTimeout = 10 * time.Minute
	}
	return cfg
}

// Coordinator owns the run loop. Its collaborators are all small,
// consumer-defined interfaces so a test can substitute fakes without
// touching a real cloud account or database.
type Coordinator struct {
	agents    AgentRepository
	provider  machine.Provider
	dial      HostDialer
	tokenFor  func(ctx context.Context) (string, error) // system registry token
	cfg       Config
	logger    *slog.Logger
}

// New creates a Coordinator.
func New(agents AgentRepository, provider machine.Provider, dial HostDialer, tokenFor func(context.Context) (string, error), cfg Config, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		agents:   agents,
		provider: provider,
		dial:     dial,
		tokenFor: tokenFor,
		cfg:      DefaultConfig(cfg),
		logger:   logger,
	}
}

// Run loops RunSingleGame until ctx is cancelled. Each cycle's error is
// logged, not propagated: a single bad match never stops the tournament.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration) error {
	c.logger.Info("match coordinator started", "interval", interval, "agents_per_game", c.cfg.AgentsPerGame)

	timer := time.NewTimer(jitteredInterval(interval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("match coordinator stopped")
			return nil
		case <-timer.C:
			if err := c.RunSingleGame(ctx); err != nil {
				c.logger.Error("match cycle failed", "error", err)
			}
			timer.Reset(jitteredInterval(interval))
		}
	}
}

// RunSingleGame executes one full match cycle (spec §4.3): pick agents,
// spawn a game host, spawn one machine per agent, warm up, start the match,
// poll to completion, then unconditionally destroy everything spawned.
func (c *Coordinator) RunSingleGame(ctx context.Context) error {
	matchID := uuid.NewString()
	log := c.logger.With("match_id", matchID)

	participants, err := c.agents.GetRandomActive(ctx, c.cfg.AgentsPerGame)
	if err != nil {
		return fmt.Errorf("selecting agents: %w", err)
	}
	if len(participants) < c.cfg.AgentsPerGame {
		log.Debug("not enough active agents for a match", "count", len(participants))
		return nil
	}

	token, err := c.tokenFor(ctx)
	if err != nil {
		return fmt.Errorf("fetching system registry token: %w", err)
	}

	hostHandle, err := c.provider.Spawn(ctx, machine.SpawnConfig{
		ImageURL:      c.cfg.GameHostImage,
		RegistryToken: token,
		Env:           map[string]string{"MATCH_ID": matchID},
	})
	if err != nil {
		return fmt.Errorf("spawning game host: %w", err)
	}
	defer c.cleanup(ctx, log, "game_host", hostHandle)

	agentHandles, endpoints, err := c.spawnAgents(ctx, log, matchID, token, participants)
	defer c.cleanupAll(ctx, log, agentHandles)
	if err != nil {
		return fmt.Errorf("spawning agent machines: %w", err)
	}

	select {
	case <-time.After(c.cfg.WarmupDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	hostAddr := net.JoinHostPort(hostHandle.PrivateIP, c.cfg.GameHostPort)
	client, err := c.dial(ctx, hostAddr)
	if err != nil {
		return fmt.Errorf("dialing game host: %w", err)
	}

	startResp, err := client.StartGame(ctx, &gamehost.StartGameRequest{
		MatchID: matchID,
		Agents:  endpoints,
		Config:  c.cfg.MatchConfig,
	})
	if err != nil {
		return fmt.Errorf("starting match: %w", err)
	}
	if !startResp.Accepted {
		return fmt.Errorf("game host rejected match: %s", startResp.Reason)
	}

	return c.pollUntilDone(ctx, log, client, matchID)
}

func (c *Coordinator) spawnAgents(ctx context.Context, log *slog.Logger, matchID, token string, participants []agent.Agent) ([]machine.Handle, []gamehost.AgentEndpoint, error) {
	handles := make([]machine.Handle, 0, len(participants))
	endpoints := make([]gamehost.AgentEndpoint, 0, len(participants))

	for _, a := range participants {
		imageURL := ""
		if a.ImageURL != nil {
			imageURL = *a.ImageURL
		}

		h, err := c.provider.Spawn(ctx, machine.SpawnConfig{
			ImageURL:      imageURL,
			RegistryToken: token,
			Env:           map[string]string{"MATCH_ID": matchID, "AGENT_ID": a.ID.String()},
		})
		if err != nil {
			return handles, endpoints, fmt.Errorf("spawning machine for agent %s: %w", a.ID, err)
		}
		handles = append(handles, h)
		endpoints = append(endpoints, gamehost.AgentEndpoint{
			AgentID: a.ID.String(),
			Address: net.JoinHostPort(h.PrivateIP, c.cfg.AgentPort),
		})
	}
	return handles, endpoints, nil
}

// pollUntilDone polls GetStatus until the match reaches a terminal state or
// the match timeout elapses.
func (c *Coordinator) pollUntilDone(ctx context.Context, log *slog.Logger, client gamehost.Client, matchID string) error {
	deadline := time.Now().Add(c.cfg.MatchTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("match %s timed out after %s", matchID, c.cfg.MatchTimeout)
			}

			status, err := client.GetStatus(ctx, &gamehost.GetStatusRequest{MatchID: matchID})
			if err != nil {
				log.Warn("polling match status failed", "error", err)
				continue
			}

			switch status.State {
			case gamehost.StateFinished:
				log.Info("match finished", "placements", len(status.Placements))
				return nil
			case gamehost.StateFailed:
				return fmt.Errorf("match %s failed: %s", matchID, status.Error)
			case gamehost.StateRunning, gamehost.StateWaitingForAgents, gamehost.StateUnspecified:
				continue
			}
		}
	}
}

func (c *Coordinator) cleanupAll(ctx context.Context, log *slog.Logger, handles []machine.Handle) {
	for _, h := range handles {
		c.cleanup(ctx, log, "agent_machine", h)
	}
}

// cleanup destroys a handle unconditionally; failures are logged, not
// propagated, so one stuck teardown never blocks the next match cycle.
func (c *Coordinator) cleanup(ctx context.Context, log *slog.Logger, kind string, h machine.Handle) {
	// Use a fresh, short-lived context: the caller's ctx may already be
	// cancelled (shutdown, or the match itself timed out).
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.provider.Destroy(cleanupCtx, h); err != nil {
		log.Error("cleanup failed", "kind", kind, "app", h.AppName, "error", err)
	}
}

// jitteredInterval adds up to ±10% jitter to a base interval, spreading
// coordinator restarts across a fleet instead of herd-waking in lockstep.
func jitteredInterval(base time.Duration) time.Duration {
	delta := float64(base) * 0.1
	offset := time.Duration(rand.Float64()*2*delta - delta)
	return base + offset
}
