package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ch1nq/agentarena/pkg/apierr"
)

const agentColumns = `id, name, user_id, status, image_url, created_at`

// Store provides database operations for agents.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an agent Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.UserID, &a.Status, &a.ImageURL, &a.CreatedAt)
	return a, err
}

// Create inserts a new, inactive agent.
func (s *Store) Create(ctx context.Context, userID int64, name string, imageURL *string) (Agent, error) {
	if err := ValidateName(name); err != nil {
		return Agent{}, err
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO agents (name, user_id, status, image_url) VALUES ($1, $2, $3, $4)
		 RETURNING `+agentColumns,
		name, userID, StatusInactive, imageURL,
	)
	a, err := scanAgent(row)
	if err != nil {
		return Agent{}, apierr.Wrap(apierr.Internal, "creating agent", err)
	}
	return a, nil
}

// ListByUser returns all agents owned by a user.
func (s *Store) ListByUser(ctx context.Context, userID int64) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "listing agents", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scanning agent row", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetByID returns an agent scoped to its owning user.
func (s *Store) GetByID(ctx context.Context, userID int64, id uuid.UUID) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	a, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Agent{}, apierr.NotFoundf("agent not found")
		}
		return Agent{}, apierr.Wrap(apierr.Internal, "getting agent", err)
	}
	return a, nil
}

// SetStatus transitions an agent between Active and Inactive, scoped to its
// owning user. Activation requires a non-null image URL (invariant i).
func (s *Store) SetStatus(ctx context.Context, userID int64, id uuid.UUID, status Status) (Agent, error) {
	a, err := s.GetByID(ctx, userID, id)
	if err != nil {
		return Agent{}, err
	}
	if status == StatusActive && !a.CanActivate() {
		return Agent{}, apierr.Validationf("agent has no image_url; push an image and retry")
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE agents SET status = $1 WHERE id = $2 AND user_id = $3 RETURNING `+agentColumns,
		status, id, userID,
	)
	updated, err := scanAgent(row)
	if err != nil {
		return Agent{}, apierr.Wrap(apierr.Internal, "updating agent status", err)
	}
	return updated, nil
}

// SetImageURL records the image a user has validated for an agent.
func (s *Store) SetImageURL(ctx context.Context, userID int64, id uuid.UUID, imageURL string) (Agent, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE agents SET image_url = $1 WHERE id = $2 AND user_id = $3 RETURNING `+agentColumns,
		imageURL, id, userID,
	)
	a, err := scanAgent(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Agent{}, apierr.NotFoundf("agent not found")
		}
		return Agent{}, apierr.Wrap(apierr.Internal, "setting agent image", err)
	}
	return a, nil
}

// Delete removes an agent, scoped to its owning user.
func (s *Store) Delete(ctx context.Context, userID int64, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "deleting agent", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.NotFoundf("agent not found")
	}
	return nil
}

// GetRandomActive returns up to n randomly selected active agents with
// non-null image URLs. It is the sole entry point the Match Coordinator
// uses to pick participants (spec §4.3 step 1).
func (s *Store) GetRandomActive(ctx context.Context, n int) ([]Agent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents
		 WHERE status = $1 AND image_url IS NOT NULL
		 ORDER BY random() LIMIT $2`,
		StatusActive, n,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting random active agents: %w", err)
	}
	defer rows.Close()

	var out []Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
