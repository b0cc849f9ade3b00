// Package token implements the uniform create/list/revoke/validate contract
// shared by API tokens and Registry tokens (spec §4.5). Both pools have
// identical shape and rules, so one generic Store parameterized by table
// name backs both — this generalizes the teacher's separate pkg/apikey and
// pkg/pat packages, which duplicated near-identical logic against two
// Postgres tables.
package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/ch1nq/agentarena/pkg/apierr"
)

// MaxActivePerUser is the maximum number of simultaneously unrevoked tokens
// a user may hold in a single pool (spec invariant ii).
const MaxActivePerUser = 10

// plaintextAlphabet is used to generate the 64-char plaintext token value.
const plaintextAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// plaintextLength is the fixed length of a generated token's plaintext value.
const plaintextLength = 64

// hashCost is the bcrypt cost parameter, fixed at the module level per spec.
const hashCost = bcrypt.DefaultCost

var namePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)

// Token is a single row in a token pool (API or Registry).
type Token struct {
	ID        uuid.UUID  `json:"id"`
	UserID    int64      `json:"user_id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Store is a generic token pool backed by a single Postgres table. The table
// must expose columns (id uuid, user_id bigint, name text, token_hash text,
// created_at timestamptz, revoked_at timestamptz).
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// NewStore creates a Store bound to the given table ("api_tokens" or
// "registry_tokens").
func NewStore(pool *pgxpool.Pool, table string) *Store {
	return &Store{pool: pool, table: table}
}

// ValidateName enforces the 3-50 char, alphanumeric+space/hyphen/underscore
// rule from spec §4.5 and §8.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < 3 || len(trimmed) > 50 {
		return apierr.Validationf("token name must be between 3 and 50 characters")
	}
	if !namePattern.MatchString(trimmed) {
		return apierr.Validationf("token name may only contain letters, digits, spaces, hyphens, and underscores")
	}
	return nil
}

// Create enforces the active-count ceiling, generates a random 64-char
// plaintext value, hashes it, and inserts a new row. The plaintext is
// returned exactly once.
func (s *Store) Create(ctx context.Context, userID int64, name string) (plaintext string, tok Token, err error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateName(trimmed); err != nil {
		return "", Token{}, err
	}

	count, err := s.countActive(ctx, userID)
	if err != nil {
		return "", Token{}, apierr.Wrap(apierr.Internal, "checking active token count", err)
	}
	if count >= MaxActivePerUser {
		return "", Token{}, apierr.Validationf("user already has the maximum of %d active tokens", MaxActivePerUser)
	}

	plaintext, err = generatePlaintext()
	if err != nil {
		return "", Token{}, apierr.Wrap(apierr.Internal, "generating token", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), hashCost)
	if err != nil {
		return "", Token{}, apierr.Wrap(apierr.Internal, "hashing token", err)
	}

	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, name, token_hash) VALUES ($1, $2, $3)
		 RETURNING id, user_id, name, created_at, revoked_at`, s.table),
		userID, trimmed, string(hash),
	)

	if err := row.Scan(&tok.ID, &tok.UserID, &tok.Name, &tok.CreatedAt, &tok.RevokedAt); err != nil {
		return "", Token{}, apierr.Wrap(apierr.Internal, "inserting token", err)
	}

	return plaintext, tok, nil
}

// List returns all active (unrevoked) tokens for a user, newest first.
func (s *Store) List(ctx context.Context, userID int64) ([]Token, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, user_id, name, created_at, revoked_at FROM %s
		 WHERE user_id = $1 AND revoked_at IS NULL ORDER BY created_at DESC`, s.table),
		userID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "listing tokens", err)
	}
	defer rows.Close()

	var out []Token
	for rows.Next() {
		var t Token
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.CreatedAt, &t.RevokedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scanning token row", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.Wrap(apierr.Internal, "iterating token rows", err)
	}
	return out, nil
}

// Revoke sets revoked_at on the given token, scoped to a user. Returns
// apierr.TokenNotFound if no matching, still-active row exists.
func (s *Store) Revoke(ctx context.Context, userID int64, tokenID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET revoked_at = now()
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`, s.table),
		tokenID, userID,
	)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "revoking token", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.TokenNotFound
	}
	return nil
}

// Validate checks plaintext against every active hash for userID. Returns
// nil on a match, apierr.Unauthorized otherwise. bcrypt's own comparison is
// constant-time per-candidate.
func (s *Store) Validate(ctx context.Context, userID int64, plaintext string) error {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT token_hash FROM %s WHERE user_id = $1 AND revoked_at IS NULL`, s.table),
		userID,
	)
	if err != nil {
		return apierr.Wrap(apierr.Internal, "loading active token hashes", err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return apierr.Wrap(apierr.Internal, "scanning token hash", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return apierr.Wrap(apierr.Internal, "iterating token hashes", err)
	}

	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(plaintext)) == nil {
			return nil
		}
	}
	return apierr.Unauthorizedf("invalid credentials")
}

func (s *Store) countActive(ctx context.Context, userID int64) (int, error) {
	var n int
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE user_id = $1 AND revoked_at IS NULL`, s.table),
		userID,
	)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// generatePlaintext produces a CSPRNG 64-char alphanumeric value.
func generatePlaintext() (string, error) {
	b := make([]byte, plaintextLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, plaintextLength)
	for i, v := range b {
		out[i] = plaintextAlphabet[int(v)%len(plaintextAlphabet)]
	}
	return string(out), nil
}
