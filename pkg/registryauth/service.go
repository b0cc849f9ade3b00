// Package registryauth implements the Registry Authentication Service (spec
// §4.2): a Docker Registry v2 compatible token endpoint that exchanges a
// platform registry token for a short-lived, RS256-signed JWT scoped to the
// caller's own image namespace.
package registryauth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/ch1nq/agentarena/pkg/apierr"
	"github.com/ch1nq/agentarena/pkg/imageurl"
)

// Authenticator validates registry-auth basic credentials. Satisfied by
// pkg/token.Store against the registry_tokens pool.
type Authenticator interface {
	Validate(ctx context.Context, userID int64, plaintext string) error
}

// tokenTTL is how long an issued registry token remains valid (spec §4.2:
// "Token lifetime: 30 minutes").
const tokenTTL = 30 * time.Minute

const systemSubject = "system"

// Service signs registry access tokens with a single RSA keypair.
type Service struct {
	key     *rsa.PrivateKey
	kid     string
	realm   string // advertised in the WWW-Authenticate challenge
	service string // must match the request's "service" query parameter
}

// NewService derives the key's libtrust fingerprint once at construction.
// service is the registry service name (REGISTRY_SERVICE) used as the JWT
// audience and checked against each request's "service" query parameter.
func NewService(key *rsa.PrivateKey, realm, service string) (*Service, error) {
	kid, err := KeyID(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("deriving key id: %w", err)
	}
	return &Service{key: key, kid: kid, realm: realm, service: service}, nil
}

// ServiceName reports the configured registry service name.
func (s *Service) ServiceName() string { return s.service }

// claims is the JWT payload shape the registry expects, carrying the
// granted access list under "access" (Docker Registry v2 token spec).
type claims struct {
	jwt.Claims
	Access []accessEntry `json:"access"`
}

type accessEntry struct {
	Type    string   `json:"type"`
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// IssueForUser signs a token granting the requested scopes, intersected
// with the user's own "user-{id}/" namespace (spec §4.2 scope validation).
func (s *Service) IssueForUser(userID int64, requested []Scope) (string, time.Time, error) {
	granted := IntersectNamespace(requested, imageurl.NamespacePrefix(userID), false)
	return s.sign(fmt.Sprintf("user-%d", userID), granted)
}

// IssueSystemToken signs a token with unrestricted catalog access for the
// platform's own use (Machine Provider image pulls, Match Coordinator image
// copies). It satisfies pkg/systemtoken.Issuer.
func (s *Service) IssueSystemToken(ctx context.Context) (string, time.Time, error) {
	granted := []Scope{{Type: "registry", Name: "catalog", Actions: []string{"*"}}}
	return s.sign(systemSubject, granted)
}

func (s *Service) sign(subject string, granted []Scope) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tokenTTL)

	access := make([]accessEntry, 0, len(granted))
	for _, g := range granted {
		access = append(access, accessEntry{Type: g.Type, Name: g.Name, Actions: g.Actions})
	}

	c := claims{
		Claims: jwt.Claims{
			Subject:   subject,
			Audience:  jwt.Audience{s.service},
			Expiry:    jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Access: access,
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: s.key}, &jose.SignerOptions{
		ExtraHeaders: map[jose.HeaderKey]any{"kid": s.kid},
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(c).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return token, expiresAt, nil
}

// AuthenticateAndIssue runs the full token-issuance state machine:
// requested -> validated-credentials -> scopes-parsed ->
// scopes-intersected-with-namespace -> signed -> returned (spec §4.2).
func (s *Service) AuthenticateAndIssue(ctx context.Context, auth Authenticator, userID int64, plaintext string, rawScopes []string) (string, time.Time, error) {
	if err := auth.Validate(ctx, userID, plaintext); err != nil {
		return "", time.Time{}, apierr.Unauthorizedf("invalid registry credentials")
	}

	requested := ParseScopes(rawScopes)
	return s.IssueForUser(userID, requested)
}
