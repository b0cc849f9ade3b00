package publicapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ch1nq/agentarena/pkg/agent"
	"github.com/ch1nq/agentarena/pkg/apierr"
	"github.com/ch1nq/agentarena/pkg/token"
)

type fakeAgents struct {
	created agent.Agent
}

func (f *fakeAgents) Create(ctx context.Context, userID int64, name string, imageURL *string) (agent.Agent, error) {
	f.created = agent.Agent{ID: uuid.New(), Name: name, UserID: userID, Status: agent.StatusInactive, ImageURL: imageURL}
	return f.created, nil
}
func (f *fakeAgents) ListByUser(ctx context.Context, userID int64) ([]agent.Agent, error) {
	return []agent.Agent{f.created}, nil
}
func (f *fakeAgents) GetByID(ctx context.Context, userID int64, id uuid.UUID) (agent.Agent, error) {
	if id != f.created.ID {
		return agent.Agent{}, apierr.NotFoundf("agent not found")
	}
	return f.created, nil
}
func (f *fakeAgents) SetStatus(ctx context.Context, userID int64, id uuid.UUID, status agent.Status) (agent.Agent, error) {
	f.created.Status = status
	return f.created, nil
}
func (f *fakeAgents) Delete(ctx context.Context, userID int64, id uuid.UUID) error { return nil }

type fakeTokens struct{ valid string }

func (f *fakeTokens) Create(ctx context.Context, userID int64, name string) (string, token.Token, error) {
	return "plaintext", token.Token{ID: uuid.New(), UserID: userID, Name: name}, nil
}
func (f *fakeTokens) List(ctx context.Context, userID int64) ([]token.Token, error) { return nil, nil }
func (f *fakeTokens) Revoke(ctx context.Context, userID int64, tokenID uuid.UUID) error {
	return nil
}
func (f *fakeTokens) Validate(ctx context.Context, userID int64, plaintext string) error {
	if plaintext != f.valid {
		return apierr.Unauthorizedf("invalid credentials")
	}
	return nil
}

type fakeRegistry struct{ exists bool }

func (f *fakeRegistry) ListUserImages(ctx context.Context, bearerToken string, userID int64) ([]string, error) {
	return []string{"myagent:latest"}, nil
}
func (f *fakeRegistry) ImageExists(ctx context.Context, bearerToken string, repository, tag string) (bool, error) {
	return f.exists, nil
}

type fakeSystemBearer struct{}

func (fakeSystemBearer) Get(ctx context.Context) (string, error) { return "system-token", nil }

func newTestHandler(tokens *fakeTokens, agents *fakeAgents, registry *fakeRegistry) *Handler {
	return NewHandler(slog.New(slog.DiscardHandler), agents, tokens, registry, fakeSystemBearer{})
}

func basicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

func TestCreateAgentRequiresExistingImage(t *testing.T) {
	tokens := &fakeTokens{valid: "secret"}
	agents := &fakeAgents{}
	registry := &fakeRegistry{exists: false}
	h := newTestHandler(tokens, agents, registry)

	body := strings.NewReader(`{"name":"bot-one","image":"user-1/bot:latest"}`)
	req := httptest.NewRequest(http.MethodPost, "/agents", body)
	req.Header.Set("Authorization", basicAuthHeader("user-1", "secret"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "image does not exist")
}

func TestCreateAgentSucceedsWhenImageExists(t *testing.T) {
	tokens := &fakeTokens{valid: "secret"}
	agents := &fakeAgents{}
	registry := &fakeRegistry{exists: true}
	h := newTestHandler(tokens, agents, registry)

	body := strings.NewReader(`{"name":"bot-one","image":"user-1/bot:latest"}`)
	req := httptest.NewRequest(http.MethodPost, "/agents", body)
	req.Header.Set("Authorization", basicAuthHeader("user-1", "secret"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var got agent.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "bot-one", got.Name)
}

func TestRejectsBadCredentials(t *testing.T) {
	tokens := &fakeTokens{valid: "secret"}
	agents := &fakeAgents{}
	registry := &fakeRegistry{}
	h := newTestHandler(tokens, agents, registry)

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	req.Header.Set("Authorization", basicAuthHeader("user-1", "wrong"))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidateImageMissingParam(t *testing.T) {
	tokens := &fakeTokens{valid: "secret"}
	agents := &fakeAgents{}
	registry := &fakeRegistry{}
	h := newTestHandler(tokens, agents, registry)

	req := httptest.NewRequest(http.MethodGet, "/registry/validate", nil)
	req.Header.Set("Authorization", basicAuthHeader("user-1", "secret"))
	rec := httptest.NewRecorder()

	h.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
