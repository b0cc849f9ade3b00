// Package publicapi implements the Public HTTP API facade (spec §4.7),
// mounted under /api/v1: a thin, Basic-auth-protected CRUD layer over the
// Agent Repository, Token Store, and Registry Client.
package publicapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ch1nq/agentarena/internal/httpserver"
	"github.com/ch1nq/agentarena/pkg/agent"
	"github.com/ch1nq/agentarena/pkg/apierr"
	"github.com/ch1nq/agentarena/pkg/imageurl"
	"github.com/ch1nq/agentarena/pkg/token"
)

// AgentRepository is the subset of pkg/agent.Store the Public API needs.
type AgentRepository interface {
	Create(ctx context.Context, userID int64, name string, imageURL *string) (agent.Agent, error)
	ListByUser(ctx context.Context, userID int64) ([]agent.Agent, error)
	GetByID(ctx context.Context, userID int64, id uuid.UUID) (agent.Agent, error)
	SetStatus(ctx context.Context, userID int64, id uuid.UUID, status agent.Status) (agent.Agent, error)
	Delete(ctx context.Context, userID int64, id uuid.UUID) error
}

// TokenStore is the subset of pkg/token.Store the Public API needs for a
// single pool (bound to the "api_tokens" table).
type TokenStore interface {
	Create(ctx context.Context, userID int64, name string) (string, token.Token, error)
	List(ctx context.Context, userID int64) ([]token.Token, error)
	Revoke(ctx context.Context, userID int64, tokenID uuid.UUID) error
	TokenValidator
}

// RegistryClient is the subset of pkg/registryclient.Client the Public API
// needs to list and validate a caller's images.
type RegistryClient interface {
	ListUserImages(ctx context.Context, bearerToken string, userID int64) ([]string, error)
	ImageExists(ctx context.Context, bearerToken string, repository, tag string) (bool, error)
}

// SystemBearer supplies the platform's own registry bearer token, used to
// query the catalog on a caller's behalf (the system token has unrestricted
// catalog access; results are filtered to the caller's own namespace).
type SystemBearer interface {
	Get(ctx context.Context) (string, error)
}

// Handler serves every /api/v1 route.
type Handler struct {
	logger   *slog.Logger
	agents   AgentRepository
	tokens   TokenStore
	registry RegistryClient
	system   SystemBearer
}

// NewHandler wires the Public API's collaborators together.
func NewHandler(logger *slog.Logger, agents AgentRepository, tokens TokenStore, registry RegistryClient, system SystemBearer) *Handler {
	return &Handler{logger: logger, agents: agents, tokens: tokens, registry: registry, system: system}
}

// Routes returns a chi.Router with Basic auth and every /api/v1 route
// mounted (spec §6's route table).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(BasicAuth(h.tokens))

	r.Get("/agents", h.handleListAgents)
	r.Post("/agents", h.handleCreateAgent)
	r.Get("/agents/{id}", h.handleGetAgent)
	r.Post("/agents/{id}/activate", h.handleActivateAgent)
	r.Post("/agents/{id}/deactivate", h.handleDeactivateAgent)
	r.Delete("/agents/{id}", h.handleDeleteAgent)

	r.Get("/registry/images", h.handleListImages)
	r.Get("/registry/validate", h.handleValidateImage)

	r.Get("/tokens", h.handleListTokens)
	r.Post("/tokens", h.handleCreateToken)
	r.Delete("/tokens/{id}", h.handleDeleteToken)

	return r
}

type createAgentRequest struct {
	Name  string `json:"name" validate:"required"`
	Image string `json:"image" validate:"required"`
}

func (h *Handler) handleListAgents(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	agents, err := h.agents.ListByUser(r.Context(), userID)
	if err != nil {
		h.respondErr(w, "listing agents", err)
		return
	}
	if agents == nil {
		agents = []agent.Agent{}
	}
	httpserver.Respond(w, http.StatusOK, agents)
}

func (h *Handler) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req createAgentRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	parsed, err := imageurl.ParseForUser(req.Image, userID)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	token, err := h.system.Get(r.Context())
	if err != nil {
		h.respondErr(w, "fetching registry token", err)
		return
	}
	exists, err := h.registry.ImageExists(r.Context(), token, parsed.RepositoryOnly(), parsed.Tag)
	if err != nil {
		h.respondErr(w, "checking image existence", err)
		return
	}
	if !exists {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "image does not exist in your namespace")
		return
	}

	image := parsed.String()
	a, err := h.agents.Create(r.Context(), userID, req.Name, &image)
	if err != nil {
		h.respondErr(w, "creating agent", err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, a)
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "invalid agent id")
		return
	}

	a, err := h.agents.GetByID(r.Context(), userID, id)
	if err != nil {
		h.respondErr(w, "getting agent", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a)
}

func (h *Handler) handleActivateAgent(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, agent.StatusActive)
}

func (h *Handler) handleDeactivateAgent(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, agent.StatusInactive)
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, status agent.Status) {
	userID, _ := UserIDFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "invalid agent id")
		return
	}

	a, err := h.agents.SetStatus(r.Context(), userID, id, status)
	if err != nil {
		h.respondErr(w, "updating agent status", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, a)
}

func (h *Handler) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "invalid agent id")
		return
	}

	if err := h.agents.Delete(r.Context(), userID, id); err != nil {
		h.respondErr(w, "deleting agent", err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

func (h *Handler) handleListImages(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	bearer, err := h.system.Get(r.Context())
	if err != nil {
		h.respondErr(w, "fetching registry token", err)
		return
	}
	images, err := h.registry.ListUserImages(r.Context(), bearer, userID)
	if err != nil {
		h.respondErr(w, "listing images", err)
		return
	}
	if images == nil {
		images = []string{}
	}
	httpserver.Respond(w, http.StatusOK, images)
}

// AgentImageUrl describes a single namespace-relative image reference and
// whether it currently exists in the registry (spec §6).
type AgentImageUrl struct {
	Image  string `json:"image"`
	Exists bool   `json:"exists"`
}

func (h *Handler) handleValidateImage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	raw := r.URL.Query().Get("image")
	if raw == "" {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "image query parameter is required")
		return
	}

	parsed, err := imageurl.ParseForUser(raw, userID)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}

	bearer, err := h.system.Get(r.Context())
	if err != nil {
		h.respondErr(w, "fetching registry token", err)
		return
	}
	exists, err := h.registry.ImageExists(r.Context(), bearer, parsed.RepositoryOnly(), parsed.Tag)
	if err != nil {
		h.respondErr(w, "checking image existence", err)
		return
	}

	httpserver.Respond(w, http.StatusOK, AgentImageUrl{Image: parsed.String(), Exists: exists})
}

type createTokenRequest struct {
	Name string `json:"name" validate:"required"`
}

type createTokenResponse struct {
	Token string      `json:"token"`
	Info  token.Token `json:"info"`
}

func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	tokens, err := h.tokens.List(r.Context(), userID)
	if err != nil {
		h.respondErr(w, "listing tokens", err)
		return
	}
	if tokens == nil {
		tokens = []token.Token{}
	}
	httpserver.Respond(w, http.StatusOK, tokens)
}

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req createTokenRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	plaintext, tok, err := h.tokens.Create(r.Context(), userID, req.Name)
	if err != nil {
		h.respondErr(w, "creating token", err)
		return
	}
	httpserver.Respond(w, http.StatusCreated, createTokenResponse{Token: plaintext, Info: tok})
}

func (h *Handler) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", "invalid token id")
		return
	}

	if err := h.tokens.Revoke(r.Context(), userID, id); err != nil {
		h.respondErr(w, "revoking token", err)
		return
	}
	httpserver.Respond(w, http.StatusNoContent, nil)
}

// respondErr translates an apierr.Kind into the HTTP status codes fixed by
// spec §4.7, logging anything that isn't a client-facing error.
func (h *Handler) respondErr(w http.ResponseWriter, action string, err error) {
	switch apierr.KindOf(err) {
	case apierr.NotFound:
		httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case apierr.Validation:
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
	case apierr.Unauthorized:
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		h.logger.Error(action, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
