package registryauth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ch1nq/agentarena/internal/auth"
	"github.com/ch1nq/agentarena/internal/httpserver"
	"github.com/ch1nq/agentarena/internal/telemetry"
	"github.com/ch1nq/agentarena/pkg/imageurl"
)

// tokenResponse matches the Docker Registry v2 token response shape
// (clients accept either "token" or "access_token").
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	IssuedAt    string `json:"issued_at"`
}

// SystemBearer reports the current, cached system token plaintext so the
// "system" username can be validated against it (spec §4.2).
type SystemBearer interface {
	Get(ctx context.Context) (string, error)
}

// Handler serves GET /token. It resolves a "user-{id}" basic-auth username
// to a platform user id via imageurl.UserIDFromNamespace before validating
// credentials.
type Handler struct {
	svc         *Service
	auth        Authenticator
	system      SystemBearer
	rateLimiter *auth.RateLimiter // may be nil to disable throttling
}

// NewHandler wires a Service, credential Authenticator, and the system
// bearer cache into an http.Handler-compatible Handler.
func NewHandler(svc *Service, authn Authenticator, system SystemBearer, rl *auth.RateLimiter) *Handler {
	return &Handler{svc: svc, auth: authn, system: system, rateLimiter: rl}
}

// ServeHTTP implements the registry token endpoint's request/response
// cycle: requested -> validated-credentials -> scopes-parsed ->
// scopes-intersected-with-namespace -> signed -> returned (spec §4.2).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.URL.Query().Get("service") != h.svc.ServiceName() {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "unknown service")
		return
	}

	if h.rateLimiter != nil {
		result, err := h.rateLimiter.Check(ctx, clientIP(r))
		if err != nil {
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "checking rate limit")
			return
		}
		if !result.Allowed {
			telemetry.RegistryAuthFailuresTotal.WithLabelValues("rate_limited").Inc()
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(result.RetryAt).Seconds()), 10))
			httpserver.RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many failed attempts")
			return
		}
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		h.challenge(w)
		return
	}

	var (
		token     string
		expiresAt time.Time
		err       error
	)

	switch {
	case username == systemSubject:
		token, expiresAt, err = h.authenticateSystem(ctx, password, r.URL.Query()["scope"])
	case strings.HasPrefix(username, "user-"):
		userID, found := imageurl.UserIDFromNamespace(username)
		if !found {
			err = errBadCredentials
			break
		}
		token, expiresAt, err = h.svc.AuthenticateAndIssue(ctx, h.auth, userID, password, r.URL.Query()["scope"])
	default:
		err = errBadCredentials
	}

	if err != nil {
		h.recordFailure(ctx, r)
		telemetry.RegistryAuthFailuresTotal.WithLabelValues("bad_credentials").Inc()
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		return
	}

	if h.rateLimiter != nil {
		_ = h.rateLimiter.Reset(ctx, clientIP(r))
	}
	subjectKind := "user"
	if username == systemSubject {
		subjectKind = "system"
	}
	telemetry.RegistryTokensIssuedTotal.WithLabelValues(subjectKind).Inc()

	now := time.Now().UTC()
	httpserver.Respond(w, http.StatusOK, tokenResponse{
		Token:       token,
		AccessToken: token,
		ExpiresIn:   int(expiresAt.Sub(now).Seconds()),
		IssuedAt:    now.Format(time.RFC3339),
	})
}

var errBadCredentials = httpserverUnauthorized{}

type httpserverUnauthorized struct{}

func (httpserverUnauthorized) Error() string { return "invalid credentials" }

// authenticateSystem validates password against the cached system bearer
// token and, if it matches, signs a token for the "system" subject (spec
// §4.2: the system principal is trusted, so every requested scope is granted).
func (h *Handler) authenticateSystem(ctx context.Context, password string, rawScopes []string) (string, time.Time, error) {
	current, err := h.system.Get(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	if password != current {
		return "", time.Time{}, errBadCredentials
	}
	granted := IntersectNamespace(ParseScopes(rawScopes), "", true)
	return h.svc.sign(systemSubject, granted)
}

func (h *Handler) recordFailure(ctx context.Context, r *http.Request) {
	if h.rateLimiter == nil {
		return
	}
	_ = h.rateLimiter.Record(ctx, clientIP(r))
}

func (h *Handler) challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+h.svc.realm+`"`)
	httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "credentials required")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
