// Package agent implements the Agent entity (spec §3) and the Agent
// Repository collaborator the Match Coordinator draws from (spec §4, "Agent
// Repository").
package agent

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ch1nq/agentarena/pkg/apierr"
	"github.com/ch1nq/agentarena/pkg/imageurl"
)

// Status is the lifecycle state of an Agent.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Agent is a user-supplied, container-packaged competitor (spec §3).
type Agent struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	UserID    int64     `json:"user_id"`
	Status    Status    `json:"status"`
	ImageURL  *string   `json:"image_url"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidateName enforces the 3-50 char, [A-Za-z0-9_-] rule from spec §3.
func ValidateName(name string) error {
	if len(name) < 3 || len(name) > 50 {
		return apierr.Validationf("agent name must be between 3 and 50 characters")
	}
	if !namePattern.MatchString(name) {
		return apierr.Validationf("agent name may only contain letters, digits, underscores, and hyphens")
	}
	return nil
}

// CanActivate reports whether the agent has what it needs to become Active
// (spec invariant i: Active ⇒ image_url ≠ ⊥).
func (a *Agent) CanActivate() bool {
	return a.ImageURL != nil && strings.TrimSpace(*a.ImageURL) != ""
}

// ParsedImage parses the agent's image URL, if set.
func (a *Agent) ParsedImage() (imageurl.URL, error) {
	if a.ImageURL == nil {
		return imageurl.URL{}, apierr.Validationf("agent has no image url")
	}
	return imageurl.Parse(*a.ImageURL)
}
