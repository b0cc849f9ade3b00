// Package imageurl parses the opaque image-reference strings used throughout
// the platform: "repository:tag" pairs, with an optional registry host and
// the "user-{id}/" namespace prefix enforced within the platform registry.
package imageurl

import (
	"fmt"
	"strconv"
	"strings"
)

// NamespacePrefix returns the platform-registry repository prefix for a user.
func NamespacePrefix(userID int64) string {
	return fmt.Sprintf("user-%d/", userID)
}

// URL is a parsed image reference: an optional host, a repository path, and
// a tag.
type URL struct {
	Host       string // empty when the reference is namespace-relative
	Repository string // e.g. "user-42/foo" or "ns/name"
	Tag        string
}

// Parse accepts both fully-qualified ("host/ns/name:tag") and
// namespace-relative ("ns/name:tag") references. It requires exactly one
// colon-separated tag component.
func Parse(raw string) (URL, error) {
	if raw == "" {
		return URL{}, fmt.Errorf("image url is empty")
	}

	repoPart, tag, ok := strings.Cut(raw, ":")
	if !ok || tag == "" || repoPart == "" {
		return URL{}, fmt.Errorf("image url %q must be repository:tag", raw)
	}
	if strings.Contains(tag, "/") {
		return URL{}, fmt.Errorf("image url %q has a malformed tag", raw)
	}

	segments := strings.Split(repoPart, "/")
	if len(segments) < 2 {
		return URL{}, fmt.Errorf("image url %q must include at least a namespace and name", raw)
	}

	u := URL{Tag: tag}

	// A namespace-relative reference is always exactly "namespace/name"; any
	// extra leading segment is the registry host, whether or not it looks
	// like a DNS name ("registry", "cloud-registry", "registry.example.com"
	// all qualify).
	if len(segments) >= 3 {
		u.Host = segments[0]
		u.Repository = strings.Join(segments[1:], "/")
	} else {
		u.Repository = repoPart
	}

	return u, nil
}

// String renders "repository:tag", dropping any host component.
func (u URL) String() string {
	return u.Repository + ":" + u.Tag
}

// Full renders the original form including host, if present.
func (u URL) Full() string {
	if u.Host == "" {
		return u.String()
	}
	return u.Host + "/" + u.Repository + ":" + u.Tag
}

// RepositoryOnly strips the tag, returning just the repository path.
func (u URL) RepositoryOnly() string {
	return u.Repository
}

// BelongsToUser reports whether the parsed repository sits under the given
// user's platform namespace ("user-{id}/...").
func (u URL) BelongsToUser(userID int64) bool {
	return strings.HasPrefix(u.Repository, NamespacePrefix(userID))
}

// ParseForUser parses raw and additionally enforces that it belongs to
// userID's namespace, returning a Validation-flavored error (via the caller)
// otherwise. It is a convenience wrapper used by the agent and registry
// packages.
func ParseForUser(raw string, userID int64) (URL, error) {
	u, err := Parse(raw)
	if err != nil {
		return URL{}, err
	}
	if !u.BelongsToUser(userID) {
		return URL{}, fmt.Errorf("image url %q is not in namespace %s", raw, NamespacePrefix(userID))
	}
	return u, nil
}

// UserIDFromNamespace extracts the numeric id from a "user-{id}" segment,
// used when parsing basic-auth usernames in the Registry Auth Service.
func UserIDFromNamespace(segment string) (int64, bool) {
	const prefix = "user-"
	if !strings.HasPrefix(segment, prefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(segment, prefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
