// Package registryclient talks to the Docker Registry v2 HTTP API on behalf
// of the Public API (listing and validating a user's images) and the
// Machine Provider (copying an agent's image into the cloud platform's
// registry), per spec §4.6.
package registryclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ch1nq/agentarena/pkg/imagecopy"
	"github.com/ch1nq/agentarena/pkg/imageurl"
)

// Client wraps registry calls against a single host.
type Client struct {
	host     string
	http     *http.Client
	copyTool string
}

// NewClient creates a registry Client. host is e.g. "https://registry.example.com".
func NewClient(host, copyTool string) *Client {
	return &Client{host: strings.TrimSuffix(host, "/"), http: http.DefaultClient, copyTool: copyTool}
}

type catalogResponse struct {
	Repositories []string `json:"repositories"`
}

// ListUserImages returns the repository names belonging to userID, with the
// "user-{id}/" namespace prefix stripped (spec §4.6 list_user_images).
func (c *Client) ListUserImages(ctx context.Context, bearerToken string, userID int64) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/v2/_catalog", nil)
	if err != nil {
		return nil, fmt.Errorf("building catalog request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listing catalog: unexpected status %d", resp.StatusCode)
	}

	var out catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding catalog response: %w", err)
	}

	prefix := imageurl.NamespacePrefix(userID)
	var images []string
	for _, repo := range out.Repositories {
		if stripped, ok := strings.CutPrefix(repo, prefix); ok {
			images = append(images, stripped)
		}
	}
	return images, nil
}

// ImageExists checks whether repository:tag has a manifest, via HEAD
// request (spec §4.6 image_exists, and the supplemented pre-activation
// check in SPEC_FULL.md).
func (c *Client) ImageExists(ctx context.Context, bearerToken string, repository, tag string) (bool, error) {
	url := fmt.Sprintf("%s/v2/%s/manifests/%s", c.host, repository, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("building manifest request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("Accept", "application/vnd.docker.distribution.manifest.v2+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("checking manifest: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("checking manifest: unexpected status %d", resp.StatusCode)
	}
}

// CopyImage copies src (at this client's host, using srcToken) to dst
// (elsewhere, using basic credentials), shelling out to the shared copy
// tool (spec §4.6 copy_image).
func (c *Client) CopyImage(ctx context.Context, srcRepository, srcTag, srcToken, dst, dstUser, dstPassword string) error {
	src := fmt.Sprintf("%s/%s:%s", c.host, srcRepository, srcTag)
	return imagecopy.Run(ctx, c.copyTool, imagecopy.Request{
		Src:         src,
		Dst:         dst,
		SrcToken:    srcToken,
		DstUser:     dstUser,
		DstPassword: dstPassword,
	})
}
