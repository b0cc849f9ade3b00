package machine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ch1nq/agentarena/pkg/imagecopy"
)

// CloudConfig configures the Cloud provider (env vars per spec §6:
// CLOUD_API_TOKEN, CLOUD_ORG, CLOUD_HOST, REGISTRY_URL).
type CloudConfig struct {
	APIToken     string
	Org          string
	Internal     bool // CLOUD_HOST=internal vs public
	RegistryHost string
	CloudToken   string // destination registry credential (x:{cloud_token})
	Prefix       string // app/network name prefix, also used by the reaper
	CopyTool     string // path to the external `copy` binary
}

func (c CloudConfig) baseURL() string {
	if c.Internal {
		return "http://_api.internal:4280"
	}
	return "https://api.machines.dev"
}

// Cloud is the concrete Provider backed by a fly.io-shaped machines API.
// All calls share a token-bucket rate limiter (1/sec sustained, burst 3)
// with 0-2s jitter before each request, per spec §4.1.
type Cloud struct {
	cfg     CloudConfig
	http    *http.Client
	limiter *rate.Limiter
}

// NewCloud creates a Cloud provider.
func NewCloud(cfg CloudConfig) *Cloud {
	return &Cloud{
		cfg:     cfg,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(1), 3),
	}
}

// wait applies jitter then blocks on the shared rate limiter.
func (c *Cloud) wait(ctx context.Context) error {
	jitter := time.Duration(rand.Int63n(int64(2 * time.Second)))
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.limiter.Wait(ctx)
}

func (c *Cloud) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.baseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(req)
}

// Spawn implements the ordered spawn algorithm from spec §4.1.
func (c *Cloud) Spawn(ctx context.Context, cfg SpawnConfig) (Handle, error) {
	id, err := generateID()
	if err != nil {
		return Handle{}, &SpawnError{Stage: StageAppCreation, Err: err}
	}
	appName := fmt.Sprintf("%s-%s-app", c.cfg.Prefix, id)
	network := fmt.Sprintf("%s-%s-net", c.cfg.Prefix, id)

	if err := c.createApp(ctx, appName, network); err != nil {
		return Handle{}, &SpawnError{Stage: StageAppCreation, Err: err}
	}

	privateIP, err := c.assignPrivateIP(ctx, appName)
	if err != nil {
		_ = c.destroyApp(ctx, appName)
		return Handle{}, &SpawnError{Stage: StageIPAssignment, Err: err}
	}

	if err := c.copyImage(ctx, cfg.ImageURL, appName, cfg.RegistryToken); err != nil {
		_ = c.destroyApp(ctx, appName)
		return Handle{}, &SpawnError{Stage: StageImageCopy, Err: err}
	}

	machineID, bootIP, err := c.createMachine(ctx, appName, cfg.Env)
	if err != nil {
		_ = c.destroyApp(ctx, appName)
		return Handle{}, &SpawnError{Stage: StageMachineCreation, Err: err}
	}
	if bootIP != "" {
		privateIP = bootIP
	}

	return Handle{AppName: appName, MachineID: machineID, PrivateIP: privateIP}, nil
}

func (c *Cloud) createApp(ctx context.Context, appName, network string) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/apps", map[string]string{
		"app_name":     appName,
		"org_slug":     c.cfg.Org,
		"network":      network,
	})
	if err != nil {
		return fmt.Errorf("creating app: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("creating app: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Cloud) assignPrivateIP(ctx context.Context, appName string) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/apps/%s/ip_assignments", appName), map[string]string{
		"type": "private_v6",
	})
	if err != nil {
		return "", fmt.Errorf("assigning private ip: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("assigning private ip: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding ip assignment response: %w", err)
	}
	return out.Address, nil
}

// copyImage delegates to the Registry Client's external copy tool (spec
// §4.1 step 5, §4.6 copy_image). src is "{registry_host}/{image_url}" with a
// bearer source token; dst is "cloud-registry/{app_name}" with basic creds
// x:{cloud_token}.
func (c *Cloud) copyImage(ctx context.Context, imageURL, appName, registryToken string) error {
	src := strings.TrimSuffix(c.cfg.RegistryHost, "/") + "/" + imageURL
	dst := "cloud-registry/" + appName
	return imagecopy.Run(ctx, c.cfg.CopyTool, imagecopy.Request{
		Src:          src,
		Dst:          dst,
		SrcToken:     registryToken,
		DstUser:      "x",
		DstPassword:  c.cfg.CloudToken,
	})
}

func (c *Cloud) createMachine(ctx context.Context, appName string, env map[string]string) (machineID, ip string, err error) {
	resp, reqErr := c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/apps/%s/machines", appName), map[string]any{
		"config": map[string]any{
			"image": "cloud-registry/" + appName,
			"env":   env,
			"auto_destroy": true,
			"restart": map[string]any{
				"policy":      "on-failure",
				"max_retries": 1,
			},
		},
	})
	if reqErr != nil {
		return "", "", fmt.Errorf("creating machine: %w", reqErr)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("creating machine: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		ID        string `json:"id"`
		PrivateIP string `json:"private_ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decoding machine creation response: %w", err)
	}
	return out.ID, out.PrivateIP, nil
}

// Destroy destroys the app backing h (which cascades to the machine). It is
// idempotent on "already gone" (404/410 are treated as success).
func (c *Cloud) Destroy(ctx context.Context, h Handle) error {
	return c.destroyApp(ctx, h.AppName)
}

func (c *Cloud) destroyApp(ctx context.Context, appName string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v1/apps/"+appName, nil)
	if err != nil {
		return &DestructionError{Target: appName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusGone {
		return &DestructionError{Target: appName, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return nil
}

// ListOrphaned enumerates apps whose name starts with prefix and whose
// creation time is older than maxAge.
func (c *Cloud) ListOrphaned(ctx context.Context, prefix string, maxAge time.Duration) ([]OrphanedResource, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/apps?org_slug="+c.cfg.Org, nil)
	if err != nil {
		return nil, fmt.Errorf("listing apps: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("listing apps: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Apps []struct {
			ID        string    `json:"id"`
			Name      string    `json:"name"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"apps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding app list: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	var orphans []OrphanedResource
	for _, a := range out.Apps {
		if !strings.HasPrefix(a.Name, prefix) {
			continue
		}
		if a.CreatedAt.After(cutoff) {
			continue
		}
		orphans = append(orphans, OrphanedResource{ID: a.ID, Name: a.Name, CreatedAt: a.CreatedAt})
	}
	return orphans, nil
}

// DestroyOrphaned destroys a single orphan resource by name.
func (c *Cloud) DestroyOrphaned(ctx context.Context, r OrphanedResource) error {
	return c.destroyApp(ctx, r.Name)
}
