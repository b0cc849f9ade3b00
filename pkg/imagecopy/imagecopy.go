// Package imagecopy shells out to an external image-copying binary (the
// "copy" tool) shared by the Machine Provider (pushing an agent's image into
// the cloud platform's registry) and the Registry Client (spec §4.1 step 5,
// §4.6 copy_image). Both call sites need identical argument handling, so the
// process invocation lives in one place rather than being duplicated.
package imagecopy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Request describes a single source-to-destination image copy.
type Request struct {
	Src         string // "registry.example.com/user-1/agent:latest", no scheme
	Dst         string // "cloud-registry/agent-app-abc123", no scheme
	SrcToken    string // bearer token for Src, empty if Src is public
	DstUser     string
	DstPassword string
}

// Run invokes tool (defaulting to "copy" on PATH if empty) as:
//
//	copy docker://<src> docker://<dst> --src-registry-token <tok> --dest-creds user:pass
//
// per spec §6's external copy tool invocation.
func Run(ctx context.Context, tool string, req Request) error {
	if tool == "" {
		tool = "copy"
	}

	args := []string{dockerRef(req.Src), dockerRef(req.Dst)}
	if req.SrcToken != "" {
		args = append(args, "--src-registry-token", req.SrcToken)
	}
	if req.DstUser != "" || req.DstPassword != "" {
		args = append(args, "--dest-creds", fmt.Sprintf("%s:%s", req.DstUser, req.DstPassword))
	}

	cmd := exec.CommandContext(ctx, tool, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copy %s -> %s: %w: %s", req.Src, req.Dst, err, stderr.String())
	}
	return nil
}

func dockerRef(ref string) string {
	if strings.HasPrefix(ref, "docker://") {
		return ref
	}
	return "docker://" + ref
}
