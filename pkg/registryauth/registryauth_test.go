package registryauth

import (
	"crypto/rand"
	"crypto/rsa"
	"regexp"
	"testing"
)

func TestParseScopes(t *testing.T) {
	scopes := ParseScopes([]string{"repository:user-1/agent:pull,push registry:catalog:*"})
	if len(scopes) != 2 {
		t.Fatalf("ParseScopes() returned %d scopes, want 2", len(scopes))
	}
	if scopes[0].Type != "repository" || scopes[0].Name != "user-1/agent" {
		t.Errorf("scopes[0] = %+v", scopes[0])
	}
	if len(scopes[0].Actions) != 2 || scopes[0].Actions[0] != "pull" || scopes[0].Actions[1] != "push" {
		t.Errorf("scopes[0].Actions = %v", scopes[0].Actions)
	}
	if scopes[1].Type != "registry" || scopes[1].Name != "catalog" {
		t.Errorf("scopes[1] = %+v", scopes[1])
	}
}

func TestParseScopesInvalid(t *testing.T) {
	scopes := ParseScopes([]string{"not-a-scope", ""})
	if len(scopes) != 0 {
		t.Errorf("ParseScopes() = %v, want empty", scopes)
	}
}

func TestIntersectNamespace(t *testing.T) {
	requested := []Scope{
		{Type: "repository", Name: "user-1/agent", Actions: []string{"pull"}},
		{Type: "repository", Name: "user-2/agent", Actions: []string{"pull"}},
		{Type: "registry", Name: "catalog", Actions: []string{"*"}},
	}

	granted := IntersectNamespace(requested, "user-1/", false)
	if len(granted) != 1 {
		t.Fatalf("IntersectNamespace() returned %d scopes, want 1", len(granted))
	}
	if granted[0].Name != "user-1/agent" {
		t.Errorf("granted[0].Name = %q, want user-1/agent", granted[0].Name)
	}

	system := IntersectNamespace(requested, "user-1/", true)
	if len(system) != len(requested) {
		t.Errorf("system IntersectNamespace() returned %d scopes, want %d", len(system), len(requested))
	}
}

var kidPattern = regexp.MustCompile(`^([A-Z2-7]{4}:){11}[A-Z2-7]{4}$`)

func TestKeyID(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	kid, err := KeyID(&key.PublicKey)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}
	if !kidPattern.MatchString(kid) {
		t.Errorf("KeyID() = %q, want 12 groups of 4 base32 chars", kid)
	}

	kid2, err := KeyID(&key.PublicKey)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}
	if kid != kid2 {
		t.Errorf("KeyID() not deterministic: %q != %q", kid, kid2)
	}
}
