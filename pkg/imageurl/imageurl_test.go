package imageurl

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantRepo   string
		wantTag    string
		wantHost   string
		wantErr    bool
	}{
		{"namespace relative", "user-42/foo:v1", "user-42/foo", "v1", "", false},
		{"fully qualified", "registry.example.com/user-42/foo:v1", "user-42/foo", "v1", "registry.example.com", false},
		{"missing tag", "user-42/foo", "", "", "", true},
		{"empty", "", "", "", "", true},
		{"missing namespace", "foo:v1", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got.Repository != tt.wantRepo || got.Tag != tt.wantTag || got.Host != tt.wantHost {
				t.Errorf("Parse(%q) = %+v, want repo=%q tag=%q host=%q", tt.input, got, tt.wantRepo, tt.wantTag, tt.wantHost)
			}
		})
	}
}

func TestBelongsToUser(t *testing.T) {
	u, err := Parse("user-42/foo:v1")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !u.BelongsToUser(42) {
		t.Errorf("expected image to belong to user 42")
	}
	if u.BelongsToUser(99) {
		t.Errorf("expected image not to belong to user 99")
	}
}

func TestParseForUserFullyQualified(t *testing.T) {
	_, err := ParseForUser("registry/user-42/foo:v1", 42)
	if err != nil {
		t.Fatalf("ParseForUser() error = %v", err)
	}
	if _, err := ParseForUser("user-99/foo:v1", 42); err == nil {
		t.Fatalf("expected error for mismatched namespace")
	}
}

func TestUserIDFromNamespace(t *testing.T) {
	id, ok := UserIDFromNamespace("user-7")
	if !ok || id != 7 {
		t.Fatalf("UserIDFromNamespace(user-7) = (%d, %v), want (7, true)", id, ok)
	}
	if _, ok := UserIDFromNamespace("system"); ok {
		t.Fatalf("expected UserIDFromNamespace(system) to fail")
	}
}
