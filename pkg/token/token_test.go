package token

import (
	"regexp"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"too short", "ab", true},
		{"minimum length", "abc", false},
		{"maximum length", strings.Repeat("a", 50), false},
		{"too long", strings.Repeat("a", 51), true},
		{"disallowed char", "my@token", true},
		{"spaces and hyphens allowed", "ci deploy-bot_1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestGeneratePlaintext(t *testing.T) {
	alnum := regexp.MustCompile(`^[A-Za-z0-9]{64}$`)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		got, err := generatePlaintext()
		if err != nil {
			t.Fatalf("generatePlaintext() error = %v", err)
		}
		if len(got) != plaintextLength {
			t.Fatalf("len(plaintext) = %d, want %d", len(got), plaintextLength)
		}
		if !alnum.MatchString(got) {
			t.Fatalf("plaintext %q is not 64 alphanumeric chars", got)
		}
		if seen[got] {
			t.Fatalf("generatePlaintext produced a duplicate value: %q", got)
		}
		seen[got] = true
	}
}
