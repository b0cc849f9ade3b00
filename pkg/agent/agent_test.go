package agent

import (
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
		{"disallowed char", "my bot", true},
		{"hyphen and underscore allowed", "ci-deploy_bot1", false},
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

func TestCanActivate(t *testing.T) {
	empty := ""
	blank := "   "
	set := "user-1/bot:latest"

	cases := []struct {
		name     string
		imageURL *string
		want     bool
	}{
		{"nil image", nil, false},
		{"empty image", &empty, false},
		{"blank image", &blank, false},
		{"set image", &set, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := Agent{ImageURL: tc.imageURL}
			if got := a.CanActivate(); got != tc.want {
				t.Errorf("CanActivate() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParsedImage(t *testing.T) {
	img := "user-1/bot:latest"
	a := Agent{ImageURL: &img}

	parsed, err := a.ParsedImage()
	if err != nil {
		t.Fatalf("ParsedImage() error = %v", err)
	}
	if parsed.Repository != "user-1/bot" || parsed.Tag != "latest" {
		t.Errorf("ParsedImage() = %+v, want repository user-1/bot tag latest", parsed)
	}

	noImage := Agent{}
	if _, err := noImage.ParsedImage(); err == nil {
		t.Error("ParsedImage() on agent with no image url should error")
	}
}
