package llm

import (
	"strings"
	"testing"
)

func TestNewKnownProviders(t *testing.T) {
	tests := []struct {
		name string
	}{
		{"anthropic"},
		{"openai"},
	}
	for _, tt := range tests {
		p, err := New(tt.name, "test-key")
		if err != nil {
			t.Errorf("New(%q): %v", tt.name, err)
			continue
		}
		if p.Name() != tt.name {
			t.Errorf("Name() = %q, want %q", p.Name(), tt.name)
		}
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New("gemini", "test-key")
	if err == nil {
		t.Fatal("unknown provider should fail")
	}
	if !strings.Contains(err.Error(), "gemini") {
		t.Errorf("error %q does not name the provider", err)
	}
}
