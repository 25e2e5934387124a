package main

import (
	"strings"
	"testing"
)

func TestRunModelsRequiresAction(t *testing.T) {
	err := runModels(nil)
	if err == nil {
		t.Fatal("bare 'models' should fail")
	}
	if !strings.Contains(err.Error(), "models download") {
		t.Errorf("error %q does not show the expected usage", err)
	}
}

func TestRunModelsRejectsUnknownAction(t *testing.T) {
	err := runModels([]string{"upload"})
	if err == nil {
		t.Fatal("unknown models action should fail")
	}
	if !strings.Contains(err.Error(), "upload") {
		t.Errorf("error %q does not name the rejected action", err)
	}
}

func TestRunKeyRejectsUnknownAction(t *testing.T) {
	err := runKey([]string{"rotate", "anthropic"})
	if err == nil {
		t.Fatal("unknown key action should fail")
	}
	if !strings.Contains(err.Error(), "rotate") {
		t.Errorf("error %q does not name the rejected action", err)
	}
}

func TestLevelBar(t *testing.T) {
	tests := []struct {
		peak float32
		want string
	}{
		{0, "[------------------------------]"},
		{0.5, "[###############---------------]"},
		{1.0, "[##############################]"},
		{1.5, "[##############################]"},
	}
	for _, tt := range tests {
		if got := levelBar(tt.peak); got != tt.want {
			t.Errorf("levelBar(%f) = %q, want %q", tt.peak, got, tt.want)
		}
	}
}
