package cmd

import (
	"testing"
)

func TestParseSteps(t *testing.T) {
	steps, err := parseSteps([]string{"resize:width=800,height=600", "grayscale", "rotate:degrees=90.5,expand=true"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(steps))
	}

	if steps[0].Kind != "resize" {
		t.Errorf("expected kind resize, got %s", steps[0].Kind)
	}
	if steps[0].Params["width"] != 800 || steps[0].Params["height"] != 600 {
		t.Errorf("expected int params, got %v", steps[0].Params)
	}

	if steps[1].Kind != "grayscale" || steps[1].Params != nil {
		t.Errorf("expected bare grayscale step, got %+v", steps[1])
	}

	if steps[2].Params["degrees"] != 90.5 {
		t.Errorf("expected float param, got %v", steps[2].Params["degrees"])
	}
	if steps[2].Params["expand"] != true {
		t.Errorf("expected bool param, got %v", steps[2].Params["expand"])
	}
}

func TestParseSteps_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"EmptyKind", ":width=800"},
		{"MissingValue", "resize:width"},
		{"EmptyKey", "resize:=800"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseSteps([]string{tt.spec}); err == nil {
				t.Errorf("expected error for %q", tt.spec)
			}
		})
	}
}
