package cmd

import (
	"bytes"
	"encoding/json"
	"imageforge/pkg/api"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestSubmitCommand_Success(t *testing.T) {
	resetViper()

	submitCalled := false

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		submitCalled = true

		var req api.SubmitJobRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Inputs) != 2 {
			t.Errorf("expected 2 inputs, got %d", len(req.Inputs))
		}
		if len(req.Pipeline) == 0 || req.Pipeline[0].Kind != "resize" {
			t.Errorf("expected resize pipeline step, got %+v", req.Pipeline)
		}
		if width, ok := req.Pipeline[0].Params["width"].(float64); !ok || width != 1200 {
			t.Errorf("expected numeric width=1200, got %v", req.Pipeline[0].Params["width"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"job_id": "job-123", "items": 2})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"submit", "/srv/uploads/a.png", "/srv/uploads/b.png", "--op", "resize:width=1200"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !submitCalled {
		t.Error("expected submit endpoint to be called")
	}

	output := stdout.String()
	if !strings.Contains(output, "Job submitted") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "job-123") {
		t.Errorf("expected job ID in output, got: %s", output)
	}
}

func TestSubmitCommand_RejectedBatch(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": `input "/srv/uploads/b.png": unknown operation "sharpen-forever"`})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"submit", "/srv/uploads/a.png", "/srv/uploads/b.png", "--op", "sharpen-forever"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Submit failed (400)") {
		t.Errorf("expected API error message, got: %s", output)
	}
	if !strings.Contains(output, "sharpen-forever") {
		t.Errorf("expected error detail in output, got: %s", output)
	}
}

func TestSubmitCommand_BothModes(t *testing.T) {
	resetViper()

	viper.Set("url", "http://localhost:0")
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"submit", "/srv/uploads/a.png", "--op", "grayscale", "--raw", "-strip"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "mutually exclusive") {
		t.Errorf("expected mutual exclusion error, got: %s", output)
	}
}
