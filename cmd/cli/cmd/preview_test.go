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

func TestPreviewCommand_Raw(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/operations/preview" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}

		var req api.PreviewRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RawCommand != "-colorspace Gray" {
			t.Errorf("expected raw command, got: %q", req.RawCommand)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"command": "magick {input} -colorspace Gray -quality 85 {output}",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"preview", "--raw", "-colorspace Gray"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "{input}") || !strings.Contains(output, "-colorspace Gray") {
		t.Errorf("expected compiled command in output, got: %s", output)
	}
}

func TestPreviewCommand_Rejected(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "shell metacharacters are not allowed"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"preview", "--raw", "-strip && curl evil"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Preview rejected (400)") {
		t.Errorf("expected rejection message, got: %s", output)
	}
	if !strings.Contains(output, "shell metacharacters") {
		t.Errorf("expected error detail in output, got: %s", output)
	}
}
