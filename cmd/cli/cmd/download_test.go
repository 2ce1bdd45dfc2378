package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestDownloadCommand_SavesArchive(t *testing.T) {
	resetViper()

	archive := []byte("PK\x03\x04fake-zip-bytes")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/jobs/job-abc/download") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}

		w.Header().Set("Content-Type", "application/zip")
		w.WriteHeader(http.StatusOK)
		w.Write(archive)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	dest := filepath.Join(t.TempDir(), "results.zip")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"download", "job-abc", "--output", dest})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Archive saved") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, dest) {
		t.Errorf("expected destination in output, got: %s", output)
	}

	saved, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read saved archive: %v", err)
	}
	if !bytes.Equal(saved, archive) {
		t.Error("saved archive does not match response body")
	}
}

func TestDownloadCommand_Expired(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(map[string]string{"error": "archive has expired"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	dest := filepath.Join(t.TempDir(), "results.zip")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"download", "job-old", "--output", dest})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Download failed (410)") {
		t.Errorf("expected expiry message, got: %s", output)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("expected no file to be written for an expired archive")
	}
}
