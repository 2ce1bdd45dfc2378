package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"imageforge/internal/executor"
	"imageforge/pkg/api"
)

func TestListOperations(t *testing.T) {
	f := newFixture(t)

	rr := doRequest(f.handlers.ListOperations, httptest.NewRequest(http.MethodGet, "/operations", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d", rr.Code)
	}

	var resp api.ListOperationsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Operations) == 0 {
		t.Fatal("catalog is empty")
	}

	byKind := map[string]api.OperationInfo{}
	for _, op := range resp.Operations {
		byKind[op.Kind] = op
	}

	resize, ok := byKind["resize"]
	if !ok {
		t.Fatal("resize missing from catalog listing")
	}
	if len(resize.Params) == 0 {
		t.Error("resize has no parameter schema")
	}
	if !sort.SliceIsSorted(resize.Params, func(i, j int) bool {
		return resize.Params[i].Name < resize.Params[j].Name
	}) {
		t.Error("params not sorted by name")
	}

	upscale, ok := byKind["upscale"]
	if !ok {
		t.Fatal("upscale missing from catalog listing")
	}
	if !upscale.RequiresInference {
		t.Error("upscale should be flagged as inference-backed")
	}
}

func previewBody(t *testing.T, req api.PreviewRequest) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(req); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestPreview_Structured(t *testing.T) {
	f := newFixture(t)

	body := previewBody(t, api.PreviewRequest{
		Pipeline: []api.PipelineStep{
			{Kind: "resize", Params: map[string]any{"width": 800.0, "height": 600.0}},
			{Kind: "grayscale"},
		},
	})
	rr := doRequest(f.handlers.Preview, httptest.NewRequest(http.MethodPost, "/operations/preview", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rr.Code, rr.Body.String())
	}

	var resp api.PreviewResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"{input}", "{output}", "-resize", "800x600"} {
		if !strings.Contains(resp.Command, want) {
			t.Errorf("preview %q missing %q", resp.Command, want)
		}
	}
}

func TestPreview_Raw(t *testing.T) {
	f := newFixture(t)

	body := previewBody(t, api.PreviewRequest{RawCommand: "-resize 50% -colorspace Gray"})
	rr := doRequest(f.handlers.Preview, httptest.NewRequest(http.MethodPost, "/operations/preview", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rr.Code, rr.Body.String())
	}

	var resp api.PreviewResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Command, "-colorspace Gray") {
		t.Errorf("preview %q missing raw arguments", resp.Command)
	}
}

func TestPreview_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  api.PreviewRequest
	}{
		{"NeitherMode", api.PreviewRequest{}},
		{"BothModes", api.PreviewRequest{
			Pipeline:   []api.PipelineStep{{Kind: "grayscale"}},
			RawCommand: "-resize 50%",
		}},
		{"DisallowedFlag", api.PreviewRequest{RawCommand: "-write /tmp/x"}},
		{"ShellMetachars", api.PreviewRequest{RawCommand: "-resize 50% && curl evil"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(f.handlers.Preview, httptest.NewRequest(http.MethodPost, "/operations/preview", previewBody(t, tt.req)))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(api.RunRequest{
		Input:    f.input,
		Pipeline: []api.PipelineStep{{Kind: "grayscale"}},
	}); err != nil {
		t.Fatal(err)
	}
	rr := doRequest(f.handlers.Run, httptest.NewRequest(http.MethodPost, "/run", &buf))

	if rr.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", rr.Code, rr.Body.String())
	}

	var resp api.RunResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Output == "" || resp.Size == 0 {
		t.Errorf("got %+v", resp)
	}
}

func TestRun_EngineFailureResponseOmitsStderr(t *testing.T) {
	f := newFixture(t)
	f.handlers.executor = executor.New(executor.Options{
		CLI:    errEngine{},
		Guard:  f.gd,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(api.RunRequest{
		Input:    f.input,
		Pipeline: []api.PipelineStep{{Kind: "grayscale"}},
	}); err != nil {
		t.Fatal(err)
	}
	rr := doRequest(f.handlers.Run, httptest.NewRequest(http.MethodPost, "/run", &buf))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got status %d, want 422 (body %s)", rr.Code, rr.Body.String())
	}
	body := rr.Body.String()
	if strings.Contains(body, "unable to open image") || strings.Contains(body, "/srv/forge") {
		t.Errorf("response body carries engine stderr: %s", body)
	}
	if !strings.Contains(body, "exited with code 1") {
		t.Errorf("response body misses the exit code: %s", body)
	}
}

func TestRun_PathRejectionResponseOmitsPath(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(api.RunRequest{
		Input:    "/etc/passwd",
		Pipeline: []api.PipelineStep{{Kind: "grayscale"}},
	}); err != nil {
		t.Fatal(err)
	}
	rr := doRequest(f.handlers.Run, httptest.NewRequest(http.MethodPost, "/run", &buf))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400 (body %s)", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "/etc/passwd") {
		t.Errorf("response body echoes the rejected path: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Path not allowed") {
		t.Errorf("response body = %s, want the generic path rejection", rr.Body.String())
	}
}

func TestRun_Rejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  api.RunRequest
	}{
		{"NoInput", api.RunRequest{Pipeline: []api.PipelineStep{{Kind: "grayscale"}}}},
		{"NeitherMode", api.RunRequest{Input: f.input}},
		{"ForbiddenInput", api.RunRequest{Input: "/etc/passwd", Pipeline: []api.PipelineStep{{Kind: "grayscale"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := json.NewEncoder(&buf).Encode(tt.req); err != nil {
				t.Fatal(err)
			}
			rr := doRequest(f.handlers.Run, httptest.NewRequest(http.MethodPost, "/run", &buf))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400 (body %s)", rr.Code, rr.Body.String())
			}
		})
	}
}
