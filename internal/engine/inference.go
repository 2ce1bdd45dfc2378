package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// InferenceEngine dispatches AI operations (background removal, upscaling)
// to the inference collaborator over HTTP. It satisfies the same Engine
// contract as the CLI backends, so the executor's timeout and resource
// accounting apply uniformly.
type InferenceEngine struct {
	baseURL    string
	httpClient *http.Client
}

// NewInferenceEngine creates a client for the inference service.
func NewInferenceEngine(baseURL string) *InferenceEngine {
	return &InferenceEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Per-request deadlines come from the Start context; this is
			// only a safety net for a hung transport.
			Timeout: 30 * time.Minute,
		},
	}
}

// inferenceRequest is the wire contract with the collaborator: input path
// in, output path out, plus the compiled task arguments.
type inferenceRequest struct {
	InputPath  string   `json:"input_path"`
	OutputPath string   `json:"output_path"`
	Args       []string `json:"args"`
}

// Start implements Engine.Start. The compiled argv carries the input path
// first and the output path last, with the task arguments between them.
func (e *InferenceEngine) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Argv) < 2 {
		return nil, fmt.Errorf("inference argv must carry input and output paths")
	}

	reqBody := inferenceRequest{
		InputPath:  opts.Argv[0],
		OutputPath: opts.Argv[len(opts.Argv)-1],
		Args:       opts.Argv[1 : len(opts.Argv)-1],
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithCancel(ctx)
	h := &inferenceHandle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.baseURL+"/v1/process", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	go h.run(e.httpClient, req, opts.MaxOutputBytes)
	return h, nil
}

type inferenceHandle struct {
	cancel context.CancelFunc
	res    ExitResult
	done   chan struct{}
	body   []byte
}

func (h *inferenceHandle) run(client *http.Client, req *http.Request, maxOutput int64) {
	defer close(h.done)
	defer h.cancel()

	resp, err := client.Do(req)
	if err != nil {
		h.res = ExitResult{ExitCode: -1, Error: err}
		return
	}
	defer resp.Body.Close()

	buf := newBoundedBuffer(maxOutput)
	io.Copy(buf, resp.Body)
	h.body = buf.Bytes()

	if resp.StatusCode != http.StatusOK {
		h.res = ExitResult{ExitCode: 1, Error: fmt.Errorf("inference service returned status %d", resp.StatusCode)}
		return
	}
	h.res = ExitResult{ExitCode: 0}
}

func (h *inferenceHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		return h.res, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *inferenceHandle) Stop(context.Context) error {
	h.cancel()
	return nil
}

func (h *inferenceHandle) Output() (stdout, stderr []byte) {
	return h.body, nil
}
