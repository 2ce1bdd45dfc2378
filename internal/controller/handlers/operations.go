package handlers

import (
	"encoding/json"
	"net/http"
	"sort"

	"imageforge/internal/catalog"
	"imageforge/internal/compiler"
	"imageforge/internal/executor"
	"imageforge/pkg/api"
)

// ListOperations handles GET /operations.
// It returns the catalog with parameter schemas so clients can build
// pipelines without trial and error.
func (h *Handlers) ListOperations(w http.ResponseWriter, r *http.Request) {
	specs := h.catalog.List()

	ops := make([]api.OperationInfo, 0, len(specs))
	for _, spec := range specs {
		ops = append(ops, api.OperationInfo{
			Kind:              spec.Kind,
			Summary:           spec.Summary,
			Params:            paramInfos(spec.Params),
			RequiresInference: spec.RequiresInference,
		})
	}

	h.respondJson(w, http.StatusOK, api.ListOperationsResponse{Operations: ops})
}

func paramInfos(params map[string]catalog.ParamSpec) []api.ParamInfo {
	infos := make([]api.ParamInfo, 0, len(params))
	for name, ps := range params {
		info := api.ParamInfo{
			Name:     name,
			Type:     string(ps.Type),
			Required: ps.Required,
			Default:  ps.Default,
			Enum:     ps.Enum,
			OneOf:    ps.OneOf,
		}
		if ps.Min != 0 || ps.Max != 0 {
			min, max := ps.Min, ps.Max
			info.Min, info.Max = &min, &max
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Preview handles POST /operations/preview.
// It compiles the pipeline with placeholder paths and returns the exact
// command text, without touching the filesystem or any engine.
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req api.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if (len(req.Pipeline) == 0) == (req.RawCommand == "") {
		h.httpError(w, "Exactly one of pipeline or raw_command is required", http.StatusBadRequest)
		return
	}

	opts := compiler.Options{OutputFormat: req.OutputFormat, Quality: req.Quality}

	var preview string
	var err error
	if req.RawCommand != "" {
		preview, err = h.compiler.PreviewRaw(req.RawCommand, opts)
	} else {
		preview, err = h.compiler.Preview(toRequests(req.Pipeline), opts)
	}
	if err != nil {
		h.compileError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusOK, api.PreviewResponse{Command: preview})
}

// Run handles POST /run.
// It compiles and executes a single image synchronously, bypassing the
// queue. Suited for interactive use; batches belong in POST /jobs.
func (h *Handlers) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Input == "" {
		h.httpError(w, "Input path is required", http.StatusBadRequest)
		return
	}
	if (len(req.Pipeline) == 0) == (req.RawCommand == "") {
		h.httpError(w, "Exactly one of pipeline or raw_command is required", http.StatusBadRequest)
		return
	}

	opts := compiler.Options{OutputFormat: req.OutputFormat, Quality: req.Quality}

	var cmd *compiler.CompiledCommand
	var err error
	if req.RawCommand != "" {
		cmd, err = h.compiler.CompileRaw(req.RawCommand, req.Input, opts)
	} else {
		cmd, err = h.compiler.Compile(toRequests(req.Pipeline), req.Input, opts)
	}
	if err != nil {
		h.compileError(w, r, err)
		return
	}

	result, err := h.executor.Execute(ctx, cmd)
	if err != nil {
		switch executor.ReasonOf(err) {
		case executor.ReasonTimeout:
			h.httpError(w, err.Error(), http.StatusGatewayTimeout)
		case executor.ReasonResourceExceeded, executor.ReasonEngineError:
			h.httpError(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			h.log(r.Context()).Error("synchronous run failed", "error", err)
			h.httpError(w, "Execution failed", http.StatusInternalServerError)
		}
		return
	}

	h.respondJson(w, http.StatusOK, api.RunResponse{
		Output:     result.OutputPath,
		Size:       result.OutputSize,
		DurationMs: result.Duration.Milliseconds(),
	})
}
