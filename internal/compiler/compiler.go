// Package compiler turns validated operation requests into a single safe
// engine invocation. Compilation is the only path from user input to an
// argv; nothing downstream ever parses strings back into commands.
package compiler

import (
	"fmt"
	"os"
	"strings"

	"imageforge/internal/catalog"
	"imageforge/internal/guard"
)

// Placeholders used by previews and raw terminal input. They are display
// artifacts only; Compile always binds real guard-issued paths.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// Default output handling, matching the engine's sensible web defaults.
const (
	DefaultFormat  = "webp"
	DefaultQuality = 85
)

var allowedFormats = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true,
	"gif": true, "avif": true, "tiff": true, "bmp": true, "ico": true,
}

// lossy formats take a trailing quality fragment; the rest do not.
var qualityFormats = map[string]bool{
	"jpg": true, "jpeg": true, "webp": true, "avif": true,
}

// Options carries the caller's output preferences.
type Options struct {
	OutputFormat string
	Quality      int
}

func (o Options) normalized() (Options, error) {
	if o.OutputFormat == "" {
		o.OutputFormat = DefaultFormat
	}
	o.OutputFormat = strings.ToLower(o.OutputFormat)
	if !allowedFormats[o.OutputFormat] {
		return o, &catalog.ValidationError{Field: "outputFormat",
			Reason: fmt.Sprintf("format %q not supported", o.OutputFormat)}
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality < 1 || o.Quality > 100 {
		return o, &catalog.ValidationError{Field: "quality", Reason: "out of range [1, 100]"}
	}
	return o, nil
}

// CompiledCommand is one fully resolved invocation. It is built once per
// execution attempt and owned by the executor call that consumes it; paths
// are bound at compile time and never substituted later.
type CompiledCommand struct {
	Argv        []string
	PreviewText string
	InputPath   string
	OutputPath  string
	Limits      guard.Limits

	// Inference routes the command to the AI collaborator instead of the
	// CLI engine.
	Inference bool
}

// Compiler resolves operation requests against the catalog and the guard.
type Compiler struct {
	cat *catalog.Catalog
	gd  *guard.Guard
}

func New(cat *catalog.Catalog, gd *guard.Guard) *Compiler {
	return &Compiler{cat: cat, gd: gd}
}

// Compile validates every request, renders the argv fragments in caller
// order, and binds guard-issued input and output paths as the first and
// last argv elements. It fails fast on the first invalid request, naming
// its position.
func (c *Compiler) Compile(reqs []catalog.Request, inputPath string, opts Options) (*CompiledCommand, error) {
	opts, err := opts.normalized()
	if err != nil {
		return nil, err
	}

	fragments, inference, err := c.renderAll(reqs)
	if err != nil {
		return nil, err
	}

	input, err := c.gd.Resolve(inputPath, guard.PurposeInput)
	if err != nil {
		return nil, err
	}
	output, err := c.gd.Resolve(c.gd.OutputPath(opts.OutputFormat), guard.PurposeOutput)
	if err != nil {
		return nil, err
	}

	var sizeHint int64
	if info, statErr := os.Stat(input); statErr == nil {
		sizeHint = info.Size()
	}
	limits := c.gd.LimitsFor(len(reqs), sizeHint)

	argv := buildArgv(fragments, inference, input, output, limits, opts)
	return &CompiledCommand{
		Argv:        argv,
		PreviewText: strings.Join(argv, " "),
		InputPath:   input,
		OutputPath:  output,
		Limits:      limits,
		Inference:   inference,
	}, nil
}

// Preview renders the same argv with path placeholders, joined by spaces
// for display. The result is deterministic for identical input and is
// never itself parsed or executed.
func (c *Compiler) Preview(reqs []catalog.Request, opts Options) (string, error) {
	opts, err := opts.normalized()
	if err != nil {
		return "", err
	}
	fragments, inference, err := c.renderAll(reqs)
	if err != nil {
		return "", err
	}
	limits := c.gd.LimitsFor(len(reqs), 0)
	argv := buildArgv(fragments, inference, InputPlaceholder, OutputPlaceholder, limits, opts)
	return strings.Join(argv, " "), nil
}

// renderAll validates and renders each request in order. Order is
// significant and preserved exactly; fragments are never reordered or
// deduplicated.
func (c *Compiler) renderAll(reqs []catalog.Request) ([][]string, bool, error) {
	if len(reqs) == 0 {
		return nil, false, &catalog.ValidationError{Reason: "at least one operation is required"}
	}

	fragments := make([][]string, 0, len(reqs))
	inference := false
	for i, req := range reqs {
		spec, params, err := c.cat.Validate(req)
		if err != nil {
			return nil, false, fmt.Errorf("request %d: %w", i, err)
		}
		if spec.RequiresInference {
			inference = true
		}
		fragments = append(fragments, spec.Render(params))
	}

	// The two backends cannot share one invocation, so inference operations
	// stand alone.
	if inference && len(reqs) > 1 {
		return nil, false, &catalog.ValidationError{
			Reason: "inference operations cannot be combined with other operations in one pipeline"}
	}
	return fragments, inference, nil
}

// buildArgv assembles the final vector: input first, resource directives,
// ordered fragments, trailing quality fragment for lossy formats, output
// last. Each value is its own element; nothing is shell-joined.
func buildArgv(fragments [][]string, inference bool, input, output string, limits guard.Limits, opts Options) []string {
	argv := []string{input}

	if !inference {
		argv = append(argv,
			"-limit", "memory", fmt.Sprintf("%dMiB", limits.MaxMemoryBytes>>20),
			"-limit", "time", fmt.Sprintf("%d", int(limits.MaxDuration.Seconds())),
		)
	}

	for _, frag := range fragments {
		argv = append(argv, frag...)
	}

	if !inference && qualityFormats[opts.OutputFormat] {
		argv = append(argv, "-quality", fmt.Sprintf("%d", opts.Quality))
	}

	return append(argv, output)
}
