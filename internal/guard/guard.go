// Package guard validates file paths against the allowed data roots and
// computes the resource ceiling for engine invocations. It is the only
// source of output and temp paths; callers never choose literal filenames.
package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Purpose says what a resolved path will be used for.
type Purpose string

const (
	PurposeInput  Purpose = "input"
	PurposeOutput Purpose = "output"
	PurposeTemp   Purpose = "temp"
)

// PathError reports a path that escaped the allowed roots or does not
// exist. Treated as a security event by callers and logged with elevated
// severity; the offending path is kept for the server log, never echoed
// back to the caller.
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("path rejected: %s: %s", e.Path, e.Reason)
}

// Limits is the resource ceiling for one engine invocation.
type Limits struct {
	MaxDuration    time.Duration
	MaxMemoryBytes int64
	MaxDiskBytes   int64
}

// Guard holds the canonicalized allowed roots and the administrator
// configured limits. Read-only after New.
type Guard struct {
	roots        []string
	processedDir string
	tempDir      string
	defaults     Limits
}

// New canonicalizes the allowed roots and verifies the processed and temp
// directories live inside them. All paths handed out or accepted by the
// guard resolve under one of the roots.
func New(roots []string, processedDir, tempDir string, defaults Limits) (*Guard, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one allowed root is required")
	}

	canonical := make([]string, 0, len(roots))
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", r, err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("root %q: %w", r, err)
		}
		canonical = append(canonical, resolved)
	}

	g := &Guard{roots: canonical, defaults: defaults}

	var err error
	if g.processedDir, err = g.canonicalDir(processedDir); err != nil {
		return nil, fmt.Errorf("processed dir: %w", err)
	}
	if g.tempDir, err = g.canonicalDir(tempDir); err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	return g, nil
}

func (g *Guard) canonicalDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	if !g.inRoots(resolved) {
		return "", &PathError{Path: dir, Reason: "outside allowed roots"}
	}
	return resolved, nil
}

// Resolve canonicalizes a candidate path (symlinks and ".." segments) and
// checks it lives under one of the allowed roots. Resolving an already
// canonical in-root path returns it unchanged. Inputs must exist; output
// and temp paths only need an existing in-root parent directory.
func (g *Guard) Resolve(candidate string, purpose Purpose) (string, error) {
	if candidate == "" {
		return "", &PathError{Path: candidate, Reason: "empty path"}
	}

	abs, err := filepath.Abs(candidate)
	if err != nil {
		return "", &PathError{Path: candidate, Reason: err.Error()}
	}

	switch purpose {
	case PurposeInput:
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			if os.IsNotExist(err) {
				return "", &PathError{Path: candidate, Reason: "no such file"}
			}
			return "", &PathError{Path: candidate, Reason: err.Error()}
		}
		info, err := os.Stat(resolved)
		if err != nil || info.IsDir() {
			return "", &PathError{Path: candidate, Reason: "not a regular file"}
		}
		if !g.inRoots(resolved) {
			return "", &PathError{Path: candidate, Reason: "outside allowed roots"}
		}
		return resolved, nil

	case PurposeOutput, PurposeTemp:
		// The file itself may not exist yet; canonicalize the parent so a
		// symlinked directory cannot smuggle the write outside the roots.
		dir, base := filepath.Split(abs)
		resolvedDir, err := filepath.EvalSymlinks(filepath.Clean(dir))
		if err != nil {
			return "", &PathError{Path: candidate, Reason: err.Error()}
		}
		resolved := filepath.Join(resolvedDir, base)
		if !g.inRoots(resolved) {
			return "", &PathError{Path: candidate, Reason: "outside allowed roots"}
		}
		return resolved, nil
	}

	return "", &PathError{Path: candidate, Reason: fmt.Sprintf("unknown purpose %q", purpose)}
}

func (g *Guard) inRoots(path string) bool {
	for _, root := range g.roots {
		if path == root {
			return true
		}
		if strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// OutputPath returns a fresh, randomly named output path for an image. The
// caller supplies only the logical format; the filename is server-side so
// crafted names cannot overwrite or traverse.
func (g *Guard) OutputPath(format string) string {
	return filepath.Join(g.processedDir, uuid.NewString()+"."+format)
}

// TempPath returns a fresh path inside the temp directory.
func (g *Guard) TempPath(ext string) string {
	return filepath.Join(g.tempDir, uuid.NewString()+"."+ext)
}

// TempDir returns the canonical temp directory, used for engine working
// directories and disk accounting.
func (g *Guard) TempDir() string {
	return g.tempDir
}

// LimitsFor returns the resource ceiling for an invocation. The defaults
// are administrator-configured; request data never raises them. Pipelines
// with many operations get a modest duration allowance per extra step, still
// bounded by twice the configured maximum.
func (g *Guard) LimitsFor(opCount int, sizeHint int64) Limits {
	l := g.defaults
	if opCount > 4 {
		extra := time.Duration(opCount-4) * 10 * time.Second
		if extra > l.MaxDuration {
			extra = l.MaxDuration
		}
		l.MaxDuration += extra
	}
	return l
}
