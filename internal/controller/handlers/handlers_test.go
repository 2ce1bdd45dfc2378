package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imageforge/internal/catalog"
	"imageforge/internal/compiler"
	"imageforge/internal/controller/middleware"
	"imageforge/internal/engine"
	"imageforge/internal/executor"
	"imageforge/internal/guard"
	"imageforge/internal/packager"
	"imageforge/internal/store"

	"github.com/google/uuid"
)

// mockStore implements the Store interface with per-test hooks.
type mockStore struct {
	pingErr error

	createJobErr   error
	getJobByIDResp *store.Job
	getJobByIDErr  error
	listItemsResp  []*store.JobItem
	listItemsErr   error
	countItemsResp store.ItemCounts
	countItemsErr  error
	cancelJobResp  bool
	cancelJobErr   error

	statsResp store.QueueStats
	statsErr  error

	// Spies
	createdJob   *store.Job
	createdItems []*store.JobItem
	cancelledID  uuid.UUID
	setArchiveID uuid.UUID
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) CreateJob(ctx context.Context, job *store.Job, items []*store.JobItem) error {
	m.createdJob = job
	m.createdItems = items
	return m.createJobErr
}

func (m *mockStore) GetJobByID(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.getJobByIDResp, m.getJobByIDErr
}

func (m *mockStore) ListItems(ctx context.Context, jobID uuid.UUID) ([]*store.JobItem, error) {
	return m.listItemsResp, m.listItemsErr
}

func (m *mockStore) CountItems(ctx context.Context, jobID uuid.UUID) (store.ItemCounts, error) {
	return m.countItemsResp, m.countItemsErr
}

func (m *mockStore) CancelJob(ctx context.Context, id uuid.UUID) (bool, error) {
	m.cancelledID = id
	return m.cancelJobResp, m.cancelJobErr
}

func (m *mockStore) SetArchive(ctx context.Context, id uuid.UUID, path string, expiresAt time.Time) error {
	m.setArchiveID = id
	return nil
}

func (m *mockStore) ListExpired(ctx context.Context, before time.Time, limit int) ([]*store.Job, error) {
	return nil, nil
}

func (m *mockStore) ClearArchive(ctx context.Context, id uuid.UUID) error { return nil }

func (m *mockStore) DequeueBatch(ctx context.Context, limit int) ([]store.QueueItem, error) {
	return nil, nil
}

func (m *mockStore) CompleteItem(ctx context.Context, tx store.DBTransaction, itemID uuid.UUID, outputPath string, outputSize int64) error {
	return nil
}

func (m *mockStore) FailItem(ctx context.Context, tx store.DBTransaction, itemID uuid.UUID, reason, errMsg string) error {
	return nil
}

func (m *mockStore) FinalizeJob(ctx context.Context, jobID uuid.UUID) (store.JobStatus, bool, error) {
	return store.JobStatusCompleted, true, nil
}

func (m *mockStore) Stats(ctx context.Context) (store.QueueStats, error) {
	return m.statsResp, m.statsErr
}

// okEngine writes the requested output file and exits cleanly.
type okEngine struct{}

func (okEngine) Start(ctx context.Context, opts engine.StartOptions) (engine.Handle, error) {
	if len(opts.Argv) > 0 {
		out := opts.Argv[len(opts.Argv)-1]
		if err := os.WriteFile(out, []byte("webp-bytes"), 0o644); err != nil {
			return nil, err
		}
	}
	return okHandle{}, nil
}

type okHandle struct{}

func (okHandle) Wait(ctx context.Context) (engine.ExitResult, error) {
	return engine.ExitResult{ExitCode: 0}, nil
}
func (okHandle) Stop(context.Context) error      { return nil }
func (okHandle) Output() (stdout, stderr []byte) { return nil, nil }

// errEngine exits nonzero with stderr that quotes a server path, the way
// a decode failure does.
type errEngine struct{}

func (errEngine) Start(ctx context.Context, opts engine.StartOptions) (engine.Handle, error) {
	return errHandle{}, nil
}

type errHandle struct{}

func (errHandle) Wait(ctx context.Context) (engine.ExitResult, error) {
	return engine.ExitResult{ExitCode: 1}, nil
}
func (errHandle) Stop(context.Context) error { return nil }
func (errHandle) Output() (stdout, stderr []byte) {
	return nil, []byte("convert: unable to open image `/srv/forge/uploads/cat.png'")
}

type fixture struct {
	handlers *Handlers
	store    *mockStore
	gd       *guard.Guard
	root     string
	input    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{"processed", "tmp", "archives"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	input := filepath.Join(root, "cat.png")
	if err := os.WriteFile(input, []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	gd, err := guard.New([]string{root}, filepath.Join(root, "processed"), filepath.Join(root, "tmp"), guard.Limits{
		MaxDuration:    time.Minute,
		MaxMemoryBytes: 64 << 20,
		MaxDiskBytes:   1 << 30,
	})
	if err != nil {
		t.Fatal(err)
	}

	ms := &mockStore{}
	cat := catalog.New()
	comp := compiler.New(cat, gd)
	exec := executor.New(executor.Options{CLI: okEngine{}, Guard: gd})
	pkg, err := packager.New(packager.Options{
		Jobs:   ms,
		Dir:    filepath.Join(root, "archives"),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}

	h := New(Deps{
		Store:    ms,
		Catalog:  cat,
		Compiler: comp,
		Executor: exec,
		Packager: pkg,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{handlers: h, store: ms, gd: gd, root: root, input: input}
}

// asOwner attaches an authenticated identity the way the auth middleware does.
func asOwner(r *http.Request, owner string, admin bool) *http.Request {
	ctx := middleware.WithIdentity(r.Context(), middleware.Identity{Owner: owner, Admin: admin})
	return r.WithContext(ctx)
}

func doRequest(h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h(rr, r)
	return rr
}
