package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"easel/internal/model"
	"easel/internal/workflow"
)

type fakeStore struct {
	records map[string]*model.JobRecord
	updates []model.JobRecord
	getErr  error
}

func (f *fakeStore) GetJobByWorkerTaskID(_ context.Context, id string) (*model.JobRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) UpdateJob(_ context.Context, rec *model.JobRecord) error {
	f.updates = append(f.updates, *rec)
	return nil
}

func (f *fakeStore) last() *model.JobRecord {
	if len(f.updates) == 0 {
		return nil
	}
	return &f.updates[len(f.updates)-1]
}

type fakeWorker struct {
	outputPath  string
	outputsErr  error
	artifact    []byte
	artifactErr error

	cleanupCalls int
	cleanupKind  workflow.FileKind
	cleanupPath  string
}

func (f *fakeWorker) FetchOutputs(context.Context, string) (string, error) {
	return f.outputPath, f.outputsErr
}

func (f *fakeWorker) FetchArtifact(context.Context, string) ([]byte, error) {
	return f.artifact, f.artifactErr
}

func (f *fakeWorker) DeleteRemoteFile(_ context.Context, kind workflow.FileKind, path string) error {
	f.cleanupCalls++
	f.cleanupKind = kind
	f.cleanupPath = path
	return nil
}

type fakeBlobs struct {
	key  string
	err  error
	data []byte
}

func (f *fakeBlobs) Put(_ context.Context, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.data = append([]byte(nil), data...)
	return f.key, nil
}

type fakeFallback struct {
	path string
	data []byte
}

func (f *fakeFallback) Write(artifactPath string, data []byte) (string, error) {
	f.path = artifactPath
	f.data = append([]byte(nil), data...)
	return "/fallback/" + artifactPath, nil
}

type fakeNotifier struct {
	calls   int
	err     error
	lastRec model.JobRecord
}

func (f *fakeNotifier) Notify(_ context.Context, rec *model.JobRecord) error {
	f.calls++
	f.lastRec = *rec
	return f.err
}

func newTestPipeline(st *fakeStore, blobs *fakeBlobs, fb *fakeFallback, nt *fakeNotifier) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, blobs, fb, nt, logger)
}

func existingRecord() map[string]*model.JobRecord {
	return map[string]*model.JobRecord{
		"abc": {
			ID:                1,
			ClientTaskID:      "client-7",
			ClientCallbackURL: "http://client/callback/client-7",
			WorkerTaskID:      "abc",
		},
	}
}

func TestRun_SuccessStoresDurablyAndNotifiesOnce(t *testing.T) {
	st := &fakeStore{records: existingRecord()}
	wc := &fakeWorker{outputPath: "batch/out.png", artifact: []byte("png bytes")}
	blobs := &fakeBlobs{key: "k-123.png"}
	fb := &fakeFallback{}
	nt := &fakeNotifier{}

	newTestPipeline(st, blobs, fb, nt).Run(context.Background(), wc, "abc")

	final := st.last()
	if final.ErrorCode != model.Success {
		t.Fatalf("expected SUCCESS, got %v", final.ErrorCode)
	}
	if final.DurableKey != "k-123.png" {
		t.Fatalf("expected durable key, got %q", final.DurableKey)
	}
	if final.ArtifactPath != "batch/out.png" {
		t.Fatalf("expected artifact path persisted, got %q", final.ArtifactPath)
	}
	if !bytes.Equal(blobs.data, wc.artifact) {
		t.Fatalf("uploaded bytes differ from fetched artifact")
	}
	if nt.calls != 1 {
		t.Fatalf("expected exactly one callback, got %d", nt.calls)
	}
	if fb.data != nil {
		t.Fatalf("fallback must not be used on success")
	}
	if wc.cleanupCalls != 1 {
		t.Fatalf("expected exactly one cleanup attempt, got %d", wc.cleanupCalls)
	}
	if wc.cleanupKind != workflow.KindOutput || wc.cleanupPath != "batch/out.png" {
		t.Fatalf("cleanup targeted %s %q", wc.cleanupKind, wc.cleanupPath)
	}
}

func TestRun_StoreFailureFallsBackWithExactBytes(t *testing.T) {
	st := &fakeStore{records: existingRecord()}
	wc := &fakeWorker{outputPath: "batch/out.png", artifact: []byte{1, 2, 3, 4}}
	blobs := &fakeBlobs{err: errors.New("bucket unreachable")}
	fb := &fakeFallback{}
	nt := &fakeNotifier{}

	newTestPipeline(st, blobs, fb, nt).Run(context.Background(), wc, "abc")

	final := st.last()
	if final.ErrorCode != model.StoreError {
		t.Fatalf("expected STORE_ERROR, got %v", final.ErrorCode)
	}
	if final.DurableKey != "" {
		t.Fatalf("durable key must stay empty on store failure")
	}
	if !bytes.Equal(fb.data, wc.artifact) {
		t.Fatalf("fallback bytes differ: got %v want %v", fb.data, wc.artifact)
	}
	if fb.path != "batch/out.png" {
		t.Fatalf("fallback path derived from artifact path, got %q", fb.path)
	}
	if nt.calls != 1 {
		t.Fatalf("expected exactly one callback, got %d", nt.calls)
	}
	if nt.lastRec.ErrorCode != model.StoreError {
		t.Fatalf("callback must carry STORE_ERROR, got %v", nt.lastRec.ErrorCode)
	}
	if wc.cleanupCalls != 1 {
		t.Fatalf("expected exactly one cleanup attempt, got %d", wc.cleanupCalls)
	}
}

func TestRun_RetrieveFailureSkipsStorage(t *testing.T) {
	st := &fakeStore{records: existingRecord()}
	wc := &fakeWorker{outputsErr: errors.New("history lookup failed")}
	blobs := &fakeBlobs{key: "unused"}
	fb := &fakeFallback{}
	nt := &fakeNotifier{}

	newTestPipeline(st, blobs, fb, nt).Run(context.Background(), wc, "abc")

	final := st.last()
	if final.ErrorCode != model.RetrieveError {
		t.Fatalf("expected RETRIEVE_ERROR, got %v", final.ErrorCode)
	}
	if blobs.data != nil || fb.data != nil {
		t.Fatalf("no artifact may be stored when retrieval failed")
	}
	if nt.calls != 1 {
		t.Fatalf("expected exactly one callback, got %d", nt.calls)
	}
	if wc.cleanupCalls != 0 {
		t.Fatalf("no output was resolved, nothing to clean, got %d calls", wc.cleanupCalls)
	}
}

func TestRun_ArtifactFetchFailureStillCleansResolvedPath(t *testing.T) {
	st := &fakeStore{records: existingRecord()}
	wc := &fakeWorker{outputPath: "batch/out.png", artifactErr: errors.New("view failed")}
	blobs := &fakeBlobs{key: "unused"}
	fb := &fakeFallback{}
	nt := &fakeNotifier{}

	newTestPipeline(st, blobs, fb, nt).Run(context.Background(), wc, "abc")

	final := st.last()
	if final.ErrorCode != model.RetrieveError {
		t.Fatalf("expected RETRIEVE_ERROR, got %v", final.ErrorCode)
	}
	if blobs.data != nil || fb.data != nil {
		t.Fatalf("no artifact may be stored when the fetch failed")
	}
	if wc.cleanupCalls != 1 {
		t.Fatalf("the resolved output file still needs cleanup, got %d calls", wc.cleanupCalls)
	}
	if wc.cleanupPath != "batch/out.png" {
		t.Fatalf("cleanup targeted %q", wc.cleanupPath)
	}
}

func TestRun_UnknownWorkerTaskIDIsNoOp(t *testing.T) {
	st := &fakeStore{records: map[string]*model.JobRecord{}}
	wc := &fakeWorker{}
	nt := &fakeNotifier{}

	newTestPipeline(st, &fakeBlobs{}, &fakeFallback{}, nt).Run(context.Background(), wc, "missing")

	if len(st.updates) != 0 {
		t.Fatalf("no record mutation expected for unknown task id")
	}
	if nt.calls != 0 {
		t.Fatalf("no callback expected for unknown task id")
	}
	if wc.cleanupCalls != 0 {
		t.Fatalf("no cleanup expected for unknown task id")
	}
}

func TestRun_CallbackFailureSetsUnknownErrorOnlyWhenFirst(t *testing.T) {
	st := &fakeStore{records: existingRecord()}
	wc := &fakeWorker{outputPath: "out.png", artifact: []byte("x")}
	nt := &fakeNotifier{err: errors.New("client down")}

	newTestPipeline(st, &fakeBlobs{key: "k"}, &fakeFallback{}, nt).Run(context.Background(), wc, "abc")

	if st.last().ErrorCode != model.UnknownError {
		t.Fatalf("expected UNKNOWN_ERROR when callback is the first failure, got %v", st.last().ErrorCode)
	}
}

func TestRun_CallbackFailureDoesNotMaskEarlierError(t *testing.T) {
	st := &fakeStore{records: existingRecord()}
	wc := &fakeWorker{outputPath: "out.png", artifact: []byte("x")}
	blobs := &fakeBlobs{err: errors.New("bucket unreachable")}
	nt := &fakeNotifier{err: errors.New("client down")}

	newTestPipeline(st, blobs, &fakeFallback{}, nt).Run(context.Background(), wc, "abc")

	if st.last().ErrorCode != model.StoreError {
		t.Fatalf("STORE_ERROR must not be superseded by a callback failure, got %v", st.last().ErrorCode)
	}
}
