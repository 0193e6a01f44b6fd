package ingestd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"trustreg/pkg/rating"
	"trustreg/pkg/source"
	"trustreg/services/registry"
)

// fakeSource serves a repository out of memory.
type fakeSource struct {
	order   []string
	files   map[string][]byte
	meta    source.Metadata
	commits []source.Commit

	metaErr error
	listErr error
	openErr map[string]error
}

func (f *fakeSource) ListFiles(_ context.Context, _ source.Repo, _ string) ([]source.FileInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]source.FileInfo, 0, len(f.order))
	for _, p := range f.order {
		out = append(out, source.FileInfo{Path: p, Size: int64(len(f.files[p]))})
	}
	return out, nil
}

func (f *fakeSource) OpenFile(_ context.Context, _ source.Repo, path, _ string) (io.ReadCloser, error) {
	if err := f.openErr[path]; err != nil {
		return nil, err
	}
	body, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file %q", path)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (f *fakeSource) Metadata(_ context.Context, _ source.Repo, _ string) (source.Metadata, error) {
	if f.metaErr != nil {
		return source.Metadata{}, f.metaErr
	}
	return f.meta, nil
}

func (f *fakeSource) RecentCommits(_ context.Context, _ source.Repo, _ string, limit int) ([]source.Commit, error) {
	if limit < len(f.commits) {
		return f.commits[:limit], nil
	}
	return f.commits, nil
}

// fakeUpload buffers the archive in memory and records how it ended.
type fakeUpload struct {
	buf       bytes.Buffer
	completed bool
	aborted   bool
	failWrite bool
}

func (u *fakeUpload) Write(p []byte) (int, error) {
	if u.failWrite {
		return 0, fmt.Errorf("upload broken")
	}
	return u.buf.Write(p)
}

func (u *fakeUpload) Complete(context.Context) error {
	u.completed = true
	return nil
}

func (u *fakeUpload) Abort(context.Context) error {
	u.aborted = true
	return nil
}

type fakeUploader struct {
	upload *fakeUpload
	keys   []string
}

func (f *fakeUploader) Begin(_ context.Context, key, _ string) (Upload, error) {
	f.keys = append(f.keys, key)
	return f.upload, nil
}

// stubEval scores every metric with the same value.
type stubEval float64

func (s stubEval) Score(context.Context, string, *rating.Snapshot) (float64, error) {
	return float64(s), nil
}

func newTestStore(t *testing.T) *registry.Store {
	t.Helper()
	orm, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := registry.AutoMigrate(orm); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &registry.Store{ORM: orm}
}
