package ingestd

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"trustreg/pkg/source"
)

func modelRepo() source.Repo {
	return source.Repo{Kind: source.KindHuggingFace, ID: "google/bert-base", HubType: "models"}
}

func TestArchiveRoundTrip(t *testing.T) {
	src := &fakeSource{
		order: []string{"README.md", "src/model.py", "weights.bin"},
		files: map[string][]byte{
			"README.md":    []byte("# bert"),
			"src/model.py": []byte("print('hi')\n"),
			"weights.bin":  bytes.Repeat([]byte{0xAB}, 4096),
		},
	}
	uploader := &fakeUploader{upload: &fakeUpload{}}
	a := &Archiver{Uploads: uploader}
	id := uuid.New()

	res, err := a.Archive(context.Background(), src, modelRepo(), "model", id, "main")
	if err != nil {
		t.Fatal(err)
	}

	wantKey := fmt.Sprintf("artifacts/model/%s/google_bert-base.zip", id)
	if res.ObjectKey != wantKey {
		t.Errorf("object key = %q, want %q", res.ObjectKey, wantKey)
	}
	if len(uploader.keys) != 1 || uploader.keys[0] != wantKey {
		t.Errorf("upload keys = %v", uploader.keys)
	}
	if !uploader.upload.completed || uploader.upload.aborted {
		t.Errorf("upload completed=%v aborted=%v", uploader.upload.completed, uploader.upload.aborted)
	}

	raw := uploader.upload.buf.Bytes()
	if res.SizeBytes != int64(len(raw)) {
		t.Errorf("size = %d, want %d", res.SizeBytes, len(raw))
	}
	sum := sha256.Sum256(raw)
	if res.SHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("sha mismatch: %s", res.SHA256)
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(zr.File) != len(src.order) {
		t.Fatalf("archive holds %d entries, want %d", len(zr.File), len(src.order))
	}
	for i, f := range zr.File {
		if f.Name != src.order[i] {
			t.Errorf("entry %d = %q, want %q (listing order)", i, f.Name, src.order[i])
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		var got bytes.Buffer
		if _, err := got.ReadFrom(rc); err != nil {
			t.Fatal(err)
		}
		rc.Close()
		if !bytes.Equal(got.Bytes(), src.files[f.Name]) {
			t.Errorf("entry %q content mismatch", f.Name)
		}
	}
}

func TestArchiveDeterministic(t *testing.T) {
	src := &fakeSource{
		order: []string{"a.txt", "b.txt"},
		files: map[string][]byte{
			"a.txt": []byte("alpha"),
			"b.txt": []byte("beta"),
		},
	}
	id := uuid.New()

	run := func() string {
		uploader := &fakeUploader{upload: &fakeUpload{}}
		a := &Archiver{Uploads: uploader}
		res, err := a.Archive(context.Background(), src, modelRepo(), "model", id, "main")
		if err != nil {
			t.Fatal(err)
		}
		return res.SHA256
	}
	if first, second := run(), run(); first != second {
		t.Errorf("repeated archive hashes differ: %s vs %s", first, second)
	}
}

func TestArchiveAbortsOnFailure(t *testing.T) {
	src := &fakeSource{
		order: []string{"a.txt", "b.txt"},
		files: map[string][]byte{
			"a.txt": []byte("alpha"),
			"b.txt": []byte("beta"),
		},
		openErr: map[string]error{"b.txt": fmt.Errorf("upstream gone")},
	}
	uploader := &fakeUploader{upload: &fakeUpload{}}
	a := &Archiver{Uploads: uploader}

	_, err := a.Archive(context.Background(), src, modelRepo(), "model", uuid.New(), "main")
	if err == nil {
		t.Fatal("expected error")
	}
	if !uploader.upload.aborted {
		t.Error("failed upload was not aborted")
	}
	if uploader.upload.completed {
		t.Error("failed upload was completed")
	}
}

func TestObjectKeyShape(t *testing.T) {
	id := uuid.MustParse("6b4a38c1-9a03-4c3e-bb0f-0f2b6f8d1a11")
	got := objectKey("dataset", id, "owner/nested-name")
	want := "artifacts/dataset/6b4a38c1-9a03-4c3e-bb0f-0f2b6f8d1a11/owner_nested-name.zip"
	if got != want {
		t.Errorf("objectKey = %q, want %q", got, want)
	}
	if strings.Count(got, "/") != 3 {
		t.Errorf("key has %d segments separators", strings.Count(got, "/"))
	}
}
