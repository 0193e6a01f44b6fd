package ingestd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	trs3 "trustreg/pkg/s3"
	"trustreg/pkg/source"
	"trustreg/pkg/zipstream"
)

// Upload is one in-flight object upload. Exactly one of Complete or Abort
// ends it.
type Upload interface {
	io.Writer
	Complete(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Uploader begins object uploads keyed by storage path.
type Uploader interface {
	Begin(ctx context.Context, key, contentType string) (Upload, error)
}

// S3Uploader starts multipart uploads against one bucket.
type S3Uploader struct {
	Client   *trs3.Client
	Bucket   string
	PartSize int
}

func (u *S3Uploader) Begin(ctx context.Context, key, contentType string) (Upload, error) {
	return u.Client.BeginMultipart(ctx, u.Bucket, key, contentType, u.PartSize)
}

// Archiver streams a repository revision into object storage as a stored
// ZIP, never touching local disk. The archive bytes flow through a running
// SHA-256 and the part-buffering upload at the same time, so memory stays
// bounded by the flush threshold regardless of repository size.
type Archiver struct {
	Uploads Uploader
}

// ArchiveResult describes one finished upload.
type ArchiveResult struct {
	ObjectKey string
	SHA256    string
	SizeBytes int64
}

// Archive uploads the revision's files in listing order. On any failure the
// upload is aborted so no orphaned parts accrue.
func (a *Archiver) Archive(ctx context.Context, client source.Client, repo source.Repo, typ string, id uuid.UUID, revision string) (ArchiveResult, error) {
	files, err := client.ListFiles(ctx, repo, revision)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("list files for %s: %w", repo.ID, err)
	}

	key := objectKey(typ, id, repo.ID)
	upload, err := a.Uploads.Begin(ctx, key, "application/zip")
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("begin upload %s: %w", key, err)
	}

	hasher := sha256.New()
	zw := zipstream.NewWriter(io.MultiWriter(hasher, upload))

	if err := copyAll(ctx, client, repo, revision, files, zw); err != nil {
		_ = upload.Abort(ctx)
		return ArchiveResult{}, err
	}
	if err := zw.Close(); err != nil {
		_ = upload.Abort(ctx)
		return ArchiveResult{}, fmt.Errorf("finish archive: %w", err)
	}
	if err := upload.Complete(ctx); err != nil {
		_ = upload.Abort(ctx)
		return ArchiveResult{}, fmt.Errorf("complete upload %s: %w", key, err)
	}

	return ArchiveResult{
		ObjectKey: key,
		SHA256:    hex.EncodeToString(hasher.Sum(nil)),
		SizeBytes: int64(zw.BytesWritten()),
	}, nil
}

func copyAll(ctx context.Context, client source.Client, repo source.Repo, revision string, files []source.FileInfo, zw *zipstream.Writer) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		rc, err := client.OpenFile(ctx, repo, f.Path, revision)
		if err != nil {
			return fmt.Errorf("open %s: %w", f.Path, err)
		}
		if err := zw.Create(f.Path); err != nil {
			rc.Close()
			return fmt.Errorf("add %s: %w", f.Path, err)
		}
		_, err = io.Copy(zw, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("stream %s: %w", f.Path, err)
		}
	}
	return nil
}

// objectKey shapes the storage path. Slashes in the repository id collapse
// to underscores so the final path segment stays one segment.
func objectKey(typ string, id uuid.UUID, repoID string) string {
	return fmt.Sprintf("artifacts/%s/%s/%s.zip", typ, id, strings.ReplaceAll(repoID, "/", "_"))
}
