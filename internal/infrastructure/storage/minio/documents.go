package minio

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Document source
// ─────────────────────────────────────────────────────────────────────────────

// DocumentSource lists supported documents under the configured prefix.
type DocumentSource struct {
	c *MinIOClient
}

var _ extraction.DocumentSource = (*DocumentSource)(nil)

// Documents returns the bucket's document source.
func (c *MinIOClient) Documents() *DocumentSource { return &DocumentSource{c: c} }

// List returns supported objects sorted by key.
func (s *DocumentSource) List(ctx context.Context) ([]extraction.DocumentRef, error) {
	if s.c.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	cfg := s.c.config
	var refs []extraction.DocumentRef
	for obj := range s.c.client.ListObjects(ctx, cfg.Bucket, minio.ListObjectsOptions{Prefix: cfg.DocumentPrefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "list documents").WithDetail(cfg.Bucket + "/" + cfg.DocumentPrefix)
		}
		name := path.Base(obj.Key)
		if strings.HasSuffix(obj.Key, "/") || !extraction.Supported(name) {
			continue
		}
		if obj.Size > cfg.MaxObjectSize {
			s.c.logger.Warn("Skipping oversized document",
				logging.String("key", obj.Key), logging.Int64("size", obj.Size))
			continue
		}
		refs = append(refs, extraction.DocumentRef{Name: name, Key: obj.Key, Size: obj.Size, Modified: obj.LastModified})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Key < refs[j].Key })
	return refs, nil
}

// Read downloads one object, bounded by the configured size limit.
func (s *DocumentSource) Read(ctx context.Context, ref extraction.DocumentRef) ([]byte, error) {
	if s.c.isClosed() {
		return nil, ErrMinIOClientClosed
	}
	r, err := s.c.open(ctx, s.c.config.Bucket, ref.Key)
	if err != nil {
		return nil, wrapObjectErr(err, "read document", ref.Key)
	}
	defer r.Close()

	limit := s.c.config.MaxObjectSize
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, wrapObjectErr(err, "read document", ref.Key)
	}
	if int64(len(data)) > limit {
		return nil, ErrObjectTooLarge.WithDetail(ref.Key)
	}
	return data, nil
}

// Upload stores a local document under the document prefix and returns its
// object key.
func (s *DocumentSource) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if s.c.isClosed() {
		return "", ErrMinIOClientClosed
	}
	if !extraction.Supported(name) {
		return "", errors.New(errors.ErrCodeUnsupportedFormat, "unsupported document format").WithDetail(name)
	}
	key := s.c.config.DocumentPrefix + path.Base(filepath.ToSlash(name))
	_, err := s.c.client.PutObject(ctx, s.c.config.Bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType(name)})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "upload document").WithDetail(key)
	}
	s.c.logger.Info("Uploaded document", logging.String("key", key), logging.Int("size", len(data)))
	return key, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Backup mirror
// ─────────────────────────────────────────────────────────────────────────────

// BackupMirror copies local table backups under the backup prefix.
type BackupMirror struct {
	c *MinIOClient
}

// Backups returns the bucket's backup mirror.
func (c *MinIOClient) Backups() *BackupMirror { return &BackupMirror{c: c} }

// Mirror uploads the backup file at p.
func (m *BackupMirror) Mirror(ctx context.Context, p string) error {
	if m.c.isClosed() {
		return ErrMinIOClientClosed
	}
	f, err := os.Open(p)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "open backup").WithDetail(p)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "stat backup").WithDetail(p)
	}

	key := m.c.config.BackupPrefix + filepath.Base(p)
	if _, err := m.c.client.PutObject(ctx, m.c.config.Bucket, key, f, info.Size(),
		minio.PutObjectOptions{ContentType: "application/json"}); err != nil {
		return errors.Wrap(err, errors.ErrCodeBackupFailed, "mirror backup").WithDetail(key)
	}
	m.c.logger.Debug("Mirrored backup", logging.String("key", key))
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func wrapObjectErr(err error, msg, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrObjectNotFound.WithDetail(key)
	}
	return errors.Wrap(err, errors.ErrCodeStorageError, msg).WithDetail(key)
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".html", ".htm":
		return "text/html"
	case ".txt", ".md":
		return "text/plain"
	}
	return "application/octet-stream"
}
