package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/Regolith-Intelligence/internal/application/extraction"
	"github.com/turtacn/Regolith-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/Regolith-Intelligence/pkg/errors"
)

type MockMinIOAPI struct {
	mock.Mock
}

func (m *MockMinIOAPI) ListBuckets(ctx context.Context) ([]minio.BucketInfo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]minio.BucketInfo), args.Error(1)
}

func (m *MockMinIOAPI) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *MockMinIOAPI) MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error {
	return m.Called(ctx, bucketName, opts).Error(0)
}

func (m *MockMinIOAPI) ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	args := m.Called(ctx, bucketName, opts)
	return args.Get(0).(<-chan minio.ObjectInfo)
}

func (m *MockMinIOAPI) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	body, _ := io.ReadAll(reader)
	args := m.Called(ctx, bucketName, objectName, string(body), objectSize, opts)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

// GetObject is never reached in unit tests; reads go through MinIOClient.open.
func (m *MockMinIOAPI) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return nil, m.Called(ctx, bucketName, objectName, opts).Error(1)
}

func (m *MockMinIOAPI) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName, opts)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func objects(infos ...minio.ObjectInfo) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(infos))
	for _, i := range infos {
		ch <- i
	}
	close(ch)
	return ch
}

type ClientTestSuite struct {
	suite.Suite
	api    *MockMinIOAPI
	client *MinIOClient
	ctx    context.Context
}

func (s *ClientTestSuite) SetupTest() {
	s.api = new(MockMinIOAPI)
	cfg := &MinIOConfig{Bucket: "docs", MaxObjectSize: 16}
	applyDefaults(cfg)
	s.client = newMinIOClient(s.api, cfg, logging.NewNopLogger())
	s.ctx = context.Background()
}

func (s *ClientTestSuite) TestApplyDefaults() {
	cfg := &MinIOConfig{DocumentPrefix: "incoming"}
	applyDefaults(cfg)

	s.Equal("us-east-1", cfg.Region)
	s.Equal("regolith-documents", cfg.Bucket)
	s.Equal("incoming/", cfg.DocumentPrefix)
	s.Equal("backups/", cfg.BackupPrefix)
	s.Equal(int64(64<<20), cfg.MaxObjectSize)
}

func (s *ClientTestSuite) TestEnsureBucket_Creates() {
	s.api.On("BucketExists", s.ctx, "docs").Return(false, nil)
	s.api.On("MakeBucket", s.ctx, "docs", minio.MakeBucketOptions{Region: "us-east-1"}).Return(nil)

	s.Require().NoError(s.client.EnsureBucket(s.ctx))
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestEnsureBucket_Exists() {
	s.api.On("BucketExists", s.ctx, "docs").Return(true, nil)

	s.Require().NoError(s.client.EnsureBucket(s.ctx))
	s.api.AssertNotCalled(s.T(), "MakeBucket", mock.Anything, mock.Anything, mock.Anything)
}

func (s *ClientTestSuite) TestEnsureBucket_Error() {
	s.api.On("BucketExists", s.ctx, "docs").Return(false, fmt.Errorf("denied"))

	err := s.client.EnsureBucket(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodeStorageError))
}

func (s *ClientTestSuite) TestHealthCheck() {
	s.api.On("BucketExists", s.ctx, "docs").Return(true, nil).Once()
	status, err := s.client.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.True(status.Healthy)

	s.api.On("BucketExists", s.ctx, "docs").Return(false, nil).Once()
	status, err = s.client.HealthCheck(s.ctx)
	s.Require().NoError(err)
	s.False(status.Healthy)
	s.Contains(status.Error, "missing")
}

func (s *ClientTestSuite) TestClosed() {
	s.Require().NoError(s.client.Close())

	_, err := s.client.Documents().List(s.ctx)
	s.ErrorIs(err, ErrMinIOClientClosed)
	s.ErrorIs(s.client.Backups().Mirror(s.ctx, "x.json"), ErrMinIOClientClosed)
}

func (s *ClientTestSuite) TestList_FiltersAndSorts() {
	now := time.Now()
	s.api.On("ListObjects", s.ctx, "docs", minio.ListObjectsOptions{Prefix: "papers/", Recursive: true}).Return(objects(
		minio.ObjectInfo{Key: "papers/b.pdf", Size: 10, LastModified: now},
		minio.ObjectInfo{Key: "papers/sub/", Size: 0},
		minio.ObjectInfo{Key: "papers/a.docx", Size: 12},
		minio.ObjectInfo{Key: "papers/image.png", Size: 3},
		minio.ObjectInfo{Key: "papers/huge.pdf", Size: 17},
	))

	refs, err := s.client.Documents().List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(refs, 2)
	s.Equal("papers/a.docx", refs[0].Key)
	s.Equal("a.docx", refs[0].Name)
	s.Equal(extraction.DocumentRef{Name: "b.pdf", Key: "papers/b.pdf", Size: 10, Modified: now}, refs[1])
}

func (s *ClientTestSuite) TestList_Error() {
	s.api.On("ListObjects", s.ctx, "docs", mock.Anything).Return(objects(minio.ObjectInfo{Err: fmt.Errorf("boom")}))

	_, err := s.client.Documents().List(s.ctx)
	s.True(errors.IsCode(err, errors.ErrCodeStorageError))
}

func (s *ClientTestSuite) TestRead() {
	s.client.open = func(_ context.Context, bucket, key string) (io.ReadCloser, error) {
		s.Equal("docs", bucket)
		switch key {
		case "papers/ok.txt":
			return io.NopCloser(strings.NewReader("SiO2 45.2")), nil
		case "papers/big.txt":
			return io.NopCloser(strings.NewReader(strings.Repeat("x", 17))), nil
		}
		return nil, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	src := s.client.Documents()

	data, err := src.Read(s.ctx, extraction.DocumentRef{Key: "papers/ok.txt"})
	s.Require().NoError(err)
	s.Equal("SiO2 45.2", string(data))

	_, err = src.Read(s.ctx, extraction.DocumentRef{Key: "papers/big.txt"})
	s.ErrorIs(err, ErrObjectTooLarge)

	_, err = src.Read(s.ctx, extraction.DocumentRef{Key: "papers/gone.txt"})
	s.True(errors.IsNotFound(err))
}

func (s *ClientTestSuite) TestUpload() {
	s.api.On("PutObject", s.ctx, "docs", "papers/lhs1.pdf", "%PDF", int64(4),
		minio.PutObjectOptions{ContentType: "application/pdf"}).Return(minio.UploadInfo{}, nil)

	key, err := s.client.Documents().Upload(s.ctx, "/tmp/in/lhs1.pdf", []byte("%PDF"))
	s.Require().NoError(err)
	s.Equal("papers/lhs1.pdf", key)

	_, err = s.client.Documents().Upload(s.ctx, "photo.png", []byte("x"))
	s.True(errors.IsCode(err, errors.ErrCodeUnsupportedFormat))
}

func (s *ClientTestSuite) TestMirror() {
	p := filepath.Join(s.T().TempDir(), "composition_backup_20250304_050607.json")
	require.NoError(s.T(), os.WriteFile(p, []byte(`[]`), 0o644))
	s.api.On("PutObject", s.ctx, "docs", "backups/composition_backup_20250304_050607.json", "[]", int64(2),
		minio.PutObjectOptions{ContentType: "application/json"}).Return(minio.UploadInfo{}, nil)

	s.Require().NoError(s.client.Backups().Mirror(s.ctx, p))
	s.api.AssertExpectations(s.T())
}

func (s *ClientTestSuite) TestMirror_Failures() {
	err := s.client.Backups().Mirror(s.ctx, filepath.Join(s.T().TempDir(), "missing.json"))
	s.True(errors.IsCode(err, errors.ErrCodeBackupFailed))

	p := filepath.Join(s.T().TempDir(), "simulant_backup.json")
	require.NoError(s.T(), os.WriteFile(p, []byte(`{}`), 0o644))
	s.api.On("PutObject", s.ctx, "docs", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, fmt.Errorf("denied"))
	err = s.client.Backups().Mirror(s.ctx, p)
	s.True(errors.IsCode(err, errors.ErrCodeBackupFailed))
}

func TestClientTestSuite(t *testing.T) {
	suite.Run(t, new(ClientTestSuite))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("A.PDF"))
	assert.Equal(t, "text/html", contentType("x.htm"))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}
