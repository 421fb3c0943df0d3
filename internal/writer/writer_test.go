package writer

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grafana-backup/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateObjectName(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		runDir   string
		extra    string
		expected string
	}{
		{name: "no prefix", prefix: "", runDir: "prod_050324140709", expected: "prod_050324140709.tar.gz"},
		{name: "with prefix", prefix: "grafana", runDir: "prod_050324140709", expected: "grafana/prod_050324140709.tar.gz"},
		{name: "slashes trimmed", prefix: "/backups/grafana/", runDir: "dev_010124000000", expected: "backups/grafana/dev_010124000000.tar.gz"},
		{name: "encrypted", prefix: "g", runDir: "dev_010124000000", extra: ".gpg", expected: "g/dev_010124000000.tar.gz.gpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateObjectName(tt.prefix, tt.runDir, tt.extra); got != tt.expected {
				t.Errorf("GenerateObjectName() = %v, want %v", got, tt.expected)
			}
		})
	}

	assert.Equal(t, "grafana/", ObjectPrefix("/grafana/"))
	assert.Equal(t, "", ObjectPrefix(""))
}

func TestGetWriter(t *testing.T) {
	w, err := GetWriter(config.StorageConfig{Dest: "LOCAL", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, LocalWriterType, w.Type())

	_, err = GetWriter(config.StorageConfig{Dest: "ftp"})
	assert.Error(t, err)

	_, err = GetWriter(config.StorageConfig{Dest: config.DestRemote})
	assert.Error(t, err, "remote writer without a bucket must fail")
}

func newLocal(t *testing.T) (*LocalWriter, string) {
	t.Helper()
	base := t.TempDir()
	w, err := NewLocalWriter(config.StorageConfig{LocalPath: base})
	require.NoError(t, err)
	return w.(*LocalWriter), base
}

func TestLocalWriterLifecycle(t *testing.T) {
	lw, base := newLocal(t)
	ctx := context.Background()

	dest, n, err := lw.Write(ctx, "grafana/prod_010124000000.tar.gz", strings.NewReader("archive-bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("archive-bytes")), n)
	assert.Equal(t, filepath.Join(base, "grafana", "prod_010124000000.tar.gz"), dest)

	_, _, err = lw.Write(ctx, "other/file.txt", strings.NewReader("x"))
	require.NoError(t, err)

	objects, err := lw.ListObjects(ctx, "grafana/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "grafana/prod_010124000000.tar.gz", objects[0].Key)
	assert.Equal(t, n, objects[0].Size)

	require.NoError(t, lw.DeleteObject(ctx, "grafana/prod_010124000000.tar.gz"))
	_, err = os.Stat(filepath.Join(base, "grafana"))
	assert.True(t, os.IsNotExist(err), "empty prefix directory should be pruned")
	_, err = os.Stat(base)
	assert.NoError(t, err, "base path must survive pruning")

	assert.NoError(t, lw.DeleteObject(ctx, "grafana/missing.tar.gz"))
}

func TestLocalWriterRejectsTraversal(t *testing.T) {
	lw, base := newLocal(t)
	ctx := context.Background()

	for _, name := range []string{"../escape.tar.gz", "a/../../escape", "/etc/passwd", "..\\escape", ""} {
		_, _, err := lw.Write(ctx, name, strings.NewReader("x"))
		assert.Error(t, err, "object name %q should be rejected", name)
	}
	assert.Error(t, lw.DeleteObject(ctx, "../outside"))

	_, err := os.Stat(filepath.Join(filepath.Dir(base), "escape.tar.gz"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalWriterRemovesPartialFileOnError(t *testing.T) {
	lw, base := newLocal(t)

	_, _, err := lw.Write(context.Background(), "broken.tar.gz", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(base, "broken.tar.gz"))
	assert.True(t, os.IsNotExist(statErr))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestWriteMetadata(t *testing.T) {
	lw, base := newLocal(t)
	meta := ArchiveMetadata{
		RunID:           "run-1",
		Environment:     "prod",
		Timestamp:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		ArchiveSize:     42,
		CompressionType: "gzip",
		Success:         true,
	}

	dest, err := WriteMetadata(context.Background(), lw, meta, "grafana/prod_010124000000.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "grafana", "prod_010124000000.tar.gz"+MetadataSuffix), dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var decoded ArchiveMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, meta, decoded)
}

type fakeUploader struct {
	key  string
	body string
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.key = aws.ToString(input.Key)
	f.body = string(data)
	return &manager.UploadOutput{Location: "https://bucket.s3/" + f.key}, nil
}

type fakeS3 struct {
	objects []types.Object
	deleted []string
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var contents []types.Object
	for _, obj := range f.objects {
		if strings.HasPrefix(aws.ToString(obj.Key), aws.ToString(params.Prefix)) {
			contents = append(contents, obj)
		}
	}
	return &s3.ListObjectsV2Output{Contents: contents, IsTruncated: aws.Bool(false)}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Writer(t *testing.T) {
	modified := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	up := &fakeUploader{}
	api := &fakeS3{objects: []types.Object{
		{Key: aws.String("grafana/a.tar.gz"), LastModified: aws.Time(modified), Size: aws.Int64(10)},
		{Key: aws.String("other/b.tar.gz"), LastModified: aws.Time(modified), Size: aws.Int64(20)},
	}}
	w := &S3Writer{uploader: up, s3Client: api, bucketName: "bucket"}
	ctx := context.Background()

	assert.Equal(t, S3WriterType, w.Type())

	dest, n, err := w.Write(ctx, "grafana/c.tar.gz", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "https://bucket.s3/grafana/c.tar.gz", dest)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", up.body)

	objects, err := w.ListObjects(ctx, "grafana/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, BackupObjectMeta{Key: "grafana/a.tar.gz", LastModified: modified, Size: 10}, objects[0])

	require.NoError(t, w.DeleteObject(ctx, "grafana/a.tar.gz"))
	assert.Equal(t, []string{"grafana/a.tar.gz"}, api.deleted)
}

func TestDiskUsageFreePercent(t *testing.T) {
	assert.Equal(t, 25.0, DiskUsage{TotalBytes: 400, FreeBytes: 100}.FreePercent())
	assert.Zero(t, DiskUsage{}.FreePercent())

	usage, err := diskUsage(t.TempDir())
	require.NoError(t, err)
	assert.NotZero(t, usage.TotalBytes)
}
