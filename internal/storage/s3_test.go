package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
)

type fakeS3 struct {
	head func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	get  func(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
	puts []*s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return f.head(in)
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.get(in)
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

var pkg = models.BlobLocation{Bucket: "ag-online-zemog", Key: "tests/suite.zip"}

func TestStat(t *testing.T) {
	modified := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewS3Store(&fakeS3{head: func(in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		assert.Equal(t, "ag-online-zemog", aws.ToString(in.Bucket))
		assert.Equal(t, "tests/suite.zip", aws.ToString(in.Key))
		return &s3.HeadObjectOutput{LastModified: aws.Time(modified), ContentLength: aws.Int64(42)}, nil
	}})

	info, err := store.Stat(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, modified, info.LastModified)
	assert.Equal(t, int64(42), info.Size)
}

func TestStatErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   error
	}{
		{"typed not found", &types.NotFound{}, ErrObjectNotFound},
		{"no such key code", &smithy.GenericAPIError{Code: "NoSuchKey"}, ErrObjectNotFound},
		{"forbidden", &smithy.GenericAPIError{Code: "Forbidden"}, ErrAccessDenied},
		{"no such bucket", &types.NoSuchBucket{}, ErrBucketNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewS3Store(&fakeS3{head: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
				return nil, tt.err
			}})

			_, err := store.Stat(context.Background(), pkg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	t.Run("unclassified", func(t *testing.T) {
		boom := errors.New("connection reset")
		store := NewS3Store(&fakeS3{head: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
			return nil, boom
		}})

		_, err := store.Stat(context.Background(), pkg)
		assert.ErrorIs(t, err, boom)
		assert.False(t, IsNotFound(err))
		assert.False(t, IsAccessDenied(err))
	})
}

func TestDownload(t *testing.T) {
	store := NewS3Store(&fakeS3{get: func(*s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("PK zip bytes"))}, nil
	}})

	var buf bytes.Buffer
	require.NoError(t, store.Download(context.Background(), pkg, &buf))
	assert.Equal(t, "PK zip bytes", buf.String())
}

func TestUploadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>report</body></html>"), 0o644))

	fake := &fakeS3{}
	store := NewS3Store(fake)
	expires := time.Now().Add(7 * 24 * time.Hour)

	dest := models.BlobLocation{Bucket: "zemog-bucket", Key: "tests/result/run/html/index.html"}
	require.NoError(t, store.UploadFile(context.Background(), dest, path, expires))

	require.Len(t, fake.puts, 1)
	put := fake.puts[0]
	assert.Equal(t, "zemog-bucket", aws.ToString(put.Bucket))
	assert.Equal(t, "tests/result/run/html/index.html", aws.ToString(put.Key))
	assert.True(t, strings.HasPrefix(aws.ToString(put.ContentType), "text/html"))
	assert.Equal(t, expires, aws.ToTime(put.Expires))
	assert.Equal(t, "<html><body>report</body></html>", string(fake.body))
}

func TestUploadFileMissingBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	store := NewS3Store(&fakeS3{err: &smithy.GenericAPIError{Code: "NoSuchKey"}})
	err := store.UploadFile(context.Background(), pkg, path, time.Now())
	assert.True(t, IsNotFound(err))
}
