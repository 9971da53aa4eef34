package results

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/core/ports"
	"github.com/theblitlabs/zemog-worker/internal/storage"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

const defaultUploadConcurrency = 8

type Uploader struct {
	store       ports.BlobStore
	bucket      string
	prefix      string
	retention   int
	concurrency int
	now         func() time.Time
}

func NewUploader(store ports.BlobStore, cfg *config.Config) *Uploader {
	return &Uploader{
		store:       store,
		bucket:      cfg.AWS.TestResultPath.Bucket,
		prefix:      cfg.AWS.TestResultPath.Key,
		retention:   cfg.DaysToKeepTestResult,
		concurrency: defaultUploadConcurrency,
		now:         time.Now,
	}
}

// Namespace is the key prefix all objects of one upload share.
func (u *Uploader) Namespace(name string, at time.Time) string {
	stamp := strings.ReplaceAll(at.UTC().Format("2006-01-02T15:04:05.000Z"), ":", "-")
	return u.prefix + name + "-" + stamp
}

// UploadTestResult uploads every file of the results directory under
// <namespace>/html/ and then the archive itself under <namespace>/. It returns
// the namespace, or "" when the results directory no longer exists.
func (u *Uploader) UploadTestResult(ctx context.Context, archive *models.ResultArchive) (string, error) {
	log := logger.WithComponent("uploader")

	if _, err := os.Stat(archive.SourceDirectory); os.IsNotExist(err) {
		log.Warn().Str("src", archive.SourceDirectory).Msg("Results folder is gone, nothing to upload")
		return "", nil
	}

	now := u.now()
	expires := now.AddDate(0, 0, u.retention)
	namespace := u.Namespace(archive.Name, now)

	files, err := listFiles(archive.SourceDirectory)
	if err != nil {
		return "", errorutil.Wrap(errorutil.KindFileOperation, err,
			fmt.Sprintf("can't list test results %s", archive.SourceDirectory))
	}

	p := pool.New().
		WithErrors().
		WithFirstError().
		WithMaxGoroutines(u.concurrency).
		WithContext(ctx).
		WithCancelOnError()
	for _, rel := range files {
		rel := rel
		p.Go(func(ctx context.Context) error {
			loc := models.BlobLocation{Bucket: u.bucket, Key: namespace + "/html/" + rel}
			return u.upload(ctx, loc, filepath.Join(archive.SourceDirectory, filepath.FromSlash(rel)), expires)
		})
	}
	if err := p.Wait(); err != nil {
		return "", u.mapError(archive, err)
	}

	loc := models.BlobLocation{Bucket: u.bucket, Key: namespace + "/" + filepath.Base(archive.ArchivePath)}
	if err := u.upload(ctx, loc, archive.ArchivePath, expires); err != nil {
		return "", u.mapError(archive, err)
	}

	log.Info().
		Str("bucket", u.bucket).
		Str("namespace", namespace).
		Int("files", len(files)).
		Msg("Test result uploaded")
	return namespace, nil
}

func (u *Uploader) upload(ctx context.Context, loc models.BlobLocation, path string, expires time.Time) error {
	log := logger.WithComponent("uploader")
	log.Debug().
		Str("bucket", loc.Bucket).
		Str("key", loc.Key).
		Time("expires", expires).
		Msg("Uploading")
	return u.store.UploadFile(ctx, loc, path, expires)
}

func (u *Uploader) mapError(archive *models.ResultArchive, err error) error {
	if storage.IsNotFound(err) {
		return errorutil.Wrap(errorutil.KindTestResultNotUploaded, err,
			fmt.Sprintf("Test Result %s can't be uploaded to S3 bucket", archive.ArchivePath))
	}
	return errorutil.WrapError(err, "failed to upload test result %s", archive.Name)
}

// listFiles returns slash-separated paths of all regular files under dir.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	return files, err
}
