package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/core/ports"
	"github.com/theblitlabs/zemog-worker/internal/storage"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// DefaultRoot is where packages are cached and staged.
func DefaultRoot() string {
	return filepath.Join(os.TempDir(), "zemog")
}

// Stager materialises test packages into private staging directories. Package
// archives are cached under the root directory and reused while the remote
// object has not changed. The cache is shared between runs without locking.
type Stager struct {
	store ports.BlobStore
	root  string
	now   func() time.Time
}

func NewStager(store ports.BlobStore, root string) *Stager {
	if root == "" {
		root = DefaultRoot()
	}
	return &Stager{store: store, root: root, now: time.Now}
}

// RetrieveTestFiles downloads (or reuses) the package at location and unpacks
// it into a fresh staging directory, whose path is returned.
func (s *Stager) RetrieveTestFiles(ctx context.Context, location string) (dir string, err error) {
	log := logger.WithComponent("stager")

	if location == "" {
		return "", errors.New("package location must be specified")
	}
	loc, err := models.ParseBlobLocation(location)
	if err != nil {
		return "", err
	}

	pkgName := path.Base(loc.Key)
	cachePath := filepath.Join(s.root, pkgName)

	if err := ensureDir(s.root); err != nil {
		return "", err
	}
	// Runs share the root, so the staging name gets a random suffix on top of
	// the timestamp.
	prefix := models.SafeName(pkgName) + "-" + strconv.FormatInt(s.now().UnixMilli(), 10) + "-"
	stagingDir, err := os.MkdirTemp(s.root, prefix)
	if err != nil {
		return "", errorutil.Wrap(errorutil.KindFileOperation, err,
			fmt.Sprintf("Can't create temporary folder in %s", s.root))
	}
	defer func() {
		if err != nil {
			os.RemoveAll(stagingDir)
		}
	}()

	log.Debug().Str("location", location).Msg("Getting info about test package")
	info, err := s.store.Stat(ctx, loc)
	if err != nil {
		return "", s.mapStoreError(location, err)
	}

	if fresh(cachePath, info.LastModified) {
		log.Debug().Str("cache", cachePath).Msg("Test package hasn't changed since the last check, using the local copy")
	} else {
		log.Debug().Str("location", location).Msg("Retrieving test package")
		if err := s.download(ctx, loc, cachePath); err != nil {
			return "", s.mapStoreError(location, err)
		}
	}

	log.Debug().Str("archive", cachePath).Str("dir", stagingDir).Msg("Unarchiving test package")
	if err := Extract(cachePath, stagingDir); err != nil {
		return "", errorutil.Wrap(errorutil.KindFileOperation, err, fmt.Sprintf("can't unpack %s", cachePath))
	}

	return stagingDir, nil
}

// RemoveTestFiles deletes a staging directory. Removing a directory that no
// longer exists is not an error.
func (s *Stager) RemoveTestFiles(dir string) error {
	log := logger.WithComponent("stager")
	log.Debug().Str("dir", dir).Msg("Clearing tests folder")

	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return errorutil.Wrap(errorutil.KindFileOperation, err, fmt.Sprintf("can't remove %s", dir))
	}
	return nil
}

// download writes the object to a sibling temp file and renames it over the
// cache entry, so a concurrent run never reads a half-written archive.
func (s *Stager) download(ctx context.Context, loc models.BlobLocation, cachePath string) error {
	tmp, err := os.CreateTemp(filepath.Dir(cachePath), filepath.Base(cachePath)+".*.part")
	if err != nil {
		return errorutil.Wrap(errorutil.KindFileOperation, err, "can't create package cache file")
	}
	defer os.Remove(tmp.Name())

	if err := s.store.Download(ctx, loc, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errorutil.Wrap(errorutil.KindFileOperation, err, "can't write package cache file")
	}
	if err := os.Rename(tmp.Name(), cachePath); err != nil {
		return errorutil.Wrap(errorutil.KindFileOperation, err, "can't replace package cache file")
	}
	return nil
}

func (s *Stager) mapStoreError(location string, err error) error {
	switch {
	case errorutil.KindOf(err) == errorutil.KindFileOperation:
		return err
	case storage.IsAccessDenied(err):
		return errorutil.Wrap(errorutil.KindTestNotFound, err,
			fmt.Sprintf("Bucket not found or you have no access: %s", location))
	case storage.IsNotFound(err):
		return errorutil.Wrap(errorutil.KindTestNotFound, err,
			fmt.Sprintf("Test package not found in S3 bucket %s", location))
	default:
		return errorutil.WrapError(err, "failed to retrieve test package %s", location)
	}
}

// fresh reports whether the cached archive was written no earlier than the
// remote object's last modification.
func fresh(cachePath string, remoteModified time.Time) bool {
	st, err := os.Stat(cachePath)
	if err != nil || st.IsDir() {
		return false
	}
	return !st.ModTime().Before(remoteModified)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errorutil.Wrap(errorutil.KindFileOperation, err, fmt.Sprintf("Can't create temporary folder %s", dir))
	}
	return nil
}
