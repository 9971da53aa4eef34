package results

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

type Archiver struct {
	tmpDir string
}

func NewArchiver(tmpDir string) *Archiver {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &Archiver{tmpDir: tmpDir}
}

// ArchiveTestResult zips every file under resultsDir into <tmp>/<name>.zip.
// The archive is closed and flushed before it is returned.
func (a *Archiver) ArchiveTestResult(name, resultsDir string) (*models.ResultArchive, error) {
	log := logger.WithComponent("archiver")

	if name == "" || resultsDir == "" {
		return nil, fmt.Errorf("archive name and results directory must be specified")
	}

	archivePath := filepath.Join(a.tmpDir, name+".zip")
	log.Debug().Str("src", resultsDir).Str("archive", archivePath).Msg("Archiving tests results folder")

	written, err := writeZip(archivePath, resultsDir)
	if err != nil {
		os.Remove(archivePath)
		return nil, errorutil.Wrap(errorutil.KindFileOperation, err,
			fmt.Sprintf("can't archive test results %s", resultsDir))
	}

	log.Debug().Int64("bytes", written).Msg("Archive has been finalised")
	return &models.ResultArchive{
		Name:            name,
		SourceDirectory: resultsDir,
		ArchivePath:     archivePath,
	}, nil
}

// RemoveTestResult deletes a results directory or archive file. Missing paths
// are ignored.
func (a *Archiver) RemoveTestResult(path string) error {
	log := logger.WithComponent("archiver")
	log.Debug().Str("path", path).Msg("Clearing test results")

	if path == "" {
		return nil
	}
	if err := os.RemoveAll(path); err != nil {
		return errorutil.Wrap(errorutil.KindFileOperation, err, fmt.Sprintf("can't remove %s", path))
	}
	return nil
}

func writeZip(archivePath, srcDir string) (int64, error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(out)
	files, walkErr := listFiles(srcDir)
	for _, rel := range files {
		if walkErr != nil {
			break
		}
		walkErr = addFile(zw, filepath.Join(srcDir, filepath.FromSlash(rel)), rel)
	}

	if err := zw.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if err := out.Close(); err != nil && walkErr == nil {
		walkErr = err
	}
	if walkErr != nil {
		return 0, walkErr
	}

	st, err := os.Stat(archivePath)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func addFile(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, f)
	return err
}
