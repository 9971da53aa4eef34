package ports

import (
	"context"
	"io"
	"time"

	"github.com/theblitlabs/zemog-worker/internal/core/models"
)

type BlobStore interface {
	Stat(ctx context.Context, loc models.BlobLocation) (*models.BlobInfo, error)
	Download(ctx context.Context, loc models.BlobLocation, w io.Writer) error
	UploadFile(ctx context.Context, loc models.BlobLocation, path string, expires time.Time) error
}
