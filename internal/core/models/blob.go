package models

import (
	"fmt"
	"strings"
	"time"
)

// BlobLocation addresses one object in the blob store.
type BlobLocation struct {
	Bucket string
	Key    string
}

// ParseBlobLocation accepts "s3://bucket/key" or the scheme-less "//bucket/key".
func ParseBlobLocation(uri string) (BlobLocation, error) {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	} else if strings.HasPrefix(rest, "//") {
		rest = rest[2:]
	} else {
		return BlobLocation{}, fmt.Errorf("invalid blob location %q: expected scheme://bucket/key", uri)
	}

	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return BlobLocation{}, fmt.Errorf("invalid blob location %q: missing bucket or key", uri)
	}
	return BlobLocation{Bucket: bucket, Key: key}, nil
}

func (l BlobLocation) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

type BlobInfo struct {
	LastModified time.Time
	Size         int64
}

// MetricContext identifies where a metric came from. It is resolved once
// before the pipeline starts and passed into every emission.
type MetricContext struct {
	InstanceID string
	AppName    string
}
