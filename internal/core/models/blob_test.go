package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlobLocation(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		want   BlobLocation
		hasErr bool
	}{
		{"s3 scheme", "s3://ag-online-zemog/tests/budget-direct-local-test.zip", BlobLocation{"ag-online-zemog", "tests/budget-direct-local-test.zip"}, false},
		{"bare scheme", "//bucket/pkg.zip", BlobLocation{"bucket", "pkg.zip"}, false},
		{"no scheme", "bucket/pkg.zip", BlobLocation{}, true},
		{"bucket only", "s3://bucket", BlobLocation{}, true},
		{"empty key", "s3://bucket/", BlobLocation{}, true},
		{"empty", "", BlobLocation{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBlobLocation(tt.uri)
			if tt.hasErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBlobLocationString(t *testing.T) {
	assert.Equal(t, "s3://bucket/a/b.zip", BlobLocation{Bucket: "bucket", Key: "a/b.zip"}.String())
}
