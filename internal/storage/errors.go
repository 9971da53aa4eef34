package storage

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

var (
	ErrObjectNotFound = errors.New("storage: object not found")
	ErrBucketNotFound = errors.New("storage: bucket not found")
	ErrAccessDenied   = errors.New("storage: access denied")
)

// Error describes a failed blob store call. Class is one of the sentinels above
// when the failure could be classified.
type Error struct {
	Op     string
	Bucket string
	Key    string
	Class  error
	Err    error
}

func (e *Error) Error() string {
	if e.Class != nil {
		return fmt.Sprintf("storage.%s %s/%s: %v: %v", e.Op, e.Bucket, e.Key, e.Class, e.Err)
	}
	return fmt.Sprintf("storage.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Class != nil {
		return []error{e.Class, e.Err}
	}
	return []error{e.Err}
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound) || errors.Is(err, ErrBucketNotFound)
}

func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

func wrapError(op, bucket, key string, err error) error {
	return &Error{Op: op, Bucket: bucket, Key: key, Class: classify(err), Err: err}
}

func classify(err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchKey), errors.As(err, &notFound):
		return ErrObjectNotFound
	case errors.As(err, &noSuchBucket):
		return ErrBucketNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrObjectNotFound
		case "NoSuchBucket":
			return ErrBucketNotFound
		case "Forbidden", "AccessDenied":
			return ErrAccessDenied
		}
	}
	return nil
}
