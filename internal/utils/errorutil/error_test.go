package errorutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Newf(KindTestNotFound, "There is no info about %q in zemog.json", "smoke")
	wrapped := fmt.Errorf("execute: %w", err)

	assert.True(t, errors.Is(wrapped, ErrTestNotFound))
	assert.False(t, errors.Is(wrapped, ErrEmptyQueue))
	assert.Equal(t, KindTestNotFound, KindOf(wrapped))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("permission denied")
	err := Wrap(KindFileOperation, cause, "can't create temporary folder /tmp/zemog")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrFileOperation)
	assert.Equal(t, "can't create temporary folder /tmp/zemog: permission denied", err.Error())
}

func TestDetailOf(t *testing.T) {
	err := New(KindJSONParse, "failed to parse queue message").WithDetail("{oops")
	assert.Equal(t, "{oops", DetailOf(fmt.Errorf("queue: %w", err)))
	assert.Empty(t, DetailOf(errors.New("plain")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "EmptyQueueError", KindEmptyQueue.String())
	assert.Equal(t, "InternalTestExecutionError", KindInternalTestExecution.String())
	assert.Equal(t, "Error", KindUnknown.String())
	assert.Equal(t, "EmptyQueueError", ErrEmptyQueue.Error())
}

func TestWrapError(t *testing.T) {
	assert.NoError(t, WrapError(nil, "noop"))
	err := WrapError(errors.New("boom"), "upload %s", "report.zip")
	assert.EqualError(t, err, "upload report.zip: boom")
}

func TestHandleError(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	HandleError(log, nil, "ignored")
	assert.Empty(t, buf.String())

	err := New(KindInternalTestExecution, "runner failed internally").WithDetail("RejectedExecutionException")
	HandleError(log, fmt.Errorf("execute: %w", err), "Test run failed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "InternalTestExecutionError", entry["kind"])
	assert.Equal(t, "RejectedExecutionException", entry["detail"])
	assert.Equal(t, "Test run failed", entry["message"])
}
