package models

import (
	"path"
	"strings"
)

const UnknownApp = "unknown"

// Task is one queued request to run a named test from a remote package.
type Task struct {
	Test          string   `json:"test"`
	App           string   `json:"app,omitempty"`
	Location      string   `json:"location"`
	Notifications []string `json:"notifications,omitempty"`
}

// AppName returns the application the task belongs to, or "unknown".
func (t *Task) AppName() string {
	if t.App == "" {
		return UnknownApp
	}
	return t.App
}

// SourceSafeName derives the archive/namespace name from the package location:
// the last path segment with its first '.' replaced by '-'.
// "s3://bucket/tests/connectionTest.zip" becomes "connectionTest-zip".
func (t *Task) SourceSafeName() string {
	return SafeName(path.Base(t.Location))
}

func SafeName(name string) string {
	return strings.Replace(name, ".", "-", 1)
}

// WantsNotifications reports whether the task lists any notification code.
func (t *Task) WantsNotifications() bool {
	return len(t.Notifications) > 0
}
