package sandbox

import (
	"context"
	"io"
)

// LaunchSpec describes one runner invocation.
type LaunchSpec struct {
	Binary string
	Args   []string
	// Dir is the working directory of the runner.
	Dir string
	// Mounts are host paths the runner must be able to read or write. Process
	// launches ignore them; container launches bind them at the same path.
	Mounts []string
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher starts the runner and waits for it to exit. A non-zero exit code is
// not an error; errors mean the runner could not be started or waited on.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (int, error)
}
