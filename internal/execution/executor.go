package execution

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/internal/execution/sandbox"
	"github.com/theblitlabs/zemog-worker/internal/utils/errorutil"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// InternalFaultSignatures mark runner crashes that say nothing about the test
// under execution. A failed run whose stdout contains one is reported as an
// internal execution error instead of a test failure.
var InternalFaultSignatures = []string{
	"java.util.concurrent.RejectedExecutionException",
}

type Executor struct {
	launcher     sandbox.Launcher
	binary       string
	artifactPath string
	globalParams []string
	timeout      time.Duration
	tmpDir       string

	manifest   Manifest
	stagingDir string
}

func NewExecutor(cfg config.RunnerConfig, launcher sandbox.Launcher) (*Executor, error) {
	if cfg.IridiumPath == "" {
		return nil, errorutil.New(errorutil.KindConfigurationParse, "runner.iridium_path must be specified")
	}
	artifact, err := filepath.Abs(cfg.IridiumPath)
	if err != nil {
		return nil, errorutil.Wrap(errorutil.KindConfigurationParse, err, "can't resolve runner.iridium_path")
	}

	binary := cfg.Binary
	if binary == "" {
		binary = "java"
	}

	return &Executor{
		launcher:     launcher,
		binary:       binary,
		artifactPath: artifact,
		globalParams: append([]string(nil), cfg.LaunchParameters...),
		timeout:      cfg.ExecutionTimeout,
		tmpDir:       os.TempDir(),
	}, nil
}

// Open loads the manifest of a staged package.
func (e *Executor) Open(path string) error {
	manifest, err := LoadManifest(path)
	if err != nil {
		return err
	}
	e.manifest = manifest

	e.stagingDir = path
	if st, err := os.Stat(path); err == nil && !st.IsDir() {
		e.stagingDir = filepath.Dir(path)
	}
	return nil
}

// Args builds the runner argv for a test: per-test parameters, then the global
// launch parameters, then -jar <artifact>.
func (e *Executor) Args(testName string) ([]string, error) {
	def, ok := e.manifest[testName]
	if !ok {
		return nil, errorutil.Newf(errorutil.KindTestNotFound, "There is no info about %q in %s", testName, ManifestFile)
	}

	args := make([]string, 0, len(def.LaunchParameters)+len(e.globalParams)+2)
	args = append(args, def.LaunchParameters...)
	args = append(args, e.globalParams...)
	args = append(args, "-jar", e.artifactPath)
	return args, nil
}

// Execute runs a test and waits for the runner to exit. A non-zero exit code
// is returned in the result; only internal runner faults, timeouts and launch
// failures are errors. On error the results directory is removed.
func (e *Executor) Execute(ctx context.Context, testName string) (*models.ExecutionResult, error) {
	log := logger.WithComponent("executor")

	if testName == "" {
		return nil, errors.New("test name must be specified")
	}
	args, err := e.Args(testName)
	if err != nil {
		return nil, err
	}

	resultsDir, err := os.MkdirTemp(e.tmpDir, testName+"-")
	if err != nil {
		return nil, errorutil.Wrap(errorutil.KindFileOperation, err, "Can't create temporary results folder")
	}

	log.Info().Strs("params", args).Msg("Running Iridium")
	log.Debug().Str("results_dir", resultsDir).Msg("Temporary results folder")

	runCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	stdout := newStreamLog(log, zerolog.DebugLevel)
	stderr := newStreamLog(log, zerolog.WarnLevel)

	code, err := e.launcher.Launch(runCtx, sandbox.LaunchSpec{
		Binary: e.binary,
		Args:   args,
		Dir:    resultsDir,
		Mounts: e.mounts(resultsDir),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		os.RemoveAll(resultsDir)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errorutil.Newf(errorutil.KindInternalTestExecution,
				"test %q exceeded execution timeout of %s", testName, e.timeout).WithDetail(stdout.String())
		}
		return nil, errorutil.Wrap(errorutil.KindInternalTestExecution, err,
			fmt.Sprintf("failed to run test %q", testName)).WithDetail(stdout.String())
	}

	result := &models.ExecutionResult{
		ExitCode:         code,
		Stdout:           stdout.String(),
		Stderr:           stderr.String(),
		ResultsDirectory: resultsDir,
	}

	if code != 0 {
		if sig, ok := internalFault(result.Stdout); ok {
			os.RemoveAll(resultsDir)
			return nil, errorutil.Newf(errorutil.KindInternalTestExecution,
				"runner failed internally with %s", sig).WithDetail(result.Stdout)
		}
	}

	log.Info().Int("exit_code", code).Str("test_name", testName).Msg("Iridium finished")
	return result, nil
}

func (e *Executor) mounts(resultsDir string) []string {
	mounts := []string{resultsDir, filepath.Dir(e.artifactPath)}
	if e.stagingDir != "" {
		if abs, err := filepath.Abs(e.stagingDir); err == nil {
			mounts = append(mounts, abs)
		}
	}
	return mounts
}

func internalFault(stdout string) (string, bool) {
	for _, sig := range InternalFaultSignatures {
		if strings.Contains(stdout, sig) {
			return sig, true
		}
	}
	return "", false
}
