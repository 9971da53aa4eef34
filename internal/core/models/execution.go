package models

// ExecutionResult is what the runner produced for one test.
type ExecutionResult struct {
	ExitCode         int
	Stdout           string
	Stderr           string
	ResultsDirectory string
}

func (r *ExecutionResult) Succeeded() bool {
	return r.ExitCode == 0
}

// ResultArchive is the zipped results of a failed run, waiting to be uploaded.
type ResultArchive struct {
	Name            string
	SourceDirectory string
	ArchivePath     string
}
