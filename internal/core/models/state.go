package models

// RunState is a pipeline stage reached by one worker run.
type RunState string

const (
	StateIdle            RunState = "idle"
	StateTaskReceived    RunState = "task_received"
	StateStaged          RunState = "staged"
	StateExecuted        RunState = "executed"
	StateResultDiscarded RunState = "result_discarded"
	StateResultArchived  RunState = "result_archived"
	StateResultUploaded  RunState = "result_uploaded"
	StateNotified        RunState = "notified"
	StateDone            RunState = "done"
	StateErrored         RunState = "errored"
)

// Outcome summarises one pass through the pipeline.
type Outcome struct {
	RunID    string
	State    RunState
	Task     *Task
	ExitCode int
	Locator  string
}
