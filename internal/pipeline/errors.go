package pipeline

import "fmt"

// StageExecutionError reports a failed external tool invocation. The
// remaining plan is abandoned; artifacts produced by earlier stages stay on
// disk for post-mortem inspection.
type StageExecutionError struct {
	StageID    string
	Tool       string
	ExitStatus int
	Output     string
}

func (e *StageExecutionError) Error() string {
	return fmt.Sprintf("stage %s failed: %s exited with status %d: %s",
		e.StageID, e.Tool, e.ExitStatus, e.Output)
}
