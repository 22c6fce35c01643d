package toolexec

import "context"

// Invocation records one call made through a MockInvoker.
type Invocation struct {
	Tool    string
	Args    []string
	Workdir string
}

// MockInvoker is a test double that records every invocation instead of
// running anything. Tests can fail a specific tool, or install an OnInvoke
// hook to fabricate the output files a real tool would have produced.
type MockInvoker struct {
	Invocations []Invocation

	// FailTool names a tool whose invocation reports FailStatus and
	// FailStderr instead of success.
	FailTool   string
	FailStatus int
	FailStderr string

	// OnInvoke, when set, runs before the canned result is produced.
	OnInvoke func(inv Invocation) error

	// Versions reported to the provenance recorder.
	FSL    string
	MRtrix string
}

// Invoke records the call and returns the canned result.
func (m *MockInvoker) Invoke(ctx context.Context, tool string, args []string, workdir string) (Result, error) {
	inv := Invocation{Tool: tool, Args: args, Workdir: workdir}
	m.Invocations = append(m.Invocations, inv)

	if m.OnInvoke != nil {
		if err := m.OnInvoke(inv); err != nil {
			return Result{}, err
		}
	}
	if m.FailTool != "" && tool == m.FailTool {
		status := m.FailStatus
		if status == 0 {
			status = 1
		}
		return Result{ExitStatus: status, Stderr: m.FailStderr}, nil
	}
	return Result{}, nil
}

// Tools returns the tool names in invocation order.
func (m *MockInvoker) Tools() []string {
	tools := make([]string, 0, len(m.Invocations))
	for _, inv := range m.Invocations {
		tools = append(tools, inv.Tool)
	}
	return tools
}

// FSLVersion returns the canned FSL version.
func (m *MockInvoker) FSLVersion(ctx context.Context) string {
	if m.FSL == "" {
		return "unknown"
	}
	return m.FSL
}

// MRtrixVersion returns the canned MRtrix version.
func (m *MockInvoker) MRtrixVersion(ctx context.Context) string {
	if m.MRtrix == "" {
		return "unknown"
	}
	return m.MRtrix
}
