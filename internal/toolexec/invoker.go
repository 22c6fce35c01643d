// Package toolexec launches the external FSL and MRtrix programs that do
// the actual image processing. The pipeline treats every tool as an opaque
// command: name in, arguments in, exit status and captured output back.
package toolexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fiberlab-data/tractopipe/internal/monitoring"
)

// Result holds the outcome of one external tool invocation.
type Result struct {
	ExitStatus int
	Stdout     string
	Stderr     string
}

// Invoker runs a named external tool with the given arguments in workdir.
// A non-zero exit status is reported through Result, not through the error
// return; the error is reserved for failures to launch the tool at all.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args []string, workdir string) (Result, error)
}

// VersionProber is implemented by invokers that can report the versions of
// the toolkits they drive. The pipeline records these in provenance.
type VersionProber interface {
	FSLVersion(ctx context.Context) string
	MRtrixVersion(ctx context.Context) string
}

// ShellInvoker runs tools through `sh -c`, sourcing the toolkit environment
// initialization scripts first so the tool binaries resolve. Arguments are
// joined verbatim, which lets a stage express a shell pipe between two
// cooperating tools as a single invocation.
type ShellInvoker struct {
	// FSLInit and MRtrixInit are the environment bootstrap scripts for the
	// two toolkits. Empty entries are skipped.
	FSLInit    string
	MRtrixInit string

	// DryRun prints each command instead of executing it.
	DryRun bool
}

// prologue builds the `source` preamble for the toolkit init scripts.
func (s *ShellInvoker) prologue() string {
	var parts []string
	if s.FSLInit != "" {
		parts = append(parts, fmt.Sprintf(". %s", s.FSLInit))
	}
	if s.MRtrixInit != "" {
		parts = append(parts, fmt.Sprintf(". %s", s.MRtrixInit))
	}
	return strings.Join(parts, "; ")
}

// Invoke runs the tool and captures stdout and stderr separately.
func (s *ShellInvoker) Invoke(ctx context.Context, tool string, args []string, workdir string) (Result, error) {
	command := strings.TrimSpace(tool + " " + strings.Join(args, " "))
	if p := s.prologue(); p != "" {
		command = p + "; " + command
	}

	if s.DryRun {
		fmt.Printf("[DRY-RUN] Would execute: %s\n", command)
		return Result{}, nil
	}

	monitoring.Logf("executing: %s", command)

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workdir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitStatus = exitErr.ExitCode()
			return res, nil
		}
		return res, fmt.Errorf("failed to launch %s: %w", tool, err)
	}
	return res, nil
}

// FSLVersion reads the version string FSL installs alongside itself. It
// returns "unknown" rather than failing: a missing version must not abort
// a run, only degrade its provenance.
func (s *ShellInvoker) FSLVersion(ctx context.Context) string {
	res, err := s.Invoke(ctx, "cat", []string{"$FSLDIR/etc/fslversion"}, "")
	if err != nil || res.ExitStatus != 0 {
		monitoring.Logf("FSL version probe failed: %v (exit %d)", err, res.ExitStatus)
		return "unknown"
	}
	v := strings.TrimSpace(res.Stdout)
	if v == "" {
		return "unknown"
	}
	return v
}

// MRtrixVersion parses `mrinfo -version` output, whose first line has the
// form "== mrinfo 3.0.4 ==".
func (s *ShellInvoker) MRtrixVersion(ctx context.Context) string {
	res, err := s.Invoke(ctx, "mrinfo", []string{"-version"}, "")
	if err != nil || res.ExitStatus != 0 {
		monitoring.Logf("MRtrix version probe failed: %v (exit %d)", err, res.ExitStatus)
		return "unknown"
	}
	lines := strings.SplitN(res.Stdout, "\n", 2)
	fields := strings.Fields(strings.Trim(lines[0], "= "))
	if len(fields) < 2 {
		return "unknown"
	}
	return fields[1]
}
