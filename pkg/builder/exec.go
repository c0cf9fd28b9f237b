package builder

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/sirupsen/logrus"
)

// commandRunner runs a single build step inside dir, streaming its output
// to stdout/stderr, generalized from the teacher's OSCommand in
// pkg/commands/os.go — the same "construct *exec.Cmd, stream output, check
// exit status" shape, minus the TUI-specific pty attachment.
type commandRunner struct {
	Log    *logrus.Entry
	Stdout io.Writer
	Stderr io.Writer
}

func newCommandRunner(log *logrus.Entry) *commandRunner {
	return &commandRunner{Log: log, Stdout: os.Stdout, Stderr: os.Stderr}
}

// run executes shellCmd with dir as its working directory, inheriting the
// caller's environment (spec.md §4.B step 4), and returns a
// BuildCommandError if the command exits non-zero.
func (r *commandRunner) run(dir, shellCmd string) error {
	cmd := exec.Command("/bin/sh", "-c", shellCmd)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if r.Log != nil {
		r.Log.WithField("cmd", shellCmd).Debug("running build step")
	}

	if err := cmd.Run(); err != nil {
		return nsierr.New(nsierr.BuildCommandError, fmt.Sprintf("running %q", shellCmd), err)
	}
	return nil
}
