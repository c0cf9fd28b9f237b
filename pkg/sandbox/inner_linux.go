//go:build linux

package sandbox

import (
	"os"

	"github.com/sirupsen/logrus"
)

// setupFailureExitCode is returned when the inner process fails before it
// manages to exec the target command (Stages C through E). Spec.md §6 only
// requires this be a non-zero, implementation-defined code; 125 follows the
// container-tooling convention of distinguishing launcher failure from the
// target command's own exit status.
const setupFailureExitCode = 125

// runInner is the registered re-exec entrypoint (see reexec.go). It runs
// inside the namespaces the outer process's clone() already created
// (Stages U, N and F are complete by the time this runs) and executes
// Stages C, R, M, W and E in order. On success it never returns: Stage E
// replaces this process image via execve.
func runInner(args []string) int {
	log := newInnerLogger()

	if len(args) != 1 {
		log.Error("nsi: sandbox inner process: expected exactly one state file argument")
		return setupFailureExitCode
	}

	st, err := readStateFile(args[0])
	if err != nil {
		log.WithError(err).Error("nsi: failed to read sandbox state")
		return setupFailureExitCode
	}

	hostname := truncateHostname(st.CgroupID)
	if err := setHostname(hostname); err != nil {
		log.WithError(err).Warn("nsi: failed to set UTS hostname")
	}

	installCgroup(log, st) // Stage C: all failures are warnings, never abort.

	if err := pivotToRootfs(st.RootfsDir); err != nil {
		log.WithError(err).Error("nsi: failed to pivot into rootfs")
		return setupFailureExitCode
	}

	if err := mountVirtualFilesystems(); err != nil {
		log.WithError(err).Error("nsi: failed to mount virtual filesystems")
		return setupFailureExitCode
	}

	if err := os.Chdir(st.WorkDir); err != nil {
		log.WithError(err).Errorf("nsi: failed to chdir to workdir %q", st.WorkDir)
		return setupFailureExitCode
	}

	env := buildEnv(st, hostname)
	if err := execCommand(st.Cmd, env); err != nil {
		log.WithError(err).Error("nsi: failed to exec target command")
		return setupFailureExitCode
	}

	// execCommand only returns on failure; reaching here is unreachable on
	// a successful exec.
	return setupFailureExitCode
}

// newInnerLogger builds a minimal stderr logger for the inner process. It
// does not go through pkg/log.NewLogger because the inner process has no
// AppConfig of its own — it is a bare re-exec, not the CLI entrypoint.
func newInnerLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{})
	return l.WithField("proc", "sandbox-inner")
}

func truncateHostname(cgroupID string) string {
	const maxHostnameLen = 63
	if len(cgroupID) <= maxHostnameLen {
		return cgroupID
	}
	return cgroupID[:maxHostnameLen]
}
