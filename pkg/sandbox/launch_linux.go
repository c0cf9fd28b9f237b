//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// gracePeriod is how long the outer process waits for the inner to exit on
// its own after forwarding a signal, before escalating to SIGKILL
// (spec.md §5, "short grace (~2 seconds)").
const gracePeriod = 2 * time.Second

// Launch implements spec.md §4.D's full contract. It builds and starts the
// re-exec'd inner process with a Cloneflags-equipped SysProcAttr (Stages U,
// N and F happen together as part of that one clone()), forwards signals to
// the inner's process group, waits for it, and returns the exit code the
// calling driver should use verbatim. rootfsDir is removed on every exit
// path, matching the ownership rule in spec.md §3.
func Launch(log *logrus.Entry, req Request) (int, error) {
	defer func() {
		if rmErr := os.RemoveAll(req.RootfsDir); rmErr != nil && log != nil {
			log.WithError(rmErr).Warn("nsi: failed to remove rootfs directory")
		}
	}()

	if len(req.Header.Runtime.Cmd) == 0 {
		return 0, nsierr.New(nsierr.ExecError, "launching container", fmt.Errorf("runtime.cmd is empty"))
	}

	if req.CgroupID == "" {
		req.CgroupID = "nsi-" + uuid.NewString()[:8]
	}

	statePath, err := writeStateFile(req.toState())
	if err != nil {
		return 0, err
	}
	defer os.Remove(statePath)

	cmd := reexecCommand(statePath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: unix.CLONE_NEWUSER |
			unix.CLONE_NEWPID |
			unix.CLONE_NEWNS |
			unix.CLONE_NEWUTS |
			unix.CLONE_NEWIPC |
			unix.CLONE_NEWCGROUP,
		UidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getuid(), Size: 1},
		},
		GidMappings: []syscall.SysProcIDMap{
			{ContainerID: 0, HostID: os.Getgid(), Size: 1},
		},
		// Leaving this false makes the Go runtime write "deny" to the
		// child's /proc/<pid>/setgroups before the gid map, matching the
		// ordering spec.md Stage U requires.
		GidMappingsEnableSetgroups: false,
		Setpgid:                    true,
	}

	if err := cmd.Start(); err != nil {
		return 0, nsierr.New(nsierr.NamespaceError, "starting sandbox inner process", err)
	}

	done := make(chan struct{})
	defer close(done)
	go forwardSignals(log, cmd, done)

	err = cmd.Wait()
	teardownCgroup(log, req.CgroupID, 5, func(attempt int) {
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	})
	return exitCodeOf(err), nil
}

// forwardSignals relays signals received by the outer process to the
// inner's process group, per spec.md §5's cancellation rule, escalating to
// SIGKILL after gracePeriod if the child has not exited. It runs until done
// is closed, which Launch does when it returns, after cmd.Wait and the cgroup
// teardown.
func forwardSignals(log *logrus.Entry, cmd *exec.Cmd, done <-chan struct{}) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	pgid := cmd.Process.Pid
	for {
		select {
		case sig := <-sigCh:
			s, ok := sig.(syscall.Signal)
			if !ok {
				continue
			}
			if killErr := syscall.Kill(-pgid, s); killErr != nil && log != nil {
				log.WithError(killErr).Warn("nsi: failed to forward signal to sandbox process group")
			}
			select {
			case <-time.After(gracePeriod):
				_ = syscall.Kill(-pgid, syscall.SIGKILL)
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

// exitCodeOf maps os/exec's Wait error into the exit code spec.md §6
// specifies: the child's own status, or 128+signo if it died from a signal.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return 128 + int(status.Signal())
	}
	return status.ExitStatus()
}
