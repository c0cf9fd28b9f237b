package sandbox

import (
	"os"
	"os/exec"
)

// innerEntrypoint is the argv[0] value the re-exec'd child looks for to
// decide it should run runInner instead of the normal CLI driver. Adapted
// from go.podman.io/storage/pkg/reexec's Register/Init dispatch, trimmed to
// the single entrypoint this package needs.
const innerEntrypoint = "nsi-sandbox-inner"

// Init must be called at the very top of main(), before flag parsing or any
// other initialization. If the process was re-exec'd to run the sandbox
// inner stage, it runs that stage and exits; otherwise it returns false and
// the caller continues as the ordinary CLI.
func Init() bool {
	if len(os.Args) == 0 || os.Args[0] != innerEntrypoint {
		return false
	}
	os.Exit(runInner(os.Args[1:]))
	return true
}

// selfExePath resolves the path re-exec'd children should invoke: the
// running binary's own image via /proc/self/exe, same as
// go.podman.io/storage/pkg/reexec.Self on Linux.
func selfExePath() string {
	if p, err := os.Readlink("/proc/self/exe"); err == nil {
		return p
	}
	return os.Args[0]
}

// reexecCommand builds the *exec.Cmd that will become the inner process,
// targeting this binary via /proc/self/exe with the dispatch marker as
// argv[0], mirroring go.podman.io/storage/pkg/reexec.Command.
func reexecCommand(stateFilePath string) *exec.Cmd {
	cmd := exec.Command(selfExePath(), stateFilePath)
	cmd.Args[0] = innerEntrypoint
	return cmd
}
