// Package sandbox implements component D from spec.md §4.D: the launcher
// that takes an extracted rootfs and a runtime header and executes the
// image's command inside an isolated namespace domain.
//
// The launcher is split across a re-exec boundary rather than an in-process
// fork, following the pattern used throughout the container ecosystem (and
// grounded here on go.podman.io/storage/pkg/reexec and
// go.podman.io/storage/pkg/unshare from the teacher's vendor tree): the Go
// runtime cannot safely fork() a multi-threaded process, so the "fork to
// become PID 1" of spec.md Stage F is realized by starting a second copy of
// this same binary via /proc/self/exe with a Cloneflags-equipped
// SysProcAttr. That single clone() call creates the child already inside
// the new user, PID, mount, UTS, IPC and cgroup namespaces (Stages U and N),
// and because it is a genuinely new process it is PID 1 in its namespace
// without any further fork (Stage F falls out for free). Package init must
// be completed by calling Init at the very top of main before any other
// initialization, mirroring reexec.Init's contract.
package sandbox
