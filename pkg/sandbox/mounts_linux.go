//go:build linux

package sandbox

import (
	"github.com/jesseduffield/nsi/pkg/nsierr"
	"golang.org/x/sys/unix"
)

// setHostname implements the hostname half of spec.md §4.D Stage N. It runs
// after the re-exec clone() has already placed this process in its own UTS
// namespace, so the change is invisible outside the container.
func setHostname(hostname string) error {
	if err := unix.Sethostname([]byte(hostname)); err != nil {
		return nsierr.New(nsierr.NamespaceError, "setting UTS hostname", err)
	}
	return nil
}

// mountVirtualFilesystems implements spec.md §4.D Stage M. All three mounts
// are required; any failure aborts (device-node population beyond the bare
// tmpfs is explicitly out of scope per spec.md §1).
func mountVirtualFilesystems() error {
	if err := unix.Mount("proc", "/proc", "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil {
		return nsierr.New(nsierr.MountError, "mounting /proc", err)
	}

	devFlags := uintptr(unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_STRICTATIME)
	if err := unix.Mount("tmpfs", "/dev", "tmpfs", devFlags, "mode=0755,size=65536k"); err != nil {
		return nsierr.New(nsierr.MountError, "mounting /dev", err)
	}

	sysFlags := uintptr(unix.MS_RDONLY | unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
	if err := unix.Mount("sysfs", "/sys", "sysfs", sysFlags, ""); err != nil {
		return nsierr.New(nsierr.MountError, "mounting /sys", err)
	}

	return nil
}
