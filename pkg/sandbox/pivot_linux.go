//go:build linux

package sandbox

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/jesseduffield/nsi/pkg/nsierr"
	"golang.org/x/sys/unix"
)

const oldRootDirName = ".nsi-old-root"

// pivotToRootfs implements spec.md §4.D Stage R in the strict order the
// spec requires, grounded on buildah/chroot/run_linux.go's setupRootfsPivot:
// mark the whole mount tree private, bind-mount rootfsDir onto itself so
// pivot_root sees a distinct mount point, pivot, then lazily detach the old
// root. If pivot_root itself fails with EINVAL — observed on some overlay
// and restricted-namespace hosts — it falls back to a plain chroot, which
// spec.md §9 allows as a non-recommended legacy path.
func pivotToRootfs(rootfsDir string) error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return nsierr.New(nsierr.PivotError, "marking mount tree private", err)
	}

	if err := unix.Mount(rootfsDir, rootfsDir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return nsierr.New(nsierr.PivotError, fmt.Sprintf("bind-mounting %q onto itself", rootfsDir), err)
	}

	oldRootDir := filepath.Join(rootfsDir, oldRootDirName)
	if err := os.MkdirAll(oldRootDir, 0o700); err != nil {
		return nsierr.New(nsierr.PivotError, "creating old-root receiving directory", err)
	}

	if err := unix.PivotRoot(rootfsDir, oldRootDir); err != nil {
		if errors.Is(err, syscall.EINVAL) {
			return chrootFallback(rootfsDir)
		}
		return nsierr.New(nsierr.PivotError, "pivot_root", err)
	}

	if err := os.Chdir("/"); err != nil {
		return nsierr.New(nsierr.PivotError, "chdir to new root", err)
	}

	oldRootUnderNewRoot := "/" + oldRootDirName
	if err := unix.Unmount(oldRootUnderNewRoot, unix.MNT_DETACH); err != nil {
		return nsierr.New(nsierr.PivotError, "lazily unmounting old root", err)
	}
	if err := os.RemoveAll(oldRootUnderNewRoot); err != nil {
		return nsierr.New(nsierr.PivotError, "removing old-root mount point", err)
	}

	return nil
}

// chrootFallback implements the legacy path spec.md §9 allows when
// pivot_root is unavailable. It does not remove the old root from the
// mount namespace — an accepted escape vector the spec documents as the
// reason pivot is preferred.
func chrootFallback(rootfsDir string) error {
	if err := unix.Chroot(rootfsDir); err != nil {
		return nsierr.New(nsierr.PivotError, fmt.Sprintf("chroot fallback into %q", rootfsDir), err)
	}
	if err := os.Chdir("/"); err != nil {
		return nsierr.New(nsierr.PivotError, "chdir after chroot fallback", err)
	}
	return nil
}
