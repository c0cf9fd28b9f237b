package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/sirupsen/logrus"
)

// copySelected copies entries from srcDir into dstDir. With an empty include
// list it copies the whole tree; otherwise it copies each include entry, taken
// as a path relative to srcDir, whole if it exists (an entry that names no
// existing path is warned about and skipped; include entries are not
// prefix-matched against other names). Any path that starts with an exclude
// prefix is dropped. Exclude matching is plain prefix matching on the path
// relative to srcDir — no globbing, per spec.md §9's open-question resolution.
func copySelected(log *logrus.Entry, srcDir, dstDir string, include, exclude []string) error {
	if len(include) == 0 {
		return copyTree(srcDir, dstDir, "", exclude)
	}

	for _, pattern := range include {
		srcPath := filepath.Join(srcDir, pattern)
		if _, err := os.Stat(srcPath); err != nil {
			if log != nil {
				log.Warnf("nsi: include pattern %q matched nothing", pattern)
			}
			continue
		}
		if matchesAnyPrefix(pattern, exclude) {
			continue
		}
		if err := copyPath(srcDir, dstDir, pattern, exclude); err != nil {
			return err
		}
	}

	return nil
}

func copyTree(srcDir, dstDir, prefix string, exclude []string) error {
	dir := filepath.Join(srcDir, prefix)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("reading %q", dir), err)
	}
	for _, entry := range entries {
		rel := filepath.Join(prefix, entry.Name())
		if matchesAnyPrefix(rel, exclude) {
			continue
		}
		if err := copyPath(srcDir, dstDir, rel, exclude); err != nil {
			return err
		}
	}
	return nil
}

func copyPath(srcDir, dstDir, rel string, exclude []string) error {
	srcPath := filepath.Join(srcDir, rel)
	dstPath := filepath.Join(dstDir, rel)

	info, err := os.Lstat(srcPath)
	if err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("stat %q", srcPath), err)
	}

	if info.IsDir() {
		if err := os.MkdirAll(dstPath, info.Mode().Perm()); err != nil {
			return nsierr.New(nsierr.IOError, fmt.Sprintf("creating directory %q", dstPath), err)
		}
		return copyTree(srcDir, dstDir, rel, exclude)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(srcPath)
		if err != nil {
			return nsierr.New(nsierr.IOError, fmt.Sprintf("reading symlink %q", srcPath), err)
		}
		if err := os.Symlink(target, dstPath); err != nil {
			return nsierr.New(nsierr.IOError, fmt.Sprintf("creating symlink %q", dstPath), err)
		}
		return nil
	}

	return copyFile(srcPath, dstPath, info.Mode().Perm())
}

func copyFile(srcPath, dstPath string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("creating parent of %q", dstPath), err)
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("opening %q", srcPath), err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("creating %q", dstPath), err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("copying to %q", dstPath), copyErr)
	}
	if closeErr != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("closing %q", dstPath), closeErr)
	}
	return nil
}

func matchesAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
