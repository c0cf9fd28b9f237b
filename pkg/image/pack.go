package image

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jesseduffield/nsi/pkg/nsierr"
)

// packTar walks srcDir and writes every entry to w, rooted at the archive's
// top level rather than nested under srcDir's own name, per spec.md §4.A. It
// returns the number of entries written so callers can detect an empty
// payload without relying on the tar writer's own trailer bytes, which are
// emitted unconditionally even when zero entries exist.
func packTar(w io.Writer, srcDir string) (int, error) {
	tw := tar.NewWriter(w)
	entries := 0

	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		entries++

		if info.Mode().IsRegular() {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			_, err = io.Copy(tw, f)
			closeErr := f.Close()
			if err != nil {
				return err
			}
			if closeErr != nil {
				return closeErr
			}
		}
		return nil
	})
	if walkErr != nil {
		return 0, nsierr.New(nsierr.IOError, fmt.Sprintf("packing %q", srcDir), walkErr)
	}

	if err := tw.Close(); err != nil {
		return 0, nsierr.New(nsierr.TarError, "closing tar writer", err)
	}
	return entries, nil
}
