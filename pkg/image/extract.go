package image

import (
	"archive/tar"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jesseduffield/nsi/pkg/nsierr"
)

// Extract reads tar entries from r and writes them under destDir, enforcing
// the tar-safety rules from spec.md §4.A: no absolute paths, no entries that
// resolve outside destDir, no symlinks whose target escapes destDir. It
// returns the lowercase hex SHA-256 of every byte read from r, so the
// caller can compare it against the header's declared hash (spec.md's
// hash-verification policy, §4.A "Hash verification").
//
// Any error aborts extraction; the caller is responsible for removing
// destDir (spec.md §4.A "any error mid-stream aborts extraction").
func Extract(r io.Reader, destDir string) (string, error) {
	hasher := sha256.New()
	tr := tar.NewReader(io.TeeReader(r, hasher))

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nsierr.New(nsierr.TarError, "reading tar entry", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return "", nsierr.New(nsierr.TarError, fmt.Sprintf("entry %q", hdr.Name), err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode&0o7777)); err != nil {
				return "", nsierr.New(nsierr.TarError, fmt.Sprintf("creating directory %q", hdr.Name), err)
			}
		case tar.TypeReg:
			if err := extractRegular(tr, target, hdr); err != nil {
				return "", err
			}
		case tar.TypeSymlink:
			if err := checkSymlinkTarget(destDir, target, hdr.Linkname); err != nil {
				return "", nsierr.New(nsierr.TarError, fmt.Sprintf("symlink %q", hdr.Name), err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return "", nsierr.New(nsierr.TarError, fmt.Sprintf("creating symlink %q", hdr.Name), err)
			}
		case tar.TypeLink:
			linkTarget, err := safeJoin(destDir, hdr.Linkname)
			if err != nil {
				return "", nsierr.New(nsierr.TarError, fmt.Sprintf("hardlink %q", hdr.Name), err)
			}
			if err := os.Link(linkTarget, target); err != nil {
				return "", nsierr.New(nsierr.TarError, fmt.Sprintf("creating hardlink %q", hdr.Name), err)
			}
		default:
			// Device nodes, fifos, and anything else are silently skipped;
			// spec.md §1 scopes device-node population out entirely.
		}
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func extractRegular(tr *tar.Reader, target string, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nsierr.New(nsierr.TarError, fmt.Sprintf("creating parent of %q", hdr.Name), err)
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode&0o7777))
	if err != nil {
		return nsierr.New(nsierr.TarError, fmt.Sprintf("creating file %q", hdr.Name), err)
	}
	_, copyErr := io.Copy(f, tr)
	closeErr := f.Close()
	if copyErr != nil {
		return nsierr.New(nsierr.TarError, fmt.Sprintf("writing file %q", hdr.Name), copyErr)
	}
	if closeErr != nil {
		return nsierr.New(nsierr.TarError, fmt.Sprintf("closing file %q", hdr.Name), closeErr)
	}
	return nil
}

// safeJoin resolves name against destDir and rejects absolute paths and any
// resolved path that escapes destDir, per spec.md §8 property 7.
func safeJoin(destDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("absolute path %q not allowed", name)
	}
	cleaned := filepath.Clean(filepath.Join(destDir, name))
	destClean := filepath.Clean(destDir)
	if cleaned != destClean && !strings.HasPrefix(cleaned, destClean+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes destination", name)
	}
	return cleaned, nil
}

// checkSymlinkTarget rejects a symlink whose target would resolve outside
// destDir, whether the target is absolute or relative.
func checkSymlinkTarget(destDir, linkPath, linkTarget string) error {
	if filepath.IsAbs(linkTarget) {
		return fmt.Errorf("absolute symlink target %q not allowed", linkTarget)
	}
	resolved := filepath.Clean(filepath.Join(filepath.Dir(linkPath), linkTarget))
	destClean := filepath.Clean(destDir)
	if resolved != destClean && !strings.HasPrefix(resolved, destClean+string(filepath.Separator)) {
		return fmt.Errorf("symlink target %q escapes destination", linkTarget)
	}
	return nil
}
