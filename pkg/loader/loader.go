// Package loader implements component C from spec.md §4.C: open an image,
// extract its payload into a fresh rootfs directory, and report (but don't
// necessarily fail on) a hash mismatch.
package loader

import (
	"fmt"
	"os"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/jesseduffield/nsi/pkg/image"
	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/sirupsen/logrus"
)

// Options configures how Load treats a hash mismatch. The zero value keeps
// spec.md's default policy: warn and still run the image (§4.A "Hash
// verification", §9 "Open question — integrity policy").
type Options struct {
	// Strict promotes a hash mismatch from a warning to a hard
	// IntegrityError, per the strict-mode note in spec.md §9.
	Strict bool
}

// Result is what Load hands back to the sandbox launcher.
type Result struct {
	Header    config.Header
	RootfsDir string
}

// Load opens path, creates a fresh, empty, mode-0700 rootfs directory, and
// extracts the image's payload into it. On any failure the partial rootfs
// directory is removed before the error is returned, per spec.md §4.C.
func Load(log *logrus.Entry, path string, opts Options) (*Result, error) {
	header, payload, closePayload, err := image.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closePayload(); cerr != nil && log != nil {
			log.WithError(cerr).Warn("closing image payload reader")
		}
	}()

	rootfsDir, err := os.MkdirTemp("", "nsi-rootfs-*")
	if err != nil {
		return nil, nsierr.New(nsierr.IOError, "creating rootfs directory", err)
	}
	if err := os.Chmod(rootfsDir, 0o700); err != nil {
		_ = os.RemoveAll(rootfsDir)
		return nil, nsierr.New(nsierr.IOError, "setting rootfs directory mode", err)
	}

	sum, err := image.Extract(payload, rootfsDir)
	if err != nil {
		_ = os.RemoveAll(rootfsDir)
		return nil, err
	}

	if sum != header.Hash {
		msg := fmt.Sprintf("payload hash %s does not match header hash %s", sum, header.Hash)
		if opts.Strict {
			_ = os.RemoveAll(rootfsDir)
			return nil, nsierr.New(nsierr.IntegrityError, "verifying payload hash", fmt.Errorf("%s", msg))
		}
		if log != nil {
			log.Warn("nsi: " + msg)
		}
	}

	return &Result{Header: header, RootfsDir: rootfsDir}, nil
}

// Cleanup removes the rootfs directory. It is safe to call more than once
// and safe to call with an empty path.
func Cleanup(rootfsDir string) error {
	if rootfsDir == "" {
		return nil
	}
	if err := os.RemoveAll(rootfsDir); err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("removing rootfs directory %q", rootfsDir), err)
	}
	return nil
}
