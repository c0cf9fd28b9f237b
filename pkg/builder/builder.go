// Package builder implements component B from spec.md §4.B: parse a YAML
// build configuration, assemble a scratch directory, run the declared build
// steps, and invoke the image codec to pack the result.
package builder

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/jesseduffield/nsi/pkg/image"
	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/jesseduffield/nsi/pkg/utils"
	"github.com/sirupsen/logrus"
)

// Build runs the full pipeline described in spec.md §4.B and returns the
// path of the image it wrote. The scratch directory is removed on every
// exit path, success or failure.
func Build(log *logrus.Entry, yamlPath string) (string, error) {
	cfg, err := config.LoadBuildConfig(yamlPath)
	if err != nil {
		return "", err
	}

	scratchDir, err := newScratchDir(yamlPath)
	if err != nil {
		return "", err
	}
	defer func() {
		if rmErr := os.RemoveAll(scratchDir); rmErr != nil && log != nil {
			log.WithError(rmErr).Warn("nsi: failed to remove build scratch directory")
		}
	}()

	sourceDir := filepath.Dir(yamlPath)
	// The scratch directory sits inside sourceDir, so it is excluded from the
	// copy; otherwise it would be copied into itself without end.
	exclude := append([]string{filepath.Base(scratchDir)}, cfg.Exclude...)
	if err := copySelected(log, sourceDir, scratchDir, cfg.Include, exclude); err != nil {
		return "", err
	}

	runner := newCommandRunner(log)
	for _, step := range cfg.Build {
		if err := runner.run(scratchDir, step); err != nil {
			return "", err
		}
	}

	outputPath := filepath.Join(filepath.Dir(yamlPath), cfg.OutputFilename())
	if err := image.Write(outputPath, scratchDir, cfg.ToHeader()); err != nil {
		return "", err
	}

	logImageSizes(log, outputPath)

	return outputPath, nil
}

// logImageSizes reports the uncompressed payload size (from the header
// Write just wrote) and the final on-disk image size, the way the teacher
// logs Docker image/container sizes in pkg/commands. Reopening the image
// is the cheapest way to get the exact payload size back without changing
// image.Write's signature; failures here are non-fatal, logging only.
func logImageSizes(log *logrus.Entry, outputPath string) {
	if log == nil {
		return
	}
	header, _, closePayload, err := image.Open(outputPath)
	if err != nil {
		return
	}
	defer closePayload()

	info, err := os.Stat(outputPath)
	if err != nil {
		return
	}

	log.WithFields(logrus.Fields{
		"payload":    utils.FormatBinaryBytes(header.SizeKB * 1024),
		"compressed": utils.FormatBinaryBytes(info.Size()),
	}).Infof("nsi: wrote image %s", outputPath)
}

// newScratchDir creates a fresh scratch directory beside the YAML file,
// named with a random suffix to avoid collisions between concurrent builds
// in the same directory (spec.md §4.B step 2, open question resolved in
// SPEC_FULL.md: uuid over PID/timestamp).
func newScratchDir(yamlPath string) (string, error) {
	base := filepath.Dir(yamlPath)
	name := filepath.Join(base, fmt.Sprintf(".nsi-build-%s", uuid.NewString()))
	if err := os.MkdirAll(name, 0o755); err != nil {
		return "", nsierr.New(nsierr.IOError, fmt.Sprintf("creating scratch directory %q", name), err)
	}
	return name, nil
}
