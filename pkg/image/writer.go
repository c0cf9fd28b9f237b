package image

import (
	"compress/zlib"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/jesseduffield/nsi/pkg/nsierr"
)

// countingWriter counts bytes written to it, used to derive sizeKB without
// buffering the whole uncompressed payload.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// Write packs payloadDir into a tar stream, hashes and zlib-compresses it in
// one pass against a scratch file (so the payload is never held fully in
// memory), then assembles the on-disk image at path: magic, version,
// header length, header, compressed payload. The header template's Hash,
// Created, and SizeKB fields are overwritten with observed values. The
// write is atomic relative to path: nsi writes to a sibling temp file and
// renames it into place, so a reader never observes a partially written
// image (spec.md §4.A).
func Write(path, payloadDir string, tmpl config.Header) error {
	scratch, err := os.CreateTemp(filepath.Dir(path), ".nsi-payload-*")
	if err != nil {
		return nsierr.New(nsierr.IOError, "creating payload scratch file", err)
	}
	scratchPath := scratch.Name()
	defer func() {
		_ = scratch.Close()
		_ = os.Remove(scratchPath)
	}()

	header, compressedLen, err := compressPayload(scratch, payloadDir, tmpl)
	if err != nil {
		return err
	}

	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return nsierr.New(nsierr.IOError, "seeking payload scratch file", err)
	}

	dir := filepath.Dir(path)
	out, err := os.CreateTemp(dir, ".nsi-write-*")
	if err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("creating temp file in %q", dir), err)
	}
	outPath := out.Name()
	defer func() {
		_ = os.Remove(outPath)
	}()

	if err := writePrefix(out, header); err != nil {
		_ = out.Close()
		return err
	}

	if _, err := io.CopyN(out, scratch, compressedLen); err != nil {
		_ = out.Close()
		return nsierr.New(nsierr.IOError, "copying compressed payload into image", err)
	}

	if err := out.Close(); err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("closing temp file %q", outPath), err)
	}

	if err := os.Rename(outPath, path); err != nil {
		return nsierr.New(nsierr.IOError, fmt.Sprintf("renaming %q to %q", outPath, path), err)
	}
	return nil
}

// compressPayload tars payloadDir, feeding the byte stream simultaneously
// into a SHA-256 hasher, a byte counter, and a best-compression zlib writer
// targeting scratch. It returns the completed header (Hash/Created/SizeKB
// filled in) and the number of compressed bytes written to scratch.
func compressPayload(scratch *os.File, payloadDir string, tmpl config.Header) (config.Header, int64, error) {
	hasher := sha256.New()
	counter := &countingWriter{}
	zw, err := zlib.NewWriterLevel(scratch, zlib.BestCompression)
	if err != nil {
		return config.Header{}, 0, nsierr.New(nsierr.CompressionError, "initializing zlib writer", err)
	}

	mw := io.MultiWriter(hasher, counter, zw)
	entries, err := packTar(mw, payloadDir)
	if err != nil {
		return config.Header{}, 0, err
	}
	if err := zw.Close(); err != nil {
		return config.Header{}, 0, nsierr.New(nsierr.CompressionError, "closing zlib writer", err)
	}

	if entries == 0 {
		return config.Header{}, 0, nsierr.New(nsierr.FormatError, "packing payload", fmt.Errorf("empty tar"))
	}

	compressedLen, err := scratch.Seek(0, io.SeekCurrent)
	if err != nil {
		return config.Header{}, 0, nsierr.New(nsierr.IOError, "measuring compressed payload", err)
	}

	header := tmpl
	header.SchemaVersion = config.SchemaVersion
	header.Hash = hex.EncodeToString(hasher.Sum(nil))
	header.Created = time.Now().UTC().Format(time.RFC3339)
	header.SizeKB = int64(math.Ceil(float64(counter.n) / 1024))

	return header, compressedLen, nil
}

func writePrefix(w io.Writer, header config.Header) error {
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nsierr.New(nsierr.FormatError, "marshaling header", err)
	}

	var versionBuf, lenBuf [4]byte
	binary.BigEndian.PutUint32(versionBuf[:], config.FormatVersion)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBytes)))

	if _, err := w.Write(config.Magic[:]); err != nil {
		return nsierr.New(nsierr.IOError, "writing magic", err)
	}
	if _, err := w.Write(versionBuf[:]); err != nil {
		return nsierr.New(nsierr.IOError, "writing version", err)
	}
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nsierr.New(nsierr.IOError, "writing header length", err)
	}
	if _, err := w.Write(headerBytes); err != nil {
		return nsierr.New(nsierr.IOError, "writing header", err)
	}
	return nil
}
