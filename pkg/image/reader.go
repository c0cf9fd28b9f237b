package image

import (
	"bufio"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/jesseduffield/nsi/pkg/utils"
)

// closerFunc adapts a close operation (with its own nsierr.Kind tagging)
// to io.Closer so it can be passed to utils.CloseMany.
type closerFunc func() error

func (c closerFunc) Close() error { return c() }

// prefixLen is the fixed-size portion of the file before the header:
// 4 bytes magic, 4 bytes version, 4 bytes header length.
const prefixLen = 12

// Open validates an image's fixed prefix and header, then returns the
// parsed header alongside a reader that lazily decompresses the payload as
// the caller reads from it, and a close function to release the
// underlying file. Open never reads the payload itself; it stops as soon
// as the header is parsed, per spec.md §4.A's streaming requirement.
//
// Any bytes the internal buffered reader already pulled from the file
// while reading the prefix and header are still sitting in its buffer and
// are fed to the zlib decompressor first, because the decompressor reads
// from the same buffered reader rather than from a fresh file offset.
func Open(path string) (config.Header, io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return config.Header{}, nil, nil, nsierr.New(nsierr.IOError, fmt.Sprintf("opening %q", path), err)
	}

	br := bufio.NewReaderSize(f, 32*1024)

	header, err := readHeader(br)
	if err != nil {
		_ = f.Close()
		return config.Header{}, nil, nil, err
	}

	zr, err := zlib.NewReader(br)
	if err != nil {
		_ = f.Close()
		return config.Header{}, nil, nil, nsierr.New(nsierr.CompressionError, "initializing zlib reader", err)
	}

	// Open hands back two closers — the zlib reader and the underlying
	// file — that must both be closed on the caller's teardown path.
	// utils.CloseMany closes every one of them and aggregates any
	// failures, instead of stopping at the first.
	closeFn := func() error {
		return utils.CloseMany([]io.Closer{
			closerFunc(func() error {
				if err := zr.Close(); err != nil {
					return nsierr.New(nsierr.CompressionError, "closing zlib reader", err)
				}
				return nil
			}),
			closerFunc(func() error {
				if err := f.Close(); err != nil {
					return nsierr.New(nsierr.IOError, "closing image file", err)
				}
				return nil
			}),
		})
	}

	return header, zr, closeFn, nil
}

func readHeader(br *bufio.Reader) (config.Header, error) {
	var prefix [prefixLen]byte
	if _, err := io.ReadFull(br, prefix[:]); err != nil {
		return config.Header{}, nsierr.New(nsierr.FormatError, "reading image prefix", fmt.Errorf("truncated file: %w", err))
	}

	if prefix[0] != config.Magic[0] || prefix[1] != config.Magic[1] || prefix[2] != config.Magic[2] || prefix[3] != config.Magic[3] {
		return config.Header{}, nsierr.New(nsierr.FormatError, "validating magic", fmt.Errorf("bad magic: image does not start with the nsi magic bytes"))
	}

	version := binary.BigEndian.Uint32(prefix[4:8])
	if version != config.FormatVersion {
		return config.Header{}, nsierr.New(nsierr.FormatError, "validating version", fmt.Errorf("unsupported version %d", version))
	}

	headerLen := binary.BigEndian.Uint32(prefix[8:12])
	if headerLen < 2 || headerLen > config.MaxHeaderBytes {
		return config.Header{}, nsierr.New(nsierr.FormatError, "validating header length", fmt.Errorf("header length %d out of bounds", headerLen))
	}

	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(br, headerBytes); err != nil {
		return config.Header{}, nsierr.New(nsierr.FormatError, "reading header bytes", fmt.Errorf("truncated file: %w", err))
	}

	var header config.Header
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return config.Header{}, nsierr.New(nsierr.FormatError, "decoding header JSON", err)
	}

	if err := validateHeaderFields(header); err != nil {
		return config.Header{}, err
	}

	return header, nil
}

func validateHeaderFields(h config.Header) error {
	if h.ImageName == "" {
		return nsierr.New(nsierr.FormatError, "validating header", fmt.Errorf("missing required field %q", "imageName"))
	}
	if h.Version == "" {
		return nsierr.New(nsierr.FormatError, "validating header", fmt.Errorf("missing required field %q", "version"))
	}
	if h.Hash == "" {
		return nsierr.New(nsierr.FormatError, "validating header", fmt.Errorf("missing required field %q", "hash"))
	}
	return nil
}
