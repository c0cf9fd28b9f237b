package loader

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/jesseduffield/nsi/pkg/image"
	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestImage(t *testing.T) string {
	t.Helper()
	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "hello.txt"), []byte("hi\n"), 0o644))

	imgPath := filepath.Join(t.TempDir(), "test.nsi")
	require.NoError(t, image.Write(imgPath, srcDir, config.Header{
		ImageName: "h",
		Version:   "0.1",
		Runtime:   config.Runtime{Cmd: []string{"/bin/true"}},
	}))
	return imgPath
}

// corruptHash rewrites imgPath's header so its "hash" field no longer
// matches the payload, leaving the payload bytes untouched. It operates on
// the raw framing directly rather than going through image.Write, since
// Write always recomputes the hash from whatever payload it is given.
func corruptHash(t *testing.T, imgPath string) string {
	t.Helper()
	raw, err := os.ReadFile(imgPath)
	require.NoError(t, err)

	oldHeaderLen := binary.BigEndian.Uint32(raw[8:12])
	var header config.Header
	require.NoError(t, json.Unmarshal(raw[12:12+oldHeaderLen], &header))

	header.Hash = strings.Repeat("0", 64)
	newHeaderBytes, err := json.Marshal(header)
	require.NoError(t, err)

	var out []byte
	out = append(out, raw[:4]...) // magic
	out = append(out, raw[4:8]...) // version
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(newHeaderBytes)))
	out = append(out, lenBuf[:]...)
	out = append(out, newHeaderBytes...)
	out = append(out, raw[12+oldHeaderLen:]...) // unchanged payload

	outPath := filepath.Join(t.TempDir(), "corrupted.nsi")
	require.NoError(t, os.WriteFile(outPath, out, 0o644))
	return outPath
}

func TestLoadExtractsIntoFreshRootfs(t *testing.T) {
	imgPath := buildTestImage(t)

	result, err := Load(nil, imgPath, Options{})
	require.NoError(t, err)
	defer Cleanup(result.RootfsDir)

	info, statErr := os.Stat(result.RootfsDir)
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	content, err := os.ReadFile(filepath.Join(result.RootfsDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))
}

func TestLoadWarnsOnHashMismatchByDefault(t *testing.T) {
	corrupted := corruptHash(t, buildTestImage(t))

	result, err := Load(nil, corrupted, Options{})
	require.NoError(t, err)
	defer Cleanup(result.RootfsDir)

	content, err := os.ReadFile(filepath.Join(result.RootfsDir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(content))
}

func TestLoadStrictPromotesMismatchToError(t *testing.T) {
	corrupted := corruptHash(t, buildTestImage(t))

	_, err := Load(nil, corrupted, Options{Strict: true})
	require.Error(t, err)
	assert.Equal(t, nsierr.IntegrityError, nsierr.KindOf(err))
}

func TestLoadRemovesPartialRootfsOnExtractFailure(t *testing.T) {
	raw, err := os.ReadFile(buildTestImage(t))
	require.NoError(t, err)

	// Cut the compressed payload in half: Open still parses the header and
	// the zlib stream header, but Extract runs out of input mid-stream.
	payloadStart := 12 + int(binary.BigEndian.Uint32(raw[8:12]))
	truncated := raw[:payloadStart+(len(raw)-payloadStart)/2]
	truncPath := filepath.Join(t.TempDir(), "truncated.nsi")
	require.NoError(t, os.WriteFile(truncPath, truncated, 0o644))

	// Load creates its rootfs under the default temp directory; point that
	// at an empty directory so any leftover is visible.
	runDir := t.TempDir()
	t.Setenv("TMPDIR", runDir)

	_, err = Load(nil, truncPath, Options{})
	require.Error(t, err)

	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanupIsIdempotentAndAcceptsEmptyPath(t *testing.T) {
	require.NoError(t, Cleanup(""))

	dir := t.TempDir()
	require.NoError(t, Cleanup(dir))
	require.NoError(t, Cleanup(dir))
}
