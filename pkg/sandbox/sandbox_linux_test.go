//go:build linux

package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvDiscardsCallerEnvironment(t *testing.T) {
	os.Setenv("NSI_TEST_SHOULD_NOT_LEAK", "1")
	defer os.Unsetenv("NSI_TEST_SHOULD_NOT_LEAK")

	st := innerState{Env: map[string]string{"FOO": "bar"}}
	env := buildEnv(st, "myhost")

	joined := strings.Join(env, "\n")
	assert.Contains(t, joined, "FOO=bar")
	assert.Contains(t, joined, "HOSTNAME=myhost")
	assert.Contains(t, joined, sandboxMarkerVar+"=1")
	assert.NotContains(t, joined, "NSI_TEST_SHOULD_NOT_LEAK")
}

func TestBuildEnvDefaultsPathWhenUnset(t *testing.T) {
	env := buildEnv(innerState{}, "h")
	joined := strings.Join(env, "\n")
	assert.Contains(t, joined, "PATH="+defaultPath)
}

func TestBuildEnvOverrideWinsOverImageEnv(t *testing.T) {
	st := innerState{
		Env:         map[string]string{"FOO": "image"},
		EnvOverride: map[string]string{"FOO": "caller"},
	}
	env := buildEnv(st, "h")
	assert.Contains(t, env, "FOO=caller")
}

func TestTruncateHostname(t *testing.T) {
	assert.Equal(t, "short", truncateHostname("short"))
	long := strings.Repeat("x", 100)
	assert.Len(t, truncateHostname(long), 63)
}

func TestResolveExecutableAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "prog")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0o755))

	resolved, err := resolveExecutable(binPath, nil)
	require.NoError(t, err)
	assert.Equal(t, binPath, resolved)
}

func TestResolveExecutableSearchesPath(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "prog")
	require.NoError(t, os.WriteFile(binPath, []byte("#!/bin/sh\n"), 0o755))

	resolved, err := resolveExecutable("prog", []string{"PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, binPath, resolved)
}

func TestResolveExecutableRejectsNonExecutable(t *testing.T) {
	dir := t.TempDir()
	binPath := filepath.Join(dir, "notexec")
	require.NoError(t, os.WriteFile(binPath, []byte("x"), 0o644))

	_, err := resolveExecutable("notexec", []string{"PATH=" + dir})
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	req := Request{
		RootfsDir: "/tmp/rootfs",
		Header: config.Header{
			Runtime: config.Runtime{
				Cmd:     []string{"/bin/true"},
				WorkDir: "/app",
				Env:     map[string]string{"A": "1"},
			},
		},
		EnvOverride: map[string]string{"B": "2"},
		MemoryLimit: "1048576",
		CgroupID:    "c1",
	}
	st := req.toState()

	path, err := writeStateFile(st)
	require.NoError(t, err)
	defer os.Remove(path)

	got, err := readStateFile(path)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestExitCodeOfNilIsZero(t *testing.T) {
	assert.Equal(t, 0, exitCodeOf(nil))
}
