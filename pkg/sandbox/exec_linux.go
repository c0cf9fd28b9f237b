//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jesseduffield/nsi/pkg/nsierr"
	"golang.org/x/sys/unix"
)

const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// sandboxMarkerVar is injected so programs running inside the container
// can detect they are inside one; spec.md §4.D leaves the name an
// implementation choice.
const sandboxMarkerVar = "NSI_SANDBOX"

// buildEnv implements spec.md §4.D Stage E's environment assembly: discard
// everything inherited, start from the image's own runtime.env, overlay the
// caller's overrides, backfill PATH if neither source set it, and always
// inject HOSTNAME and the sandbox marker.
func buildEnv(st innerState, hostname string) []string {
	merged := make(map[string]string, len(st.Env)+len(st.EnvOverride)+2)
	for k, v := range st.Env {
		merged[k] = v
	}
	for k, v := range st.EnvOverride {
		merged[k] = v
	}
	if _, ok := merged["PATH"]; !ok {
		merged["PATH"] = defaultPath
	}
	merged["HOSTNAME"] = hostname
	merged[sandboxMarkerVar] = "1"

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// execCommand implements the final half of Stage E: resolve argv[0] against
// the assembled PATH (not the caller's, since the inherited environment was
// already discarded) and replace this process image. It only returns on
// failure — unix.Exec never returns on success.
func execCommand(argv []string, env []string) error {
	if len(argv) == 0 {
		return nsierr.New(nsierr.ExecError, "resolving target command", fmt.Errorf("empty argv"))
	}

	path, err := resolveExecutable(argv[0], env)
	if err != nil {
		return nsierr.New(nsierr.ExecError, fmt.Sprintf("resolving %q", argv[0]), err)
	}

	if err := unix.Exec(path, argv, env); err != nil {
		return nsierr.New(nsierr.ExecError, fmt.Sprintf("exec %q", path), err)
	}
	return nil
}

// resolveExecutable mirrors exec.LookPath's semantics but searches the
// assembled container PATH rather than the process's own environment,
// since Stage E discards the inherited environment before this point.
func resolveExecutable(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		return name, checkExecutable(name)
	}

	pathEnv := defaultPath
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			pathEnv = strings.TrimPrefix(kv, "PATH=")
			break
		}
	}

	for _, dir := range strings.Split(pathEnv, ":") {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		if checkExecutable(candidate) == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%q not found in PATH", name)
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory", path)
	}
	if info.Mode()&0o111 == 0 {
		return fmt.Errorf("%q is not executable", path)
	}
	return nil
}
