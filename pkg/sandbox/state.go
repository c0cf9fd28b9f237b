package sandbox

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jesseduffield/nsi/pkg/config"
	"github.com/jesseduffield/nsi/pkg/nsierr"
)

// MemoryLimitUnset is the sentinel meaning "no memory.max write in Stage C".
const MemoryLimitUnset = ""

// innerState is everything the inner process needs after the re-exec
// boundary. It crosses that boundary as a JSON file on disk rather than an
// fd or env var because it is larger than comfortably fits an env var and
// its fields (env maps, argv) need unambiguous encoding.
type innerState struct {
	RootfsDir   string            `json:"rootfsDir"`
	Cmd         []string          `json:"cmd"`
	WorkDir     string            `json:"workDir"`
	Env         map[string]string `json:"env"`
	EnvOverride map[string]string `json:"envOverride"`
	MemoryLimit string            `json:"memoryLimit"`
	CgroupID    string            `json:"cgroupId"`
}

func writeStateFile(st innerState) (string, error) {
	f, err := os.CreateTemp("", "nsi-sandbox-state-*.json")
	if err != nil {
		return "", nsierr.New(nsierr.IOError, "creating sandbox state file", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(st); err != nil {
		os.Remove(f.Name())
		return "", nsierr.New(nsierr.IOError, "encoding sandbox state", err)
	}
	return f.Name(), nil
}

func readStateFile(path string) (innerState, error) {
	var st innerState
	data, err := os.ReadFile(path)
	if err != nil {
		return st, nsierr.New(nsierr.IOError, fmt.Sprintf("reading sandbox state %q", path), err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, nsierr.New(nsierr.IOError, "decoding sandbox state", err)
	}
	return st, nil
}

// Request is the launcher's public input, matching spec.md §4.D's stated
// contract: (rootfsDir, header, envOverride, memoryLimit, cgroupId).
type Request struct {
	RootfsDir   string
	Header      config.Header
	EnvOverride map[string]string
	MemoryLimit string
	CgroupID    string
}

func (r Request) toState() innerState {
	return innerState{
		RootfsDir:   r.RootfsDir,
		Cmd:         r.Header.Runtime.Cmd,
		WorkDir:     r.Header.WorkDir(),
		Env:         r.Header.Runtime.Env,
		EnvOverride: r.EnvOverride,
		MemoryLimit: r.MemoryLimit,
		CgroupID:    r.CgroupID,
	}
}
