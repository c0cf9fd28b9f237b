//go:build linux

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
)

const (
	cgroupRoot   = "/sys/fs/cgroup"
	cgroupParent = "nsi"
)

// installCgroup implements spec.md §4.D Stage C. Every failure here is
// logged as a warning rather than returned, because delegated cgroup write
// access is environment-dependent (rootless hosts, cgroup v1-only hosts,
// missing controller delegation).
func installCgroup(log *logrus.Entry, st innerState) {
	leaf := filepath.Join(cgroupRoot, cgroupParent, st.CgroupID)
	if err := os.MkdirAll(leaf, 0o755); err != nil {
		log.WithError(err).Warn("nsi: failed to create cgroup leaf directory")
		return
	}

	if st.MemoryLimit != MemoryLimitUnset {
		memoryMaxPath := filepath.Join(leaf, "memory.max")
		if err := os.WriteFile(memoryMaxPath, []byte(st.MemoryLimit), 0o644); err != nil {
			log.WithError(err).Warn("nsi: failed to write memory.max")
		}
	}

	procsPath := filepath.Join(leaf, "cgroup.procs")
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(procsPath, []byte(pid), 0o644); err != nil {
		log.WithError(err).Warn("nsi: failed to join cgroup")
	}
}

// teardownCgroup removes the leaf directory created by installCgroup. The
// kernel only allows this once the leaf is empty of processes, which is
// guaranteed only after the inner process has fully exited, so callers
// retry with backoff rather than treat the first failure as final
// (spec.md §9, "Cgroup cleanup").
func teardownCgroup(log *logrus.Entry, cgroupID string, retries int, delay func(attempt int)) {
	leaf := filepath.Join(cgroupRoot, cgroupParent, cgroupID)
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 && delay != nil {
			delay(attempt)
		}
		if err := os.Remove(leaf); err == nil || os.IsNotExist(err) {
			return
		} else {
			lastErr = err
		}
	}
	if lastErr != nil && log != nil {
		log.WithError(lastErr).Warn(fmt.Sprintf("nsi: failed to remove cgroup leaf %q after retries", leaf))
	}
}
