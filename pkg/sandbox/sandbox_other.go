//go:build !linux

package sandbox

import (
	"fmt"

	"github.com/jesseduffield/nsi/pkg/nsierr"
	"github.com/sirupsen/logrus"
)

// Launch is unsupported outside Linux; spec.md §1 names this Non-goal
// explicitly ("no cross-platform support, Linux only").
func Launch(_ *logrus.Entry, _ Request) (int, error) {
	return 0, nsierr.New(nsierr.NamespaceError, "launching container", fmt.Errorf("sandbox launcher requires Linux"))
}

func runInner(_ []string) int {
	return setupFailureExitCode
}

const setupFailureExitCode = 125
