package main

import (
	"strings"

	"github.com/integrii/flaggy"
	"github.com/jesseduffield/nsi/pkg/loader"
	"github.com/jesseduffield/nsi/pkg/sandbox"
	"github.com/sirupsen/logrus"
)

type runArgs struct {
	imagePath   string
	memoryLimit string
	cgroupID    string
	strict      bool
	envPairs    []string
}

func newRunSubcommand() (*flaggy.Subcommand, *runArgs) {
	args := &runArgs{}
	cmd := flaggy.NewSubcommand("run")
	cmd.Description = "launch a built image in an isolated sandbox"
	cmd.AddPositionalValue(&args.imagePath, "image", 1, true, "path to the .nsi image")
	cmd.String(&args.memoryLimit, "m", "memory", "memory.max value (decimal byte count or \"max\")")
	cmd.String(&args.cgroupID, "", "cgroup-id", "container id; synthesized if omitted")
	cmd.Bool(&args.strict, "", "strict", "fail on payload hash mismatch instead of warning")
	cmd.StringSlice(&args.envPairs, "e", "env", "KEY=VALUE environment override, may repeat")
	return cmd, args
}

func runRun(logger *logrus.Entry, args *runArgs) (int, error) {
	result, err := loader.Load(logger, args.imagePath, loader.Options{Strict: args.strict})
	if err != nil {
		return 0, err
	}

	return sandbox.Launch(logger, sandbox.Request{
		RootfsDir:   result.RootfsDir,
		Header:      result.Header,
		EnvOverride: parseEnvOverrides(logger, args.envPairs),
		MemoryLimit: args.memoryLimit,
		CgroupID:    args.cgroupID,
	})
}

// parseEnvOverrides implements spec.md §6's rule that malformed KEY=VALUE
// entries are reported (as a warning) and skipped, rather than aborting the
// run.
func parseEnvOverrides(logger *logrus.Entry, pairs []string) map[string]string {
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			if logger != nil {
				logger.Warnf("nsi: ignoring malformed --env entry %q", pair)
			}
			continue
		}
		overrides[key] = value
	}
	return overrides
}
