// Command nsi builds and runs the sandboxed images described in
// SPEC_FULL.md, generalized from the teacher's root main.go: the same
// build-info/flaggy/error-stack shape, pointed at the nsi subcommands
// instead of a single TUI entrypoint.
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"runtime/debug"

	goerrors "github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	"github.com/jesseduffield/nsi/pkg/config"
	nsilog "github.com/jesseduffield/nsi/pkg/log"
	"github.com/jesseduffield/nsi/pkg/sandbox"
	"github.com/jesseduffield/nsi/pkg/utils"
	"github.com/samber/lo"
)

const defaultVersion = "unversioned"

var (
	commit      string
	version     = defaultVersion
	date        string
	buildSource = "unknown"

	debuggingFlag bool
)

func main() {
	// Must run before anything else: if this process is the re-exec'd
	// sandbox inner, Init never returns.
	if sandbox.Init() {
		return
	}

	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nBuildSource: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, buildSource, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("nsi")
	flaggy.SetDescription("An experimental low-level application container tool")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/jesseduffield/nsi"
	flaggy.Bool(&debuggingFlag, "d", "debug", "enable debug logging")
	flaggy.SetVersion(info)

	buildCmd, buildArgs := newBuildSubcommand()
	runCmd, runArgs := newRunSubcommand()
	flaggy.AttachSubcommand(buildCmd, 1)
	flaggy.AttachSubcommand(runCmd, 1)

	flaggy.Parse()

	appConfig := config.NewAppConfig(version, commit, date, buildSource, debuggingFlag)
	logger := nsilog.NewLogger(appConfig)

	var err error
	var exitCode int
	switch {
	case buildCmd.Used:
		err = runBuild(logger, buildArgs)
	case runCmd.Used:
		exitCode, err = runRun(logger, runArgs)
	default:
		flaggy.ShowHelpAndExit("a subcommand is required: build or run")
	}

	if err != nil {
		wrapped := goerrors.Wrap(err, 0)
		logger.Error(wrapped.ErrorStack())
		log.Fatalf("nsi: %s", err.Error())
	}

	os.Exit(exitCode)
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); ok {
		commit = revision.Value
		version = utils.SafeTruncate(revision.Value, 7)
	}
	if t, ok := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); ok {
		date = t.Value
	}
}
