package config

import "os"

// AppConfig carries the handful of build-metadata fields the cmd/nsi driver
// and pkg/log need. It is the generalized, much-slimmer descendant of the
// teacher's AppConfig: there is no user config file here, because nsi has
// nothing for an end user to customize beyond the build YAML and the CLI
// flags a single invocation takes.
type AppConfig struct {
	Debug       bool
	Version     string
	Commit      string
	BuildDate   string
	BuildSource string
}

// NewAppConfig builds an AppConfig, resolving Debug from either the
// explicit flag or the DEBUG env var, matching the teacher's
// debuggingFlag || os.Getenv("DEBUG") == "TRUE" precedent.
func NewAppConfig(version, commit, date, buildSource string, debuggingFlag bool) *AppConfig {
	return &AppConfig{
		Version:     version,
		Commit:      commit,
		BuildDate:   date,
		BuildSource: buildSource,
		Debug:       debuggingFlag || os.Getenv("DEBUG") == "TRUE",
	}
}
