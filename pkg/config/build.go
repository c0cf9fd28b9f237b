package config

import (
	"fmt"
	"os"

	yaml "github.com/jesseduffield/yaml"
	"github.com/jesseduffield/nsi/pkg/nsierr"
)

// BuildConfig is the YAML document consumed only by the builder. Each include
// entry names a path relative to the source tree that is copied whole if it
// exists; include entries are not prefix-matched against other names. exclude
// uses plain prefix matching on paths relative to the source tree. Neither
// supports globs (see DESIGN.md).
type BuildConfig struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Build   []string `yaml:"build,omitempty"`
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
	Runtime Runtime  `yaml:"runtime,omitempty"`
}

// LoadBuildConfig parses a YAML build file and validates the required
// fields, mirroring the teacher's loadUserConfig except there is no
// default-merging: a build file missing a required field is an error. The
// only default applied is DefaultWorkDir when runtime.workDir is unset.
func LoadBuildConfig(path string) (*BuildConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, nsierr.New(nsierr.IOError, fmt.Sprintf("reading build config %q", path), err)
	}

	cfg := &BuildConfig{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, nsierr.New(nsierr.ConfigError, fmt.Sprintf("parsing build config %q", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Runtime.WorkDir == "" {
		cfg.Runtime.WorkDir = DefaultWorkDir
	}

	return cfg, nil
}

// Validate checks the required fields spelled out in spec.md §4.B step 1.
func (c *BuildConfig) Validate() error {
	if c.Name == "" {
		return nsierr.New(nsierr.ConfigError, "validating build config", fmt.Errorf("missing required field %q", "name"))
	}
	if c.Version == "" {
		return nsierr.New(nsierr.ConfigError, "validating build config", fmt.Errorf("missing required field %q", "version"))
	}
	if len(c.Runtime.Cmd) == 0 {
		return nsierr.New(nsierr.ConfigError, "validating build config", fmt.Errorf("runtime.cmd must be non-empty"))
	}
	return nil
}

// OutputFilename derives the image filename the builder writes to, e.g.
// "h-0.1.nsi" for name "h" and version "0.1" (see spec.md §8 scenario A).
func (c *BuildConfig) OutputFilename() string {
	return fmt.Sprintf("%s-%s.nsi", c.Name, c.Version)
}

// ToHeader assembles a header template from the parsed build config; the
// codec fills in Hash, Created, and SizeKB during Write.
func (c *BuildConfig) ToHeader() Header {
	return Header{
		ImageName:     c.Name,
		Version:       c.Version,
		SchemaVersion: SchemaVersion,
		Runtime:       c.Runtime,
	}
}
