// Package config holds the data types shared between the build configuration
// YAML, the image header JSON, and the small amount of app-level
// configuration the cmd/nsi driver needs.
package config

// SchemaVersion is the only recognised value of the header's schemaVersion
// field. It is reserved for future header evolution.
const SchemaVersion = 1

// FormatVersion is the only recognised value of the on-disk format version
// field that follows the magic bytes.
const FormatVersion uint32 = 1

// Magic is the fixed four-byte prefix every nsi image starts with.
var Magic = [4]byte{'N', 'S', 'I', '!'}

// MaxHeaderBytes bounds the declared header length so that a corrupt or
// hostile image can't make the codec allocate an unbounded buffer before it
// has even validated anything.
const MaxHeaderBytes = 10 * 1024 * 1024

// DefaultWorkDir is filled in by LoadBuildConfig when a build config doesn't
// set runtime.workDir. Header.WorkDir does not use it; see there.
const DefaultWorkDir = "/app"

// Runtime describes how the packaged program should be started inside the
// sandbox. It is populated from the build YAML's `runtime` block and copied
// verbatim into the image header.
type Runtime struct {
	WorkDir string            `json:"workDir,omitempty" yaml:"workDir,omitempty"`
	Cmd     []string          `json:"cmd" yaml:"cmd"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Header is the JSON document that sits between the length-prefixed header
// field and the compressed tar payload of an nsi image. Field names are
// fixed by the on-disk format; don't rename them without bumping
// FormatVersion.
type Header struct {
	ImageName     string  `json:"imageName"`
	Version       string  `json:"version"`
	SchemaVersion int     `json:"schemaVersion"`
	Created       string  `json:"created"`
	Hash          string  `json:"hash"`
	SizeKB        int64   `json:"sizeKB"`
	Runtime       Runtime `json:"runtime"`
}

// WorkDir returns the effective working directory, falling back to "/"
// when the header didn't set one.
func (h Header) WorkDir() string {
	if h.Runtime.WorkDir == "" {
		return "/"
	}
	return h.Runtime.WorkDir
}
