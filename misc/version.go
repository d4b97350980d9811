// Package misc keeps program identity stamped at build time.
package misc

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Set with -ldflags "-X tlnote/misc.version=... -X tlnote/misc.gitHash=...".
var (
	version = "dev"
	gitHash = ""
)

// GetAppName returns name of the running program without extension.
func GetAppName() string {
	name := filepath.Base(os.Args[0])
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// GetVersion returns program version.
func GetVersion() string {
	return version
}

// GetGitHash returns commit program was built from, falling back to
// information embedded by the toolchain.
func GetGitHash() string {
	if len(gitHash) > 0 {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
