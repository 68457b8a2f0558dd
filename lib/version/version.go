// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build version information for the coderoom
// binaries.
package version

import "runtime/debug"

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/coderoom-dev/coderoom/lib/version.Version=v1.2.3".
var Version = "dev"

// Info returns the version string, including the VCS revision when the
// binary was built from a git checkout.
func Info() string {
	revision := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && len(setting.Value) >= 12 {
				revision = setting.Value[:12]
			}
		}
	}
	if revision == "" {
		return Version
	}
	return Version + " (" + revision + ")"
}
