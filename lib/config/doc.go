// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for coderoom binaries.
//
// Configuration is loaded from a single YAML file specified by:
//   - CODEROOM_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file may
// contain environment-specific sections (development, production) that
// override base values when the environment matches.
package config
