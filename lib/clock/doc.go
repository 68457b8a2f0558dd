// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() and advance time
// deterministically. Anything in the server that debounces, delays, or
// schedules takes a Clock instead of calling the time package directly.
package clock
