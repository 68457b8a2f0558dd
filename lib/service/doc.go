// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the operator control protocol: a CBOR
// request-response server on a Unix socket, plus the matching client
// call helper. Each connection carries exactly one request and one
// response.
package service
