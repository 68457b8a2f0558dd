// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used by the control socket
// protocol. Encoding is Core Deterministic (RFC 8949 §4.2) so the same
// logical request always produces identical bytes; decoding accepts
// standard CBOR and ignores unknown fields for forward compatibility.
package codec
