// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"net"

	"github.com/coderoom-dev/coderoom/lib/codec"
)

// Call sends one request to a control socket and returns the
// response's data field. request must marshal to a CBOR map containing
// an "action" field. A failure response becomes an error carrying the
// server's message.
func Call(ctx context.Context, socketPath string, request any) (codec.RawMessage, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("dialing control socket %s: %w", socketPath, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("sending control request: %w", err)
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading control response: %w", err)
	}
	if !response.OK {
		return nil, fmt.Errorf("control request failed: %s", response.Error)
	}
	return response.Data, nil
}
