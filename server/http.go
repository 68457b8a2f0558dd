// Copyright 2026 The CodeRoom Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coderoom-dev/coderoom/filesync"
	"github.com/coderoom-dev/coderoom/wire"
)

// treeResponse is the body of GET /files.
type treeResponse struct {
	Room string    `json:"room"`
	Tree wire.Tree `json:"tree"`
}

// contentResponse is the body of GET /files/content.
type contentResponse struct {
	Room    string `json:"room"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// handleFileTree serves a room's current file hierarchy.
func (s *Server) handleFileTree(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}

	tree, err := s.files.Tree(roomID)
	if err != nil {
		s.writeFileError(w, err)
		return
	}
	writeJSON(w, treeResponse{Room: roomID, Tree: tree})
}

// handleFileContent serves one file's current content, reading through
// the engine's cache so it never lags an applied edit.
func (s *Server) handleFileContent(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room")
	path := r.URL.Query().Get("path")
	if roomID == "" || path == "" {
		http.Error(w, "missing room or path parameter", http.StatusBadRequest)
		return
	}

	content, err := s.files.Read(roomID, path)
	if err != nil {
		s.writeFileError(w, err)
		return
	}
	writeJSON(w, contentResponse{Room: roomID, Path: path, Content: string(content)})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// writeFileError maps file engine errors to HTTP statuses: invalid
// paths are the client's fault, missing files are 404, the rest is
// internal.
func (s *Server) writeFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, filesync.ErrInvalidPath):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case filesync.IsNotExist(err):
		http.Error(w, "file not found", http.StatusNotFound)
	default:
		s.logger.Error("read API failure", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
