package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tunetrees/sync/internal/remote"
	"github.com/tunetrees/sync/internal/remotestore"
)

// server wires the two sync endpoints over a plain http.ServeMux,
// matching the teacher's own cmd/bd/web_server.go (no router
// dependency; the surface is two routes).
type server struct {
	mux   *http.ServeMux
	store *remotestore.Store
	log   *slog.Logger
}

func newServer(store *remotestore.Store, log *slog.Logger) *server {
	s := &server{mux: http.NewServeMux(), store: store, log: log}
	s.mux.HandleFunc("POST /sync/push", s.handlePush)
	s.mux.HandleFunc("POST /sync/pull", s.handlePull)
	return s
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *server) handlePush(w http.ResponseWriter, r *http.Request) {
	var req remote.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.store.ApplyPush(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) handlePull(w http.ResponseWriter, r *http.Request) {
	var req remote.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := s.store.FetchChanges(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("write response", "err", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error("request failed", "status", status, "err", err)
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
