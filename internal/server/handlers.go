package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ziadkadry99/crm-manual-rag/internal/rag"
)

type queryRequest struct {
	Query string `json:"query"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Query, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retriever == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	ret, err := s.deps.Retriever.Retrieve(r.Context(), query)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM provider not configured")
		return
	}
	query, ok := decodeQuery(w, r)
	if !ok {
		return
	}
	reply, err := s.deps.Assistant.Ask(r.Context(), query)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	if s.deps.Router == nil {
		writeError(w, http.StatusServiceUnavailable, "vector store is not configured")
		return
	}
	stats, err := s.deps.Router.Stats(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": stats})
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	if errors.Is(err, rag.ErrEmptyQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Warnf("request failed: %v", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
