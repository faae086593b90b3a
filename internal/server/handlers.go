package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/chikai/internal/forest"
	"github.com/hyperjump/chikai/internal/models"
	"github.com/hyperjump/chikai/internal/storage"
)

func (s *Server) handleRegisterEvent(w http.ResponseWriter, r *http.Request) {
	var input models.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("register event request", zap.String("id", input.ID), zap.String("title", input.Title))
	event, err := s.service.Register(r.Context(), &input)
	if err != nil {
		s.respondServiceError(w, "register event", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": event.ID, "status": "registered"})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := s.service.Event(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, "get event", err)
		return
	}
	s.respondJSON(w, http.StatusOK, event)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete event request", zap.String("id", id))
	if err := s.service.Delete(r.Context(), id); err != nil {
		s.respondServiceError(w, "delete event", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	q := &models.NeighborQuery{ID: chi.URLParam(r, "id")}
	if v := r.URL.Query().Get("k"); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "k must be an integer")
			return
		}
		q.K = k
	}
	s.neighbors(w, r, q)
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	var q models.NeighborQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.neighbors(w, r, &q)
}

func (s *Server) neighbors(w http.ResponseWriter, r *http.Request, q *models.NeighborQuery) {
	s.logger.Debug("neighbor request", zap.String("id", q.ID), zap.Int("k", q.K), zap.Int("vector_len", len(q.Vector)))
	resp, err := s.service.Neighbors(r.Context(), q)
	if err != nil {
		s.respondServiceError(w, "neighbors", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCatalogSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	hits, err := s.service.SearchCatalog(r.Context(), query, limit)
	if err != nil {
		s.respondServiceError(w, "catalog search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": query, "results": hits, "total": len(hits)})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.respondError(w, http.StatusTooManyRequests, "index build requested too soon, try again later")
		return
	}
	if err := s.rebuild(r.Context()); err != nil {
		s.respondServiceError(w, "index build", err)
		return
	}
	st, err := s.service.Status(r.Context())
	if err != nil {
		s.respondServiceError(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(r.Context())
	if err != nil {
		s.respondServiceError(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, forest.ErrUnknownItem), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, forest.ErrDimensionMismatch),
		errors.Is(err, models.ErrInvalidQuery),
		errors.Is(err, models.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, forest.ErrIndexNotBuilt):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondServiceError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
