package server

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// fullSyncHandler runs every active source once and returns aggregate stats
func (s *Server) fullSyncHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.coordinator.RunFullSync(r.Context())
	if err != nil {
		log.Printf("[ERROR] full sync failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}
	renderJSON(w, r, http.StatusOK, stats)
}

// sourceSyncHandler runs a single source by id
func (s *Server) sourceSyncHandler(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		renderError(w, r, fmt.Errorf("source id is required"), http.StatusBadRequest)
		return
	}

	stats, err := s.coordinator.RunSourceSync(r.Context(), id)
	if err != nil {
		renderError(w, r, err, http.StatusNotFound)
		return
	}
	renderJSON(w, r, http.StatusOK, stats)
}

// sourcesHandler returns the poll status of every registered source
func (s *Server) sourcesHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, s.coordinator.SourceStatus())
}

// updatesHandler returns recently persisted updates
func (s *Server) updatesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 500 {
			renderError(w, r, fmt.Errorf("invalid limit"), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			renderError(w, r, fmt.Errorf("invalid offset"), http.StatusBadRequest)
			return
		}
		offset = parsed
	}

	updates, err := s.store.ListUpdates(ctx, limit, offset)
	if err != nil {
		log.Printf("[ERROR] list updates failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	total, err := s.store.CountUpdates(ctx)
	if err != nil {
		log.Printf("[ERROR] count updates failed: %v", err)
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"updates": updates,
		"total":   total,
	})
}
