package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

const registryTimeout = 5 * time.Second

// listSegments handles GET /v1/segments?source=. Source is required because
// the registry is keyed by it.
func (s *Server) listSegments(w http.ResponseWriter, r *http.Request) {
	if s.opts.Segments == nil {
		writeError(w, http.StatusServiceUnavailable, "segment registry unavailable")
		return
	}
	src, err := catalog.ParseSource(r.URL.Query().Get("source"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), registryTimeout)
	defer cancel()

	segs, err := s.opts.Segments.LoadSegments(ctx, src)
	if err != nil {
		s.logger.Error("load segments failed", zap.String("source", string(src)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load segments")
		return
	}
	if segs == nil {
		segs = []catalog.Segment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segs})
}

// upsertSegment handles PUT /v1/segments with a JSON segment body.
func (s *Server) upsertSegment(w http.ResponseWriter, r *http.Request) {
	if s.opts.Segments == nil {
		writeError(w, http.StatusServiceUnavailable, "segment registry unavailable")
		return
	}
	var seg catalog.Segment
	if err := json.NewDecoder(r.Body).Decode(&seg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	src, err := catalog.ParseSource(string(seg.Source))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seg.Source = src
	if seg.ID == "" || seg.BaseAddress == "" || seg.MaxPages < 0 {
		writeError(w, http.StatusBadRequest, "id and base_address are required and max_pages must be >= 0")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), registryTimeout)
	defer cancel()

	if err := s.opts.Segments.UpsertSegment(ctx, seg); err != nil {
		s.logger.Error("upsert segment failed", zap.String("segment", seg.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save segment")
		return
	}
	writeJSON(w, http.StatusOK, seg)
}
