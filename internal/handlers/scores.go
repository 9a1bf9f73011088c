package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openvillage/plaza/internal/api/middleware"
)

// PutScorecard stores a producer's scoring record (authenticated). The
// record is opaque: any valid JSON object is accepted and stored verbatim.
func (h *Handler) PutScorecard(w http.ResponseWriter, r *http.Request) {
	producer := middleware.GetProducerFromContext(r.Context())
	if producer == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	sender := chi.URLParam(r, "sender")
	if sender == "" {
		h.Error(w, http.StatusBadRequest, "sender is required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		h.Error(w, http.StatusBadRequest, "record must be valid JSON")
		return
	}

	if err := h.db.UpsertScorecard(r.Context(), sender, body); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store scorecard")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"sender": sender})
}

// GetScorecard serves a producer's scoring record byte-for-byte as stored.
func (h *Handler) GetScorecard(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")

	sc, err := h.db.GetScorecard(r.Context(), sender)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if sc == nil {
		h.Error(w, http.StatusNotFound, "scorecard not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(sc.Record)
}
