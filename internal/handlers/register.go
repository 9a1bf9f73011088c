package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/openvillage/plaza/internal/crypto"
	"github.com/openvillage/plaza/internal/metrics"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	PublicKey string `json:"public_key"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// RegisterResponse represents the registration response.
type RegisterResponse struct {
	ID         string `json:"id"`
	ProfileURL string `json:"profile_url"`
}

// Register handles producer registration. Registration is idempotent by
// public key.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.PublicKey == "" {
		h.Error(w, http.StatusBadRequest, "public_key is required")
		return
	}

	if _, err := crypto.ValidatePublicKey(req.PublicKey); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid public_key: must be base64-encoded Ed25519 public key (32 bytes)")
		return
	}

	name := sanitizeName(req.Name)
	email := req.Email
	if !isValidEmail(email) {
		h.Error(w, http.StatusBadRequest, "invalid email format")
		return
	}

	existing, err := h.db.GetProducerByPublicKey(r.Context(), req.PublicKey)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if existing != nil {
		// Return existing producer ID (idempotent registration)
		h.JSON(w, http.StatusOK, RegisterResponse{
			ID:         existing.ID.String(),
			ProfileURL: fmt.Sprintf("/who/%s", existing.ID.String()),
		})
		return
	}

	producer, err := h.db.CreateProducer(r.Context(), req.PublicKey, name, email)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create producer")
		return
	}

	metrics.ProducersRegistered.Inc()

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:         producer.ID.String(),
		ProfileURL: fmt.Sprintf("/who/%s", producer.ID.String()),
	})
}
