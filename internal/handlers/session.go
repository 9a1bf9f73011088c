package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const sessionTTL = 12 * time.Hour

// SessionRequest is the operator gate login body.
type SessionRequest struct {
	Password string `json:"password"`
}

// SessionResponse carries the issued session token.
type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"` // seconds
}

// OpenSession exchanges the operator password for a session token. Only
// available when a gate hash is configured.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	if h.gateHash == "" {
		h.Error(w, http.StatusNotFound, "operator gate not configured")
		return
	}

	var req SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(h.gateHash), []byte(req.Password)); err != nil {
		h.Error(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := h.redis.CreateSession(r.Context(), sessionTTL)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	h.JSON(w, http.StatusOK, SessionResponse{
		Token:     token,
		ExpiresIn: int64(sessionTTL.Seconds()),
	})
}
