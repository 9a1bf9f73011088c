package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openvillage/plaza/internal/crypto"
	"github.com/openvillage/plaza/internal/models"
	"github.com/openvillage/plaza/internal/store"
)

type contextKey string

const ProducerContextKey contextKey = "producer"

// AuthMiddleware handles signature verification for producer endpoints.
type AuthMiddleware struct {
	db     store.DataStore
	redis  *store.RedisStore
	window time.Duration
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(db store.DataStore, redis *store.RedisStore) *AuthMiddleware {
	return &AuthMiddleware{
		db:     db,
		redis:  redis,
		window: 30 * time.Second, // Tight window to minimize replay attack surface
	}
}

// RequireProducer middleware verifies Ed25519 signatures on requests.
func (m *AuthMiddleware) RequireProducer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		producerID := r.Header.Get("X-Plaza-Producer")
		nonce := r.Header.Get("X-Plaza-Nonce")
		timestamp := r.Header.Get("X-Plaza-Timestamp")
		signature := r.Header.Get("X-Plaza-Signature")

		if producerID == "" || nonce == "" || timestamp == "" || signature == "" {
			jsonError(w, http.StatusUnauthorized, "missing auth headers")
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid timestamp format")
			return
		}
		if !m.isTimestampValid(ts) {
			jsonError(w, http.StatusUnauthorized, "timestamp expired or too far in future")
			return
		}

		// Minimum nonce length for adequate entropy
		if len(nonce) < 24 {
			jsonError(w, http.StatusUnauthorized, "nonce must be at least 24 characters")
			return
		}

		if m.redis.IsNonceUsed(r.Context(), producerID, nonce) {
			jsonError(w, http.StatusUnauthorized, "nonce already used")
			return
		}

		producerUUID, err := uuid.Parse(producerID)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid producer ID format")
			return
		}

		producer, err := m.db.GetProducerByID(r.Context(), producerUUID)
		if err != nil || producer == nil {
			jsonError(w, http.StatusUnauthorized, "producer not found")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(body)) // Reset for handler

		signedData := crypto.SignaturePayload(sha256Hex(body), nonce, ts)
		pubkey, err := crypto.ValidatePublicKey(producer.PublicKey)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid producer public key")
			return
		}

		if err := crypto.VerifySignature(pubkey, signedData, signature); err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		m.redis.MarkNonceUsed(r.Context(), producerID, nonce, 3*time.Minute)

		ctx := context.WithValue(r.Context(), ProducerContextKey, producer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) isTimestampValid(ts int64) bool {
	now := time.Now().UnixMilli()
	windowMs := m.window.Milliseconds()
	// Only accept timestamps from the past (within window), reject future timestamps
	return ts > now-windowMs && ts <= now
}

func sha256Hex(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetProducerFromContext retrieves the authenticated producer from the request context.
func GetProducerFromContext(ctx context.Context) *models.Producer {
	producer, ok := ctx.Value(ProducerContextKey).(*models.Producer)
	if !ok {
		return nil
	}
	return producer
}
