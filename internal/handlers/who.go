package handlers

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WhoResponse represents the producer profile response.
type WhoResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	PublicKey string `json:"public_key"`
	JoinedAt  string `json:"joined_at"`
}

// Who handles producer profile lookup.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid producer ID format")
		return
	}

	producer, err := h.db.GetProducerByID(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	if producer == nil {
		h.Error(w, http.StatusNotFound, "producer not found")
		return
	}

	h.JSON(w, http.StatusOK, WhoResponse{
		ID:        producer.ID.String(),
		Name:      producer.Name,
		Email:     producer.Email,
		PublicKey: producer.PublicKey,
		JoinedAt:  producer.CreatedAt.Format("2006-01-02T15:04:05Z"),
	})
}

// Participant is one feed participant.
type Participant struct {
	Sender   string `json:"sender"`
	Kind     string `json:"kind"` // "user", "system", or "agent"
	LastSeen int64  `json:"last_seen,omitempty"`
}

// ParticipantsResponse lists the distinct feed senders.
type ParticipantsResponse struct {
	Participants []Participant `json:"participants"`
	Count        int           `json:"count"`
}

// Participants handles the participant listing. The operator is always
// included even before their first message.
func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	senders, err := h.redis.ListSenders(r.Context())
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list participants")
		return
	}

	participants := make([]Participant, 0, len(senders)+1)
	sawUser := false
	for _, s := range senders {
		kind := "agent"
		switch s.Sender {
		case "user":
			kind = "user"
			sawUser = true
		case "system":
			kind = "system"
		}
		participants = append(participants, Participant{
			Sender:   s.Sender,
			Kind:     kind,
			LastSeen: s.LastSeen,
		})
	}
	if !sawUser {
		participants = append(participants, Participant{Sender: "user", Kind: "user"})
	}

	sort.Slice(participants, func(i, j int) bool {
		return participants[i].Sender < participants[j].Sender
	})

	h.JSON(w, http.StatusOK, ParticipantsResponse{
		Participants: participants,
		Count:        len(participants),
	})
}
