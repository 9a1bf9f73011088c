package handlers

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/openvillage/plaza/internal/metrics"
)

var searchWordRegex = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are common words to exclude from search
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"it": true, "that": true, "this": true, "with": true, "at": true,
	"by": true, "from": true, "as": true, "into": true, "like": true,
}

// SearchResult represents a single search result.
type SearchResult struct {
	MessageID string `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// SearchResponse represents the search response.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// tokenize extracts searchable words from text.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	words := searchWordRegex.FindAllString(lower, -1)

	// Deduplicate and filter
	seen := make(map[string]bool)
	result := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) >= 2 && !seen[w] && !stopWords[w] {
			seen[w] = true
			result = append(result, w)
		}
	}

	// Limit to 5 tokens
	if len(result) > 5 {
		result = result[:5]
	}

	return result
}

// Search handles feed search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	if len(query) > 100 {
		h.Error(w, http.StatusBadRequest, "query too long (max 100 chars)")
		return
	}

	limit := parseLimit(r, 20, 100)

	var after int64 = 0
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		if a, err := strconv.ParseInt(afterStr, 10, 64); err == nil {
			after = a
		}
	}

	metrics.SearchQueries.Inc()

	tokens := tokenize(query)
	if len(tokens) == 0 {
		h.JSON(w, http.StatusOK, SearchResponse{
			Query:   query,
			Results: []SearchResult{},
			Total:   0,
		})
		return
	}

	events, err := h.redis.SearchEvents(r.Context(), tokens, limit, after)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "search failed")
		return
	}

	results := make([]SearchResult, 0, len(events))
	for _, ev := range events {
		results = append(results, SearchResult{
			MessageID: ev.ID,
			Sender:    ev.Sender,
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		})
	}

	h.JSON(w, http.StatusOK, SearchResponse{
		Query:   query,
		Results: results,
		Total:   len(results),
	})
}
