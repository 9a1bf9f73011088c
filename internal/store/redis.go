package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/openvillage/plaza/internal/models"
)

const (
	eventTTL  = 7 * 24 * time.Hour
	searchTTL = 7 * 24 * time.Hour
)

// RedisStore handles Redis operations for the event feed, search index,
// sessions, and nonce tracking.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client for middleware use.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// feedKey is the sorted set holding the event feed, scored by timestamp.
const feedKey = "feed:events"

// searchWordKey returns the key for a search word index.
func searchWordKey(word string) string {
	return fmt.Sprintf("search:words:%s", strings.ToLower(word))
}

// AddEvent stores a feed event in Redis. The event's id and timestamp are
// generated when unset; the score of the sorted-set member is the event's
// timestamp, which is what the since cursor ranges over.
func (s *RedisStore) AddEvent(ctx context.Context, ev *models.FeedEvent) error {
	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	err = s.client.ZAdd(ctx, feedKey, redis.Z{
		Score:  float64(ev.Timestamp),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, feedKey, eventTTL)

	// Search indexing is best-effort
	if err := s.IndexEvent(ctx, ev); err != nil {
		_ = err
	}

	s.touchSender(ctx, ev.Sender, ev.Timestamp)

	return nil
}

// GetRecentEvents retrieves the most recent events, oldest first.
func (s *RedisStore) GetRecentEvents(ctx context.Context, limit int) ([]models.FeedEvent, error) {
	results, err := s.client.ZRevRangeByScore(ctx, feedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	events := decodeEvents(results)

	// Reverse into ascending timestamp order
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}

// GetEventsSince retrieves events at or after the given timestamp cursor,
// oldest first. The boundary is inclusive; deduplication is the client's job.
func (s *RedisStore) GetEventsSince(ctx context.Context, since int64, limit int) ([]models.FeedEvent, error) {
	results, err := s.client.ZRangeByScore(ctx, feedKey, &redis.ZRangeBy{
		Min:   fmt.Sprintf("%d", since),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeEvents(results), nil
}

// GetEvent retrieves a specific event by ID.
func (s *RedisStore) GetEvent(ctx context.Context, id string) (*models.FeedEvent, error) {
	results, err := s.client.ZRange(ctx, feedKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	for _, data := range results {
		var ev models.FeedEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		if ev.ID == id {
			return &ev, nil
		}
	}

	return nil, nil
}

func decodeEvents(results []string) []models.FeedEvent {
	events := make([]models.FeedEvent, 0, len(results))
	for _, data := range results {
		var ev models.FeedEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

// wordRegex matches word characters for search indexing.
var wordRegex = regexp.MustCompile(`\w+`)

// IndexEvent indexes an event's message for search.
func (s *RedisStore) IndexEvent(ctx context.Context, ev *models.FeedEvent) error {
	words := wordRegex.FindAllString(strings.ToLower(ev.Message), -1)

	seen := make(map[string]bool)
	for _, word := range words {
		if len(word) < 3 || seen[word] {
			continue
		}
		seen[word] = true

		key := searchWordKey(word)
		s.client.ZAdd(ctx, key, redis.Z{
			Score:  float64(ev.Timestamp),
			Member: ev.ID,
		})
		s.client.Expire(ctx, key, searchTTL)
	}

	return nil
}

// SearchEvents searches the feed for events containing all query tokens.
func (s *RedisStore) SearchEvents(ctx context.Context, tokens []string, limit int, after int64) ([]models.FeedEvent, error) {
	if len(tokens) == 0 {
		return []models.FeedEvent{}, nil
	}

	keys := make([]string, len(tokens))
	for i, t := range tokens {
		keys[i] = searchWordKey(t)
	}

	minScore := "-inf"
	if after > 0 {
		minScore = fmt.Sprintf("(%d", after) // exclusive
	}

	var refs []string

	if len(keys) == 1 {
		refs, _ = s.client.ZRevRangeByScore(ctx, keys[0], &redis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: int64(limit * 3), // Fetch extra for expired entries
		}).Result()
	} else {
		tempKey := fmt.Sprintf("search:temp:%d", time.Now().UnixNano())

		s.client.ZInterStore(ctx, tempKey, &redis.ZStore{
			Keys:      keys,
			Aggregate: "MIN",
		})
		s.client.Expire(ctx, tempKey, 10*time.Second)

		refs, _ = s.client.ZRevRangeByScore(ctx, tempKey, &redis.ZRangeBy{
			Min:   minScore,
			Max:   "+inf",
			Count: int64(limit * 3),
		}).Result()

		s.client.Del(ctx, tempKey)
	}

	events := make([]models.FeedEvent, 0, limit)
	for _, id := range refs {
		ev, err := s.GetEvent(ctx, id)
		if err != nil || ev == nil {
			continue // Event expired
		}
		events = append(events, *ev)
		if len(events) >= limit {
			break
		}
	}

	return events, nil
}

// SenderInfo is a feed participant's presence record.
type SenderInfo struct {
	Sender   string `json:"sender"`
	LastSeen int64  `json:"last_seen"` // Unix ms
}

const sendersKey = "feed:senders"

// touchSender records the sender's most recent activity.
func (s *RedisStore) touchSender(ctx context.Context, sender string, ts int64) {
	if sender == "" {
		return
	}
	s.client.HSet(ctx, sendersKey, sender, ts)
}

// ListSenders returns the distinct senders observed in the feed with their
// last-seen timestamps.
func (s *RedisStore) ListSenders(ctx context.Context) ([]SenderInfo, error) {
	entries, err := s.client.HGetAll(ctx, sendersKey).Result()
	if err != nil {
		return nil, err
	}

	senders := make([]SenderInfo, 0, len(entries))
	for sender, tsStr := range entries {
		var ts int64
		fmt.Sscanf(tsStr, "%d", &ts)
		senders = append(senders, SenderInfo{Sender: sender, LastSeen: ts})
	}
	return senders, nil
}

// nonceKey returns the key for nonce tracking.
func nonceKey(producerID, nonce string) string {
	return fmt.Sprintf("nonce:%s:%s", producerID, nonce)
}

// IsNonceUsed checks if a nonce has been used.
func (s *RedisStore) IsNonceUsed(ctx context.Context, producerID, nonce string) bool {
	key := nonceKey(producerID, nonce)
	exists, _ := s.client.Exists(ctx, key).Result()
	return exists > 0
}

// MarkNonceUsed marks a nonce as used with a TTL.
func (s *RedisStore) MarkNonceUsed(ctx context.Context, producerID, nonce string, ttl time.Duration) {
	key := nonceKey(producerID, nonce)
	s.client.Set(ctx, key, "1", ttl)
}

// sessionKey returns the key for an operator session token.
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// CreateSession issues an operator session token with a TTL.
func (s *RedisStore) CreateSession(ctx context.Context, ttl time.Duration) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	if err := s.client.Set(ctx, sessionKey(token), "1", ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// CheckSession reports whether a session token is valid.
func (s *RedisStore) CheckSession(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	exists, _ := s.client.Exists(ctx, sessionKey(token)).Result()
	return exists > 0
}
