package timeline

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// APIError is a non-2xx response from the Plaza server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaza error %d: %s", e.Status, e.Message)
}

// Client is a Plaza API client. Producer credentials are only needed for the
// signed endpoints (Ingest, ClaimTask, UpdateTask, UpsertScorecard);
// SessionToken is only needed when the server runs with an operator gate.
type Client struct {
	BaseURL      string
	ConfigDir    string
	ProducerID   string
	PublicKey    ed25519.PublicKey
	PrivateKey   ed25519.PrivateKey
	SessionToken string
	HTTPClient   *http.Client
}

// Credentials holds a producer's persisted identity.
type Credentials struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
}

// NewClient creates a client for the given server, loading any persisted
// producer credentials from the config directory ($PLAZA_CONFIG or
// ~/.plaza).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("PLAZA_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".plaza")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	_ = c.LoadCredentials()
	return c
}

// LoadCredentials loads the producer identity from disk.
func (c *Client) LoadCredentials() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "producer.json"))
	if err != nil {
		return err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return err
	}

	keyData, err := os.ReadFile(filepath.Join(c.ConfigDir, "private.key"))
	if err != nil {
		return err
	}

	seed, err := base64.StdEncoding.DecodeString(string(keyData))
	if err != nil {
		return err
	}

	c.ProducerID = creds.ID
	c.PrivateKey = ed25519.NewKeyFromSeed(seed)
	c.PublicKey = c.PrivateKey.Public().(ed25519.PublicKey)
	return nil
}

// SaveCredentials persists the producer identity to disk.
func (c *Client) SaveCredentials() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	creds := Credentials{
		ID:        c.ProducerID,
		PublicKey: base64.StdEncoding.EncodeToString(c.PublicKey),
	}

	data, _ := json.MarshalIndent(creds, "", "  ")
	if err := os.WriteFile(filepath.Join(c.ConfigDir, "producer.json"), data, 0600); err != nil {
		return err
	}

	seed := base64.StdEncoding.EncodeToString(c.PrivateKey.Seed())
	return os.WriteFile(filepath.Join(c.ConfigDir, "private.key"), []byte(seed), 0600)
}

// GenerateKeypair generates a fresh Ed25519 keypair for this client.
func (c *Client) GenerateKeypair() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	c.PublicKey = pub
	c.PrivateKey = priv
	return nil
}

// signRequest creates authentication headers for a signed request.
func (c *Client) signRequest(body []byte) http.Header {
	hash := sha256.Sum256(body)
	hashHex := hex.EncodeToString(hash[:])

	nonceBytes := make([]byte, 12) // 24 hex chars
	rand.Read(nonceBytes)
	nonce := hex.EncodeToString(nonceBytes)

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	payload := fmt.Sprintf("%s|%s|%s", hashHex, nonce, timestamp)
	sig := ed25519.Sign(c.PrivateKey, []byte(payload))

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Plaza-Producer", c.ProducerID)
	headers.Set("X-Plaza-Nonce", nonce)
	headers.Set("X-Plaza-Timestamp", timestamp)
	headers.Set("X-Plaza-Signature", base64.StdEncoding.EncodeToString(sig))
	return headers
}

// doRequest performs an HTTP request against the server. Non-2xx responses
// come back as *APIError with the server's error message.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, signed bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if signed {
		req.Header = c.signRequest(body)
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.SessionToken != "" {
		req.Header.Set("X-Plaza-Session", c.SessionToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, &APIError{Status: resp.StatusCode, Message: errResp.Error}
	}

	return respBody, nil
}

// FeedResponse is the polling endpoint's payload.
type FeedResponse struct {
	Messages []RawItem `json:"messages"`
	Count    int       `json:"count"`
}

// FetchEvents retrieves a batch of feed events. since is a unix-millisecond
// cursor; 0 fetches the most recent backlog. The boundary may be inclusive,
// so callers must tolerate re-delivery of the cursor event.
func (c *Client) FetchEvents(ctx context.Context, limit int, since int64) ([]RawItem, error) {
	path := fmt.Sprintf("/events?limit=%d", limit)
	if since > 0 {
		path += fmt.Sprintf("&since=%d", since)
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}

	var resp FeedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding feed response: %w", err)
	}
	return resp.Messages, nil
}

// FindResult is one search hit.
type FindResult struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Find searches the feed. Results come straight from the server's index and
// bypass the reconciliation store.
func (c *Client) Find(ctx context.Context, query string, limit int) ([]FindResult, error) {
	path := fmt.Sprintf("/find?q=%s&limit=%d", url.QueryEscape(query), limit)

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []FindResult `json:"results"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return resp.Results, nil
}

// SubmitRequest is the operator submission body.
type SubmitRequest struct {
	Sender   string            `json:"sender"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// SubmitReceipt is the server's acknowledgement of a submission.
type SubmitReceipt struct {
	MessageID string `json:"message_id"`
	TaskID    string `json:"task_id,omitempty"`
}

// Submit posts an operator message to the feed. A "user" sender dispatches a
// task and the receipt carries its id.
func (c *Client) Submit(ctx context.Context, sender, message string, metadata map[string]string) (*SubmitReceipt, error) {
	body, _ := json.Marshal(SubmitRequest{Sender: sender, Message: message, Metadata: metadata})

	respBody, err := c.doRequest(ctx, http.MethodPost, "/events", body, false)
	if err != nil {
		return nil, err
	}

	var receipt SubmitReceipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, fmt.Errorf("decoding submit receipt: %w", err)
	}
	return &receipt, nil
}

// IngestRequest is the producer-side event report.
type IngestRequest struct {
	Message         string   `json:"message"`
	TaskID          string   `json:"task_id,omitempty"`
	ArtifactPath    string   `json:"artifact_path,omitempty"`
	ProgressPercent *float64 `json:"progress_percent,omitempty"`
	Error           bool     `json:"error,omitempty"`
}

// IngestReceipt reports the stored event's id and how its time was derived.
type IngestReceipt struct {
	MessageID       string `json:"message_id"`
	Timestamp       int64  `json:"timestamp"`
	TimestampSource string `json:"timestamp_source"`
}

// Ingest reports a producer event. Requires credentials; the server derives
// event time from the timestamp token in ArtifactPath when one is present.
func (c *Client) Ingest(ctx context.Context, req IngestRequest) (*IngestReceipt, error) {
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest(ctx, http.MethodPost, "/ingest", body, true)
	if err != nil {
		return nil, err
	}

	var receipt IngestReceipt
	if err := json.Unmarshal(respBody, &receipt); err != nil {
		return nil, fmt.Errorf("decoding ingest receipt: %w", err)
	}
	return &receipt, nil
}

// RegisterResponse is the response from producer registration.
type RegisterResponse struct {
	ID         string `json:"id"`
	ProfileURL string `json:"profile_url"`
}

// Register registers this client as a producer, generating a keypair and
// persisting the credentials. Registration is idempotent by public key.
func (c *Client) Register(ctx context.Context, name, email string) (*RegisterResponse, error) {
	if c.PrivateKey == nil {
		if err := c.GenerateKeypair(); err != nil {
			return nil, err
		}
	}

	body, _ := json.Marshal(map[string]string{
		"public_key": base64.StdEncoding.EncodeToString(c.PublicKey),
		"name":       name,
		"email":      email,
	})

	respBody, err := c.doRequest(ctx, http.MethodPost, "/register", body, false)
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding register response: %w", err)
	}

	c.ProducerID = resp.ID
	if err := c.SaveCredentials(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Task is a dispatched work item.
type Task struct {
	ID         string  `json:"id"`
	Seq        int64   `json:"seq"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Progress   float64 `json:"progress"`
	CreatedBy  string  `json:"created_by"`
	AssignedTo string  `json:"assigned_to,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// TasksResponse is the task listing payload.
type TasksResponse struct {
	Tasks []Task `json:"tasks"`
	Total int    `json:"total"`
}

// ListTasks lists tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, status string, limit int) (*TasksResponse, error) {
	path := fmt.Sprintf("/tasks?limit=%d", limit)
	if status != "" {
		path += "&status=" + url.QueryEscape(status)
	}

	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}

	var resp TasksResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding tasks response: %w", err)
	}
	return &resp, nil
}

// ClaimTask claims a pending task for this producer. Requires credentials.
func (c *Client) ClaimTask(ctx context.Context, taskID string) (*Task, error) {
	respBody, err := c.doRequest(ctx, http.MethodPost, "/tasks/"+taskID+"/claim", []byte("{}"), true)
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(respBody, &task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	return &task, nil
}

// UpdateTask moves a claimed task to a new status. Requires credentials.
func (c *Client) UpdateTask(ctx context.Context, taskID, status string) (*Task, error) {
	body, _ := json.Marshal(map[string]string{"status": status})

	respBody, err := c.doRequest(ctx, http.MethodPost, "/tasks/"+taskID+"/status", body, true)
	if err != nil {
		return nil, err
	}

	var task Task
	if err := json.Unmarshal(respBody, &task); err != nil {
		return nil, fmt.Errorf("decoding task: %w", err)
	}
	return &task, nil
}

// Scorecard fetches a producer's opaque scoring record verbatim.
func (c *Client) Scorecard(ctx context.Context, sender string) (json.RawMessage, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/scores/"+url.PathEscape(sender), nil, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(respBody), nil
}

// UpsertScorecard stores a producer's scoring record. Requires credentials.
func (c *Client) UpsertScorecard(ctx context.Context, sender string, record json.RawMessage) error {
	_, err := c.doRequest(ctx, http.MethodPut, "/scores/"+url.PathEscape(sender), record, true)
	return err
}

// HealthResponse is the server health payload.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]interface{} `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/health", nil, false)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding health response: %w", err)
	}
	return &resp, nil
}

// OpenSession exchanges the operator password for a session token and
// attaches it to subsequent requests. Only needed against gated servers.
func (c *Client) OpenSession(ctx context.Context, password string) error {
	body, _ := json.Marshal(map[string]string{"password": password})

	respBody, err := c.doRequest(ctx, http.MethodPost, "/session", body, false)
	if err != nil {
		return err
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("decoding session response: %w", err)
	}
	c.SessionToken = resp.Token
	return nil
}
