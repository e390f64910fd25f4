// Backend API client. Translates application intents into /api requests and
// backend responses into local-store state, keeping bulky embedding
// payloads off the wire whenever the stateless backend already saw them.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/alterecho/alterecho/pkg/store"
	"github.com/alterecho/alterecho/pkg/utils"
)

// Secret names shared with the store.
const (
	SecretGemini    = "gemini"
	SecretWavespeed = "wavespeed"
)

// Client talks to one backend on behalf of one local store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      *store.Store
	logger     *slog.Logger

	// sessionState tracks per-session runtime flags. It is process-local
	// and never persisted: the backend forgets cached context on its own
	// restarts, so the flag must not outlive ours either.
	mu           sync.Mutex
	sessionState map[string]*sessionState
}

type sessionState struct {
	// contextCached is set after the first successful chat/call round trip
	// for the session; later requests send an empty embeddings placeholder.
	contextCached bool
}

// New creates a client. No request timeout is set: streaming responses are
// open-ended and per-call deadlines belong to the caller's context.
func New(baseURL string, st *store.Store) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{},
		store:        st,
		logger:       utils.GetLogger(),
		sessionState: make(map[string]*sessionState),
	}
}

// Store exposes the underlying local store.
func (c *Client) Store() *store.Store {
	return c.store
}

func (c *Client) state(sessionID string) *sessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.sessionState[sessionID]
	if !ok {
		st = &sessionState{}
		c.sessionState[sessionID] = st
	}
	return st
}

func (c *Client) contextCached(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.sessionState[sessionID]
	return st != nil && st.contextCached
}

func (c *Client) markContextCached(sessionID string) {
	st := c.state(sessionID)
	c.mu.Lock()
	st.contextCached = true
	c.mu.Unlock()
}

// resetContextCached drops the flag, forcing the next send to carry the
// full embeddings payload (used after a memory refresh rewrites it).
func (c *Client) resetContextCached(sessionID string) {
	c.mu.Lock()
	delete(c.sessionState, sessionID)
	c.mu.Unlock()
}

// ========== Request plumbing ==========

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// do executes the request, mapping transport failures and non-2xx statuses
// onto the client error taxonomy. The caller owns the returned body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return nil, serverError(resp.StatusCode, body)
	}
	return resp, nil
}

// doJSON runs method+path with an optional JSON body and decodes the
// response into out (when non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &MalformedResponseError{Err: err}
	}
	return nil
}

// postStream issues a streaming POST and returns the open response body.
func (c *Client) postStream(ctx context.Context, path string, in interface{}) (*http.Response, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	return c.do(req)
}
