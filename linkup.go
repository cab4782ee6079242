// Package linkup is the Go client SDK for the LinkUp one-to-one chat API.
//
// It provides the HTTP API client, a realtime event channel, and a
// session-scoped synchronization core that keeps a paginated local view
// of each conversation consistent across history fetches, local
// mutations, and live events.
//
// Example:
//
//	client := linkup.NewClient("eyJhbGci...", linkup.WithBaseURL("https://api.linkup.example"))
//	session := linkup.NewSession(client)
//
//	session.LoadConversations(ctx)
//	session.EnterConversation("conv-1")
//	session.LoadMore(ctx, "conv-1")
//	session.Send(ctx, "conv-1", "user-2", "hello!")
package linkup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL  = "http://localhost:8000"
	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 20
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the LinkUp REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger

	mu    sync.RWMutex
	token string
}

type ClientOption func(*Client)

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a new LinkUp API client. token is the access token of
// the authenticated session; it can be rotated later with SetToken.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		log: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the access token, e.g. after a refresh. Token refresh
// itself is the auth layer's concern, not the SDK's.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

// apiErrorBody is the JSON error payload returned by the API.
type apiErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Kind: KindNetwork, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return nil, apiErrorFrom(resp.StatusCode, data)
	}
	return data, nil
}

func apiErrorFrom(status int, data []byte) *APIError {
	msg := http.StatusText(status)
	var eb apiErrorBody
	if json.Unmarshal(data, &eb) == nil {
		if eb.Error != "" {
			msg = eb.Error
		} else if eb.Message != "" {
			msg = eb.Message
		}
	}

	kind := KindNetwork
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindUnauthenticated
	case status >= 400 && status < 500:
		kind = KindValidation
	}
	return &APIError{Kind: kind, StatusCode: status, Message: msg}
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// ============================================================================
// Messages API
// ============================================================================

type messagePageBody struct {
	Messages []Message `json:"messages"`
}

// FetchMessagePage retrieves one page of a conversation's history.
// page starts at 1; messages come back newest-first within the page.
func (c *Client) FetchMessagePage(ctx context.Context, conversationID string, page, limit int) ([]Message, error) {
	data, err := c.doRequest(ctx, "GET", "/linkup/messages", nil, map[string]string{
		"conversationId": conversationID,
		"page":           fmt.Sprintf("%d", page),
		"limit":          fmt.Sprintf("%d", limit),
	})
	if err != nil {
		return nil, err
	}
	body, err := decodeJSON[messagePageBody](data)
	if err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// SubmitNewMessage posts a new message and returns it with its
// server-assigned identifier and timestamp.
func (c *Client) SubmitNewMessage(ctx context.Context, conversationID, text string) (*Message, error) {
	data, err := c.doRequest(ctx, "POST", "/linkup/messages/new", map[string]string{
		"text":           text,
		"conversationId": conversationID,
	}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

// SubmitEditMessage updates a message's text and returns the edited message.
func (c *Client) SubmitEditMessage(ctx context.Context, messageID, text string) (*Message, error) {
	data, err := c.doRequest(ctx, "PUT", "/linkup/messages/"+messageID, map[string]string{
		"text": text,
	}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Message](data)
}

type deleteMessageBody struct {
	MessageID string `json:"messageId"`
}

// SubmitDeleteMessage deletes a message and returns the deleted identifier.
func (c *Client) SubmitDeleteMessage(ctx context.Context, messageID string) (string, error) {
	data, err := c.doRequest(ctx, "DELETE", "/linkup/messages/"+messageID, nil, nil)
	if err != nil {
		return "", err
	}
	body, err := decodeJSON[deleteMessageBody](data)
	if err != nil {
		return "", err
	}
	return body.MessageID, nil
}

// ============================================================================
// Conversations API
// ============================================================================

type conversationListBody struct {
	Conversations []Conversation `json:"conversations"`
}

// FetchConversations retrieves the conversation list for the local user.
func (c *Client) FetchConversations(ctx context.Context) ([]Conversation, error) {
	data, err := c.doRequest(ctx, "GET", "/linkup/conversations", nil, nil)
	if err != nil {
		return nil, err
	}
	body, err := decodeJSON[conversationListBody](data)
	if err != nil {
		return nil, err
	}
	return body.Conversations, nil
}

// CreateConversation starts (or returns the existing) conversation with
// the given participant.
func (c *Client) CreateConversation(ctx context.Context, participantID string) (*Conversation, error) {
	data, err := c.doRequest(ctx, "POST", "/linkup/conversations/new", map[string]string{
		"participant": participantID,
	}, nil)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Conversation](data)
}

// AcknowledgeRead tells the server the local user has seen the
// conversation's latest message. Best-effort: callers log failures
// rather than surfacing them.
func (c *Client) AcknowledgeRead(ctx context.Context, conversationID string) error {
	_, err := c.doRequest(ctx, "PUT", "/linkup/conversations/"+conversationID+"/read", nil, nil)
	return err
}
