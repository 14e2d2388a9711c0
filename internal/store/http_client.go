package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient implements MessageStore against the message service's internal
// REST API.
type HTTPClient struct {
	baseURL      string
	serviceToken string
	client       *http.Client
	logger       *slog.Logger
}

func NewHTTPClient(baseURL, serviceToken string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With("component", "message_store"),
	}
}

type createMessageRequest struct {
	AuthorID        string `json:"authorId"`
	Content         string `json:"content"`
	ParentMessageID string `json:"parentMessageId,omitempty"`
}

func (c *HTTPClient) CreateMessage(ctx context.Context, authorID, content, parentMessageID string) (*Message, error) {
	body, err := json.Marshal(createMessageRequest{
		AuthorID:        authorID,
		Content:         content,
		ParentMessageID: parentMessageID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/internal/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *HTTPClient) GetMessageByID(ctx context.Context, id string) (*Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/internal/v1/messages/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*Message, error) {
	if c.serviceToken != "" {
		req.Header.Set("X-Service-Token", c.serviceToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("message service request failed",
			"method", req.Method, "url", req.URL.Path, "error", err)
		return nil, fmt.Errorf("message service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, ErrInvalidParent
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		// Drain so the connection can be reused, then surface the status.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("message service: unexpected status %d", resp.StatusCode)
	}

	var msg Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
