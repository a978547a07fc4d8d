package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"roomchat-service/internal/models"
)

// APIError is a non-2xx response from the chat REST surface.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// RESTClient is the synchronous fallback transport.
type RESTClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewRESTClient constructs a RESTClient for the given service base URL.
func NewRESTClient(baseURL, token string) *RESTClient {
	return &RESTClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetChannel fetches the caller's channel descriptor.
func (c *RESTClient) GetChannel(ctx context.Context) (models.Channel, error) {
	var ch models.Channel
	err := c.do(ctx, http.MethodGet, "/chat/room", nil, &ch)
	return ch, err
}

// GetMessages fetches one newest-first page of the caller's room chat.
func (c *RESTClient) GetMessages(ctx context.Context, limit int, cursor *int64) (models.MessagePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if cursor != nil {
		q.Set("cursor", strconv.FormatInt(*cursor, 10))
	}

	var page models.MessagePage
	err := c.do(ctx, http.MethodGet, "/chat/room/messages?"+q.Encode(), nil, &page)
	return page, err
}

// SendMessage posts a message over the fallback path and returns the
// server-confirmed copy.
func (c *RESTClient) SendMessage(ctx context.Context, content string) (models.Message, error) {
	var resp struct {
		ChannelID int64          `json:"channelId"`
		Message   models.Message `json:"message"`
	}
	err := c.do(ctx, http.MethodPost, "/chat/room/messages", map[string]string{"content": content}, &resp)
	return resp.Message, err
}

func (c *RESTClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
