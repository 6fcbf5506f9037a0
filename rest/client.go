// Package rest issues authenticated requests against the chat service
// REST API and classifies the outcomes. Rate-limit responses are not
// errors: they suspend the calling goroutine for the server-specified
// delay and re-issue the identical request.
package rest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"

	"github.com/aikolib/aiko/logger/dlog"
)

const (
	BaseURL = "https://discord.com/api/v10"

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

type Client struct {
	HTTP    *http.Client
	BaseURL string

	token           string
	superProperties string
}

func NewClient() *Client {
	return &Client{
		HTTP:            &http.Client{},
		BaseURL:         BaseURL,
		superProperties: superProperties(),
	}
}

// SetToken sets the credential attached as the Authorization header on
// every following request. The raw token is sent, no scheme prefix.
func (c *Client) SetToken(token string) {
	c.token = token
}

func (c *Client) Token() string {
	return c.token
}

// Execute sends one request and returns the decoded response body: a
// JSON value when the response declares a JSON content type, the raw
// text otherwise. A 429 suspends the caller for the server-specified
// retry_after and re-issues the identical request until it resolves
// some other way.
func (c *Client) Execute(method, path string, body any, headers map[string]string) (any, error) {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	for {
		data, status, err := c.send(method, path, payload, headers)
		if err != nil {
			return nil, err
		}

		if status >= 200 && status < 300 {
			return data, nil
		}

		switch {
		case status == http.StatusTooManyRequests:
			delay := retryAfter(data)
			dlog.Warn("rate limited", "method", method, "path", path, "retryAfter", delay)
			time.Sleep(delay)
		case status == http.StatusForbidden:
			return nil, &ForbiddenError{RequestError{Status: status, Body: data}}
		case status == http.StatusNotFound:
			return nil, &NotFoundError{RequestError{Status: status, Body: data}}
		case status >= 500:
			return nil, &ServerError{RequestError{Status: status, Body: data}}
		default:
			return nil, &RequestError{Status: status, Body: data}
		}
	}
}

func (c *Client) send(method, path string, payload []byte, headers map[string]string) (any, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request %s %s: %w", method, path, err)
	}

	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("X-Super-Properties", c.superProperties)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read response %s %s: %w", method, path, err)
	}

	var data any = string(text)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(text, &decoded); err == nil {
			data = decoded
		}
	}
	return data, resp.StatusCode, nil
}

// StaticLogin sets the token and verifies it against the identity
// endpoint. A 401 becomes a LoginError; every other failure propagates
// unchanged.
func (c *Client) StaticLogin(token string) (any, error) {
	c.token = token
	data, err := c.Execute(http.MethodGet, "/users/@me", nil, nil)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.Status == http.StatusUnauthorized {
			return nil, &LoginError{Err: err}
		}
		return nil, err
	}
	return data, nil
}

// SendMessage posts content to a channel's message collection. The nonce
// lets the service dedupe a retried post.
func (c *Client) SendMessage(channelID snowflake.ID, content string) (any, error) {
	payload := map[string]any{
		"content": content,
		"nonce":   uuid.NewString(),
	}
	return c.Execute(http.MethodPost, fmt.Sprintf("/channels/%s/messages", channelID), payload, nil)
}

func (c *Client) Gateway() (any, error) {
	return c.Execute(http.MethodGet, "/gateway", nil, nil)
}

func (c *Client) BotGateway() (any, error) {
	return c.Execute(http.MethodGet, "/gateway/bot", nil, nil)
}

func (c *Client) Close() {
	c.HTTP.CloseIdleConnections()
}

func retryAfter(data any) time.Duration {
	body, ok := data.(map[string]any)
	if !ok {
		return time.Second
	}
	seconds, ok := body["retry_after"].(float64)
	if !ok {
		return time.Second
	}
	return time.Duration(seconds * float64(time.Second))
}

func superProperties() string {
	properties := map[string]any{
		"os":                       runtime.GOOS,
		"browser":                  "Chrome",
		"device":                   "",
		"system_locale":            "en-US",
		"browser_user_agent":       browserUserAgent,
		"browser_version":          "91.0.4472.124",
		"os_version":               "10",
		"referrer":                 "",
		"referring_domain":         "",
		"referrer_current":         "",
		"referring_domain_current": "",
		"release_channel":          "stable",
		"client_build_number":      100000,
		"client_event_source":      nil,
	}
	encoded, _ := json.Marshal(properties)
	return base64.StdEncoding.EncodeToString(encoded)
}
