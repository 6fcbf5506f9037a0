package rest

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	c := NewClient()
	c.BaseURL = url
	return c
}

func TestExecuteHeaders(t *testing.T) {
	var got http.Header
	var body []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1"}`))
	}))
	defer server.Close()

	c := testClient(server.URL)
	c.SetToken("token123")
	data, err := c.Execute(http.MethodPost, "/channels/5/messages", map[string]any{"content": "hi there"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "token123", got.Get("Authorization"))
	assert.Equal(t, "application/json", got.Get("Content-Type"))
	assert.NotEmpty(t, got.Get("User-Agent"))

	properties, err := base64.StdEncoding.DecodeString(got.Get("X-Super-Properties"))
	require.NoError(t, err)
	var fingerprint map[string]any
	require.NoError(t, json.Unmarshal(properties, &fingerprint))
	assert.Equal(t, "Chrome", fingerprint["browser"])

	// compact encoding, no inserted whitespace
	assert.Equal(t, `{"content":"hi there"}`, string(body))

	decoded, ok := data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1", decoded["id"])
}

func TestExecuteRetriesOnRateLimit(t *testing.T) {
	var attempts atomic.Int32
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.Header().Set("Content-Type", "application/json")
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"retry_after":0.1}`))
			return
		}
		w.Write([]byte(`{"done":true}`))
	}))
	defer server.Close()

	c := testClient(server.URL)
	start := time.Now()
	data, err := c.Execute(http.MethodPost, "/channels/5/messages", map[string]any{"content": "hi"}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, attempts.Load(), "exactly one retry")
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond, "caller suspended for retry_after")
	assert.Equal(t, bodies[0], bodies[1], "retry re-issues the identical request")
	assert.Equal(t, map[string]any{"done": true}, data)
}

func TestExecuteErrorTaxonomy(t *testing.T) {
	status := http.StatusForbidden
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"nope"}`))
	}))
	defer server.Close()
	c := testClient(server.URL)

	_, err := c.Execute(http.MethodGet, "/users/@me", nil, nil)
	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, http.StatusForbidden, forbidden.Status)

	status = http.StatusNotFound
	_, err = c.Execute(http.MethodGet, "/users/@me", nil, nil)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	status = http.StatusBadGateway
	_, err = c.Execute(http.MethodGet, "/users/@me", nil, nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadGateway, serverErr.Status)

	status = http.StatusTeapot
	_, err = c.Execute(http.MethodGet, "/users/@me", nil, nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusTeapot, reqErr.Status)
	assert.Equal(t, map[string]any{"message": "nope"}, reqErr.Body)
}

func TestExecuteNonJSONResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("pong"))
	}))
	defer server.Close()

	data, err := testClient(server.URL).Execute(http.MethodGet, "/ping", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "pong", data)
}

func TestStaticLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"message":"401: Unauthorized"}`))
			return
		}
		w.Write([]byte(`{"id":"1","username":"x","discriminator":"0001"}`))
	}))
	defer server.Close()
	c := testClient(server.URL)

	t.Run("valid token", func(t *testing.T) {
		data, err := c.StaticLogin("good")
		require.NoError(t, err)
		assert.Equal(t, "x", data.(map[string]any)["username"])
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := c.StaticLogin("bad")
		var loginErr *LoginError
		require.ErrorAs(t, err, &loginErr, "401 must become a LoginError")
		var reqErr *RequestError
		require.True(t, errors.As(err, &reqErr))
		assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	})
}

func TestSendMessage(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/80351110224678912/messages", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"9"}`))
	}))
	defer server.Close()

	c := testClient(server.URL)
	_, err := c.SendMessage(snowflake.MustParse("80351110224678912"), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hi", body["content"])
	nonce, ok := body["nonce"].(string)
	require.True(t, ok)
	assert.True(t, strings.Count(nonce, "-") == 4, "nonce is a uuid")
}
