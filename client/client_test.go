package client

import (
	"encoding/json"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aikolib/aiko/models"
)

const messagePayload = `{
	"id": "9",
	"channel_id": "5",
	"author": {"id": "2", "username": "bob", "discriminator": "0002"},
	"content": "hi",
	"timestamp": "t"
}`

func TestRouteWithoutHandler(t *testing.T) {
	c := New()
	// no handler registered: must be a silent no-op
	c.route("MESSAGE_CREATE", json.RawMessage(messagePayload))
	c.route("UNKNOWN_EVENT", json.RawMessage(`{"a":1}`))
}

func TestRouteHydratesMessage(t *testing.T) {
	c := New()
	var got any
	c.On("MESSAGE_CREATE", func(event any) {
		got = event
	})

	c.route("MESSAGE_CREATE", json.RawMessage(messagePayload))

	message, ok := got.(*models.Message)
	require.True(t, ok, "handler must receive a typed message")
	assert.Equal(t, "hi", message.Content)
	assert.Equal(t, "t", message.Timestamp)
	assert.EqualValues(t, snowflake.MustParse("9"), message.ID)
	assert.EqualValues(t, snowflake.MustParse("5"), message.ChannelID)
	require.NotNil(t, message.Author)
	assert.Equal(t, "bob", message.Author.Username)
	assert.Equal(t, []any{}, message.Attachments)
	assert.Equal(t, []any{}, message.Embeds)
	assert.Equal(t, []any{}, message.Reactions)

	cached, ok := c.Cache.GetUser(snowflake.MustParse("2"))
	require.True(t, ok, "author must be resident after hydration")
	assert.Same(t, message.Author, cached)
}

func TestRouteMissingContentDefaultsToEmpty(t *testing.T) {
	c := New()
	var got *models.Message
	c.On("MESSAGE_CREATE", func(event any) {
		got = event.(*models.Message)
	})

	c.route("MESSAGE_CREATE", json.RawMessage(`{
		"id": "9",
		"channel_id": "5",
		"author": {"id": "2", "username": "bob", "discriminator": "0002"},
		"timestamp": "t"
	}`))

	require.NotNil(t, got)
	assert.Equal(t, "", got.Content)
	assert.False(t, got.TTS)
	assert.False(t, got.MentionEveryone)
}

func TestRouteAuthorUpdatesResidentUser(t *testing.T) {
	c := New()
	var messages []*models.Message
	c.On("MESSAGE_CREATE", func(event any) {
		messages = append(messages, event.(*models.Message))
	})

	c.route("MESSAGE_CREATE", json.RawMessage(messagePayload))
	c.route("MESSAGE_CREATE", json.RawMessage(`{
		"id": "10",
		"channel_id": "5",
		"author": {"id": "2", "username": "bobby", "discriminator": "0002"},
		"content": "again",
		"timestamp": "t2"
	}`))

	require.Len(t, messages, 2)
	assert.Same(t, messages[0].Author, messages[1].Author, "both messages reference the resident user")
	assert.Equal(t, "bobby", messages[0].Author.Username, "earlier holders observe the update")
}

func TestRoutePassesRawPayloadThrough(t *testing.T) {
	c := New()
	var got any
	c.On("TYPING_START", func(event any) {
		got = event
	})

	c.route("TYPING_START", json.RawMessage(`{"channel_id":"5","user_id":"2"}`))

	payload, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "5", payload["channel_id"])
}

func TestRouteSwallowsHandlerPanic(t *testing.T) {
	c := New()
	calls := 0
	c.On("MESSAGE_CREATE", func(event any) {
		calls++
		panic("handler bug")
	})

	c.route("MESSAGE_CREATE", json.RawMessage(messagePayload))
	c.route("MESSAGE_CREATE", json.RawMessage(messagePayload))

	assert.Equal(t, 2, calls, "a bad handler degrades one occurrence, not the session")
}

func TestRouteMalformedAuthorDropsEvent(t *testing.T) {
	c := New()
	called := false
	c.On("MESSAGE_CREATE", func(event any) {
		called = true
	})

	c.route("MESSAGE_CREATE", json.RawMessage(`{"id":"9","channel_id":"5","author":{"id":"2"}}`))

	assert.False(t, called)
	_, ok := c.Cache.GetUser(snowflake.MustParse("2"))
	assert.False(t, ok, "failed store leaves the table unchanged")
}

func TestCloseClearsCache(t *testing.T) {
	c := New()
	c.On("MESSAGE_CREATE", func(event any) {})
	c.route("MESSAGE_CREATE", json.RawMessage(messagePayload))

	_, ok := c.Cache.GetUser(snowflake.MustParse("2"))
	require.True(t, ok)

	c.Close()

	_, ok = c.Cache.GetUser(snowflake.MustParse("2"))
	assert.False(t, ok, "cache must be invalidated on teardown")

	// closing again is a no-op
	c.Close()
}

func TestOnLastRegistrationWins(t *testing.T) {
	c := New()
	var winner string
	c.On("READY", func(event any) { winner = "first" })
	c.On("READY", func(event any) { winner = "second" })

	c.route("READY", json.RawMessage(`{}`))

	assert.Equal(t, "second", winner)
}
