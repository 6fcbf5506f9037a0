// Package client ties the REST layer, the gateway session, and the
// entity cache together and routes dispatch events to user handlers.
package client

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/context"

	"github.com/aikolib/aiko/cache"
	"github.com/aikolib/aiko/gateway"
	"github.com/aikolib/aiko/logger/dlog"
	"github.com/aikolib/aiko/models"
	"github.com/aikolib/aiko/rest"
)

// Handler receives the event argument: a typed *models.Message for
// MESSAGE_CREATE, the decoded payload map for everything else.
type Handler func(event any)

type Client struct {
	Rest  *rest.Client
	Cache *cache.Cache

	// GatewayURL overrides the fixed gateway address when set before
	// Start.
	GatewayURL string

	session *gateway.Session

	mu       sync.Mutex
	handlers map[string]Handler
	closed   bool
}

func New() *Client {
	return &Client{
		Rest:     rest.NewClient(),
		Cache:    cache.New(),
		handlers: make(map[string]Handler),
	}
}

// On registers a handler for a dispatch event name. One handler per
// event: registering again replaces the previous one.
func (c *Client) On(event string, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = handler
}

// Start logs in over REST and opens the gateway session. A rejected
// credential or a failed connect aborts startup.
func (c *Client) Start(ctx context.Context, token string) error {
	if _, err := c.Rest.StaticLogin(token); err != nil {
		return err
	}
	c.session = gateway.NewSession(token, c.Cache, c.route)
	if c.GatewayURL != "" {
		c.session.URL = c.GatewayURL
	}
	if err := c.session.Connect(ctx); err != nil {
		return err
	}
	return nil
}

// Wait blocks until the gateway receive loop ends.
func (c *Client) Wait() {
	if c.session != nil {
		<-c.session.Done()
	}
}

// Close tears the session down, releases the REST transport, and
// invalidates the cache. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.session != nil {
		if err := c.session.Close(); err != nil {
			dlog.Warn("gateway close", "err", err)
		}
	}
	c.Rest.Close()
	c.Cache.Clear()
}

// User returns the local user once the session bootstrap event has been
// processed.
func (c *Client) User() *models.User {
	if c.session == nil {
		return nil
	}
	return c.session.User()
}

func (c *Client) Session() *gateway.Session {
	return c.session
}

func (c *Client) SendMessage(channelID snowflake.ID, content string) (any, error) {
	return c.Rest.SendMessage(channelID, content)
}

func (c *Client) JoinVoiceChannel(guildID, channelID snowflake.ID, selfMute, selfDeaf bool) error {
	if c.session == nil {
		return fmt.Errorf("session not connected")
	}
	return c.session.VoiceStateUpdate(guildID.String(), channelID.String(), selfMute, selfDeaf)
}

// route is called inline from the session receive loop: dispatch is
// single flight, ordered by arrival. Handler failures are logged and
// never reach the receive loop.
func (c *Client) route(event string, data json.RawMessage) {
	c.mu.Lock()
	handler, ok := c.handlers[event]
	c.mu.Unlock()
	if !ok {
		return
	}

	arg, err := c.eventArg(event, data)
	if err != nil {
		dlog.Error("dropping event", "event", event, "err", err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			dlog.Error("error in event handler", "event", event, "err", r)
		}
	}()
	handler(arg)
}

func (c *Client) eventArg(event string, data json.RawMessage) (any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event, err)
	}
	if event == "MESSAGE_CREATE" {
		return c.hydrateMessage(raw)
	}
	return raw, nil
}

// hydrateMessage resolves the author through the cache first, so the
// author is resident before the message referencing it exists.
func (c *Client) hydrateMessage(raw map[string]any) (*models.Message, error) {
	authorRaw, _ := raw["author"].(map[string]any)
	author, err := c.Cache.StoreUser(authorRaw)
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}

	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "author" {
			continue
		}
		fields[key] = value
	}

	var message models.Message
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &message,
		DecodeHook: cache.SnowflakeHook,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	message.Author = author
	if message.Attachments == nil {
		message.Attachments = []any{}
	}
	if message.Embeds == nil {
		message.Embeds = []any{}
	}
	if message.Reactions == nil {
		message.Reactions = []any{}
	}
	return &message, nil
}
