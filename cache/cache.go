// Package cache keeps the canonical in-memory copy of every entity the
// gateway has pushed down. Store operations are insert-or-update: the
// resident instance is mutated so every holder of a previously returned
// pointer observes the new fields.
package cache

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/aikolib/aiko/models"
)

// MalformedEntityError is returned when a store operation is handed a
// payload missing required fields. The table is left unchanged.
type MalformedEntityError struct {
	Kind    string
	Missing []string
	Err     error
}

func (e *MalformedEntityError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("malformed %s: missing %s", e.Kind, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("malformed %s: %v", e.Kind, e.Err)
}

func (e *MalformedEntityError) Unwrap() error {
	return e.Err
}

type Cache struct {
	mu       sync.RWMutex
	users    map[snowflake.ID]*models.User
	guilds   map[snowflake.ID]*models.Guild
	channels map[snowflake.ID]*models.Channel
	messages map[snowflake.ID]*models.Message
}

func New() *Cache {
	return &Cache{
		users:    make(map[snowflake.ID]*models.User),
		guilds:   make(map[snowflake.ID]*models.Guild),
		channels: make(map[snowflake.ID]*models.Channel),
		messages: make(map[snowflake.ID]*models.Message),
	}
}

// StoreUser inserts or updates the user table from a raw payload and
// returns the resident instance.
func (c *Cache) StoreUser(raw map[string]any) (*models.User, error) {
	var user models.User
	if err := decodeEntity("user", raw, &user, "id", "username", "discriminator"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if resident, ok := c.users[user.ID]; ok {
		*resident = user
		return resident, nil
	}
	c.users[user.ID] = &user
	return &user, nil
}

func (c *Cache) GetUser(id snowflake.ID) (*models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.users[id]
	return user, ok
}

// StoreGuild inserts or updates the guild table. Only the scalar fields
// come from the payload; the nested role/member/channel tables of a
// resident guild survive the update.
func (c *Cache) StoreGuild(raw map[string]any) (*models.Guild, error) {
	var guild models.Guild
	if err := decodeEntity("guild", raw, &guild, "id", "name", "owner_id"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if resident, ok := c.guilds[guild.ID]; ok {
		resident.Name = guild.Name
		resident.Icon = guild.Icon
		resident.OwnerID = guild.OwnerID
		return resident, nil
	}
	guild.Roles = make(map[snowflake.ID]any)
	guild.Members = make(map[snowflake.ID]*models.Member)
	guild.Channels = make(map[snowflake.ID]*models.Channel)
	c.guilds[guild.ID] = &guild
	return &guild, nil
}

func (c *Cache) GetGuild(id snowflake.ID) (*models.Guild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	guild, ok := c.guilds[id]
	return guild, ok
}

func (c *Cache) StoreChannel(raw map[string]any) (*models.Channel, error) {
	var channel models.Channel
	if err := decodeEntity("channel", raw, &channel, "id", "name", "type"); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if resident, ok := c.channels[channel.ID]; ok {
		*resident = channel
		return resident, nil
	}
	c.channels[channel.ID] = &channel
	return &channel, nil
}

func (c *Cache) GetChannel(id snowflake.ID) (*models.Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	channel, ok := c.channels[id]
	return channel, ok
}

// Clear empties every table. Called once per session teardown.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = make(map[snowflake.ID]*models.User)
	c.guilds = make(map[snowflake.ID]*models.Guild)
	c.channels = make(map[snowflake.ID]*models.Channel)
	c.messages = make(map[snowflake.ID]*models.Message)
}

func decodeEntity(kind string, raw map[string]any, out any, required ...string) error {
	var missing []string
	for _, key := range required {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &MalformedEntityError{Kind: kind, Missing: missing}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     out,
		DecodeHook: SnowflakeHook,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return &MalformedEntityError{Kind: kind, Err: err}
	}
	return nil
}

// SnowflakeHook converts decimal-string identifiers into snowflake IDs
// while mapstructure walks a raw payload.
func SnowflakeHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(snowflake.ID(0)) {
		return data, nil
	}
	return snowflake.Parse(data.(string))
}
