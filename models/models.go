// Package models holds the passive entity records mirrored from the
// chat service. Instances are owned by the cache; everything else holds
// references obtained by lookup.
package models

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// CreatedAt recovers the creation instant embedded in an identifier.
func CreatedAt(id snowflake.ID) time.Time {
	return id.Time()
}

type User struct {
	ID            snowflake.ID `json:"id"`
	Username      string       `json:"username"`
	Discriminator string       `json:"discriminator"`
	Avatar        *string      `json:"avatar"`
	Bot           bool         `json:"bot"`
}

func (u *User) Mention() string {
	return fmt.Sprintf("<@%s>", u.ID)
}

func (u *User) DisplayName() string {
	return u.Username
}

func (u *User) CreatedAt() time.Time {
	return u.ID.Time()
}

func (u *User) Tag() string {
	return u.Username + "#" + u.Discriminator
}

// Member is a User carrying guild-scoped fields.
type Member struct {
	User
	Nick     *string        `json:"nick"`
	Roles    []snowflake.ID `json:"roles"`
	JoinedAt string         `json:"joined_at"`
}

// DisplayName prefers the guild nickname over the username.
func (m *Member) DisplayName() string {
	if m.Nick != nil && *m.Nick != "" {
		return *m.Nick
	}
	return m.Username
}

type Guild struct {
	ID      snowflake.ID `json:"id"`
	Name    string       `json:"name"`
	Icon    *string      `json:"icon"`
	OwnerID snowflake.ID `json:"owner_id"`

	Roles    map[snowflake.ID]any      `json:"-"`
	Members  map[snowflake.ID]*Member  `json:"-"`
	Channels map[snowflake.ID]*Channel `json:"-"`
}

func (g *Guild) CreatedAt() time.Time {
	return g.ID.Time()
}

type Channel struct {
	ID      snowflake.ID  `json:"id"`
	Name    string        `json:"name"`
	Type    int           `json:"type"`
	GuildID *snowflake.ID `json:"guild_id"`
}

type Message struct {
	ID              snowflake.ID  `json:"id"`
	ChannelID       snowflake.ID  `json:"channel_id"`
	GuildID         *snowflake.ID `json:"guild_id"`
	Author          *User         `json:"author"`
	Content         string        `json:"content"`
	Timestamp       string        `json:"timestamp"`
	TTS             bool          `json:"tts"`
	MentionEveryone bool          `json:"mention_everyone"`
	Attachments     []any         `json:"attachments"`
	Embeds          []any         `json:"embeds"`
	Reactions       []any         `json:"reactions"`
}

func (m *Message) CreatedAt() time.Time {
	return m.ID.Time()
}
