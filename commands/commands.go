// Package commands layers a prefix command dispatcher over the client:
// a MESSAGE_CREATE handler splits the content into a command name and
// arguments and invokes the registered command.
package commands

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aikolib/aiko/client"
	"github.com/aikolib/aiko/logger/dlog"
	"github.com/aikolib/aiko/models"
)

// Context carries everything a command needs to answer the invoking
// message.
type Context struct {
	Message *models.Message
	Bot     *Bot
	Args    []string
}

func (ctx *Context) Author() *models.User {
	return ctx.Message.Author
}

func (ctx *Context) Send(content string) (any, error) {
	return ctx.Bot.SendMessage(ctx.Message.ChannelID, content)
}

// Reply mentions the invoking author before the content.
func (ctx *Context) Reply(content string) (any, error) {
	return ctx.Send(fmt.Sprintf("%s %s", ctx.Message.Author.Mention(), content))
}

type Command struct {
	Name string
	Run  func(ctx *Context) error
}

// Bot is a Client with a command prefix. Commands are registered
// explicitly by name; registering a name again replaces the previous
// command.
type Bot struct {
	*client.Client
	Prefix string

	mu       sync.Mutex
	commands map[string]*Command
}

func NewBot(prefix string) *Bot {
	b := &Bot{
		Client:   client.New(),
		Prefix:   prefix,
		commands: make(map[string]*Command),
	}
	b.On("MESSAGE_CREATE", b.onMessage)
	return b
}

func (b *Bot) Command(name string, run func(ctx *Context) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commands[name] = &Command{Name: name, Run: run}
}

func (b *Bot) onMessage(event any) {
	message, ok := event.(*models.Message)
	if !ok {
		return
	}
	if !strings.HasPrefix(message.Content, b.Prefix) {
		return
	}

	parts := strings.Fields(strings.TrimPrefix(message.Content, b.Prefix))
	if len(parts) == 0 {
		return
	}

	b.mu.Lock()
	command, ok := b.commands[parts[0]]
	b.mu.Unlock()
	if !ok {
		return
	}

	ctx := &Context{Message: message, Bot: b, Args: parts[1:]}
	if err := command.Run(ctx); err != nil {
		dlog.Error("error invoking command", "command", command.Name, "err", err)
	}
}
