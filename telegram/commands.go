// Copyright (c) 2025 BVK Chaitanya

package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/visvasity/cli"
)

type CmdFunc = cli.CmdFunc

type Command struct {
	Purpose string
	Handler CmdFunc
}

// AddCommand registers a bot command. Handler output written to the
// cli.Stdout of the context is sent as the reply.
func (c *Client) AddCommand(ctx context.Context, name, purpose string, handler CmdFunc) error {
	if len(name) == 0 || len(purpose) == 0 || handler == nil {
		return os.ErrInvalid
	}
	c.mu.Lock()
	if _, ok := c.commandMap[name]; ok {
		c.mu.Unlock()
		return os.ErrExist
	}
	c.commandMap[name] = &Command{Purpose: purpose, Handler: handler}
	c.mu.Unlock()

	return c.setCommands(ctx)
}

func (c *Client) setCommands(ctx context.Context) error {
	c.mu.Lock()
	var cmds []models.BotCommand
	for name, cdata := range c.commandMap {
		cmds = append(cmds, models.BotCommand{
			Command:     name,
			Description: cdata.Purpose,
		})
	}
	c.mu.Unlock()

	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Command < cmds[j].Command })
	if ok, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds}); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("could not set bot commands")
	}
	return nil
}

// parseCommand splits a bot command message into the command name and its
// arguments. The command must be the first entity of the message.
func parseCommand(text string, entities []models.MessageEntity) (string, []string, error) {
	if len(entities) == 0 || len(text) == 0 {
		return "", nil, os.ErrInvalid
	}
	entity := entities[0]
	if entity.Type != models.MessageEntityTypeBotCommand || entity.Offset != 0 || text[0] != '/' {
		return "", nil, os.ErrInvalid
	}
	if entity.Length < 2 || entity.Length > len(text) {
		return "", nil, os.ErrInvalid
	}
	cmd := text[1:entity.Length]
	// Commands in groups are addressed as /cmd@botname.
	if p := strings.IndexByte(cmd, '@'); p != -1 {
		cmd = cmd[:p]
	}
	args := strings.Fields(text[entity.Length:])
	return cmd, args, nil
}

func (c *Client) isValidUser(user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return user == c.secrets.OwnerID || user == c.secrets.AdminID || slices.Contains(c.secrets.OtherIDs, user)
}

func (c *Client) handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	sender := update.Message.From.Username
	if !c.isValidUser(sender) {
		slog.Warn("received message from unauthorized user (ignored)", "sender", sender, "message", update.Message.Text)
		return
	}

	if err := c.updateChatID(ctx, sender, update.Message.Chat.ID); err != nil {
		slog.Warn("could not update chat id (ignored)", "err", err)
	}

	reply := c.run(ctx, update.Message.Text, update.Message.Entities)
	if len(reply) == 0 {
		return
	}
	disabled := true
	p := &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   reply,
		ReplyParameters: &models.ReplyParameters{
			MessageID: update.Message.ID,
		},
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disabled,
		},
	}
	if _, err := b.SendMessage(ctx, p); err != nil {
		slog.Error("could not respond to user command (ignored)", "user", sender, "err", err)
	}
}

// run executes the command in the message and returns the reply text.
// Failures are reported in the reply.
func (c *Client) run(ctx context.Context, text string, entities []models.MessageEntity) string {
	cmd, args, err := parseCommand(text, entities)
	if err != nil {
		return "not a command"
	}

	c.mu.Lock()
	cdata, ok := c.commandMap[cmd]
	c.mu.Unlock()
	if !ok {
		return fmt.Sprintf("unknown command %q", cmd)
	}

	var sb strings.Builder
	if err := cdata.Handler(cli.WithStdout(ctx, &sb), args); err != nil {
		slog.Error("could not handle user command", "cmd", cmd, "err", err)
		return err.Error()
	}
	return sb.String()
}

func formatUptime(d time.Duration) string {
	const day = 24 * time.Hour
	d = d.Round(time.Second)
	if d < day {
		return d.String()
	}
	return fmt.Sprintf("%dd%v", d/day, d%day)
}

func (c *Client) uptime(ctx context.Context, args []string) error {
	fmt.Fprint(cli.Stdout(ctx), formatUptime(time.Since(start)))
	return nil
}

func (c *Client) version(ctx context.Context, _ []string) error {
	stdout := cli.Stdout(ctx)
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return fmt.Errorf("could not read build information")
	}
	// Dependency versions can overflow the message size limits.
	fmt.Fprintln(stdout, "Go: ", info.GoVersion)
	fmt.Fprintln(stdout, "Main Module Path: ", info.Main.Path)
	fmt.Fprintln(stdout, "Main Module Version: ", info.Main.Version)
	for _, s := range info.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			fmt.Fprintln(stdout, s.Key, ": ", s.Value)
		}
	}
	return nil
}
