// Copyright (c) 2025 BVK Chaitanya

// Package telegram sends trade alerts to the authorized users and serves
// read-only bot commands.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/store"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type Options struct {
	// ServerURL overrides the bot api server.
	ServerURL string
}

type Client struct {
	cg ctxutil.CloseGroup

	st *store.Store

	mu sync.Mutex

	bot *bot.Bot

	self *models.User

	secrets *Secrets

	state *gobs.TelegramState

	commandMap map[string]*Command
}

var start = time.Now()

func New(ctx context.Context, st *store.Store, secrets *Secrets, opts *Options) (_ *Client, status error) {
	if err := secrets.Check(); err != nil {
		return nil, err
	}

	c := &Client{
		st:         st,
		secrets:    secrets.Clone(),
		commandMap: make(map[string]*Command),
	}

	bopts := []bot.Option{
		bot.WithDefaultHandler(c.handler),
	}
	if opts != nil && opts.ServerURL != "" {
		bopts = append(bopts, bot.WithServerURL(opts.ServerURL))
	}
	b, err := bot.New(secrets.BotToken, bopts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if status != nil {
			b.Close(ctx)
		}
	}()
	c.bot = b

	self, err := b.GetMe(ctx)
	if err != nil {
		return nil, err
	}
	c.self = self

	state, err := c.loadState(ctx)
	if err != nil {
		return nil, err
	}
	c.state = state

	c.commandMap["uptime"] = &Command{Purpose: "Prints spotbot uptime", Handler: c.uptime}
	c.commandMap["version"] = &Command{Purpose: "Prints version information", Handler: c.version}
	if err := c.setCommands(ctx); err != nil {
		return nil, err
	}

	c.cg.Go(func(ctx context.Context) {
		c.bot.Start(ctx)
	})
	return c, nil
}

func (c *Client) Close() error {
	c.cg.Close()
	return nil
}

func (c *Client) BotUserName() string {
	return c.self.Username
}

func (c *Client) OwnerUserName() string {
	return c.secrets.OwnerID
}

func stateKey(botName string) string {
	return path.Join("telegram", botName)
}

func (c *Client) loadState(ctx context.Context) (state *gobs.TelegramState, err error) {
	err = c.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		state, err = store.GetValue[gobs.TelegramState](ctx, tx, stateKey(c.BotUserName()))
		return err
	})
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		state = new(gobs.TelegramState)
	}
	if state.UserChatIDMap == nil {
		state.UserChatIDMap = make(map[string]int64)
	}
	return state, nil
}

// updateChatID records the chat id of an authorized user. Notifications can
// only be sent to the users who messaged the bot at least once.
func (c *Client) updateChatID(ctx context.Context, user string, chatID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.state.UserChatIDMap[user]; ok && id == chatID {
		return nil
	}
	c.state.UserChatIDMap[user] = chatID
	slog.Info("updating chat id of authorized user", "user", user, "chat-id", chatID)

	return c.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		return store.SetValue(ctx, tx, stateKey(c.BotUserName()), c.state)
	})
}

// SendMessage notifies the owner and the other users. Failures to notify
// individual users are logged and ignored.
func (c *Client) SendMessage(ctx context.Context, at time.Time, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := at.Format("2006-01-02 15:04:05 MST") + " " + text
	slog.Info("sending notification", "at", at, "message", text)

	receivers := append([]string{c.secrets.OwnerID}, c.secrets.OtherIDs...)
	sent := 0
	for _, receiver := range receivers {
		cid, ok := c.state.UserChatIDMap[receiver]
		if !ok {
			slog.Warn("could not notify receiver without chat id", "receiver", receiver)
			continue
		}
		m := &bot.SendMessageParams{
			ChatID: cid,
			Text:   msg,
		}
		if _, err := c.bot.SendMessage(ctx, m); err != nil {
			slog.Error("could not notify receiver (ignored)", "receiver", receiver, "err", err)
			continue
		}
		sent++
	}
	if sent == 0 {
		return fmt.Errorf("could not notify any receiver")
	}
	return nil
}
