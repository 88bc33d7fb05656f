package chat

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/bot"
	errs "github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

// Send appends a message authored by the signed-in identity to the
// selected room, creating a default room first if none exists. After a
// successful append the auto-responder runs best effort: its reply is
// appended as "System", and its failure never fails the send.
//
// No local state changes on failure; the live query reconciles the
// displayed list from the backend's authoritative state either way.
func (c *Client) Send(ctx context.Context, text string) error {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()

	if identity == nil {
		return errs.ErrNotSignedIn
	}

	text = strings.TrimSpace(text)
	if text == "" {
		c.banners.Error("Cannot send message", "Message is empty.")
		return errs.ErrEmptyMessage
	}

	roomID, err := c.ensureRoom(ctx)
	if err != nil {
		c.banners.Error("Failed to send message", "Please try again.")
		return err
	}

	msgID, err := c.store.Push(ctx, roomMessagesPath(roomID), messageRecord{
		User: identity.AuthorName(),
		Text: text,
	})
	if err != nil {
		c.banners.Error("Failed to send message", "Please try again.")
		return err
	}

	c.autoReply(ctx, roomID, msgID, text)
	return nil
}

// SetDraft stores the composer buffer.
func (c *Client) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Draft returns the composer buffer.
func (c *Client) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// SendDraft sends the composer buffer. The buffer is cleared only after
// the append succeeds, preserving the draft for retry on failure.
func (c *Client) SendDraft(ctx context.Context) error {
	draft := c.Draft()
	if err := c.Send(ctx, draft); err != nil {
		return err
	}

	c.mu.Lock()
	if c.draft == draft {
		c.draft = ""
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) autoReply(ctx context.Context, roomID, messageID, text string) {
	if c.responder == nil {
		return
	}

	reply, err := c.responder.Reply(ctx, bot.Request{
		RoomID:    roomID,
		MessageID: messageID,
		Text:      text,
	})
	if err != nil {
		c.log.Warn("auto-reply failed", zap.String("room", roomID), zap.Error(err))
		return
	}
	if reply == "" {
		return
	}

	if _, err := c.store.Push(ctx, roomMessagesPath(roomID), messageRecord{
		User: models.SystemAuthor,
		Text: reply,
	}); err != nil {
		c.log.Warn("failed to append auto-reply", zap.String("room", roomID), zap.Error(err))
	}
}
