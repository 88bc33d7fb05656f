package chat

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	errs "github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
)

// CreateRoom creates a room and selects it. The ownership record and
// the room container are two independent writes with no transaction: if
// the container write fails the room still appears in the directory and
// sends treat its missing message collection as empty.
func (c *Client) CreateRoom(ctx context.Context, name string) (models.Room, error) {
	c.mu.Lock()
	identity := c.identity
	count := len(c.rooms)
	c.mu.Unlock()

	if identity == nil {
		return models.Room{}, errs.ErrNotSignedIn
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Chatroom %d", count+1)
	}
	id := uuid.NewString()

	if err := c.store.Set(ctx, userRoomPath(identity.ID, id), roomRecord{Name: name}); err != nil {
		c.banners.Error("Failed to create chatroom", "Please try again.")
		return models.Room{}, err
	}

	if err := c.store.Set(ctx, roomPath(id), roomRecord{Name: name}); err != nil {
		// Recoverable inconsistency: directory entry without container.
		c.log.Warn("room container write failed",
			zap.String("room", id), zap.Error(err))
	}

	c.setSelected(id)
	c.banners.Info("Chatroom created", name)
	return models.Room{ID: id, Name: name}, nil
}

// DeleteRoom removes the ownership record and the room's message
// collection. The two removals are independent and idempotent; a
// partial delete is reported but not rolled back. If the deleted room
// was selected, selection falls back to the first remaining room.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	c.mu.Lock()
	identity := c.identity
	owned := containsRoom(c.rooms, roomID)
	c.mu.Unlock()

	if identity == nil {
		return errs.ErrNotSignedIn
	}
	// Only rooms in the identity's own directory may be deleted; the
	// container namespace is shared across identities.
	if !owned {
		return errs.ErrRoomNotFound
	}

	err := stderrors.Join(
		c.store.Delete(ctx, userRoomPath(identity.ID, roomID)),
		c.store.Delete(ctx, roomPath(roomID)),
	)
	if err != nil {
		c.banners.Error("Failed to delete chatroom", "Please try again.")
		return err
	}

	c.mu.Lock()
	next := ""
	fallback := c.selected == roomID
	if fallback {
		for _, r := range c.rooms {
			if r.ID != roomID {
				next = r.ID
				break
			}
		}
	}
	c.mu.Unlock()

	if fallback {
		c.setSelected(next)
	}
	c.banners.Info("Chatroom deleted", "")
	return nil
}

// ensureRoom returns the room a send should target, lazily creating a
// default room when the identity owns none. Sending the first message
// can therefore implicitly create "Chatroom 1".
func (c *Client) ensureRoom(ctx context.Context) (string, error) {
	c.mu.Lock()
	selected := c.selected
	first := ""
	if len(c.rooms) > 0 {
		first = c.rooms[0].ID
	}
	c.mu.Unlock()

	if selected != "" {
		return selected, nil
	}
	if first != "" {
		c.setSelected(first)
		return first, nil
	}

	room, err := c.CreateRoom(ctx, "")
	if err != nil {
		return "", err
	}
	return room.ID, nil
}
