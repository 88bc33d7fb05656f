// Package chat implements the chat client core: it mirrors the live
// store's room directory and the selected room's message stream into
// local view state, and issues all mutations (room create/delete,
// message send, auto-reply).
//
// The displayed state always reflects confirmed backend state: the
// client performs no optimistic local append, every snapshot from the
// store replaces the corresponding local collection wholesale, and a
// snapshot from a torn-down subscription is never applied.
package chat

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/bot"
	errs "github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
	"github.com/PatricioTamez/orchestrator2.0/internal/notify"
	"github.com/PatricioTamez/orchestrator2.0/internal/session"
	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

// Client is one identity's view of the chat system.
type Client struct {
	store     store.LiveStore
	responder bot.Responder
	log       *zap.Logger

	sess    *session.Session
	banners *notify.Bus

	ctx    context.Context
	cancel context.CancelFunc

	unsubSession func()

	mu       sync.Mutex
	uid      string
	identity *models.Identity
	rooms    []models.Room
	selected string
	messages []models.Message
	draft    string

	roomsSub store.Subscription
	msgSub   store.Subscription
	msgRoom  string

	watchers    map[int]chan struct{}
	nextWatcher int
}

// NewClient creates a client bound to nothing; it starts mirroring when
// its session receives an identity and stops when the identity clears.
func NewClient(st store.LiveStore, responder bot.Responder, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		store:     st,
		responder: responder,
		log:       log,
		sess:      session.New(),
		banners:   notify.NewBus(),
		ctx:       ctx,
		cancel:    cancel,
		watchers:  make(map[int]chan struct{}),
	}
	c.unsubSession = c.sess.Subscribe(c.onSession)
	return c
}

// Session returns the client's session state holder.
func (c *Client) Session() *session.Session { return c.sess }

// Banners returns the client's notification channel.
func (c *Client) Banners() *notify.Bus { return c.banners }

// Identity returns the identity currently being mirrored, or nil.
func (c *Client) Identity() *models.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// Rooms returns the current room list in backend key order.
func (c *Client) Rooms() []models.Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Room(nil), c.rooms...)
}

// Selected returns the selected room id, or "" when none is selected.
func (c *Client) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Messages returns the selected room's message list in insertion order.
func (c *Client) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// Subscribe registers a state-change ticker: the channel receives a
// token after any change to rooms, selection or messages. Latest-wins;
// a slow consumer sees one coalesced tick.
func (c *Client) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	id := c.nextWatcher
	c.nextWatcher++
	c.watchers[id] = ch
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

// Select switches the message stream to the given room. The previous
// room's subscription is released before the new one is acquired.
func (c *Client) Select(roomID string) error {
	c.mu.Lock()
	found := false
	for _, r := range c.rooms {
		if r.ID == roomID {
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return errs.ErrRoomNotFound
	}
	c.setSelected(roomID)
	return nil
}

// Close tears down all subscriptions and stops the client.
func (c *Client) Close() {
	if c.unsubSession != nil {
		c.unsubSession()
	}
	c.cancel()
	c.teardown()
}

// onSession reacts to session-change notifications: an identity starts
// the room directory mirror, its absence releases everything.
func (c *Client) onSession(st session.State) {
	if !st.Ready {
		return
	}
	if st.Identity == nil {
		c.teardown()
		return
	}
	c.syncIdentity(st.Identity)
}

func (c *Client) syncIdentity(identity *models.Identity) {
	c.mu.Lock()
	if c.uid == identity.ID {
		// Same identity, refreshed profile.
		c.identity = identity
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.teardown()

	c.mu.Lock()
	c.uid = identity.ID
	c.identity = identity
	c.mu.Unlock()

	sub, err := c.store.Watch(c.ctx, userRoomsPath(identity.ID))
	if err != nil {
		c.log.Error("room directory watch failed",
			zap.String("uid", identity.ID), zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.uid != identity.ID {
		c.mu.Unlock()
		sub.Close()
		return
	}
	c.roomsSub = sub
	c.mu.Unlock()

	go c.pumpRooms(identity.ID, sub)
}

// pumpRooms applies room directory snapshots. Every snapshot replaces
// the whole local room list; the uid and subscription guards drop
// anything delivered after a teardown or identity switch.
func (c *Client) pumpRooms(uid string, sub store.Subscription) {
	for snap := range sub.Updates() {
		rooms := decodeRooms(snap)

		c.mu.Lock()
		if c.uid != uid || c.roomsSub != sub {
			c.mu.Unlock()
			return
		}
		c.rooms = rooms

		// Reconcile the selection: adopt the first room when nothing is
		// selected, fall back when the selected room disappeared.
		next := c.selected
		switch {
		case c.selected == "" && len(rooms) > 0:
			next = rooms[0].ID
		case c.selected != "" && !containsRoom(rooms, c.selected):
			next = ""
			if len(rooms) > 0 {
				next = rooms[0].ID
			}
		}
		reselect := next != c.selected
		c.mu.Unlock()

		if reselect {
			c.setSelected(next)
		} else {
			c.changed()
		}
	}
}

// setSelected records the selection and swaps the message stream:
// release the old subscription first, then acquire the new one, so at
// most one message subscription is live at any time.
func (c *Client) setSelected(roomID string) {
	c.mu.Lock()
	if c.selected == roomID && c.msgRoom == roomID {
		c.mu.Unlock()
		return
	}
	old := c.msgSub
	c.msgSub = nil
	c.selected = roomID
	c.msgRoom = roomID
	c.messages = nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.changed()

	if roomID == "" {
		return
	}

	sub, err := c.store.Watch(c.ctx, roomMessagesPath(roomID))
	if err != nil {
		c.log.Error("message stream watch failed",
			zap.String("room", roomID), zap.Error(err))
		return
	}

	c.mu.Lock()
	if c.msgRoom != roomID {
		// Reselected while acquiring; this subscription lost the race.
		c.mu.Unlock()
		sub.Close()
		return
	}
	c.msgSub = sub
	c.mu.Unlock()

	go c.pumpMessages(roomID, sub)
}

// pumpMessages applies message snapshots for one room. The room guard
// drops stale snapshots after a reselect: a message belonging to room A
// is never rendered into room B's list.
func (c *Client) pumpMessages(roomID string, sub store.Subscription) {
	for snap := range sub.Updates() {
		msgs := decodeMessages(snap)

		c.mu.Lock()
		if c.msgRoom != roomID || c.msgSub != sub {
			c.mu.Unlock()
			return
		}
		c.messages = msgs
		c.mu.Unlock()

		c.changed()
	}
}

// teardown releases every subscription and clears local mirrors.
func (c *Client) teardown() {
	c.mu.Lock()
	roomsSub, msgSub := c.roomsSub, c.msgSub
	c.roomsSub, c.msgSub = nil, nil
	c.uid = ""
	c.identity = nil
	c.rooms = nil
	c.messages = nil
	c.selected = ""
	c.msgRoom = ""
	c.draft = ""
	c.mu.Unlock()

	if msgSub != nil {
		msgSub.Close()
	}
	if roomsSub != nil {
		roomsSub.Close()
	}
	c.changed()
}

func (c *Client) changed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func decodeRooms(snap store.Snapshot) []models.Room {
	rooms := make([]models.Room, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		var rec roomRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		rooms = append(rooms, models.Room{ID: e.Key, Name: rec.Name})
	}
	return rooms
}

func decodeMessages(snap store.Snapshot) []models.Message {
	msgs := make([]models.Message, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		var rec messageRecord
		if err := json.Unmarshal(e.Value, &rec); err != nil {
			continue
		}
		msgs = append(msgs, models.Message{ID: e.Key, User: rec.User, Text: rec.Text})
	}
	return msgs
}

func containsRoom(rooms []models.Room, id string) bool {
	for _, r := range rooms {
		if r.ID == id {
			return true
		}
	}
	return false
}
