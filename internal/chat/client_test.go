package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/bot"
	errs "github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/mocks"
	"github.com/PatricioTamez/orchestrator2.0/internal/models"
	"github.com/PatricioTamez/orchestrator2.0/internal/store/memory"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testIdentity() *models.Identity {
	return &models.Identity{ID: "u1", DisplayName: "Alice", Email: "alice@example.com"}
}

// newTestClient builds a client over an in-memory store wrapped in a
// StoreStub for failure injection, with a fixed-reply responder.
func newTestClient(t *testing.T) (*Client, *mocks.StoreStub, *mocks.MockResponder) {
	t.Helper()
	stub := &mocks.StoreStub{Inner: memory.New()}
	responder := mocks.NewMockResponder("mock reply")
	c := NewClient(stub, responder, zap.NewNop())
	t.Cleanup(c.Close)
	return c, stub, responder
}

func signIn(c *Client, identity *models.Identity) {
	c.Session().MarkReady(identity)
}

func TestClientStartsEmptyBeforeSignIn(t *testing.T) {
	c, _, _ := newTestClient(t)

	assert.Nil(t, c.Identity())
	assert.Empty(t, c.Rooms())
	assert.Empty(t, c.Selected())
	assert.Empty(t, c.Messages())
}

func TestRoomDirectoryMirrorsAndSelectsFirst(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	roomA, err := c.CreateRoom(context.Background(), "Alpha")
	require.NoError(t, err)
	roomB, err := c.CreateRoom(context.Background(), "Beta")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 2
	}, waitFor, tick)

	ids := []string{c.Rooms()[0].ID, c.Rooms()[1].ID}
	assert.Contains(t, ids, roomA.ID)
	assert.Contains(t, ids, roomB.ID)

	// Creating a room selects it.
	assert.Equal(t, roomB.ID, c.Selected())
}

func TestSelectUnknownRoom(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	err := c.Select("no-such-room")
	assert.ErrorIs(t, err, errs.ErrRoomNotFound)
}

func TestSendAppendsMessageAndAutoReply(t *testing.T) {
	c, _, responder := newTestClient(t)
	signIn(c, testIdentity())

	room, err := c.CreateRoom(context.Background(), "General")
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), "hello there"))

	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, waitFor, tick)

	msgs := c.Messages()
	assert.Equal(t, "Alice", msgs[0].User)
	assert.Equal(t, "hello there", msgs[0].Text)
	assert.Equal(t, models.SystemAuthor, msgs[1].User)
	assert.Equal(t, "mock reply", msgs[1].Text)

	require.Len(t, responder.Requests, 1)
	assert.Equal(t, room.ID, responder.Requests[0].RoomID)
	assert.Equal(t, "hello there", responder.Requests[0].Text)
	assert.Equal(t, msgs[0].ID, responder.Requests[0].MessageID)
}

func TestSendRequiresSignIn(t *testing.T) {
	c, _, _ := newTestClient(t)

	err := c.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, errs.ErrNotSignedIn)
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	banners, cancel := c.Banners().Subscribe()
	defer cancel()

	err := c.Send(context.Background(), "   \t  ")
	assert.ErrorIs(t, err, errs.ErrEmptyMessage)
	assert.Empty(t, c.Rooms())

	select {
	case b := <-banners:
		assert.Equal(t, "Cannot send message", b.Title)
	case <-time.After(waitFor):
		t.Fatal("expected an error banner")
	}
}

func TestFirstSendCreatesDefaultRoom(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	require.NoError(t, c.Send(context.Background(), "first message"))

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 1
	}, waitFor, tick)

	assert.Equal(t, "Chatroom 1", c.Rooms()[0].Name)
	assert.Equal(t, c.Rooms()[0].ID, c.Selected())

	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, waitFor, tick)
	assert.Equal(t, "first message", c.Messages()[0].Text)
	assert.Equal(t, models.SystemAuthor, c.Messages()[1].User)
}

func TestSendsArriveInOrder(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	_, err := c.CreateRoom(context.Background(), "Ordered")
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), "a"))
	require.NoError(t, c.Send(context.Background(), "b"))
	require.NoError(t, c.Send(context.Background(), "c"))

	require.Eventually(t, func() bool {
		return len(c.Messages()) == 6
	}, waitFor, tick)

	var sent []string
	for _, m := range c.Messages() {
		if m.User == "Alice" {
			sent = append(sent, m.Text)
		}
	}
	assert.Equal(t, []string{"a", "b", "c"}, sent)
}

func TestSwitchingRoomsDoesNotMixStreams(t *testing.T) {
	c, stub, _ := newTestClient(t)
	signIn(c, testIdentity())

	roomA, err := c.CreateRoom(context.Background(), "A")
	require.NoError(t, err)
	roomB, err := c.CreateRoom(context.Background(), "B")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 2
	}, waitFor, tick)

	require.NoError(t, c.Select(roomA.ID))
	require.NoError(t, c.Send(context.Background(), "for room A"))

	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, waitFor, tick)

	require.NoError(t, c.Select(roomB.ID))
	require.Eventually(t, func() bool {
		return c.Selected() == roomB.ID && len(c.Messages()) == 0
	}, waitFor, tick)

	// A write into the previous room must never surface in room B's list.
	_, err = stub.Inner.Push(context.Background(), roomMessagesPath(roomA.ID),
		messageRecord{User: "Alice", Text: "late for A"})
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), "for room B"))
	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, waitFor, tick)

	for _, m := range c.Messages() {
		assert.NotEqual(t, "for room A", m.Text)
		assert.NotEqual(t, "late for A", m.Text)
	}
}

func TestDeleteSelectedRoomFallsBack(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	roomA, err := c.CreateRoom(context.Background(), "A")
	require.NoError(t, err)
	roomB, err := c.CreateRoom(context.Background(), "B")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 2
	}, waitFor, tick)

	require.Equal(t, roomB.ID, c.Selected())
	require.NoError(t, c.DeleteRoom(context.Background(), roomB.ID))

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 1 && c.Selected() == roomA.ID
	}, waitFor, tick)
}

func TestDeleteLastRoomClearsSelection(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	room, err := c.CreateRoom(context.Background(), "Only")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 1
	}, waitFor, tick)

	require.NoError(t, c.DeleteRoom(context.Background(), room.ID))

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 0 && c.Selected() == ""
	}, waitFor, tick)
	assert.Empty(t, c.Messages())
}

func TestDeleteRoomRequiresOwnership(t *testing.T) {
	shared := memory.New()
	alice := NewClient(&mocks.StoreStub{Inner: shared}, nil, zap.NewNop())
	t.Cleanup(alice.Close)
	intruder := NewClient(&mocks.StoreStub{Inner: shared}, nil, zap.NewNop())
	t.Cleanup(intruder.Close)

	signIn(alice, testIdentity())
	signIn(intruder, &models.Identity{ID: "u2", DisplayName: "Mallory"})

	room, err := alice.CreateRoom(context.Background(), "Private")
	require.NoError(t, err)
	require.NoError(t, alice.Send(context.Background(), "keep this"))

	require.Eventually(t, func() bool {
		return len(alice.Messages()) == 1
	}, waitFor, tick)

	// A room absent from the caller's own directory cannot be deleted.
	err = intruder.DeleteRoom(context.Background(), room.ID)
	assert.ErrorIs(t, err, errs.ErrRoomNotFound)

	snap, err := shared.Get(context.Background(), roomMessagesPath(room.ID))
	require.NoError(t, err)
	assert.Len(t, snap.Entries, 1, "the owner's messages survive")
	require.Eventually(t, func() bool {
		return len(alice.Rooms()) == 1
	}, waitFor, tick)
}

func TestSendFailurePreservesDraft(t *testing.T) {
	c, stub, _ := newTestClient(t)
	signIn(c, testIdentity())

	_, err := c.CreateRoom(context.Background(), "General")
	require.NoError(t, err)

	banners, cancel := c.Banners().Subscribe()
	defer cancel()

	pushErr := errors.New("backend unavailable")
	stub.PushFunc = func(ctx context.Context, path string, value any) (string, error) {
		return "", pushErr
	}

	c.SetDraft("do not lose me")
	err = c.SendDraft(context.Background())
	assert.ErrorIs(t, err, pushErr)
	assert.Equal(t, "do not lose me", c.Draft())

	select {
	case b := <-banners:
		assert.Equal(t, "Failed to send message", b.Title)
	case <-time.After(waitFor):
		t.Fatal("expected an error banner")
	}

	// Retry succeeds once the backend recovers and clears the draft.
	stub.PushFunc = nil
	require.NoError(t, c.SendDraft(context.Background()))
	assert.Empty(t, c.Draft())
}

func TestCreateRoomToleratesContainerWriteFailure(t *testing.T) {
	c, stub, _ := newTestClient(t)
	signIn(c, testIdentity())

	// Fail only the global container write; the ownership record lands.
	stub.SetFunc = func(ctx context.Context, path string, value any) error {
		if strings.HasPrefix(path, "chatrooms/") {
			return errors.New("write failed")
		}
		return stub.Inner.Set(ctx, path, value)
	}

	room, err := c.CreateRoom(context.Background(), "Partial")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 1
	}, waitFor, tick)
	assert.Equal(t, room.ID, c.Rooms()[0].ID)

	// Sends into the partially created room still work.
	stub.SetFunc = nil
	require.NoError(t, c.Send(context.Background(), "still works"))
	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, waitFor, tick)
}

func TestAutoReplyFailureDoesNotFailSend(t *testing.T) {
	c, _, responder := newTestClient(t)
	signIn(c, testIdentity())

	responder.ReplyFunc = func(ctx context.Context, req bot.Request) (string, error) {
		return "", errors.New("responder down")
	}

	_, err := c.CreateRoom(context.Background(), "General")
	require.NoError(t, err)

	require.NoError(t, c.Send(context.Background(), "hello"))

	// Only the user's message lands; no reply, no error surfaced.
	require.Eventually(t, func() bool {
		return len(c.Messages()) == 1
	}, waitFor, tick)
	assert.Equal(t, "hello", c.Messages()[0].Text)
}

func TestSignOutTearsDownState(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	_, err := c.CreateRoom(context.Background(), "General")
	require.NoError(t, err)
	require.NoError(t, c.Send(context.Background(), "hello"))

	require.Eventually(t, func() bool {
		return len(c.Messages()) == 2
	}, waitFor, tick)

	c.Session().Clear()

	require.Eventually(t, func() bool {
		return c.Identity() == nil && len(c.Rooms()) == 0 &&
			c.Selected() == "" && len(c.Messages()) == 0
	}, waitFor, tick)
}

func TestIdentitySwitchReplacesMirror(t *testing.T) {
	c, _, _ := newTestClient(t)
	signIn(c, testIdentity())

	_, err := c.CreateRoom(context.Background(), "Alice's room")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return len(c.Rooms()) == 1
	}, waitFor, tick)

	c.Session().Set(&models.Identity{ID: "u2", DisplayName: "Bob"})

	require.Eventually(t, func() bool {
		return c.Identity() != nil && c.Identity().ID == "u2" && len(c.Rooms()) == 0
	}, waitFor, tick)
	assert.Empty(t, c.Selected())
}

func TestSubscribeTicksOnChange(t *testing.T) {
	c, _, _ := newTestClient(t)
	ticks, cancel := c.Subscribe()
	defer cancel()

	signIn(c, testIdentity())
	_, err := c.CreateRoom(context.Background(), "General")
	require.NoError(t, err)

	select {
	case <-ticks:
	case <-time.After(waitFor):
		t.Fatal("expected a state-change tick")
	}
}
