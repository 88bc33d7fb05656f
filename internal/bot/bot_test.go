package bot

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/config"
)

func TestCanned_Reply(t *testing.T) {
	t.Run("reply is a member of the fixed set", func(t *testing.T) {
		c := NewCanned()

		for i := 0; i < 20; i++ {
			reply, err := c.Reply(context.Background(), Request{Text: "hi"})
			require.NoError(t, err)
			assert.Contains(t, Replies(), reply)
		}
	})

	t.Run("same seed reproduces the same sequence", func(t *testing.T) {
		a := NewCannedWithRand(rand.New(rand.NewSource(42)))
		b := NewCannedWithRand(rand.New(rand.NewSource(42)))

		for i := 0; i < 10; i++ {
			ra, err := a.Reply(context.Background(), Request{Text: "hi"})
			require.NoError(t, err)
			rb, err := b.Reply(context.Background(), Request{Text: "hi"})
			require.NoError(t, err)
			assert.Equal(t, ra, rb)
		}
	})
}

func TestRemote_Reply(t *testing.T) {
	t.Run("posts message context and returns reply", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			json.NewEncoder(w).Encode(map[string]string{"reply": "pong"})
		}))
		defer srv.Close()

		remote := NewRemote(srv.URL, time.Second, zap.NewNop())
		reply, err := remote.Reply(context.Background(), Request{
			RoomID:    "r1",
			MessageID: "m1",
			Text:      "ping",
		})

		require.NoError(t, err)
		assert.Equal(t, "pong", reply)
		assert.Equal(t, "r1", got["chatroomId"])
		assert.Equal(t, "m1", got["messageId"])
		assert.Equal(t, "ping", got["message"])
	})

	t.Run("non-200 response is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		remote := NewRemote(srv.URL, time.Second, zap.NewNop())
		_, err := remote.Reply(context.Background(), Request{Text: "ping"})

		assert.Error(t, err)
	})

	t.Run("unreachable endpoint is an error, not a panic", func(t *testing.T) {
		remote := NewRemote("http://127.0.0.1:1", 100*time.Millisecond, zap.NewNop())

		_, err := remote.Reply(context.Background(), Request{Text: "ping"})

		assert.Error(t, err)
	})

	t.Run("breaker opens after consecutive failures", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		remote := NewRemote(srv.URL, time.Second, zap.NewNop())
		for i := 0; i < 3; i++ {
			_, err := remote.Reply(context.Background(), Request{Text: "ping"})
			assert.Error(t, err)
		}

		_, err := remote.Reply(context.Background(), Request{Text: "ping"})
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	})
}

func TestFromConfig(t *testing.T) {
	log := zap.NewNop()

	assert.IsType(t, &Canned{}, FromConfig(config.ChatbotConfig{Mode: "canned"}, log))
	assert.IsType(t, &Remote{}, FromConfig(config.ChatbotConfig{Mode: "remote", Timeout: time.Second}, log))
	assert.Nil(t, FromConfig(config.ChatbotConfig{Mode: "off"}, log))
}
