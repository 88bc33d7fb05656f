// Package bot generates optional auto-replies to sent messages. The two
// strategies (canned-random and remote) are interchangeable behind the
// Responder interface and selected by configuration; a reply is always
// best effort and never blocks or fails the primary send.
package bot

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/config"
)

// Request carries the message the responder may reply to.
type Request struct {
	RoomID    string
	MessageID string
	Text      string
}

// Responder produces an optional reply to a sent message. An empty reply
// with a nil error means "nothing to say".
type Responder interface {
	Reply(ctx context.Context, req Request) (string, error)
}

// cannedReplies is the fixed response set of the canned strategy.
var cannedReplies = []string{
	"Hello! How can I help you today?",
	"That's interesting, tell me more.",
	"I'm just a bot, but I'm listening.",
	"Could you elaborate on that?",
	"Good point. What happened next?",
	"Thanks for sharing!",
}

// Canned picks one reply uniformly at random from a fixed list.
type Canned struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewCanned creates a canned responder seeded from the clock.
func NewCanned() *Canned {
	return NewCannedWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewCannedWithRand creates a canned responder with an explicit source,
// which makes replies reproducible in tests.
func NewCannedWithRand(rng *rand.Rand) *Canned {
	return &Canned{rng: rng}
}

// Reply returns one member of the fixed reply set.
func (c *Canned) Reply(ctx context.Context, req Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cannedReplies[c.rng.Intn(len(cannedReplies))], nil
}

// Replies exposes the fixed response set.
func Replies() []string {
	return append([]string(nil), cannedReplies...)
}

// FromConfig builds the configured responder, or nil when auto-replies
// are disabled.
func FromConfig(cfg config.ChatbotConfig, log *zap.Logger) Responder {
	switch cfg.Mode {
	case "remote":
		return NewRemote(cfg.URL, cfg.Timeout, log)
	case "off":
		return nil
	default:
		return NewCanned()
	}
}
