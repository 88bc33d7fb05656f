package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Remote asks an external reply-generation endpoint for a response. The
// call sits behind a circuit breaker so a dead endpoint stops costing a
// round trip on every send.
type Remote struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

type remoteRequest struct {
	ChatroomID string `json:"chatroomId"`
	MessageID  string `json:"messageId"`
	Message    string `json:"message"`
}

type remoteResponse struct {
	Reply string `json:"reply"`
}

// NewRemote creates a remote responder for the given endpoint.
func NewRemote(url string, timeout time.Duration, log *zap.Logger) *Remote {
	st := gobreaker.Settings{
		Name:    "chatbot",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("chatbot circuit breaker state",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}

	return &Remote{
		url:    url,
		client: &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
		log:    log,
	}
}

// Reply posts the message to the endpoint and returns the reply string.
func (r *Remote) Reply(ctx context.Context, req Request) (string, error) {
	out, err := r.cb.Execute(func() (interface{}, error) {
		return r.call(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

func (r *Remote) call(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(remoteRequest{
		ChatroomID: req.RoomID,
		MessageID:  req.MessageID,
		Message:    req.Text,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chatbot endpoint returned %d", resp.StatusCode)
	}

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse chatbot response: %w", err)
	}
	return parsed.Reply, nil
}
