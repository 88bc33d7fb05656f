// Package wire implements store.LiveStore against a remote hosted live
// store over a websocket. The wire protocol is one JSON frame per
// message: requests carry an op, a client-assigned id, a path and an
// optional value; the server answers with a ctrl frame keyed by the same
// id and pushes data frames with full snapshots for every watched path.
package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PatricioTamez/orchestrator2.0/internal/errors"
	"github.com/PatricioTamez/orchestrator2.0/internal/store"
)

const (
	protoVersion   = "1"
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024

	// Reconnect settings
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 60 * time.Second
	reconnectBackoffMult  = 2.0

	// Response timeout
	responseTimeout = 10 * time.Second
)

// ConnectionState represents the current connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

type request struct {
	Op    string          `json:"op"`
	ID    string          `json:"id,omitempty"`
	Path  string          `json:"path,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Ver   string          `json:"ver,omitempty"`
	UA    string          `json:"ua,omitempty"`
}

type ctrlFrame struct {
	ID      string        `json:"id"`
	Code    int           `json:"code"`
	Text    string        `json:"text,omitempty"`
	Key     string        `json:"key,omitempty"`
	Entries []store.Entry `json:"entries,omitempty"`
}

type dataFrame struct {
	Path    string        `json:"path"`
	Entries []store.Entry `json:"entries"`
}

type frame struct {
	Ctrl *ctrlFrame `json:"ctrl,omitempty"`
	Data *dataFrame `json:"data,omitempty"`
}

// watchState tracks every local subscriber of one remote path.
type watchState struct {
	subs []*subscription
	last *store.Snapshot
}

// Client is a live-store client over a single websocket connection.
type Client struct {
	serverAddr string
	log        *zap.Logger

	mu    sync.RWMutex
	conn  *websocket.Conn
	msgID atomic.Int64

	pendingMu sync.RWMutex
	pending   map[string]chan *ctrlFrame

	watchMu sync.Mutex
	watches map[string]*watchState

	state atomic.Int32

	// Graceful shutdown
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	shutdownMu sync.Mutex
	shutdown   bool

	// Reconnect control
	reconnectMu      sync.Mutex
	reconnectEnabled bool
}

// New creates a client for the hosted store at serverAddr
// (ws:// or wss:// URL).
func New(serverAddr string, log *zap.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		serverAddr:       serverAddr,
		log:              log,
		pending:          make(map[string]chan *ctrlFrame),
		watches:          make(map[string]*watchState),
		ctx:              ctx,
		cancel:           cancel,
		reconnectEnabled: true,
	}
}

// SetReconnectEnabled enables or disables auto-reconnect
func (c *Client) SetReconnectEnabled(enabled bool) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	c.reconnectEnabled = enabled
}

// Connect establishes the websocket connection and performs the hello
// handshake. Safe to call on an already connected client.
func (c *Client) Connect(ctx context.Context) error {
	c.shutdownMu.Lock()
	if c.shutdown {
		c.shutdownMu.Unlock()
		return fmt.Errorf("store client is shut down")
	}
	c.shutdownMu.Unlock()

	if !c.setState(StateDisconnected, StateConnecting) {
		if c.State() >= StateConnected {
			return nil
		}
	}

	if err := c.dial(ctx); err != nil {
		c.setState(StateConnecting, StateDisconnected)
		return err
	}

	if err := c.hello(ctx); err != nil {
		c.closeConn()
		c.setState(StateConnecting, StateDisconnected)
		return fmt.Errorf("handshake failed: %w", err)
	}

	c.setState(StateConnecting, StateConnected)

	c.wg.Add(2)
	go c.readPump()
	go c.pingPump()

	return nil
}

func (c *Client) dial(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.serverAddr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to store: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		c.mu.Unlock()
		return nil
	})
	c.mu.Unlock()

	return nil
}

func (c *Client) hello(ctx context.Context) error {
	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	req := request{
		Op:  "hello",
		ID:  id,
		Ver: protoVersion,
		UA:  "orchestrator/2.0",
	}
	if err := c.send(req); err != nil {
		return err
	}

	_, err := c.waitForCtrl(ctx, respChan, "hello")
	return err
}

// Watch subscribes to the live value at path. The first subscriber for a
// path sends the watch op; later subscribers share the stream and get
// the last known snapshot immediately.
func (c *Client) Watch(ctx context.Context, path string) (store.Subscription, error) {
	sub := &subscription{client: c, path: path, ch: make(chan store.Snapshot, 1)}

	c.watchMu.Lock()
	ws, exists := c.watches[path]
	if !exists {
		ws = &watchState{}
		c.watches[path] = ws
	}
	ws.subs = append(ws.subs, sub)
	if ws.last != nil {
		sub.notify(*ws.last)
	}
	c.watchMu.Unlock()

	if !exists {
		if err := c.sendWatch(ctx, path); err != nil {
			c.watchMu.Lock()
			c.dropSubLocked(sub)
			c.watchMu.Unlock()
			return nil, err
		}
	}
	return sub, nil
}

func (c *Client) sendWatch(ctx context.Context, path string) error {
	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	if err := c.send(request{Op: "watch", ID: id, Path: path}); err != nil {
		return err
	}
	_, err := c.waitForCtrl(ctx, respChan, "watch "+path)
	return err
}

// Get reads the snapshot at path once.
func (c *Client) Get(ctx context.Context, path string) (store.Snapshot, error) {
	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	if err := c.send(request{Op: "get", ID: id, Path: path}); err != nil {
		return store.Snapshot{}, err
	}

	ctrl, err := c.waitForCtrl(ctx, respChan, "get "+path)
	if err != nil {
		return store.Snapshot{}, err
	}
	return store.Snapshot{Path: path, Entries: ctrl.Entries}, nil
}

// Set writes the full record at path.
func (c *Client) Set(ctx context.Context, path string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	if err := c.send(request{Op: "set", ID: id, Path: path, Value: raw}); err != nil {
		return err
	}
	_, err = c.waitForCtrl(ctx, respChan, "set "+path)
	return err
}

// Push appends value under a server-generated key and returns the key.
func (c *Client) Push(ctx context.Context, path string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}

	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	if err := c.send(request{Op: "push", ID: id, Path: path, Value: raw}); err != nil {
		return "", err
	}

	ctrl, err := c.waitForCtrl(ctx, respChan, "push "+path)
	if err != nil {
		return "", err
	}
	if ctrl.Key == "" {
		return "", fmt.Errorf("push %s: no key in response", path)
	}
	return ctrl.Key, nil
}

// Delete removes the subtree at path.
func (c *Client) Delete(ctx context.Context, path string) error {
	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	if err := c.send(request{Op: "del", ID: id, Path: path}); err != nil {
		return err
	}
	_, err := c.waitForCtrl(ctx, respChan, "delete "+path)
	return err
}

// State returns current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected returns true if the connection is established
func (c *Client) IsConnected() bool {
	return c.State() >= StateConnected
}

// Close performs graceful shutdown.
func (c *Client) Close() error {
	c.shutdownMu.Lock()
	if c.shutdown {
		c.shutdownMu.Unlock()
		return nil
	}
	c.shutdown = true
	c.shutdownMu.Unlock()

	c.SetReconnectEnabled(false)
	c.cancel()
	c.closeConn()

	c.watchMu.Lock()
	for _, ws := range c.watches {
		for _, sub := range ws.subs {
			sub.closeChan()
		}
	}
	c.watches = make(map[string]*watchState)
	c.watchMu.Unlock()

	// Wait for pumps with timeout
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.log.Warn("store client shutdown timed out waiting for goroutines")
	}

	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state.Store(int32(StateDisconnected))
}

func (c *Client) setState(from, to ConnectionState) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

func (c *Client) send(req request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(req)
}

func (c *Client) nextID() string {
	return fmt.Sprintf("%d", c.msgID.Add(1))
}

func (c *Client) registerPending(id string) chan *ctrlFrame {
	ch := make(chan *ctrlFrame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *Client) unregisterPending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) waitForCtrl(ctx context.Context, respChan chan *ctrlFrame, operation string) (*ctrlFrame, error) {
	select {
	case ctrl := <-respChan:
		if ctrl.Code >= 200 && ctrl.Code < 300 {
			return ctrl, nil
		}
		text := ctrl.Text
		if text == "" {
			text = "unknown error"
		}
		return nil, fmt.Errorf("%s failed (code %d): %s", operation, ctrl.Code, text)
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", operation, ctx.Err())
	case <-time.After(responseTimeout):
		return nil, fmt.Errorf("%s: timeout waiting for response", operation)
	}
}

func (c *Client) readPump() {
	defer c.wg.Done()

	defer func() {
		c.closeConn()
		c.tryReconnect()
	}()

	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Warn("store read error", zap.Error(err))
			}
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.log.Warn("failed to parse store frame", zap.Error(err))
			continue
		}

		if f.Ctrl != nil {
			c.handleCtrl(f.Ctrl)
		}
		if f.Data != nil {
			c.handleData(f.Data)
		}
	}
}

func (c *Client) handleCtrl(ctrl *ctrlFrame) {
	c.pendingMu.RLock()
	ch, exists := c.pending[ctrl.ID]
	c.pendingMu.RUnlock()
	if exists {
		select {
		case ch <- ctrl:
		default:
			// Channel full, drop frame
		}
	}
}

func (c *Client) handleData(data *dataFrame) {
	snap := store.Snapshot{Path: data.Path, Entries: data.Entries}

	c.watchMu.Lock()
	defer c.watchMu.Unlock()

	ws, ok := c.watches[data.Path]
	if !ok {
		return
	}
	ws.last = &snap
	for _, sub := range ws.subs {
		sub.notify(snap)
	}
}

func (c *Client) pingPump() {
	defer c.wg.Done()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.State() < StateConnected {
				return
			}

			c.mu.Lock()
			conn := c.conn
			if conn == nil {
				c.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()

			if err != nil {
				c.log.Warn("store ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) tryReconnect() {
	c.reconnectMu.Lock()
	enabled := c.reconnectEnabled
	c.reconnectMu.Unlock()

	if !enabled {
		return
	}

	c.shutdownMu.Lock()
	shutdown := c.shutdown
	c.shutdownMu.Unlock()

	if shutdown {
		return
	}

	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	delay := initialReconnectDelay

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.reconnectMu.Lock()
		enabled := c.reconnectEnabled
		c.reconnectMu.Unlock()

		if !enabled {
			return
		}

		c.log.Info("reconnecting to store", zap.Duration("delay", delay))

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}

		err := c.Connect(c.ctx)
		if err == nil {
			c.log.Info("reconnected to store")
			c.rewatchAll()
			return
		}

		c.log.Warn("store reconnect failed", zap.Error(err))

		// Exponential backoff
		delay = time.Duration(float64(delay) * reconnectBackoffMult)
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// rewatchAll re-establishes every active watch after a reconnect. The
// server replies with fresh data frames, so local state catches up to
// whatever was missed while disconnected.
func (c *Client) rewatchAll() {
	c.watchMu.Lock()
	paths := make([]string, 0, len(c.watches))
	for path := range c.watches {
		paths = append(paths, path)
	}
	c.watchMu.Unlock()

	for _, path := range paths {
		ctx, cancel := context.WithTimeout(c.ctx, responseTimeout)
		if err := c.sendWatch(ctx, path); err != nil {
			c.log.Warn("re-watch failed", zap.String("path", path), zap.Error(err))
		}
		cancel()
	}
}

// dropSubLocked removes one subscriber; the caller holds watchMu. When
// the last subscriber of a path goes away the remote watch is released.
func (c *Client) dropSubLocked(s *subscription) {
	ws, ok := c.watches[s.path]
	if !ok {
		return
	}
	for i, sub := range ws.subs {
		if sub == s {
			ws.subs = append(ws.subs[:i], ws.subs[i+1:]...)
			break
		}
	}
	if len(ws.subs) == 0 {
		delete(c.watches, s.path)
		go c.sendUnwatch(s.path)
	}
}

func (c *Client) sendUnwatch(path string) {
	if !c.IsConnected() {
		return
	}
	id := c.nextID()
	respChan := c.registerPending(id)
	defer c.unregisterPending(id)

	if err := c.send(request{Op: "unwatch", ID: id, Path: path}); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.ctx, responseTimeout)
	defer cancel()
	if _, err := c.waitForCtrl(ctx, respChan, "unwatch "+path); err != nil {
		c.log.Debug("unwatch failed", zap.String("path", path), zap.Error(err))
	}
}

type subscription struct {
	client *Client
	path   string
	ch     chan store.Snapshot

	mu     sync.Mutex
	closed bool
}

func (s *subscription) Updates() <-chan store.Snapshot { return s.ch }

func (s *subscription) Close() {
	s.client.watchMu.Lock()
	s.client.dropSubLocked(s)
	s.client.watchMu.Unlock()
	s.closeChan()
}

func (s *subscription) closeChan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// notify delivers the latest snapshot, replacing an undelivered one.
func (s *subscription) notify(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- snap:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- snap:
		default:
		}
	}
}

var _ store.LiveStore = (*Client)(nil)
