// Package client is the embeddable sync peer. It keeps a local projection
// of the shared state, applies its own edits optimistically before server
// confirmation, and replays missed events through the handshake whenever it
// (re)connects.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ganot/syncboard/internal/clock"
	"github.com/ganot/syncboard/internal/event"
	"github.com/ganot/syncboard/internal/store"
)

// ErrNotConnected indicates a send was attempted without a live connection.
var ErrNotConnected = errors.New("client not connected")

// Options configures a client.
type Options struct {
	// ClientID identifies this peer in handshakes. Generated when empty.
	ClientID string
	// OnEvent, when set, is called after an event from the server has been
	// reconciled into the local projection.
	OnEvent func(*Event)
	Logger  *slog.Logger
}

// Client is a sync peer. Its local store converges with the server's
// through the same reconciliation rule the server uses.
type Client struct {
	url      string
	clientID string
	clock    *clock.Lamport
	store    *store.Store
	onEvent  func(*Event)
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	applied int64
	writeMu sync.Mutex
}

// New creates a client for the given websocket URL (ws://host/ws).
func New(url string, opts Options) *Client {
	id := opts.ClientID
	if id == "" {
		id = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		url:      url,
		clientID: id,
		clock:    clock.New(0),
		store:    store.New(),
		onEvent:  opts.OnEvent,
		logger:   logger,
	}
}

// Connect dials the server, sends the handshake declaring the newest event
// timestamp already applied locally, and starts consuming events. The
// handshake value is the last-applied timestamp, not the clock: the clock
// always sits past everything seen, and handshaking with it would exclude a
// concurrent event sharing the boundary timestamp from replay. Re-receiving
// the boundary event itself is harmless, reconciliation skips it. Calling
// Connect again after a disconnect repeats the handshake, so missed events
// are replayed idempotently.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return errors.New("already connected")
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hs := event.Handshake{
		Type:               "handshake",
		ClientID:           c.clientID,
		LastKnownLamportTs: c.applied,
	}
	if err := c.writeJSON(conn, hs); err != nil {
		_ = conn.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}

	c.conn = conn
	go c.readLoop(conn)
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("connection closed", "error", err)
			return
		}

		msg, err := event.Classify(data)
		if err != nil || msg.Kind != event.KindEvent {
			c.logger.Warn("dropping unexpected server message")
			continue
		}

		ev := msg.Event
		c.clock.Observe(ev.LamportTs)
		result := c.store.Apply(ev, store.OriginRemote)
		c.noteApplied(ev.LamportTs)
		c.logger.Debug("event received", "id", ev.ID, "lamportTs", ev.LamportTs, "result", result.String())
		if c.onEvent != nil {
			c.onEvent(ev)
		}
	}
}

// Send authors a mutation: it stamps a fresh Lamport value, applies the
// event to the local projection unconditionally (local intent wins
// immediately), and ships it to the server. The returned event is what went
// on the wire.
func (c *Client) Send(action Action, entityType EntityType, entityID string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	ev := &event.Event{
		ID:         uuid.NewString(),
		LamportTs:  c.clock.Tick(),
		Timestamp:  event.NowTimestamp(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
	}

	c.store.Apply(ev, store.OriginLocal)
	c.noteApplied(ev.LamportTs)

	if err := c.writeJSON(conn, ev); err != nil {
		return nil, fmt.Errorf("sending event: %w", err)
	}
	return ev, nil
}

// noteApplied records the newest event timestamp reconciled into the local
// projection. This is what the next handshake resends, so the inclusive
// replay bound covers concurrent events sharing that timestamp.
func (c *Client) noteApplied(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.applied {
		c.applied = ts
	}
}

func (c *Client) writeJSON(conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears down the connection. The local projection survives and a
// later Connect resumes from the current clock value.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// ClientID returns the peer identifier used in handshakes.
func (c *Client) ClientID() string {
	return c.clientID
}

// LamportTs returns the newest Lamport value this client has seen.
func (c *Client) LamportTs() int64 {
	return c.clock.Now()
}

// Projects returns the local projection of all projects.
func (c *Client) Projects() []*Project {
	return c.store.Projects()
}

// Tasks returns the local projection of all tasks.
func (c *Client) Tasks() []*Task {
	return c.store.Tasks()
}

// GetProject returns the local projection of one project, or nil.
func (c *Client) GetProject(id string) *Project {
	return c.store.GetProject(id)
}

// GetTask returns the local projection of one task, or nil.
func (c *Client) GetTask(id string) *Task {
	return c.store.GetTask(id)
}
