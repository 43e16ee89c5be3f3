// Package engine is the single authority over the event log and entity
// store. It accepts events from connected peers, orders them with the
// Lamport clock, reconciles them into the store, and fans them out to every
// live connection. Append, clock advance, and reconciliation run as one
// serialized unit; only delivery happens outside the critical section.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ganot/syncboard/internal/clock"
	"github.com/ganot/syncboard/internal/event"
	"github.com/ganot/syncboard/internal/store"
)

// Service owns the append-only event log, the Lamport clock, and the entity
// store. All mutations flow through AppendEvent.
type Service struct {
	mu    sync.Mutex
	log   []*event.Event
	clock *clock.Lamport
	store *store.Store

	registry *Registry
	logger   *slog.Logger
}

// New creates a service over the given store and clock. The logger may be
// nil in tests.
func New(st *store.Store, clk *clock.Lamport, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		clock:    clk,
		store:    st,
		registry: NewRegistry(),
		logger:   logger,
	}
}

// AppendEvent validates, stamps, appends, reconciles, and broadcasts one
// event. An event without an id is malformed input: it is dropped without
// touching the log and never broadcast. Missing lamportTs and timestamp
// fields are defaulted, not rejected.
func (s *Service) AppendEvent(ev *event.Event) error {
	if err := ev.Validate(); err != nil {
		s.logger.Warn("dropping malformed event", "error", err, "action", ev.Action, "entityType", ev.EntityType)
		return fmt.Errorf("append event: %w", err)
	}

	s.mu.Lock()
	if ev.LamportTs < 0 {
		ev.LamportTs = 0
	}
	if ev.Timestamp == "" {
		ev.Timestamp = event.NowTimestamp()
	}

	s.clock.Observe(ev.LamportTs)
	s.log = append(s.log, ev)
	result := s.store.Apply(ev, store.OriginRemote)
	s.mu.Unlock()

	s.logger.Debug("event appended",
		"id", ev.ID, "lamportTs", ev.LamportTs, "action", ev.Action,
		"entityType", ev.EntityType, "entityId", ev.EntityID, "result", result.String())

	s.broadcast(ev)
	return nil
}

// EventsSince returns, in append order, all events with a Lamport timestamp
// greater than or equal to ts. The bound is inclusive: a client asking from
// its own last-applied value re-receives the event exactly at that
// boundary, which downstream reconciliation treats as a no-op.
func (s *Service) EventsSince(ts int64) []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*event.Event
	for _, ev := range s.log {
		if ev.LamportTs >= ts {
			out = append(out, ev)
		}
	}
	return out
}

// Events returns the full log in append order.
func (s *Service) Events() []*event.Event {
	return s.EventsSince(0)
}

// HandleMessage classifies one inbound wire message and dispatches it. No
// message, however malformed, ever errors the connection: parse failures
// and unrecognized shapes are logged and dropped.
func (s *Service) HandleMessage(raw []byte, conn Connection) {
	msg, err := event.Classify(raw)
	if err != nil {
		s.logger.Warn("dropping unparseable message", "error", err)
		return
	}

	switch msg.Kind {
	case event.KindHandshake:
		s.HandleHandshake(msg.Handshake, conn)
	case event.KindEvent:
		_ = s.AppendEvent(msg.Event)
	default:
		s.logger.Warn("dropping unrecognized message", "size", len(raw))
	}
}

// HandleHandshake replays every event at or after the client's last known
// Lamport value, in log order, to the requesting connection only. This is
// the catch-up that brings a new or rejoining client to parity; it does not
// wait for any acknowledgement.
func (s *Service) HandleHandshake(hs *event.Handshake, conn Connection) {
	events := s.EventsSince(hs.LastKnownLamportTs)
	s.logger.Info("handshake",
		"clientId", hs.ClientID, "lastKnownLamportTs", hs.LastKnownLamportTs, "replaying", len(events))

	for _, ev := range events {
		data, err := ev.Marshal()
		if err != nil {
			s.logger.Error("marshaling replay event", "id", ev.ID, "error", err)
			continue
		}
		if !conn.IsOpen() {
			return
		}
		if err := conn.Send(data); err != nil {
			s.logger.Debug("replay send failed", "clientId", hs.ClientID, "error", err)
			return
		}
	}
}

// broadcast fans an accepted event out to every open connection, including
// the originator. Closed connections are skipped, not queued; a slow
// client's missed events are recovered by its next handshake.
func (s *Service) broadcast(ev *event.Event) {
	data, err := ev.Marshal()
	if err != nil {
		s.logger.Error("marshaling broadcast event", "id", ev.ID, "error", err)
		return
	}
	for _, conn := range s.registry.List() {
		if !conn.IsOpen() {
			continue
		}
		if err := conn.Send(data); err != nil {
			s.logger.Debug("broadcast send failed", "error", err)
		}
	}
}

// Register adds a connection that has transitioned to open.
func (s *Service) Register(conn Connection) {
	s.registry.Add(conn)
	s.logger.Debug("connection registered", "connections", s.registry.Len())
}

// Unregister removes a connection on close or transport error.
func (s *Service) Unregister(conn Connection) {
	s.registry.Remove(conn)
	s.logger.Debug("connection removed", "connections", s.registry.Len())
}

// Store exposes the read-only snapshot accessor used by the REST layer.
func (s *Service) Store() *store.Store {
	return s.store
}

// ClockValue reports the current Lamport clock, for diagnostics.
func (s *Service) ClockValue() int64 {
	return s.clock.Now()
}

// LogLen reports the number of appended events, for diagnostics.
func (s *Service) LogLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// Connections reports the number of live connections, for diagnostics.
func (s *Service) Connections() int {
	return s.registry.Len()
}
