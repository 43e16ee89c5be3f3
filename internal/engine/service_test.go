package engine_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ganot/syncboard/internal/clock"
	"github.com/ganot/syncboard/internal/domain/project"
	"github.com/ganot/syncboard/internal/engine"
	"github.com/ganot/syncboard/internal/event"
	"github.com/ganot/syncboard/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
	fail   bool
	msgs   [][]byte
}

func (c *fakeConn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("send failed")
	}
	cp := make([]byte, len(msg))
	copy(cp, msg)
	c.msgs = append(c.msgs, cp)
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) received(t *testing.T) []*event.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*event.Event, 0, len(c.msgs))
	for _, msg := range c.msgs {
		var ev event.Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		out = append(out, &ev)
	}
	return out
}

func newService() *engine.Service {
	return engine.New(store.New(), clock.New(0), nil)
}

func projectCreate(t *testing.T, id string, ts int64, projectID string) *event.Event {
	t.Helper()
	data, err := json.Marshal(project.Project{ID: projectID, Name: "Project " + projectID})
	require.NoError(t, err)
	return &event.Event{
		ID:         id,
		LamportTs:  ts,
		Timestamp:  event.NowTimestamp(),
		Action:     event.ActionCreate,
		EntityType: event.EntityProject,
		EntityID:   projectID,
		Data:       data,
	}
}

func TestAppendEvent_MissingIDDropped(t *testing.T) {
	svc := newService()

	ev := projectCreate(t, "e1", 1, "p1")
	ev.ID = ""
	require.ErrorIs(t, svc.AppendEvent(ev), event.ErrMissingID)

	require.Empty(t, svc.Events())
	require.Equal(t, 0, svc.LogLen())
	require.Nil(t, svc.Store().GetProject("p1"))
}

func TestAppendEvent_DefaultsMissingFields(t *testing.T) {
	svc := newService()

	ev := projectCreate(t, "e1", 0, "p1")
	ev.LamportTs = -3
	ev.Timestamp = ""
	require.NoError(t, svc.AppendEvent(ev))

	got := svc.Events()
	require.Len(t, got, 1)
	require.Equal(t, int64(0), got[0].LamportTs)
	require.NotEmpty(t, got[0].Timestamp)
}

func TestAppendEvent_AdvancesClock(t *testing.T) {
	svc := newService()

	require.NoError(t, svc.AppendEvent(projectCreate(t, "e1", 9, "p1")))
	require.Equal(t, int64(10), svc.ClockValue())

	// Lower timestamps never move the clock backwards.
	require.NoError(t, svc.AppendEvent(projectCreate(t, "e2", 2, "p2")))
	require.Equal(t, int64(10), svc.ClockValue())
}

func TestEvents_PreserveAppendOrder(t *testing.T) {
	svc := newService()

	// Arrival order deliberately disagrees with Lamport order.
	ids := []string{"e-c", "e-a", "e-b"}
	stamps := []int64{7, 3, 5}
	for i, id := range ids {
		require.NoError(t, svc.AppendEvent(projectCreate(t, id, stamps[i], fmt.Sprintf("p%d", i))))
	}

	got := svc.Events()
	require.Len(t, got, 3)
	for i, ev := range got {
		require.Equal(t, ids[i], ev.ID)
	}
}

func TestEventsSince_InclusiveBound(t *testing.T) {
	svc := newService()
	for i := int64(1); i <= 4; i++ {
		require.NoError(t, svc.AppendEvent(projectCreate(t, fmt.Sprintf("e%d", i), i, fmt.Sprintf("p%d", i))))
	}

	// The lower bound is inclusive on purpose: a client resending its own
	// last-applied value re-receives the event at that boundary, and the
	// LWW equal-timestamp rule makes re-applying it a no-op. This is not an
	// off-by-one.
	got := svc.EventsSince(3)
	require.Len(t, got, 2)
	require.Equal(t, "e3", got[0].ID)
	require.Equal(t, "e4", got[1].ID)

	require.Len(t, svc.EventsSince(0), 4)
	require.Empty(t, svc.EventsSince(5))
}

func TestSeed_DefaultInitialState(t *testing.T) {
	svc := newService()
	require.NoError(t, svc.Seed(engine.DefaultInitialState()))

	projects, tasks := svc.Store().Counts()
	require.Equal(t, 2, projects)
	require.Equal(t, 1, tasks)
	require.Equal(t, []string{"task-1"}, svc.Store().GetProject("project-1").TaskIDs)
	require.Equal(t, int64(4), svc.ClockValue())
	require.Equal(t, 3, svc.LogLen())
}

func TestHandshake_ReplaysOnlyToRequester(t *testing.T) {
	svc := newService()
	require.NoError(t, svc.Seed(engine.DefaultInitialState()))

	// Three client-authored events on top of the bootstrap.
	for i := int64(4); i <= 6; i++ {
		require.NoError(t, svc.AppendEvent(projectCreate(t, fmt.Sprintf("e%d", i), i, fmt.Sprintf("px%d", i))))
	}

	joining := &fakeConn{}
	other := &fakeConn{}
	svc.Register(joining)
	svc.Register(other)

	svc.HandleHandshake(&event.Handshake{
		Type:               "handshake",
		ClientID:           "client-1",
		LastKnownLamportTs: 6,
	}, joining)

	got := joining.received(t)
	require.Len(t, got, 1)
	require.Equal(t, "e6", got[0].ID)
	require.Empty(t, other.msgs, "handshake replay must not broadcast")
}

func TestHandshake_BoundaryRedelivery(t *testing.T) {
	svc := newService()
	require.NoError(t, svc.Seed(engine.DefaultInitialState()))
	for i := int64(4); i <= 6; i++ {
		require.NoError(t, svc.AppendEvent(projectCreate(t, fmt.Sprintf("e%d", i), i, fmt.Sprintf("px%d", i))))
	}

	conn := &fakeConn{}
	svc.HandleHandshake(&event.Handshake{ClientID: "client-1", LastKnownLamportTs: 5}, conn)

	// Inclusive bound: the event the client already holds (Lamport 5) comes
	// again, followed by the one it missed.
	got := conn.received(t)
	require.Len(t, got, 2)
	require.Equal(t, "e5", got[0].ID)
	require.Equal(t, "e6", got[1].ID)
}

func TestBroadcast_ReachesAllOpenConnections(t *testing.T) {
	svc := newService()

	a := &fakeConn{}
	b := &fakeConn{}
	closed := &fakeConn{closed: true}
	svc.Register(a)
	svc.Register(b)
	svc.Register(closed)

	require.NoError(t, svc.AppendEvent(projectCreate(t, "e1", 1, "p1")))

	require.Len(t, a.received(t), 1)
	require.Len(t, b.received(t), 1)
	require.Empty(t, closed.msgs, "closed connections are silently skipped")
}

func TestBroadcast_SendFailureDoesNotStopFanOut(t *testing.T) {
	svc := newService()

	failing := &fakeConn{fail: true}
	healthy := &fakeConn{}
	svc.Register(failing)
	svc.Register(healthy)

	require.NoError(t, svc.AppendEvent(projectCreate(t, "e1", 1, "p1")))
	require.Len(t, healthy.received(t), 1)
}

func TestUnregister_StopsDelivery(t *testing.T) {
	svc := newService()

	conn := &fakeConn{}
	svc.Register(conn)
	require.NoError(t, svc.AppendEvent(projectCreate(t, "e1", 1, "p1")))
	require.Len(t, conn.received(t), 1)

	svc.Unregister(conn)
	require.NoError(t, svc.AppendEvent(projectCreate(t, "e2", 2, "p2")))
	require.Len(t, conn.received(t), 1)
	require.Equal(t, 0, svc.Connections())
}

func TestHandleMessage_Event(t *testing.T) {
	svc := newService()
	conn := &fakeConn{}
	svc.Register(conn)

	raw, err := projectCreate(t, "e1", 1, "p1").Marshal()
	require.NoError(t, err)
	svc.HandleMessage(raw, conn)

	require.Equal(t, 1, svc.LogLen())
	require.NotNil(t, svc.Store().GetProject("p1"))
	// The originator receives its own event back, acknowledgement style.
	require.Len(t, conn.received(t), 1)
}

func TestHandleMessage_Handshake(t *testing.T) {
	svc := newService()
	require.NoError(t, svc.Seed(engine.DefaultInitialState()))

	conn := &fakeConn{}
	svc.Register(conn)
	svc.HandleMessage([]byte(`{"type":"handshake","clientId":"c1","lastKnownLamportTs":0}`), conn)

	require.Len(t, conn.received(t), 3)
}

func TestHandleMessage_GarbageIsDroppedQuietly(t *testing.T) {
	svc := newService()
	conn := &fakeConn{}
	svc.Register(conn)

	svc.HandleMessage([]byte("{{{{not json"), conn)
	svc.HandleMessage([]byte(`{"hello":"world"}`), conn)
	svc.HandleMessage([]byte(`{"id":"e1","action":"create"}`), conn)

	require.Equal(t, 0, svc.LogLen())
	require.Empty(t, conn.msgs)
}

func TestAppendEvent_ConcurrentAppendsSerialize(t *testing.T) {
	svc := newService()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev := projectCreate(t, fmt.Sprintf("e%02d", i), int64(i), fmt.Sprintf("p%02d", i))
			require.NoError(t, svc.AppendEvent(ev))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 20, svc.LogLen())
	require.Greater(t, svc.ClockValue(), int64(19))
	projects, _ := svc.Store().Counts()
	require.Equal(t, 20, projects)
}
