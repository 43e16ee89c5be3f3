// Package testserver provides a fully wired in-process server for tests.
package testserver

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ganot/syncboard/internal/clock"
	"github.com/ganot/syncboard/internal/engine"
	"github.com/ganot/syncboard/internal/store"
	"github.com/ganot/syncboard/internal/transport"
)

type TestServer struct {
	Server *httptest.Server
	Engine *engine.Service
}

// New starts an httptest server around a fresh engine. When seed is true
// the built-in bootstrap state is applied first.
func New(t *testing.T, seed bool) *TestServer {
	t.Helper()

	eng := engine.New(store.New(), clock.New(0), nil)
	if seed {
		require.NoError(t, eng.Seed(engine.DefaultInitialState()))
	}

	router := transport.NewRouter(eng, transport.Options{SendBuffer: 16}, nil)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &TestServer{Server: srv, Engine: eng}
}

// WSURL returns the websocket endpoint for this server.
func (ts *TestServer) WSURL() string {
	return "ws" + strings.TrimPrefix(ts.Server.URL, "http") + "/ws"
}
