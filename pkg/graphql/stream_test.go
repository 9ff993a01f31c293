package graphql

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wsTestServer runs a graphql-transport-ws endpoint for stream tests. It
// records the init payload, acknowledges the connection and hands the
// connection to the session callback.
type wsTestServer struct {
	srv *httptest.Server

	mu          sync.Mutex
	initPayload map[string]string
	subprotocol string
}

func newWSTestServer(t *testing.T, session func(conn *websocket.Conn)) *wsTestServer {
	t.Helper()

	ts := &wsTestServer{}
	upgrader := websocket.Upgrader{
		Subprotocols: []string{wsProtocol},
		CheckOrigin:  func(r *http.Request) bool { return true },
	}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var init struct {
			Type    string            `json:"type"`
			Payload map[string]string `json:"payload"`
		}
		if err := conn.ReadJSON(&init); err != nil || init.Type != msgConnectionInit {
			return
		}
		ts.mu.Lock()
		ts.initPayload = init.Payload
		ts.subprotocol = conn.Subprotocol()
		ts.mu.Unlock()

		if err := conn.WriteJSON(map[string]string{"type": msgConnectionAck}); err != nil {
			return
		}
		if session != nil {
			session(conn)
		}
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) newStream(t *testing.T) *Stream {
	t.Helper()
	tr, err := NewTransport(ts.srv.URL, "stream-key")
	require.NoError(t, err)
	return NewStream(tr, zerolog.Nop())
}

// readSubscribe reads messages until a subscribe arrives, skipping
// complete messages from earlier streams.
func readSubscribe(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgSubscribe {
			return msg
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// TestStreamHandshake tests the init/ack handshake and that the API key
// travels in the init payload
func TestStreamHandshake(t *testing.T) {
	block := make(chan struct{})
	ts := newWSTestServer(t, func(conn *websocket.Conn) { <-block })
	defer close(block)

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.True(t, s.Connected())

	ts.mu.Lock()
	defer ts.mu.Unlock()
	assert.Equal(t, "stream-key", ts.initPayload["x-api-key"])
	assert.Equal(t, wsProtocol, ts.subprotocol)
}

// TestStreamStartIdempotent tests that starting a connected stream is a
// no-op
func TestStreamStartIdempotent(t *testing.T) {
	block := make(chan struct{})
	ts := newWSTestServer(t, func(conn *websocket.Conn) { <-block })
	defer close(block)

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, StreamConnected, s.State())
}

// TestStreamRejectsMissingAck tests that a server that never acknowledges
// fails the start
func TestStreamRejectsMissingAck(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var init wsMessage
		conn.ReadJSON(&init)
		// Reply with the wrong message type instead of an ack.
		conn.WriteJSON(map[string]string{"type": msgPing})
	}))
	defer srv.Close()

	tr, err := NewTransport(srv.URL, "key")
	require.NoError(t, err)
	s := NewStream(tr, zerolog.Nop())

	err = s.Start(context.Background())
	assert.Error(t, err)
	assert.Equal(t, StreamDisconnected, s.State())
}

// TestStreamSubscribeDispatch tests that next messages route to the
// handler registered under their operation id
func TestStreamSubscribeDispatch(t *testing.T) {
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		sub := readSubscribe(t, conn)
		payload, _ := json.Marshal(map[string]any{"data": map[string]any{"value": 42}})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgNext, Payload: payload})
		time.Sleep(500 * time.Millisecond)
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var mu sync.Mutex
	var got []string
	id, err := s.Subscribe("subscription { value }", "Value", func(data json.RawMessage) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.JSONEq(t, `{"value":42}`, got[0])
	mu.Unlock()
}

// TestStreamUnknownIDIgnored tests that next messages for unknown streams
// do not disturb live ones
func TestStreamUnknownIDIgnored(t *testing.T) {
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		sub := readSubscribe(t, conn)
		stale, _ := json.Marshal(map[string]any{"data": map[string]any{"stale": true}})
		conn.WriteJSON(wsMessage{ID: "no-such-stream", Type: msgNext, Payload: stale})
		live, _ := json.Marshal(map[string]any{"data": map[string]any{"live": true}})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgNext, Payload: live})
		time.Sleep(500 * time.Millisecond)
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var mu sync.Mutex
	var got []string
	_, err := s.Subscribe("subscription { live }", "Live", func(data json.RawMessage) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.JSONEq(t, `{"live":true}`, got[0])
	mu.Unlock()
}

// TestStreamMalformedMessages tests that undecodable and unknown messages
// are skipped without stopping dispatch
func TestStreamMalformedMessages(t *testing.T) {
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		sub := readSubscribe(t, conn)
		conn.WriteMessage(websocket.TextMessage, []byte("not json at all"))
		conn.WriteJSON(wsMessage{Type: "bogus_type"})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgNext, Payload: json.RawMessage(`{"nodata":true}`)})
		payload, _ := json.Marshal(map[string]any{"data": map[string]any{"after": 1}})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgNext, Payload: payload})
		time.Sleep(500 * time.Millisecond)
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var mu sync.Mutex
	var got []string
	_, err := s.Subscribe("subscription { after }", "After", func(data json.RawMessage) {
		mu.Lock()
		got = append(got, string(data))
		mu.Unlock()
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	mu.Lock()
	assert.JSONEq(t, `{"after":1}`, got[0])
	mu.Unlock()
}

// TestStreamPingPong tests that inbound pings are answered with pongs
func TestStreamPingPong(t *testing.T) {
	gotPong := make(chan struct{})
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(wsMessage{Type: msgPing})
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == msgPong {
				close(gotPong)
				return
			}
		}
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-gotPong:
	case <-time.After(2 * time.Second):
		t.Fatal("no pong received")
	}
}

// TestStreamCompleteRemovesHandler tests that a server complete message
// ends dispatch for that stream
func TestStreamCompleteRemovesHandler(t *testing.T) {
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		sub := readSubscribe(t, conn)
		payload, _ := json.Marshal(map[string]any{"data": map[string]any{"n": 1}})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgNext, Payload: payload})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgComplete})
		conn.WriteJSON(wsMessage{ID: sub.ID, Type: msgNext, Payload: payload})
		time.Sleep(500 * time.Millisecond)
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	var mu sync.Mutex
	count := 0
	id, err := s.Subscribe("subscription { n }", "N", func(data json.RawMessage) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	waitFor(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.handlers[id] == nil
	})
	// Give the trailing next message time to arrive.
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()
}

// TestStreamHandlerPanicIsolated tests that a panicking handler does not
// stop dispatch for other streams
func TestStreamHandlerPanicIsolated(t *testing.T) {
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		first := readSubscribe(t, conn)
		second := readSubscribe(t, conn)
		payload, _ := json.Marshal(map[string]any{"data": map[string]any{"v": 1}})
		conn.WriteJSON(wsMessage{ID: first.ID, Type: msgNext, Payload: payload})
		conn.WriteJSON(wsMessage{ID: second.ID, Type: msgNext, Payload: payload})
		time.Sleep(500 * time.Millisecond)
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	_, err := s.Subscribe("subscription { v }", "Boom", func(json.RawMessage) {
		panic("handler blew up")
	})
	require.NoError(t, err)

	delivered := make(chan struct{})
	_, err = s.Subscribe("subscription { v }", "Fine", func(json.RawMessage) {
		close(delivered)
	})
	require.NoError(t, err)

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("second handler never ran")
	}
}

// TestStreamSubscribeWhileDisconnected tests the not-connected guard
func TestStreamSubscribeWhileDisconnected(t *testing.T) {
	tr, err := NewTransport("tower.local", "key")
	require.NoError(t, err)
	s := NewStream(tr, zerolog.Nop())

	_, err = s.Subscribe("subscription { x }", "X", func(json.RawMessage) {})
	assert.ErrorIs(t, err, ErrStreamNotConnected)
}

// TestStreamStopSendsCompletes tests the explicit teardown messages
func TestStreamStopSendsCompletes(t *testing.T) {
	type received struct {
		mu   sync.Mutex
		msgs []wsMessage
	}
	rec := &received{}
	done := make(chan struct{})

	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		readSubscribe(t, conn)
		for {
			var msg wsMessage
			if err := conn.ReadJSON(&msg); err != nil {
				close(done)
				return
			}
			rec.mu.Lock()
			rec.msgs = append(rec.msgs, msg)
			rec.mu.Unlock()
		}
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))

	id, err := s.Subscribe("subscription { x }", "X", func(json.RawMessage) {})
	require.NoError(t, err)

	s.Stop()
	assert.False(t, s.Connected())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection close")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var perStream, bare bool
	for _, msg := range rec.msgs {
		if msg.Type != msgComplete {
			continue
		}
		if msg.ID == id {
			perStream = true
		}
		if msg.ID == "" {
			bare = true
		}
	}
	assert.True(t, perStream, "expected a complete for the active stream")
	assert.True(t, bare, "expected a bare complete for the connection")
}

// TestStreamServerDropResetsState tests that the stream reports
// disconnected after the server closes the connection
func TestStreamServerDropResetsState(t *testing.T) {
	ts := newWSTestServer(t, func(conn *websocket.Conn) {
		// Session returns immediately; the deferred close drops the
		// connection right after the handshake.
	})

	s := ts.newStream(t)
	require.NoError(t, s.Start(context.Background()))

	waitFor(t, func() bool { return !s.Connected() })
	assert.Equal(t, StreamDisconnected, s.State())
}
