package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nasmon/unraid/pkg/metrics"
)

// wsProtocol is the GraphQL-over-websocket sub-protocol negotiated on the
// subscription channel.
const wsProtocol = "graphql-transport-ws"

// ackTimeout bounds the wait for the connection acknowledgment after the
// init message.
const ackTimeout = 10 * time.Second

// Websocket message types of the graphql-transport-ws protocol.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// StreamState is the lifecycle state of the subscription channel.
type StreamState int

const (
	StreamDisconnected StreamState = iota
	StreamConnecting
	StreamConnected
)

// ErrStreamNotConnected is returned by Subscribe when the channel has not
// been started or has already been torn down.
var ErrStreamNotConnected = errors.New("subscription channel not connected")

// StreamHandler receives the data payload of a "next" message for one
// subscription stream.
type StreamHandler func(data json.RawMessage)

// wsMessage is the envelope of every message on the channel.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Stream multiplexes any number of logically distinct subscriptions over
// one websocket connection. Inbound "next" messages are dispatched to the
// handler registered under their operation id. Handlers are called from
// the receive loop goroutine; a panicking handler is isolated and does not
// stop dispatch. There is no automatic reconnect: once the channel drops,
// the owner must call Start again.
type Stream struct {
	transport *Transport
	log       zerolog.Logger

	mu       sync.RWMutex
	state    StreamState
	conn     *websocket.Conn
	handlers map[string]StreamHandler

	// writeMu serializes writes; the websocket connection allows only one
	// concurrent writer.
	writeMu sync.Mutex
}

// NewStream creates a subscription channel bound to the transport's
// websocket endpoint. The channel is not connected until Start is called.
func NewStream(t *Transport, logger zerolog.Logger) *Stream {
	return &Stream{
		transport: t,
		log:       logger,
		handlers:  make(map[string]StreamHandler),
	}
}

// State returns the current channel state.
func (s *Stream) State() StreamState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether the channel is established and dispatching.
func (s *Stream) Connected() bool {
	return s.State() == StreamConnected
}

// Start dials the websocket endpoint, performs the connection-init
// handshake and launches the receive loop. Subscriptions registered on a
// previous connection do not survive; callers re-subscribe after Start.
func (s *Stream) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StreamDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StreamConnecting
	s.mu.Unlock()

	conn, err := s.connect(ctx)
	if err != nil {
		s.mu.Lock()
		s.state = StreamDisconnected
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.handlers = make(map[string]StreamHandler)
	s.state = StreamConnected
	s.mu.Unlock()

	metrics.WSConnectsTotal.Inc()
	s.log.Info().Str("endpoint", s.transport.wsEndpoint).Msg("subscription channel connected")

	go s.receiveLoop(conn)
	return nil
}

// connect dials and completes the init/ack handshake. Sending a subscribe
// before the server acknowledges the connection is a protocol violation,
// so Start does not return until the ack arrives.
func (s *Stream) connect(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{wsProtocol},
		HandshakeTimeout: ackTimeout,
	}
	header := http.Header{"Origin": []string{s.transport.origin}}

	conn, _, err := dialer.DialContext(ctx, s.transport.wsEndpoint, header)
	if err != nil {
		return nil, classifyTransportError(err, s.transport.wsEndpoint)
	}

	init := map[string]any{
		"type": msgConnectionInit,
		"payload": map[string]string{
			"x-api-key": s.transport.apiKey,
		},
	}
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, classifyTransportError(err, s.transport.wsEndpoint)
	}

	if err := conn.SetReadDeadline(time.Now().Add(ackTimeout)); err != nil {
		conn.Close()
		return nil, classifyTransportError(err, s.transport.wsEndpoint)
	}
	var ack wsMessage
	if err := conn.ReadJSON(&ack); err != nil {
		conn.Close()
		return nil, classifyTransportError(err, s.transport.wsEndpoint)
	}
	if ack.Type != msgConnectionAck {
		conn.Close()
		return nil, &Error{Message: fmt.Sprintf("expected %s, got %q", msgConnectionAck, ack.Type)}
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, classifyTransportError(err, s.transport.wsEndpoint)
	}

	return conn, nil
}

// Subscribe registers a handler and sends the subscribe message for one
// named operation. It returns the operation id assigned to the stream.
// Safe to call concurrently with message dispatch.
func (s *Stream) Subscribe(query, operationName string, handler StreamHandler) (string, error) {
	s.mu.Lock()
	if s.state != StreamConnected || s.conn == nil {
		s.mu.Unlock()
		return "", ErrStreamNotConnected
	}
	conn := s.conn
	id := uuid.NewString()
	s.handlers[id] = handler
	s.mu.Unlock()

	payload, err := json.Marshal(map[string]string{
		"query":         query,
		"operationName": operationName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode subscribe payload: %w", err)
	}

	if err := s.writeJSON(conn, wsMessage{ID: id, Type: msgSubscribe, Payload: payload}); err != nil {
		s.mu.Lock()
		delete(s.handlers, id)
		s.mu.Unlock()
		return "", classifyTransportError(err, s.transport.wsEndpoint)
	}

	s.log.Debug().Str("operation", operationName).Str("id", id).Msg("subscribed")
	return id, nil
}

// Stop sends a complete message for every active stream, closes the
// connection and releases it unconditionally. Stopping a channel that is
// not connected is a no-op.
func (s *Stream) Stop() {
	s.mu.Lock()
	conn := s.conn
	ids := make([]string, 0, len(s.handlers))
	for id := range s.handlers {
		ids = append(ids, id)
	}
	s.conn = nil
	s.handlers = make(map[string]StreamHandler)
	s.state = StreamDisconnected
	s.mu.Unlock()

	if conn == nil {
		return
	}

	for _, id := range ids {
		// Best effort; the connection is going away regardless.
		_ = s.writeJSON(conn, wsMessage{ID: id, Type: msgComplete})
	}
	_ = s.writeJSON(conn, wsMessage{Type: msgComplete})
	conn.Close()

	s.log.Info().Msg("subscription channel closed")
}

// receiveLoop reads and dispatches inbound messages until the connection
// drops. Malformed messages are reported and skipped; they never stop the
// loop.
func (s *Stream) receiveLoop(conn *websocket.Conn) {
	defer s.teardown(conn)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.mu.RLock()
			closed := s.conn == nil
			s.mu.RUnlock()
			if !closed {
				s.log.Warn().Err(err).Msg("subscription channel dropped")
			}
			return
		}

		if err := s.dispatch(conn, raw); err != nil {
			var invalid *InvalidMessageError
			if errors.As(err, &invalid) {
				metrics.WSMessagesTotal.WithLabelValues("invalid").Inc()
				s.log.Debug().Err(err).Msg("skipping invalid message")
				continue
			}
			s.log.Debug().Err(err).Msg("message handling failed")
		}
	}
}

// teardown marks the channel disconnected after the receive loop exits,
// unless Stop already released a newer connection.
func (s *Stream) teardown(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.handlers = make(map[string]StreamHandler)
		s.state = StreamDisconnected
	}
	s.mu.Unlock()
	conn.Close()
}

// dispatch routes one inbound message. Unknown operation ids on "next"
// messages are ignored without error so late messages for completed
// streams cannot disturb live ones.
func (s *Stream) dispatch(conn *websocket.Conn, raw []byte) error {
	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return &InvalidMessageError{Raw: raw, Reason: "undecodable message"}
	}

	switch msg.Type {
	case msgNext:
		metrics.WSMessagesTotal.WithLabelValues(msgNext).Inc()
		return s.dispatchNext(msg)

	case msgPing:
		metrics.WSMessagesTotal.WithLabelValues(msgPing).Inc()
		return s.writeJSON(conn, wsMessage{Type: msgPong})

	case msgComplete:
		metrics.WSMessagesTotal.WithLabelValues(msgComplete).Inc()
		s.mu.Lock()
		delete(s.handlers, msg.ID)
		s.mu.Unlock()
		return nil

	case msgError:
		metrics.WSMessagesTotal.WithLabelValues(msgError).Inc()
		s.log.Warn().Str("id", msg.ID).RawJSON("payload", msg.Payload).Msg("subscription error message")
		return nil

	case msgPong, msgConnectionAck:
		return nil

	default:
		return &InvalidMessageError{Raw: raw, Reason: fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

func (s *Stream) dispatchNext(msg wsMessage) error {
	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Data == nil {
		return &InvalidMessageError{Raw: msg.Payload, Reason: "next message without data"}
	}

	s.mu.RLock()
	handler := s.handlers[msg.ID]
	s.mu.RUnlock()

	if handler == nil {
		s.log.Debug().Str("id", msg.ID).Msg("next message for unknown stream")
		return nil
	}

	s.invoke(msg.ID, handler, payload.Data)
	return nil
}

// invoke calls a handler with panic isolation so one misbehaving callback
// cannot abort the dispatch loop or starve other streams.
func (s *Stream) invoke(id string, handler StreamHandler, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("id", id).Interface("panic", r).Msg("subscription handler panicked")
		}
	}()
	handler(data)
}

func (s *Stream) writeJSON(conn *websocket.Conn, msg wsMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}
