// Package eventbus is the event bus endpoint: a single bidirectional
// connection to a process-local IPC socket, carrying newline-delimited
// JSON messages with a "type" discriminator. The server half (modbustcp)
// only sends; the ingest half only receives — a dealer-style asymmetric
// usage. No ZMQ/nanomsg-style dealer library turned up anywhere in the
// reference corpus, so this endpoint is hand-built on net.Conn — see
// DESIGN.md for the justification.
package eventbus

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// ClientID is the identity this endpoint presents to the far end.
const ClientID = "MODBUSTCP"

// Message is an outbound command: a type discriminator plus a free-form
// payload, marshaled as one JSON document per line.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ValuePayload is the {value: N} payload shape shared by failsafeCurrent,
// failsafeTimeout and modbusTcpCurrent.
type ValuePayload struct {
	Value int `json:"value"`
}

// RawMessage is an inbound event with its payload left undecoded, so the
// ingest router can switch on Type before committing to a shape.
type RawMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// identityFrame is sent once, first, on every new connection, so the far
// end can attribute subsequent frames to this client.
type identityFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Endpoint owns one dealer-style connection to the event bus IPC socket. It
// reconnects with backoff on any drop; Send and the inbound read loop use
// independent halves of the connection. A send/receive failure is logged
// and treated as non-fatal.
type Endpoint struct {
	network string // "unix" or "tcp", for testability
	address string
	logger  *log.Logger

	recvCh chan RawMessage

	mu       sync.Mutex // guards conn and connErr; serializes Send against reconnect
	conn     net.Conn
	connErr  error
	closed   bool
	closeCh  chan struct{}
	doneOnce sync.Once
}

// New constructs an Endpoint that will dial network/address once Start is
// called. network is typically "unix" for the on-device UDS path.
func New(network, address string, logger *log.Logger) *Endpoint {
	if logger == nil {
		logger = log.Default()
	}
	return &Endpoint{
		network: network,
		address: address,
		logger:  logger,
		recvCh:  make(chan RawMessage, 64),
		closeCh: make(chan struct{}),
		connErr: errors.New("eventbus: not connected"),
	}
}

// Start launches the reconnect-and-read loop in the background and returns
// immediately; it does not block waiting for the first connection to
// succeed, since a down event bus must not stall the rest of the process.
func (e *Endpoint) Start(ctx context.Context) {
	go e.reconnectLoop(ctx)
}

// Receive returns the channel of inbound messages for the ingest consumer.
func (e *Endpoint) Receive() <-chan RawMessage {
	return e.recvCh
}

// Close stops the reconnect loop and closes any active connection.
func (e *Endpoint) Close() error {
	e.doneOnce.Do(func() { close(e.closeCh) })

	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.conn != nil {
		return e.conn.Close()
	}
	return nil
}

// Send marshals msg as one JSON line and writes it to the active
// connection. If no connection is currently up, it returns the last
// connection error without blocking — the caller (modbustcp, watchdog)
// logs and drops.
func (e *Endpoint) Send(msg Message) error {
	e.mu.Lock()
	conn := e.conn
	connErr := e.connErr
	e.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("eventbus: send failed, no connection: %w", connErr)
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("eventbus: failed to marshal %q: %w", msg.Type, err)
	}
	line = append(line, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.conn != conn {
		return fmt.Errorf("eventbus: send failed, connection replaced")
	}
	if _, err := e.conn.Write(line); err != nil {
		e.connErr = err
		return fmt.Errorf("eventbus: write failed: %w", err)
	}
	return nil
}

// reconnectLoop dials, reads until the connection drops, then backs off and
// redials, until ctx is done or Close is called, using a variable backoff
// instead of a fixed interval.
func (e *Endpoint) reconnectLoop(ctx context.Context) {
	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closeCh:
			return
		default:
		}

		conn, err := net.Dial(e.network, e.address)
		if err != nil {
			e.setConn(nil, err)
			e.logger.Printf("eventbus: dial %s %s failed: %v", e.network, e.address, err)
			if !e.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		if err := e.identify(conn); err != nil {
			e.logger.Printf("eventbus: identity handshake failed: %v", err)
			conn.Close()
			if !e.sleep(ctx, backoff) {
				return
			}
			continue
		}

		e.setConn(conn, nil)
		e.logger.Printf("eventbus: connected to %s %s", e.network, e.address)
		e.readUntilClosed(ctx, conn)
		e.setConn(nil, errors.New("eventbus: connection closed"))
	}
}

func (e *Endpoint) identify(conn net.Conn) error {
	line, err := json.Marshal(identityFrame{Type: "identity", ID: ClientID})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = conn.Write(line)
	return err
}

func (e *Endpoint) setConn(conn net.Conn, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conn = conn
	e.connErr = err
}

// readUntilClosed scans newline-delimited JSON frames off conn and forwards
// them to recvCh until the connection errors or ctx is cancelled.
func (e *Endpoint) readUntilClosed(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	lines := make(chan []byte)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 4096), 1<<20)
		for scanner.Scan() {
			buf := make([]byte, len(scanner.Bytes()))
			copy(buf, scanner.Bytes())
			lines <- buf
		}
		errCh <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.closeCh:
			return
		case raw, ok := <-lines:
			if !ok {
				if err := <-errCh; err != nil {
					e.logger.Printf("eventbus: read error: %v", err)
				} else {
					e.logger.Printf("eventbus: connection closed by peer")
				}
				return
			}
			var msg RawMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				e.logger.Printf("eventbus: malformed frame dropped: %v", err)
				continue
			}
			if msg.Type == "" {
				e.logger.Printf("eventbus: frame with no type dropped: %s", raw)
				continue
			}
			select {
			case e.recvCh <- msg:
			case <-ctx.Done():
				return
			case <-e.closeCh:
				return
			}
		}
	}
}

func (e *Endpoint) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-e.closeCh:
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
