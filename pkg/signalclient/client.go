// Package signalclient is a websocket client for the signaling server. It is
// what a publisher or viewer process uses to reach the relay.
package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	pkglog "github.com/weiawesome/peercast/pkg/log"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrPublisherTimeout = errors.New("no publisher joined before retries ran out")
	ErrServer           = errors.New("server error")
	ErrClosed           = errors.New("connection closed")
)

// Message types exchanged with the server.
const (
	TypePublisherJoin         = "publisher_join"
	TypeViewerJoin            = "viewer_join"
	TypeRelay                 = "relay"
	TypePing                  = "ping"
	TypeConnected             = "connected"
	TypeSessionUpdated        = "session_updated"
	TypeViewerWantsConnection = "viewer_wants_connection"
	TypeNoPublisher           = "no_publisher"
	TypeNotFound              = "not_found"
	TypeError                 = "error"
	TypePong                  = "pong"
)

// Session is the session snapshot carried by session_updated.
type Session struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	Title               string    `json:"title"`
	Owner               string    `json:"owner"`
	IsPublic            bool      `json:"is_public"`
	CreatedAt           time.Time `json:"created_at"`
	PublisherConnection *string   `json:"publisher_connection"`
}

// Live reports whether the snapshot has a publisher.
func (s *Session) Live() bool {
	return s != nil && s.PublisherConnection != nil && *s.PublisherConnection != ""
}

// Message is any server event. Only the fields of its type are set.
type Message struct {
	Type               string          `json:"type"`
	ConnectionID       string          `json:"connection_id,omitempty"`
	SessionID          string          `json:"session_id,omitempty"`
	Session            *Session        `json:"session,omitempty"`
	ViewerConnectionID string          `json:"viewer_connection_id,omitempty"`
	From               string          `json:"from,omitempty"`
	Payload            json.RawMessage `json:"payload,omitempty"`
	Code               string          `json:"code,omitempty"`
	Message            string          `json:"message,omitempty"`
	Reason             string          `json:"reason,omitempty"`
}

// Client is one signaling connection.
type Client struct {
	// ID is the connection id the server assigned.
	ID string

	conn      *websocket.Conn
	writeMu   sync.Mutex
	incoming  chan *Message
	done      chan struct{}
	err       error
	closeOnce sync.Once
}

// Dial connects to the server's websocket endpoint (ws://host/ws) and waits
// for the connected event.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		incoming: make(chan *Message, 64),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	msg, err := c.Next(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if msg.Type != TypeConnected {
		c.Close()
		return nil, fmt.Errorf("expected %s, got %s", TypeConnected, msg.Type)
	}
	c.ID = msg.ConnectionID
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.incoming)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.err = err
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			l := pkglog.L()
			l.Debug().Err(err).Msg("signalclient: undecodable message")
			continue
		}
		select {
		case c.incoming <- &msg:
		case <-c.done:
			return
		}
	}
}

// Next returns the next server message.
func (c *Client) Next(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c.incoming:
		if !ok {
			return nil, c.closedErr()
		}
		return msg, nil
	}
}

func (c *Client) closedErr() error {
	if c.err != nil {
		return fmt.Errorf("%w: %v", ErrClosed, c.err)
	}
	return ErrClosed
}

func (c *Client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// JoinAsPublisher claims the publisher role. token may be empty when the
// server does not require one.
func (c *Client) JoinAsPublisher(sessionID, token string) error {
	return c.send(map[string]string{"type": TypePublisherJoin, "session_id": sessionID, "token": token})
}

// JoinAsViewer sends a single viewer_join.
func (c *Client) JoinAsViewer(sessionID string) error {
	return c.send(map[string]string{"type": TypeViewerJoin, "session_id": sessionID})
}

// Relay sends payload to another connection.
func (c *Client) Relay(to string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.send(struct {
		Type    string          `json:"type"`
		To      string          `json:"to"`
		Payload json.RawMessage `json:"payload"`
	}{TypeRelay, to, raw})
}

// Ping asks the server for a pong.
func (c *Client) Ping() error {
	return c.send(map[string]string{"type": TypePing})
}

// AwaitPublisher joins sessionID as a viewer and waits for the publisher to
// start negotiating. Each no_publisher reply schedules another join after a
// backoff delay; a session_updated showing a publisher rejoins at once. It
// returns the first relay message, ErrSessionNotFound, or
// ErrPublisherTimeout once b.MaxAttempts joins were answered with
// no_publisher. Messages other than those are discarded. Cancel ctx to stop
// waiting.
func (c *Client) AwaitPublisher(ctx context.Context, sessionID string, b Backoff) (*Message, error) {
	l := pkglog.Ctx(ctx)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if err := c.JoinAsViewer(sessionID); err != nil {
		return nil, err
	}
	attempt := 1

	var timer *time.Timer
	var retry <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	rejoin := func() error {
		if timer != nil {
			timer.Stop()
		}
		retry = nil
		attempt++
		return c.JoinAsViewer(sessionID)
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-retry:
			if err := rejoin(); err != nil {
				return nil, err
			}

		case msg, ok := <-c.incoming:
			if !ok {
				return nil, c.closedErr()
			}
			switch msg.Type {
			case TypeRelay:
				return msg, nil

			case TypeNotFound:
				if msg.SessionID == sessionID {
					return nil, ErrSessionNotFound
				}

			case TypeError:
				return nil, fmt.Errorf("%w: %s: %s", ErrServer, msg.Code, msg.Message)

			case TypeNoPublisher:
				if msg.SessionID != sessionID || retry != nil {
					continue
				}
				if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
					return nil, ErrPublisherTimeout
				}
				delay := NextDelay(b, attempt, rng)
				l.Debug().Str(pkglog.FieldSessionID, sessionID).Int("attempt", attempt).
					Dur("delay", delay).Msg("no publisher yet, retrying")
				timer = time.NewTimer(delay)
				retry = timer.C

			case TypeSessionUpdated:
				if retry != nil && msg.Session != nil && msg.Session.ID == sessionID && msg.Session.Live() {
					if err := rejoin(); err != nil {
						return nil, err
					}
				}
			}
		}
	}
}

// Close closes the connection. Safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
