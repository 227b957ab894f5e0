package main

import (
	"errors"

	"github.com/gorilla/websocket"
)

// serverEvent is the client-side view of anything the server emits, flat
// so one decode handles every event type.
type serverEvent struct {
	Type    string        `json:"type"`
	ID      string        `json:"id,omitempty"`
	Message string        `json:"message,omitempty"`
	State   *roomSnapshot `json:"state,omitempty"`
}

// clientTransport lets game clients speak the same intent protocol whether
// they talk to a live server over a websocket or to an in-process gateway.
type clientTransport interface {
	Emit(msg intentMessage) error
	Events() <-chan serverEvent
	Close() error
}

// wsClient is the live-server transport.
type wsClient struct {
	sock   *websocket.Conn
	events chan serverEvent
}

func dialGame(url string) (*wsClient, error) {
	sock, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}

	c := &wsClient{
		sock:   sock,
		events: make(chan serverEvent, 64),
	}

	go func() {
		defer close(c.events)
		for {
			var event serverEvent
			if err := sock.ReadJSON(&event); err != nil {
				return
			}
			c.events <- event
		}
	}()

	return c, nil
}

func (c *wsClient) Emit(msg intentMessage) error {
	return c.sock.WriteJSON(msg)
}

func (c *wsClient) Events() <-chan serverEvent {
	return c.events
}

func (c *wsClient) Close() error {
	return c.sock.Close()
}

// localClient talks straight to a gateway with no network in between,
// used for local simulation and the round-trip tests.
type localClient struct {
	gateway *Gateway
	conn    *conn
	events  chan serverEvent
	done    chan struct{}
}

// connectLocal attaches a loopback client to the gateway. Its events
// channel carries the same payloads a websocket peer would receive.
func (g *Gateway) connectLocal() *localClient {
	c := &localClient{
		gateway: g,
		conn:    g.connect(nil),
		events:  make(chan serverEvent, 64),
		done:    make(chan struct{}),
	}

	go func() {
		defer close(c.events)
		for msg := range c.conn.send {
			var event serverEvent
			switch m := msg.(type) {
			case connectedMessage:
				event = serverEvent{Type: m.Type, ID: m.ID}
			case stateMessage:
				state := m.State
				event = serverEvent{Type: m.Type, State: &state}
			case errorMessage:
				event = serverEvent{Type: m.Type, Message: m.Message}
			case kickedMessage:
				event = serverEvent{Type: m.Type}
			default:
				continue
			}

			select {
			case c.events <- event:
			case <-c.done:
				return
			}
		}
	}()

	return c
}

func (c *localClient) Emit(msg intentMessage) error {
	select {
	case <-c.done:
		return errors.New("transport closed")
	default:
	}
	c.gateway.dispatch(c.conn, msg)
	return nil
}

func (c *localClient) Events() <-chan serverEvent {
	return c.events
}

func (c *localClient) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.gateway.disconnect(c.conn)
	return nil
}

// id returns the connection identifier assigned at connect time.
func (c *localClient) id() string {
	return c.conn.id
}
