package haltfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"DealWatch/internal/domain/models"
	drepo "DealWatch/internal/domain/repository"

	"github.com/gorilla/websocket"
)

// Client implements an EventStream backed by the exchange notice WebSocket.
// It is the streaming alternative to the Kafka outcome feed.
type Client struct {
	apiKey         string
	websocketURL   string
	channels       []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
}

// New creates a new halt/milestone EventStream.
func New(apiKey, websocketURL string, channels []string, reconnectDelay, pingInterval time.Duration) drepo.EventStream {
	return &Client{
		apiKey:         apiKey,
		websocketURL:   websocketURL,
		channels:       channels,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", c.websocketURL, c.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("haltfeed connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	log.Printf("haltfeed: connected")
	return nil
}

// Subscribe subscribes to configured channels.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("haltfeed not connected")
	}
	for _, ch := range c.channels {
		msg := map[string]string{"type": "subscribe", "channel": ch}
		if err := c.conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("subscribe %s: %w", ch, err)
		}
		log.Printf("haltfeed: subscribed %s", ch)
	}
	return nil
}

type feedFrame struct {
	Type string               `json:"type"`
	Data []models.OutcomeEvent `json:"data"`
}

// Read streams outcome events and errors.
func (c *Client) Read(ctx context.Context) (<-chan *models.OutcomeEvent, <-chan error) {
	events := make(chan *models.OutcomeEvent, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(events)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("haltfeed conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("haltfeed read: %w", err)
					return
				}
				var m feedFrame
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-event frames
					continue
				}
				if m.Type != "event" {
					continue
				}
				for i := range m.Data {
					ev := m.Data[i]
					if ev.ObservedAt.IsZero() {
						ev.ObservedAt = time.Now().UTC()
					}
					select {
					case events <- &ev:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return events, errs
}

// Reconnect closes and reconnects.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	time.Sleep(c.reconnectDelay)
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool { return c.connected }
