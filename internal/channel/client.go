package channel

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Client issues correlated queries over a Transport. Each query carries a
// unique requestId; the matching answer resolves the pending entry at most
// once. A query that receives no answer within its timeout resolves to an
// explicit empty result, never an error.
type Client struct {
	tr    Transport
	unsub func()

	mu      sync.Mutex
	pending map[string]chan json.RawMessage
	closed  bool
}

// NewClient attaches a new querying client to the transport.
func NewClient(tr Transport) *Client {
	c := &Client{
		tr:      tr,
		pending: make(map[string]chan json.RawMessage),
	}
	c.unsub = tr.Subscribe(c.onEnvelope)
	return c
}

// Query broadcasts a query envelope and waits for its answer. The second
// return value reports whether an answer arrived; on timeout or cancellation
// it is false and the data is nil. Callers treat that as "no data", not as a
// failure.
func (c *Client) Query(ctx context.Context, action string, timeout time.Duration) (json.RawMessage, bool) {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}

	id := uuid.NewString()
	ch := make(chan json.RawMessage, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.tr.Publish(Envelope{
		ChannelID: ChannelID,
		Action:    action,
		RequestID: id,
	})

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data := <-ch:
		return data, true
	case <-timer.C:
		c.drop(id)
		log.Debug().
			Str("action", action).
			Str("request_id", id).
			Dur("timeout", timeout).
			Msg("Channel query timed out, degrading to empty result")
		return nil, false
	case <-ctx.Done():
		c.drop(id)
		return nil, false
	}
}

// Close detaches the client from the transport. In-flight queries resolve
// through their timeouts.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.unsub != nil {
		c.unsub()
	}
}

// onEnvelope resolves the pending query matching a queryResult envelope.
// The pending entry is removed before delivery, so a duplicate answer for
// the same requestId finds nothing to resolve.
func (c *Client) onEnvelope(env Envelope) {
	if env.ChannelID != ChannelID || env.Action != ActionQueryResult || env.RequestID == "" {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[env.RequestID]
	if ok {
		delete(c.pending, env.RequestID)
	}
	c.mu.Unlock()

	if ok {
		ch <- env.Data
	}
}

func (c *Client) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
