// Package channel implements the broadcast channel the monitor and the
// collector communicate over. Delivery is fire-and-forget: no acknowledgement,
// no ordering guarantee, no retry. Request/response correlation is layered on
// top by the Client and lives entirely on the caller side.
package channel

import (
	"encoding/json"
	"time"
)

// ChannelID identifies envelopes belonging to this tool. Listeners drop
// everything else, so unrelated broadcast traffic never reaches a handler.
const ChannelID = "pagerecon-diagnostics"

// Query actions understood by the monitor side.
const (
	ActionGetInterceptedRequests = "getInterceptedRequests"
	ActionGetWindowProperties    = "getWindowProperties"
)

// ActionQueryResult marks an envelope as the answer to a prior query.
// The requestId ties it back to the query it answers.
const ActionQueryResult = "queryResult"

// DefaultQueryTimeout is how long a caller waits for an answer before
// degrading to an empty result.
const DefaultQueryTimeout = 3 * time.Second

// Envelope is the unit of broadcast traffic.
type Envelope struct {
	ChannelID string          `json:"channelId"`
	Action    string          `json:"action"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Transport carries envelopes between attached parties. Publish never blocks
// on slow receivers and never reports delivery failure.
type Transport interface {
	Publish(env Envelope)
	Subscribe(fn func(env Envelope)) (unsubscribe func())
}
