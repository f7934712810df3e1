package channel

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// HandlerFunc produces the answer payload for one query action.
type HandlerFunc func() (any, error)

// Responder answers queries on behalf of a monitor. One responder serves one
// page; handlers are registered per action.
type Responder struct {
	tr    Transport
	unsub func()

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewResponder attaches a responder to the transport.
func NewResponder(tr Transport) *Responder {
	r := &Responder{
		tr:       tr,
		handlers: make(map[string]HandlerFunc),
	}
	r.unsub = tr.Subscribe(r.onEnvelope)
	return r
}

// Handle registers fn as the answer source for action.
func (r *Responder) Handle(action string, fn HandlerFunc) {
	r.mu.Lock()
	r.handlers[action] = fn
	r.mu.Unlock()
}

// Close detaches the responder from the transport.
func (r *Responder) Close() {
	if r.unsub != nil {
		r.unsub()
	}
}

func (r *Responder) onEnvelope(env Envelope) {
	if env.ChannelID != ChannelID || env.RequestID == "" || env.Action == ActionQueryResult {
		return
	}

	r.mu.RLock()
	fn, ok := r.handlers[env.Action]
	r.mu.RUnlock()
	if !ok {
		// Unknown actions are someone else's traffic
		return
	}

	payload, err := fn()
	if err != nil {
		// The caller's timeout handles a missing answer
		log.Debug().
			Err(err).
			Str("action", env.Action).
			Msg("Channel handler failed, query left to time out")
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Debug().
			Err(err).
			Str("action", env.Action).
			Msg("Channel answer could not be serialized")
		return
	}

	r.tr.Publish(Envelope{
		ChannelID: ChannelID,
		Action:    ActionQueryResult,
		RequestID: env.RequestID,
		Data:      data,
	})
}
