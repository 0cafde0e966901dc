package signal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/halden/backstage/internal/domain"
)

// Envelope is the wire frame for both directions: a named event plus payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChannelRegistry tracks live connections and their channel membership and
// implements core.ChannelEmitter. Slow consumers get frames dropped, never
// block the caller.
type ChannelRegistry struct {
	mu       sync.RWMutex
	conns    map[domain.ConnID]*wsConn
	channels map[string]map[domain.ConnID]struct{}
}

func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{
		conns:    make(map[domain.ConnID]*wsConn),
		channels: make(map[string]map[domain.ConnID]struct{}),
	}
}

func (r *ChannelRegistry) Register(c *wsConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// Unregister drops the connection and every channel membership it held.
func (r *ChannelRegistry) Unregister(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	for name, members := range r.channels {
		delete(members, id)
		if len(members) == 0 {
			delete(r.channels, name)
		}
	}
}

func (r *ChannelRegistry) Join(channel string, id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		r.channels[channel] = members
	}
	members[id] = struct{}{}
}

func (r *ChannelRegistry) Leave(channel string, id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.channels[channel]; ok {
		delete(members, id)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

func (r *ChannelRegistry) Broadcast(channel string, except domain.ConnID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.channels[channel] {
		if id == except {
			continue
		}
		if c, ok := r.conns[id]; ok {
			if err := c.TrySend(data); err != nil {
				log.Warn().Err(err).Str("module", "signal.registry").Str("conn", string(id)).Str("event", event).Msg("dropped frame")
			}
		}
	}
}

func (r *ChannelRegistry) Emit(id domain.ConnID, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		return
	}
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		log.Warn().Str("module", "signal.registry").Str("conn", string(id)).Str("event", event).Msg("emit to unknown connection")
		return
	}
	if err := c.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal.registry").Str("conn", string(id)).Str("event", event).Msg("dropped frame")
	}
}

func encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal.registry").Str("event", event).Msg("marshal payload")
		return nil, err
	}
	data, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		log.Error().Err(err).Str("module", "signal.registry").Str("event", event).Msg("marshal envelope")
		return nil, err
	}
	return data, nil
}
