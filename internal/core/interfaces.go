package core

import "github.com/halden/backstage/internal/domain"

// ChannelEmitter is the transport boundary: named events delivered to a single
// connection or fanned out to a channel (one channel per room, one for lobby
// viewers). Owned by the adapter; the core never touches sockets.
type ChannelEmitter interface {
	Join(channel string, id domain.ConnID)
	Leave(channel string, id domain.ConnID)
	// Broadcast emits to every channel member except the given one; pass an
	// empty id to reach everyone.
	Broadcast(channel string, except domain.ConnID, event string, payload any)
	// Emit addresses one connection point-to-point.
	Emit(id domain.ConnID, event string, payload any)
}
