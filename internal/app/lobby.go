package app

import (
	"github.com/rs/zerolog/log"

	"github.com/halden/backstage/internal/core"
	"github.com/halden/backstage/internal/domain"
)

// LobbyChannel groups every browsing (non-joined) viewer connection.
const LobbyChannel = "lobby"

// LobbyRelay re-emits room summaries to lobby viewers. A new viewer gets the
// current snapshot immediately; afterwards every bus event is fanned out as
// the full list, never a delta.
type LobbyRelay struct {
	manager *Manager
	emitter core.ChannelEmitter
}

func NewLobbyRelay(manager *Manager, emitter core.ChannelEmitter, bus *RoomsBus) *LobbyRelay {
	r := &LobbyRelay{manager: manager, emitter: emitter}
	bus.Subscribe(r.onRoomsUpdated)
	return r
}

func (r *LobbyRelay) OnViewerConnected(id domain.ConnID) {
	log.Info().Str("module", "app.lobby").Str("conn", string(id)).Msg("lobby viewer connected")
	r.emitter.Emit(id, core.EventLobbyUpdated, r.manager.RoomViews())
	r.emitter.Join(LobbyChannel, id)
}

func (r *LobbyRelay) OnViewerDisconnected(id domain.ConnID) {
	log.Info().Str("module", "app.lobby").Str("conn", string(id)).Msg("lobby viewer disconnected")
	r.emitter.Leave(LobbyChannel, id)
}

func (r *LobbyRelay) onRoomsUpdated(views []domain.RoomView) {
	r.emitter.Broadcast(LobbyChannel, "", core.EventLobbyUpdated, views)
}
