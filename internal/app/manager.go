package app

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/halden/backstage/internal/core"
	"github.com/halden/backstage/internal/domain"
)

// JoinRequest is the decoded joinRoom payload. Room carries only its id and
// opaque metadata; owner and membership always come from current state.
type JoinRequest struct {
	User *domain.Attendee `json:"user"`
	Room *domain.Room     `json:"room"`
}

// Manager owns the room store and the global attendee records and is the only
// component that mutates them. A single mutex keeps operations strictly
// serial, so every method runs to completion before the next one starts.
type Manager struct {
	mu      sync.Mutex
	rooms   *core.RoomStore
	users   map[domain.ConnID]*domain.Attendee
	emitter core.ChannelEmitter
}

func NewManager(emitter core.ChannelEmitter, bus *RoomsBus) *Manager {
	m := &Manager{
		users:   make(map[domain.ConnID]*domain.Attendee),
		emitter: emitter,
	}
	m.rooms = core.NewRoomStore(domain.Project)
	m.rooms.SetObserver(func(views []domain.RoomView) {
		bus.Publish(views)
	})
	return m
}

// OnNewConnection only records that the connection exists; attendee records
// are created lazily on the first real action.
func (m *Manager) OnNewConnection(id domain.ConnID) {
	log.Info().Str("module", "app.manager").Str("conn", string(id)).Msg("connection started")
}

// JoinRoom puts the caller into the requested room, creating it when absent.
// The first member of a new room becomes its owner and an eligible speaker;
// later joiners start muted. Replies to the joiner with the member list and
// tells the rest of the room about the arrival.
func (m *Manager) JoinRoom(id domain.ConnID, req JoinRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()

	roomID := req.Room.ID
	var profile map[string]any
	if req.User != nil {
		profile = req.User.Profile
	}

	user := m.refreshUser(id, profile, roomID, !m.rooms.Has(roomID))
	room := m.joinUserRoom(user, req.Room)

	m.emitter.Join(string(roomID), id)
	m.emitter.Broadcast(string(roomID), id, core.EventUserConnected, user)
	m.emitter.Emit(id, core.EventLobbyUpdated, room.Users)

	log.Info().Str("module", "app.manager").Str("conn", string(id)).Str("room", string(roomID)).Int("members", len(room.Users)).Msg("joined room")
}

// SpeakRequest forwards the caller's request to the owner of their room,
// point-to-point.
func (m *Manager) SpeakRequest(id domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		log.Warn().Str("module", "app.manager").Str("conn", string(id)).Msg("speak request from unknown user")
		return
	}
	room, ok := m.rooms.Get(user.RoomID)
	if !ok {
		log.Warn().Str("module", "app.manager").Str("conn", string(id)).Str("room", string(user.RoomID)).Msg("speak request outside a room")
		return
	}
	m.emitter.Emit(room.Owner.ID, core.EventSpeakRequest, user)
}

// SpeakAnswer sets the target's speaker flag. The target must be a member of
// the caller's current room; otherwise nothing is mutated and nothing is
// emitted. The updated attendee goes back to the caller and is broadcast to
// the room, which includes the target.
func (m *Manager) SpeakAnswer(id domain.ConnID, answer bool, target domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	caller, ok := m.users[id]
	if !ok {
		log.Warn().Str("module", "app.manager").Str("conn", string(id)).Msg("speak answer from unknown user")
		return
	}
	room, ok := m.rooms.Get(caller.RoomID)
	if !ok {
		log.Warn().Str("module", "app.manager").Str("conn", string(id)).Str("room", string(caller.RoomID)).Msg("speak answer outside a room")
		return
	}
	if _, ok := room.FindUser(target); !ok {
		log.Warn().Str("module", "app.manager").Str("conn", string(id)).Str("target", string(target)).Str("room", string(room.ID)).Msg("speak answer for non-member rejected")
		return
	}

	updated := m.users[target].WithSpeaker(answer)
	m.users[target] = updated

	next := room.Clone()
	next.ReplaceUser(updated)
	if next.Owner.ID == target {
		next.Owner = updated
	}
	m.rooms.Set(next.ID, next)

	m.emitter.Emit(id, core.EventUpgradeUserPermission, updated)
	m.emitter.Broadcast(string(next.ID), id, core.EventUpgradeUserPermission, updated)

	log.Info().Str("module", "app.manager").Str("target", string(target)).Bool("speaker", answer).Str("room", string(next.ID)).Msg("speaker permission updated")
}

// Disconnect removes the caller's global record and, when they were in a room,
// their membership. An emptied room is deleted outright; otherwise ownership
// succession runs when the owner left or only one member remains.
func (m *Manager) Disconnect(id domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	delete(m.users, id)
	if !ok {
		log.Warn().Str("module", "app.manager").Str("conn", string(id)).Msg("disconnect for unknown user")
		return
	}
	log.Info().Str("module", "app.manager").Str("conn", string(id)).Msg("disconnecting")

	room, ok := m.rooms.Get(user.RoomID)
	if !ok {
		return
	}

	next := room.Clone()
	next.RemoveUser(id)
	m.emitter.Leave(string(next.ID), id)
	m.rooms.Set(next.ID, next)

	if len(next.Users) == 0 {
		m.rooms.Delete(next.ID)
		log.Info().Str("module", "app.manager").Str("room", string(next.ID)).Msg("room closed (empty)")
		return
	}

	ownerLeft := id == next.Owner.ID
	if ownerLeft || len(next.Users) == 1 {
		m.promoteOwner(next)
	}
	m.rooms.Set(next.ID, next)

	m.emitter.Broadcast(string(next.ID), id, core.EventUserDisconnected, user)
}

// RoomViews snapshots the projected room list for the lobby and the REST API.
func (m *Manager) RoomViews() []domain.RoomView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms.Views()
}

func (m *Manager) refreshUser(id domain.ConnID, profile map[string]any, roomID domain.RoomID, speaker bool) *domain.Attendee {
	current, ok := m.users[id]
	if !ok {
		current = domain.NewAttendee(id)
	}
	next := current.Refresh(profile, roomID, speaker)
	m.users[id] = next
	return next
}

func (m *Manager) joinUserRoom(user *domain.Attendee, req *domain.Room) *domain.Room {
	var room *domain.Room
	if current, ok := m.rooms.Get(req.ID); ok {
		room = current.Clone()
	} else {
		room = domain.NewRoom(req.ID)
		room.Owner = user
	}
	room.MergeMeta(req.Meta)
	room.AddUser(user)
	m.rooms.Set(room.ID, room)
	return room
}

// promoteOwner hands the room to the first remaining speaker in join order, or
// to the first member when no speaker is left. The chosen member is force-set
// as a speaker so a live room always has both an owner and a speaker.
func (m *Manager) promoteOwner(room *domain.Room) {
	next, ok := lo.Find(room.Users, func(a *domain.Attendee) bool { return a.IsSpeaker })
	if !ok {
		next = room.Users[0]
	}
	promoted := next.WithSpeaker(true)
	room.AddUser(promoted)
	room.Owner = promoted
	m.users[promoted.ID] = promoted

	m.emitter.Broadcast(string(room.ID), "", core.EventUpgradeUserPermission, promoted)

	log.Info().Str("module", "app.manager").Str("room", string(room.ID)).Str("owner", string(promoted.ID)).Msg("ownership transferred")
}
