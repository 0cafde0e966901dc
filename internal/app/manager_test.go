package app

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halden/backstage/internal/core"
	"github.com/halden/backstage/internal/domain"
)

// fakeEmitter records transport calls instead of delivering them.
type fakeEmitter struct {
	mu     sync.Mutex
	joined map[string][]domain.ConnID
	left   map[string][]domain.ConnID
	events []emittedEvent
}

type emittedEvent struct {
	Channel string
	Except  domain.ConnID
	To      domain.ConnID
	Event   string
	Payload any
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{
		joined: make(map[string][]domain.ConnID),
		left:   make(map[string][]domain.ConnID),
	}
}

func (f *fakeEmitter) Join(channel string, id domain.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined[channel] = append(f.joined[channel], id)
}

func (f *fakeEmitter) Leave(channel string, id domain.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left[channel] = append(f.left[channel], id)
}

func (f *fakeEmitter) Broadcast(channel string, except domain.ConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{Channel: channel, Except: except, Event: event, Payload: payload})
}

func (f *fakeEmitter) Emit(id domain.ConnID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, emittedEvent{To: id, Event: event, Payload: payload})
}

func (f *fakeEmitter) named(event string) []emittedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emittedEvent
	for _, e := range f.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestManager() (*Manager, *fakeEmitter) {
	emitter := newFakeEmitter()
	return NewManager(emitter, NewRoomsBus()), emitter
}

func join(m *Manager, id domain.ConnID, roomID domain.RoomID, username string) {
	user := domain.NewAttendee("")
	user.Profile["username"] = username
	room := domain.NewRoom(roomID)
	m.JoinRoom(id, JoinRequest{User: user, Room: room})
}

// requireConsistent asserts the core invariants: every room has at least one
// member and its owner is one of them.
func requireConsistent(t *testing.T, m *Manager) {
	t.Helper()
	for _, v := range m.RoomViews() {
		require.GreaterOrEqual(t, v.AttendeesCount, 1)
		ownerIsMember := false
		for _, u := range v.Users {
			require.Equal(t, v.ID, u.RoomID)
			if u.ID == v.Owner.ID {
				ownerIsMember = true
			}
		}
		require.True(t, ownerIsMember, "owner must be a member of room %s", v.ID)
	}
}

func TestJoinRoom_FirstMemberBecomesOwnerAndSpeaker(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	// When the first client joins a new room
	join(m, "a", "r1", "ana")

	// Then they own the room and count as a speaker
	views := m.RoomViews()
	req.Len(views, 1)
	req.Equal(domain.ConnID("a"), views[0].Owner.ID)
	req.Equal(1, views[0].AttendeesCount)
	req.Equal(1, views[0].SpeakersCount)
	requireConsistent(t, m)

	// And the joiner got the member-list reply
	replies := emitter.named(core.EventLobbyUpdated)
	req.Len(replies, 1)
	req.Equal(domain.ConnID("a"), replies[0].To)
	users, ok := replies[0].Payload.([]*domain.Attendee)
	req.True(ok)
	req.Len(users, 1)
	req.Equal(domain.ConnID("a"), users[0].ID)

	// And the connection joined the room channel
	req.Equal([]domain.ConnID{"a"}, emitter.joined["r1"])
}

func TestJoinRoom_SecondJoinerIsNotSpeaker(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	// Given an existing room
	join(m, "a", "r1", "ana")

	// When a second client joins it
	join(m, "b", "r1", "bia")

	views := m.RoomViews()
	req.Equal(2, views[0].AttendeesCount)
	req.Equal(1, views[0].SpeakersCount)
	req.Equal(domain.ConnID("a"), views[0].Owner.ID)
	requireConsistent(t, m)

	// And the room heard about the arrival, excluding the joiner
	arrivals := emitter.named(core.EventUserConnected)
	req.Len(arrivals, 2)
	last := arrivals[1]
	req.Equal("r1", last.Channel)
	req.Equal(domain.ConnID("b"), last.Except)
	joinedUser := last.Payload.(*domain.Attendee)
	req.Equal(domain.ConnID("b"), joinedUser.ID)
	req.False(joinedUser.IsSpeaker)
}

func TestJoinRoom_RejoinDoesNotDuplicateMembership(t *testing.T) {
	req := require.New(t)
	m, _ := newTestManager()

	join(m, "a", "r1", "ana")
	join(m, "b", "r1", "bia")

	// When a member rejoins the same room
	join(m, "b", "r1", "bia maria")

	views := m.RoomViews()
	req.Equal(2, views[0].AttendeesCount)
	req.Equal(domain.ConnID("a"), views[0].Owner.ID)
	requireConsistent(t, m)
}

func TestJoinRoom_MetadataMergesButNeverOwner(t *testing.T) {
	req := require.New(t)
	m, _ := newTestManager()

	join(m, "a", "r1", "ana")

	// When a joiner supplies room metadata
	user := domain.NewAttendee("")
	room := domain.NewRoom("r1")
	room.Meta["topic"] = "gophers"
	m.JoinRoom("b", JoinRequest{User: user, Room: room})

	views := m.RoomViews()
	req.Equal("gophers", views[0].Meta["topic"])
	req.Equal(domain.ConnID("a"), views[0].Owner.ID)
}

func TestSpeakRequest_GoesToOwnerOnly(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	join(m, "a", "r1", "ana")
	join(m, "b", "r1", "bia")

	m.SpeakRequest("b")

	requests := emitter.named(core.EventSpeakRequest)
	req.Len(requests, 1)
	req.Equal(domain.ConnID("a"), requests[0].To)
	requester := requests[0].Payload.(*domain.Attendee)
	req.Equal(domain.ConnID("b"), requester.ID)
}

func TestSpeakAnswer_GrantsPermission(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	join(m, "a", "r1", "ana")
	join(m, "b", "r1", "bia")

	// When the owner grants the request
	m.SpeakAnswer("a", true, "b")

	views := m.RoomViews()
	req.Equal(2, views[0].SpeakersCount)
	requireConsistent(t, m)

	// Then the caller got a reply and the room got the broadcast
	upgrades := emitter.named(core.EventUpgradeUserPermission)
	req.Len(upgrades, 2)
	req.Equal(domain.ConnID("a"), upgrades[0].To)
	req.Equal("r1", upgrades[1].Channel)
	req.Equal(domain.ConnID("a"), upgrades[1].Except)
	upgraded := upgrades[1].Payload.(*domain.Attendee)
	req.Equal(domain.ConnID("b"), upgraded.ID)
	req.True(upgraded.IsSpeaker)
}

func TestSpeakAnswer_RevokesPermission(t *testing.T) {
	req := require.New(t)
	m, _ := newTestManager()

	join(m, "a", "r1", "ana")
	join(m, "b", "r1", "bia")
	m.SpeakAnswer("a", true, "b")

	m.SpeakAnswer("a", false, "b")

	views := m.RoomViews()
	req.Equal(1, views[0].SpeakersCount)
	requireConsistent(t, m)
}

func TestSpeakAnswer_RejectsNonMember(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	join(m, "a", "r1", "ana")
	join(m, "c", "r2", "cris")

	before := m.RoomViews()

	// When the owner of r1 answers for someone in another room
	m.SpeakAnswer("a", true, "c")

	// Then nothing is mutated and nothing is emitted
	req.Equal(before, m.RoomViews())
	req.Empty(emitter.named(core.EventUpgradeUserPermission))
}

func TestDisconnect_SuccessionPrefersFirstSpeaker(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	// Given room [b(owner,speaker), a(speaker), c]
	join(m, "b", "r1", "bia")
	join(m, "a", "r1", "ana")
	join(m, "c", "r1", "cris")
	m.SpeakAnswer("b", true, "a")

	// When the owner disconnects
	m.Disconnect("b")

	// Then the first remaining speaker takes over and stays a speaker
	views := m.RoomViews()
	req.Equal(domain.ConnID("a"), views[0].Owner.ID)
	req.True(views[0].Owner.IsSpeaker)
	req.Equal(2, views[0].AttendeesCount)
	requireConsistent(t, m)

	departures := emitter.named(core.EventUserDisconnected)
	req.Len(departures, 1)
	gone := departures[0].Payload.(*domain.Attendee)
	req.Equal(domain.ConnID("b"), gone.ID)
}

func TestDisconnect_SuccessionFallbackForcesSpeaker(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	// Given room [a(owner), b] with b not a speaker
	join(m, "a", "r1", "ana")
	join(m, "b", "r1", "bia")

	// When the owner disconnects
	m.Disconnect("a")

	// Then the first member in order becomes owner with speaker forced on
	views := m.RoomViews()
	req.Equal(domain.ConnID("b"), views[0].Owner.ID)
	req.True(views[0].Owner.IsSpeaker)
	req.Equal(1, views[0].SpeakersCount)
	requireConsistent(t, m)

	upgrades := emitter.named(core.EventUpgradeUserPermission)
	req.NotEmpty(upgrades)
	promoted := upgrades[len(upgrades)-1].Payload.(*domain.Attendee)
	req.Equal(domain.ConnID("b"), promoted.ID)
	req.True(promoted.IsSpeaker)
}

func TestDisconnect_LastUserRuleTriggersSuccession(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	// Given a two-member room where the non-owner leaves
	join(m, "a", "r1", "ana")
	join(m, "b", "r1", "bia")

	m.Disconnect("b")

	// Then succession still ran for the survivor
	views := m.RoomViews()
	req.Equal(domain.ConnID("a"), views[0].Owner.ID)
	req.True(views[0].Owner.IsSpeaker)
	req.NotEmpty(emitter.named(core.EventUpgradeUserPermission))
	requireConsistent(t, m)
}

func TestDisconnect_LastMemberRemovesRoom(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	join(m, "a", "r1", "ana")

	m.Disconnect("a")

	req.Empty(m.RoomViews())
	req.Equal([]domain.ConnID{"a"}, emitter.left["r1"])
	// No departure broadcast: nobody is left to hear it
	req.Empty(emitter.named(core.EventUserDisconnected))
}

func TestDisconnect_UnknownUserIsNoop(t *testing.T) {
	req := require.New(t)
	m, emitter := newTestManager()

	join(m, "a", "r1", "ana")

	m.Disconnect("ghost")

	req.Len(m.RoomViews(), 1)
	req.Empty(emitter.named(core.EventUserDisconnected))
}
