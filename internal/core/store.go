package core

import (
	"slices"

	"github.com/halden/backstage/internal/domain"
)

// RoomObserver receives the entire projected store after every write.
type RoomObserver func(views []domain.RoomView)

// RoomStore is an insertion-ordered room collection that notifies a single
// observer about every Set and Delete. Reads project stored rooms through the
// supplied mapper per call, so projections are always fresh; writes store raw
// state only. Not safe for concurrent use: the manager serializes access.
type RoomStore struct {
	project  func(*domain.Room) domain.RoomView
	observer RoomObserver
	order    []domain.RoomID
	rooms    map[domain.RoomID]*domain.Room
}

func NewRoomStore(project func(*domain.Room) domain.RoomView) *RoomStore {
	return &RoomStore{
		project: project,
		rooms:   make(map[domain.RoomID]*domain.Room),
	}
}

// SetObserver registers the one observer. Must be called before the first
// write.
func (s *RoomStore) SetObserver(fn RoomObserver) { s.observer = fn }

func (s *RoomStore) Has(id domain.RoomID) bool {
	_, ok := s.rooms[id]
	return ok
}

func (s *RoomStore) Get(id domain.RoomID) (*domain.Room, bool) {
	r, ok := s.rooms[id]
	return r, ok
}

func (s *RoomStore) Len() int { return len(s.rooms) }

// Set stores the room and notifies the observer. Updates keep the room's
// original position in iteration order.
func (s *RoomStore) Set(id domain.RoomID, room *domain.Room) {
	if _, ok := s.rooms[id]; !ok {
		s.order = append(s.order, id)
	}
	s.rooms[id] = room
	s.notify()
}

// Delete removes the room and notifies the observer. Deleting an absent id
// changes nothing but still notifies; callers de-duplicate upstream when that
// matters.
func (s *RoomStore) Delete(id domain.RoomID) {
	if _, ok := s.rooms[id]; ok {
		delete(s.rooms, id)
		s.order = slices.DeleteFunc(s.order, func(o domain.RoomID) bool { return o == id })
	}
	s.notify()
}

// Views projects every stored room in insertion order.
func (s *RoomStore) Views() []domain.RoomView {
	out := make([]domain.RoomView, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.project(s.rooms[id]))
	}
	return out
}

func (s *RoomStore) notify() {
	if s.observer != nil {
		s.observer(s.Views())
	}
}
