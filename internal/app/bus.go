package app

import (
	"sync"

	"github.com/halden/backstage/internal/domain"
)

// RoomsBus is the in-process pub/sub channel between the room store and the
// lobby relay. One event kind: the full projected room list. Publish is
// synchronous fan-out with no queue; a publish with no subscribers is lost.
type RoomsBus struct {
	mu   sync.RWMutex
	subs []func(views []domain.RoomView)
}

func NewRoomsBus() *RoomsBus {
	return &RoomsBus{}
}

// Subscribe registers a handler for every future publish. Subscriptions last
// for the process lifetime.
func (b *RoomsBus) Subscribe(fn func(views []domain.RoomView)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *RoomsBus) Publish(views []domain.RoomView) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.subs {
		fn(views)
	}
}
