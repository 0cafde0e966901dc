package domain

import (
	"encoding/json"
	"maps"
	"slices"
)

// Room is one session: an owner, an insertion-ordered member list unique by
// attendee id, and opaque client-supplied metadata. Owner and Users are never
// taken from client payloads; Meta is the only part a payload can touch.
type Room struct {
	ID    RoomID
	Owner *Attendee
	Users []*Attendee
	Meta  map[string]any
}

func NewRoom(id RoomID) *Room {
	return &Room{ID: id, Meta: map[string]any{}}
}

// Clone copies the room shell. Attendee snapshots are shared on purpose;
// they are replaced, never mutated.
func (r *Room) Clone() *Room {
	c := *r
	c.Users = slices.Clone(r.Users)
	c.Meta = maps.Clone(r.Meta)
	if c.Meta == nil {
		c.Meta = map[string]any{}
	}
	return &c
}

func (r *Room) FindUser(id ConnID) (*Attendee, bool) {
	for _, u := range r.Users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

// AddUser inserts a member, or replaces the existing snapshot in place when
// the id is already present, keeping its position in iteration order.
func (r *Room) AddUser(a *Attendee) {
	for i, u := range r.Users {
		if u.ID == a.ID {
			r.Users[i] = a
			return
		}
	}
	r.Users = append(r.Users, a)
}

// RemoveUser deletes the member with the given id and reports the removed
// snapshot. Missing ids are a no-op.
func (r *Room) RemoveUser(id ConnID) (*Attendee, bool) {
	for i, u := range r.Users {
		if u.ID == id {
			r.Users = slices.Delete(r.Users, i, i+1)
			return u, true
		}
	}
	return nil, false
}

// ReplaceUser removes the stale snapshot with the same id and reinserts the
// new one at the tail. Reports false when the id was not a member.
func (r *Room) ReplaceUser(a *Attendee) bool {
	if _, ok := r.RemoveUser(a.ID); !ok {
		return false
	}
	r.Users = append(r.Users, a)
	return true
}

// MergeMeta overlays client-supplied metadata onto the room.
func (r *Room) MergeMeta(meta map[string]any) {
	maps.Copy(r.Meta, meta)
}

// UnmarshalJSON accepts the join payload's room object: "id" plus arbitrary
// metadata. Owner and member keys are discarded so a payload can never smuggle
// them in.
func (r *Room) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"].(string); ok {
		r.ID = RoomID(v)
	}
	for _, reserved := range []string{"id", "owner", "users", "attendeesCount", "speakersCount", "featuredAttendees"} {
		delete(raw, reserved)
	}
	r.Meta = raw
	return nil
}
