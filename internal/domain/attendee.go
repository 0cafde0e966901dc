// Package domain contains entity snapshots without transport or lifecycle logic.
package domain

import (
	"encoding/json"
	"maps"
)

type (
	ConnID string
	RoomID string
)

// Attendee is one connected user's state at a point in time. Snapshots are
// never mutated in place: every change produces a replacement built from the
// previous one, so references held by rooms or broadcasts stay stable.
type Attendee struct {
	ID        ConnID
	RoomID    RoomID
	IsSpeaker bool
	// Profile carries client-supplied fields (username, avatar, ...) that the
	// server passes through untouched.
	Profile map[string]any
}

func NewAttendee(id ConnID) *Attendee {
	return &Attendee{ID: id, Profile: map[string]any{}}
}

// Clone copies the snapshot, including its profile map.
func (a *Attendee) Clone() *Attendee {
	c := *a
	c.Profile = maps.Clone(a.Profile)
	if c.Profile == nil {
		c.Profile = map[string]any{}
	}
	return &c
}

// Refresh supersedes the snapshot on a join or rejoin: incoming profile fields
// overlay the current ones, room membership and speaker eligibility are set
// outright.
func (a *Attendee) Refresh(profile map[string]any, roomID RoomID, speaker bool) *Attendee {
	next := a.Clone()
	maps.Copy(next.Profile, profile)
	next.RoomID = roomID
	next.IsSpeaker = speaker
	return next
}

// WithSpeaker supersedes the snapshot with a new speaker flag.
func (a *Attendee) WithSpeaker(speaker bool) *Attendee {
	next := a.Clone()
	next.IsSpeaker = speaker
	return next
}

// The wire shape is flat: {id, roomId, isSpeaker, ...profile}.

func (a *Attendee) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Profile)+3)
	maps.Copy(out, a.Profile)
	out["id"] = a.ID
	out["roomId"] = a.RoomID
	out["isSpeaker"] = a.IsSpeaker
	return json.Marshal(out)
}

func (a *Attendee) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["id"].(string); ok {
		a.ID = ConnID(v)
	}
	if v, ok := raw["roomId"].(string); ok {
		a.RoomID = RoomID(v)
	}
	if v, ok := raw["isSpeaker"].(bool); ok {
		a.IsSpeaker = v
	}
	delete(raw, "id")
	delete(raw, "roomId")
	delete(raw, "isSpeaker")
	a.Profile = raw
	return nil
}
