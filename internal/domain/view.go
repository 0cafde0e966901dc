package domain

import (
	"encoding/json"
	"maps"

	"github.com/samber/lo"
)

const featuredLimit = 3

// RoomView is the lobby-facing projection of a room. It is recomputed from the
// stored room on every read, never cached.
type RoomView struct {
	ID                RoomID
	Owner             *Attendee
	Users             []*Attendee
	AttendeesCount    int
	SpeakersCount     int
	FeaturedAttendees []*Attendee
	Meta              map[string]any
}

// Project derives the lobby view: member counters and the first few attendees
// in join order for the lobby preview cards.
func Project(r *Room) RoomView {
	users := lo.Slice(r.Users, 0, len(r.Users))
	return RoomView{
		ID:                r.ID,
		Owner:             r.Owner,
		Users:             users,
		AttendeesCount:    len(users),
		SpeakersCount:     lo.CountBy(users, func(a *Attendee) bool { return a.IsSpeaker }),
		FeaturedAttendees: lo.Slice(users, 0, featuredLimit),
		Meta:              r.Meta,
	}
}

// The wire shape is flat and conveys membership as a count, not a list:
// {id, owner, attendeesCount, speakersCount, featuredAttendees, ...meta}.
func (v RoomView) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Meta)+5)
	maps.Copy(out, v.Meta)
	out["id"] = v.ID
	out["owner"] = v.Owner
	out["attendeesCount"] = v.AttendeesCount
	out["speakersCount"] = v.SpeakersCount
	out["featuredAttendees"] = v.FeaturedAttendees
	return json.Marshal(out)
}
