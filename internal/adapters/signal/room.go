package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/halden/backstage/internal/app"
	"github.com/halden/backstage/internal/domain"
)

func (ctl *Controller) handleJoinRoom(conn *wsConn, data json.RawMessage) {
	var req app.JoinRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("bad join payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if req.Room == nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := ctl.validate.Var(string(req.Room.ID), "required,max=64"); err != nil {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Msg("invalid room id")
		ctl.sendError(conn, "invalid_room")
		return
	}
	ctl.manager.JoinRoom(conn.id, req)
}

func (ctl *Controller) handleSpeakRequest(conn *wsConn, _ json.RawMessage) {
	ctl.manager.SpeakRequest(conn.id)
}

func (ctl *Controller) handleSpeakAnswer(conn *wsConn, data json.RawMessage) {
	var p struct {
		Answer bool             `json:"answer"`
		User   *domain.Attendee `json:"user"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("bad speak answer payload")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if p.User == nil {
		ctl.sendError(conn, "bad_payload")
		return
	}
	if err := ctl.validate.Var(string(p.User.ID), "required,max=64"); err != nil {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Msg("invalid speak answer target")
		ctl.sendError(conn, "invalid_user")
		return
	}
	ctl.manager.SpeakAnswer(conn.id, p.Answer, p.User.ID)
}
