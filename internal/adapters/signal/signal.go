package signal

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/halden/backstage/internal/app"
	"github.com/halden/backstage/internal/config"
	"github.com/halden/backstage/internal/core"
	"github.com/halden/backstage/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type roomHandler func(conn *wsConn, data json.RawMessage)

// Controller owns the WebSocket endpoints for the room and lobby channels.
// Inbound room events go through a statically declared routing table.
type Controller struct {
	cfg      *config.Config
	manager  *app.Manager
	relay    *app.LobbyRelay
	registry *ChannelRegistry
	limiter  *eventRateLimiter
	validate *validator.Validate
	routes   map[string]roomHandler
}

func NewController(cfg *config.Config, manager *app.Manager, relay *app.LobbyRelay, registry *ChannelRegistry) *Controller {
	ctl := &Controller{
		cfg:      cfg,
		manager:  manager,
		relay:    relay,
		registry: registry,
		limiter:  newEventRateLimiter(cfg.EventRate, cfg.EventWindow),
		validate: validator.New(),
	}
	ctl.routes = map[string]roomHandler{
		core.EventJoinRoom:     ctl.handleJoinRoom,
		core.EventSpeakRequest: ctl.handleSpeakRequest,
		core.EventSpeakAnswer:  ctl.handleSpeakAnswer,
	}
	return ctl
}

// HandleRoom upgrades a room-channel connection and starts its pumps.
func (ctl *Controller) HandleRoom(ctx context.Context, c *gin.Context) {
	conn, ok := ctl.accept(c)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("new room connection")

	ctl.manager.OnNewConnection(conn.id)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, ctl.dispatchRoom, func() {
		ctl.manager.Disconnect(conn.id)
	})
}

// HandleLobby upgrades a lobby-viewer connection. The lobby channel is
// server-to-client only; anything the viewer sends is ignored with a warn.
func (ctl *Controller) HandleLobby(ctx context.Context, c *gin.Context) {
	conn, ok := ctl.accept(c)
	if !ok {
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(conn.id)).Msg("new lobby connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, ctl.dispatchLobby, func() {
		ctl.relay.OnViewerDisconnected(conn.id)
	})

	ctl.relay.OnViewerConnected(conn.id)
}

func (ctl *Controller) accept(c *gin.Context) (*wsConn, bool) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return nil, false
	}
	ws.SetReadLimit(ctl.cfg.ReadLimit)

	id := domain.ConnID(uuid.NewString())
	conn := newWSConn(id, ws, ctl.cfg.SendBuffer)
	ctl.registry.Register(conn)
	return conn, true
}

func (ctl *Controller) dispatchRoom(conn *wsConn, data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(conn.id)).Msg("bad envelope")
		ctl.sendError(conn, "bad_payload")
		return
	}
	if !ctl.limiter.Allow(conn.id) {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Str("event", env.Event).Msg("rate limited")
		return
	}
	handler, ok := ctl.routes[env.Event]
	if !ok {
		log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Str("event", env.Event).Msg("unknown event")
		return
	}
	handler(conn, env.Data)
}

func (ctl *Controller) dispatchLobby(conn *wsConn, data []byte) {
	log.Warn().Str("module", "signal").Str("conn", string(conn.id)).Msg("inbound frame on lobby channel ignored")
}

func (ctl *Controller) sendError(conn *wsConn, code string) {
	data, err := encode(core.EventError, map[string]string{"error": code})
	if err != nil {
		return
	}
	_ = conn.TrySend(data)
}
