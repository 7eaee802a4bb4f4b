package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/weiawesome/realm-live/internal/config"
	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/hub"
	"github.com/weiawesome/realm-live/internal/service"
	"github.com/weiawesome/realm-live/pkg/log"
)

// Channel ids only need to be unique within this process.
const (
	clientIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	clientIDSize     = 12
)

type WSHandler struct {
	service  service.ConnectionService
	wsCfg    config.WebSocketConfig
	upgrader websocket.Upgrader
}

func NewWSHandler(svc service.ConnectionService, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		service: svc,
		wsCfg:   wsCfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(wsCfg.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when none are configured.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id, err := gonanoid.Generate(clientIDAlphabet, clientIDSize)
	if err != nil {
		l := log.Ctx(r.Context())
		l.Error().Err(err).Msg("failed to generate channel id")
		conn.Close()
		return
	}

	client := hub.NewClient("ch_"+id, conn, h.wsCfg)
	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Msg("channel opened")

	go client.WritePump()
	go client.ReadPump(h.handleMessage, h.handleClose)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	ctx := log.WithStr(context.Background(), log.FieldClientID, client.ID)
	l := log.Ctx(ctx)

	msg, err := domain.DecodeInbound(message)
	if err != nil {
		l.Debug().Err(err).Msg("ignoring inbound frame")
		return
	}

	switch m := msg.(type) {
	case domain.AuthMessage:
		if err := h.service.HandleAuth(ctx, client, m.Token); err != nil {
			if errors.Is(err, service.ErrAuthFailed) {
				l.Debug().Err(err).Msg("channel auth rejected")
				return
			}
			l.Warn().Err(err).Msg("channel auth failed")
		}
	case domain.PingMessage:
		if err := h.service.HandlePing(ctx, client); err != nil {
			l.Debug().Err(err).Msg("ping failed")
		}
	}
}

func (h *WSHandler) handleClose(client *hub.Client) {
	ctx := log.WithStr(context.Background(), log.FieldClientID, client.ID)
	h.service.HandleDisconnect(ctx, client)
}

func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", gin.WrapF(h.HandleWebSocket))
}
