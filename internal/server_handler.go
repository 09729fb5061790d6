package internal

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS authenticates the request, upgrades it and runs the session on the
// handler goroutine until the client leaves. Auth failures are rejected
// before the upgrade.
func (s *Server) ServeWS(writer http.ResponseWriter, request *http.Request) {
	query := request.URL.Query()
	userID, err := s.verifier.Verify(bearerToken(request))
	if err != nil {
		http.Error(writer, "bad token", http.StatusUnauthorized)
		return
	}
	roomKey := strings.TrimSpace(query.Get("room"))
	if roomKey == "" {
		roomKey = DefaultRoom
	}
	name := resolveDisplayName(request.Context(), s.directory, userID, s.logger)

	websocketConn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}

	session := NewSession(s.hub, newWSTransport(websocketConn), SessionConfig{
		UserID:        userID,
		Name:          name,
		Room:          roomKey,
		ReplayHistory: query.Get("replay") != "0",
		Logger:        s.logger,
	})

	s.metrics.IncConn()
	if s.online.Connect(userID) {
		s.logger.Info().Str("user_id", userID).Str("name", name).Msg("user online")
	}
	defer func() {
		s.metrics.DecConn()
		if s.online.Disconnect(userID) {
			s.logger.Info().Str("user_id", userID).Str("name", name).Msg("user offline")
		}
	}()

	if err := session.Run(s.ctx); err != nil && !errors.Is(err, ErrRoomClosed) && !errors.Is(err, context.Canceled) {
		s.logger.Debug().Err(err).Str("room", roomKey).Str("user_id", userID).Msg("session ended")
	}
}

// token from ?token= (browsers cannot set headers on websocket requests) or
// an Authorization bearer header
func bearerToken(request *http.Request) string {
	if token := request.URL.Query().Get("token"); token != "" {
		return token
	}
	header := request.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
