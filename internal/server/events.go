package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 10 * time.Second

// handleEvents upgrades to a websocket and streams the session's events as
// JSON envelopes until either side goes away. The first envelope, of type
// "state", describes the session as it was on connection.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	e := entryFrom(r)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	events, cancel := e.hub.subscribe()
	defer cancel()

	log := s.log.With().Str("session_id", e.id).Logger()
	log.Info().Msg("Observer connected")

	// Observers only listen; CloseRead handles their control frames and
	// cancels ctx once they disconnect.
	ctx := conn.CloseRead(r.Context())
	if err := write(ctx, conn, envelope{Type: "state", Data: viewOf(e)}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Observer disconnected")
			return
		case env, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "session closed")
				return
			}
			if err := write(ctx, conn, env); err != nil {
				log.Debug().Err(err).Msg("Failed to write event")
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, env envelope) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, env)
}
