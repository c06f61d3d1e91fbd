package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/host"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
)

// handleStream attaches a client for the connection and pushes a snapshot
// on open and after every change notification.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	filter := host.AppID(r.URL.Query().Get("app"))
	changes := make(chan taskbar.Change, 1)
	var client *taskbar.Client
	var snap Snapshot
	if err := s.loop.Call(ctx, func() {
		client = s.svc.Attach(filter, func(c taskbar.Change) {
			select {
			case changes <- c:
			default:
				// a snapshot is already due
			}
		})
		snap = s.snapshot(client)
	}); err != nil {
		return
	}
	defer func() {
		// the request context is gone by now
		detachCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.loop.Call(detachCtx, client.Detach)
	}()

	log := s.log.With().Uint64("client", client.ID()).Str("filter", string(filter)).Logger()
	log.Debug().Msg("Stream opened")
	defer log.Debug().Msg("Stream closed")

	// the reader only notices the peer going away
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(snap); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case change := <-changes:
			if err := s.loop.Call(ctx, func() { snap = s.snapshot(client) }); err != nil {
				return
			}
			snap.Change = newChange(change)
			if err := conn.WriteJSON(snap); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}
