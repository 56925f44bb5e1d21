package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/Rizzu97/app/internal/camera/core"
	"github.com/Rizzu97/app/internal/camera/player"
	"github.com/Rizzu97/app/internal/version"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// RespondJSON sends a JSON response with the given status code and data
func RespondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, statusCode int, err error) {
	RespondJSON(w, statusCode, map[string]string{"error": err.Error()})
}

// ButtonStatus is the button server part of the status document.
type ButtonStatus struct {
	Running  bool   `json:"running"`
	Pressed  uint64 `json:"pressed"`
	Released uint64 `json:"released"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Player      player.Status `json:"player"`
	Buttons     *ButtonStatus `json:"buttons,omitempty"`
	Subscribers int           `json:"subscribers"`
	Uptime      string        `json:"uptime"`
	Version     version.Info  `json:"version"`
}

func (s *MonitorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "camstream"})
}

func (s *MonitorServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Player:  s.player.Status(),
		Uptime:  s.Uptime().Round(time.Second).String(),
		Version: version.Get(),
	}
	if s.buttons != nil {
		pressed, released := s.buttons.Counts()
		resp.Buttons = &ButtonStatus{Running: s.buttons.Running(), Pressed: pressed, Released: released}
	}
	if s.events != nil {
		resp.Subscribers = s.events.SubscriberCount()
	}
	RespondJSON(w, http.StatusOK, resp)
}

func (s *MonitorServer) handlePlaybackStart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	id, err := s.player.StartPlayback(ctx, nil)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrConnect) {
			status = http.StatusBadGateway
		}
		respondError(w, status, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (s *MonitorServer) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	if err := s.player.StopPlayback(); err != nil {
		if errors.Is(err, core.ErrNotPlaying) {
			respondError(w, http.StatusConflict, err)
			return
		}
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *MonitorServer) handleNextProtocol(w http.ResponseWriter, r *http.Request) {
	v := s.player.TryNextProtocol()
	RespondJSON(w, http.StatusOK, map[string]string{"variant": v.String()})
}

func (s *MonitorServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	img, ok := s.player.CaptureCurrentFrame()
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("no decoded frame available"))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(img))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// handleEvents streams engine events as JSON text messages until the client
// goes away or the server stops.
func (s *MonitorServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("event stream disabled"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id := uuid.New().String()
	ch := s.events.Subscribe(id, eventBuffer)
	defer s.events.Unsubscribe(id)
	s.log.Info("Event stream connected", "id", id, "remote", r.RemoteAddr)

	// The read side only detects the close; clients send nothing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"),
				time.Now().Add(writeTimeout))
			return
		case <-gone:
			s.log.Info("Event stream disconnected", "id", id)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				// Dropped as a slow consumer or broadcaster closed.
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.log.Debug("Event write failed", "id", id, "error", err)
				return
			}
		}
	}
}
