package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/masterkusok/mpprefs/internal/provider"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleObserve streams change URIs to one attached process. The first
// frame has an empty URI and confirms the subscription is live.
func (s *Server) handleObserve(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}
	origin := r.Header.Get(OriginHeader)

	changes := make(chan changeMessage, dispatchBuffer)
	stop := make(chan struct{})
	go s.writer(ws, changes, stop)

	reg := s.provider.Hub().Register(provider.CollectionURI(), true, origin, func(uri *url.URL) {
		select {
		case changes <- changeMessage{URI: uri.String()}:
		case <-stop:
		}
	})
	select {
	case changes <- changeMessage{}:
	case <-s.done:
	}

	s.logger.Debug("observer attached", zap.String("origin", origin))
	reader(ws)

	close(stop)
	_ = reg.Close()
	s.logger.Debug("observer detached", zap.String("origin", origin))
}

const dispatchBuffer = 16

func (s *Server) writer(ws *websocket.Conn, changes <-chan changeMessage, stop <-chan struct{}) {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		ws.Close()
	}()
	for {
		select {
		case msg := <-changes:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-s.done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		case <-stop:
			return
		}
	}
}

func reader(ws *websocket.Conn) {
	defer ws.Close()
	ws.SetReadLimit(512)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error { ws.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}
