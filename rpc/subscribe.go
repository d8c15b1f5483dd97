package rpc

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eventreg/eventreg/ledger"
	"github.com/eventreg/eventreg/logging"
)

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// CloseLagging is the websocket close code sent to a subscriber that did
// not keep up with the ledger.
const CloseLagging = websocket.CloseTryAgainLater

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// subscribe streams sealed logs as JSON text messages, one log per message.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())
	// Subscribe before completing the handshake: once the client sees the
	// upgrade, every block sealed afterwards must reach it.
	sub := s.ledger.Subscribe(r.Context(), r.URL.Query().Get("name"))
	defer sub.Unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Info("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The read side only detects the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			logger.Debug("subscriber went away")
			return
		case lg, ok := <-sub.Logs():
			if !ok {
				closeWith(conn, sub.Err())
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(lg); err != nil {
				logger.Debug("failed to write log", zap.Error(err))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, errs <-chan error) {
	code, text := websocket.CloseNormalClosure, ""
	if err, ok := <-errs; ok && err != nil {
		text = err.Error()
		if errors.Is(err, ledger.ErrSubscriptionLagging) {
			code = CloseLagging
		}
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
