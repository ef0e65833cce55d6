package server

import (
	"time"

	"github.com/gorilla/websocket"
)

// Serve attaches conn to the session and reads client frames until the
// connection fails or the session closes. Events are queued on the
// controller goroutine in arrival order.
func (s *Session) Serve(conn *websocket.Conn) {
	s.attach(conn)
	defer s.detach(conn)
	defer conn.Close()

	stop := make(chan struct{})
	heartbeat := make(chan struct{})
	go func() {
		defer close(heartbeat)
		s.heartbeat(conn, stop)
	}()
	defer func() {
		close(stop)
		<-heartbeat
	}()

	s.readLoop(conn)
}

func (s *Session) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(s.config.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		s.touch()
		return conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		s.touch()

		frame, err := decodeClientFrame(msg)
		if err != nil {
			s.logger.Warn("frame decode error", "error", err)
			s.metrics.frameErrors.WithLabelValues("decode").Inc()
			continue
		}

		switch frame.Type {
		case FrameEvent:
			s.metrics.eventsReceived.WithLabelValues(frame.Event).Inc()
			s.Post(func() { s.handleEvent(frame) })

		case FramePing:
			s.mu.Lock()
			if s.conn == conn {
				if err := s.writeLocked(pongFrame{Type: FramePong}); err != nil {
					s.logger.Warn("pong write failed", "error", err)
				}
			}
			s.mu.Unlock()

		default:
			s.logger.Warn("unknown frame type", "type", frame.Type)
			s.metrics.frameErrors.WithLabelValues("type").Inc()
		}
	}
}

// heartbeat pings the client until stop is closed or a ping fails.
func (s *Session) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(s.config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}
