package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coreman2200/stripctl/model"
)

// controlMsg is one request on /ws/control. Pointer fields are optional.
type controlMsg struct {
	Op     string `json:"op"` // "on" | "off" | "set" | "config" | "get"
	Index  int    `json:"index"`
	H      *int   `json:"h,omitempty"`
	S      *int   `json:"s,omitempty"`
	B      *int   `json:"b,omitempty"`
	Length *int   `json:"length,omitempty"`
}

type controlReply struct {
	Segment *SegmentState `json:"segment,omitempty"`
	Error   string        `json:"error,omitempty"`
}

func (s *Server) applyControl(msg controlMsg) (SegmentState, error) {
	switch msg.Op {
	case "on", "off":
		on := msg.Op == "on"
		return s.update(msg.Index, func(st *SegmentState) { st.On = on })
	case "set":
		return s.update(msg.Index, func(st *SegmentState) {
			if msg.H != nil {
				st.Hue = clampInt(*msg.H, 0, int(model.MaxHue))
			}
			if msg.S != nil {
				st.Saturation = clampInt(*msg.S, 0, int(model.MaxSaturation))
			}
			if msg.B != nil {
				st.Brightness = clampInt(*msg.B, 0, int(model.MaxBrightness))
			}
		})
	case "config":
		if msg.Length == nil {
			return SegmentState{}, errors.New("length is required")
		}
		if err := s.configure(msg.Index, *msg.Length); err != nil {
			return SegmentState{}, err
		}
		return s.Segment(msg.Index)
	case "get":
		return s.Segment(msg.Index)
	default:
		return SegmentState{}, fmt.Errorf("unknown op %q", msg.Op)
	}
}

func (s *Server) handleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var reply controlReply
		var msg controlMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			reply.Error = err.Error()
		} else if st, err := s.applyControl(msg); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Segment = &st
		}
		if err := s.writeWS(conn, reply, time.Second); err != nil {
			s.log.Debug().Err(err).Msg("write control reply")
			return
		}
	}
}

func (s *Server) handleDiagWS(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		http.Error(w, "no diagnostics", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	events, cancel := s.diag.Subscribe(32)
	defer cancel()
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	for {
		select {
		case d, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeWS(conn, d, 200*time.Millisecond); err != nil {
				s.log.Debug().Err(err).Msg("write diagnostic")
				return
			}
		case <-closed:
			return
		}
	}
}

// writeWS sends v as one JSON text message. A value that does not encode is
// logged and skipped; an error is returned only when the connection failed.
func (s *Server) writeWS(conn *websocket.Conn, v any, timeout time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Debug().Err(err).Msg("encode websocket message")
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
