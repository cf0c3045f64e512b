// Package control exposes the strip and the indicator over HTTP and
// websockets. Handlers never touch the strip; they only post commands.
package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/stripctl/internal/diagnostics"
	"github.com/coreman2200/stripctl/internal/mediator"
	"github.com/coreman2200/stripctl/internal/status"
	"github.com/coreman2200/stripctl/model"
)

// Commander accepts commands for the strip and reports its layout.
type Commander interface {
	SendStateCommand(cmd model.StateCommand)
	SendSegmentConfig(seg model.Segment)
	Layout() model.Layout
	Slots() int
	Mode() mediator.Mode
	Stats() mediator.Stats
}

type Indicator interface {
	SetState(s status.State)
	SetStateColor(s status.State, c model.RGB)
	Current() (status.State, model.RGB)
}

type Subscriber interface {
	Subscribe(buffer int) (<-chan diagnostics.Diagnostic, func())
	Subscribers() int
	Dropped() int
}

var errOutOfRange = errors.New("OutOfRange")

// SegmentState is the last state the surface sent for a segment.
type SegmentState struct {
	Index      int  `json:"index"`
	On         bool `json:"on"`
	Hue        int  `json:"hue"`
	Saturation int  `json:"saturation"`
	Brightness int  `json:"brightness"`
}

func (s SegmentState) command() model.StateCommand {
	return model.StateCommand{Index: s.Index, On: s.On, Hue: s.Hue, Saturation: s.Saturation, Brightness: s.Brightness}
}

type Server struct {
	cmd   Commander
	ind   Indicator
	diag  Subscriber
	log   zerolog.Logger
	start time.Time

	mu    sync.Mutex
	cache []SegmentState

	upgrader websocket.Upgrader
}

func New(cmd Commander, ind Indicator, diag Subscriber, log zerolog.Logger) *Server {
	s := &Server{
		cmd:      cmd,
		ind:      ind,
		diag:     diag,
		log:      log.With().Str("component", "control").Logger(),
		start:    time.Now(),
		cache:    make([]SegmentState, cmd.Slots()),
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
	for i := range s.cache {
		s.cache[i] = SegmentState{Index: i, On: true, Hue: 225, Saturation: 100, Brightness: 100}
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/on", s.handlePower(true))
	mux.HandleFunc("/off", s.handlePower(false))
	mux.HandleFunc("/hue", s.handleValue(func(st SegmentState) int { return st.Hue }))
	mux.HandleFunc("/saturation", s.handleValue(func(st SegmentState) int { return st.Saturation }))
	mux.HandleFunc("/brightness", s.handleValue(func(st SegmentState) int { return st.Brightness }))
	mux.HandleFunc("/set", s.handleSet)
	mux.HandleFunc("/stripconfig", s.handleStripConfig)
	mux.HandleFunc("/segments", s.handleSegments)
	mux.HandleFunc("/indicator", s.handleIndicator)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws/control", s.handleControlWS)
	mux.HandleFunc("/ws/diag", s.handleDiagWS)
	return withCORS(mux)
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// Segment returns the cached state of one segment.
func (s *Server) Segment(index int) (SegmentState, error) {
	if err := s.checkIndex(index); err != nil {
		return SegmentState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache[index], nil
}

func (s *Server) checkIndex(index int) error {
	if index < 0 || index >= len(s.cache) {
		return fmt.Errorf("%w: index %d not in [0,%d)", errOutOfRange, index, len(s.cache))
	}
	return nil
}

// update applies fn to the cached segment and sends the result as a state
// command.
func (s *Server) update(index int, fn func(*SegmentState)) (SegmentState, error) {
	if err := s.checkIndex(index); err != nil {
		return SegmentState{}, err
	}
	s.mu.Lock()
	fn(&s.cache[index])
	st := s.cache[index]
	s.mu.Unlock()
	s.cmd.SendStateCommand(st.command())
	s.log.Info().Int("index", index).Bool("on", st.On).Int("hue", st.Hue).
		Int("saturation", st.Saturation).Int("brightness", st.Brightness).Msg("state sent")
	return st, nil
}

func (s *Server) configure(index, length int) error {
	if err := s.checkIndex(index); err != nil {
		return err
	}
	if length < 0 {
		return fmt.Errorf("invalid length %d", length)
	}
	s.cmd.SendSegmentConfig(model.Segment{Index: index, Length: length})
	s.log.Info().Int("index", index).Int("length", length).Msg("segment config sent")
	return nil
}

func queryIndex(r *http.Request) (int, error) {
	v := r.URL.Query().Get("index")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("index %q: %w", v, err)
	}
	return n, nil
}

// queryInt parses name from the query, clamped to [lo,hi]. ok is false when
// the parameter is absent.
func queryInt(r *http.Request, name string, lo, hi int) (n int, ok bool, err error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s %q: %w", name, v, err)
	}
	return clampInt(n, lo, hi), true, nil
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

func boolText(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func writeText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(text))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeText(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	idx, err := queryIndex(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	st, err := s.Segment(idx)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeText(w, http.StatusOK, boolText(st.On))
}

func (s *Server) handlePower(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := queryIndex(r)
		if err != nil {
			writeErr(w, err)
			return
		}
		if _, err := s.update(idx, func(st *SegmentState) { st.On = on }); err != nil {
			writeErr(w, err)
			return
		}
		word := "off"
		if on {
			word = "on"
		}
		writeText(w, http.StatusOK, fmt.Sprintf("Strip segment %d was turned %s.", idx, word))
	}
}

func (s *Server) handleValue(get func(SegmentState) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := queryIndex(r)
		if err != nil {
			writeErr(w, err)
			return
		}
		st, err := s.Segment(idx)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeText(w, http.StatusOK, strconv.Itoa(get(st)))
	}
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	idx, err := queryIndex(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	h, hasH, err := queryInt(r, "h", 0, int(model.MaxHue))
	if err != nil {
		writeErr(w, err)
		return
	}
	sat, hasS, err := queryInt(r, "s", 0, int(model.MaxSaturation))
	if err != nil {
		writeErr(w, err)
		return
	}
	b, hasB, err := queryInt(r, "b", 0, int(model.MaxBrightness))
	if err != nil {
		writeErr(w, err)
		return
	}
	_, err = s.update(idx, func(st *SegmentState) {
		if hasH {
			st.Hue = h
		}
		if hasS {
			st.Saturation = sat
		}
		if hasB {
			st.Brightness = b
		}
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleStripConfig(w http.ResponseWriter, r *http.Request) {
	idx, err := queryIndex(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	v := r.URL.Query().Get("length")
	if v == "" {
		writeErr(w, errors.New("length is required"))
		return
	}
	length, err := strconv.Atoi(v)
	if err != nil {
		writeErr(w, fmt.Errorf("length %q: %w", v, err))
		return
	}
	if err := s.configure(idx, length); err != nil {
		writeErr(w, err)
		return
	}
	writeText(w, http.StatusOK, fmt.Sprintf("Segment(%d) was set to %d of lenght.", idx, length))
}

type segmentView struct {
	Index  int `json:"index"`
	Length int `json:"length"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

func layoutView(l model.Layout) []segmentView {
	out := make([]segmentView, 0, l.Slots())
	for i, r := range l.Ranges() {
		out = append(out, segmentView{Index: i, Length: r.Len(), Start: r.Start, End: r.End})
	}
	return out
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, layoutView(s.cmd.Layout()))
}

func (s *Server) handleIndicator(w http.ResponseWriter, r *http.Request) {
	if s.ind == nil {
		writeText(w, http.StatusServiceUnavailable, "no indicator")
		return
	}
	q := r.URL.Query()
	if q.Get("state") == "" {
		st, c := s.ind.Current()
		writeJSON(w, map[string]any{"state": st.String(), "r": c.R, "g": c.G, "b": c.B})
		return
	}
	state, err := status.ParseState(q.Get("state"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var c [3]int
	var given bool
	for i, name := range []string{"r", "g", "b"} {
		n, ok, err := queryInt(r, name, 0, 255)
		if err != nil {
			writeErr(w, err)
			return
		}
		c[i] = n
		given = given || ok
	}
	if given {
		s.ind.SetStateColor(state, model.RGB{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])})
	} else {
		s.ind.SetState(state)
	}
	s.log.Info().Str("state", state.String()).Msg("indicator set")
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	l := s.cmd.Layout()
	writeJSON(w, map[string]any{
		"uptime_s": time.Since(s.start).Seconds(),
		"slots":    l.Slots(),
		"total":    l.Total(),
		"mode":     string(s.cmd.Mode()),
		"mediator": s.cmd.Stats(),
		"diagnostics": map[string]int{
			"subscribers": s.diag.Subscribers(),
			"dropped":     s.diag.Dropped(),
		},
	})
}
