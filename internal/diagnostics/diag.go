package diagnostics

import (
	"fmt"
	"sync"
	"time"
)

type Severity string

const (
	Info Severity = "info"
	Warn Severity = "warning"
	Err  Severity = "error"
)

const (
	SegmentNotConfigured = "SEGMENT.NOT_CONFIGURED"
	SegmentOutOfRange    = "SEGMENT.OUT_OF_RANGE"
	StoreReadFailed      = "STORE.READ_FAILED"
	StoreWriteFailed     = "STORE.WRITE_FAILED"
	StripRenderFailed    = "STRIP.RENDER_FAILED"
	StripConfigured      = "STRIP.CONFIGURED"
)

type Diagnostic struct {
	Time           time.Time      `json:"time"`
	Severity       Severity       `json:"severity"`
	Code           string         `json:"code"`
	Summary        string         `json:"summary"`
	Detail         string         `json:"detail,omitempty"`
	LikelyCauses   []string       `json:"likely_causes,omitempty"`
	SuggestedFixes []string       `json:"suggested_fixes,omitempty"`
	Evidence       map[string]any `json:"evidence,omitempty"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s %s: %s", d.Severity, d.Code, d.Summary)
}

func NotConfigured(index int) Diagnostic {
	return Diagnostic{
		Severity:       Warn,
		Code:           SegmentNotConfigured,
		Summary:        fmt.Sprintf("segment %d has no pixels", index),
		LikelyCauses:   []string{"the segment was never configured", "its length was set to 0"},
		SuggestedFixes: []string{fmt.Sprintf("call /stripconfig?index=%d&length=N", index)},
		Evidence:       map[string]any{"index": index},
	}
}

func OutOfRange(index, slots int) Diagnostic {
	return Diagnostic{
		Severity: Warn,
		Code:     SegmentOutOfRange,
		Summary:  fmt.Sprintf("segment %d is outside [0,%d)", index, slots),
		Evidence: map[string]any{"index": index, "slots": slots},
	}
}

func StoreRead(index int, err error) Diagnostic {
	return Diagnostic{
		Severity:     Warn,
		Code:         StoreReadFailed,
		Summary:      fmt.Sprintf("could not read segment %d, using length 0", index),
		Detail:       err.Error(),
		LikelyCauses: []string{"store file is unreadable or corrupt"},
		Evidence:     map[string]any{"index": index},
	}
}

func StoreWrite(index, length int, err error) Diagnostic {
	return Diagnostic{
		Severity:       Warn,
		Code:           StoreWriteFailed,
		Summary:        fmt.Sprintf("segment %d length %d applied but not persisted", index, length),
		Detail:         err.Error(),
		SuggestedFixes: []string{"check store.path is writable"},
		Evidence:       map[string]any{"index": index, "length": length},
	}
}

func RenderFailed(err error) Diagnostic {
	return Diagnostic{
		Severity:     Err,
		Code:         StripRenderFailed,
		Summary:      "strip render failed",
		Detail:       err.Error(),
		LikelyCauses: []string{"SPI port closed or unavailable"},
	}
}

func Configured(index, length, total int) Diagnostic {
	return Diagnostic{
		Severity: Info,
		Code:     StripConfigured,
		Summary:  fmt.Sprintf("segment %d set to %d pixels, strip now %d", index, length, total),
		Evidence: map[string]any{"index": index, "length": length, "total": total},
	}
}

// Publisher accepts diagnostics without blocking.
type Publisher interface {
	Publish(Diagnostic)
}

// Hub fans diagnostics out to subscribers. A subscriber that falls behind
// misses events; Publish never blocks.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Diagnostic]struct{}
	dropped int
	now     func() time.Time
}

func NewHub() *Hub {
	return &Hub{subs: map[chan Diagnostic]struct{}{}, now: time.Now}
}

func (h *Hub) Publish(d Diagnostic) {
	if d.Time.IsZero() {
		d.Time = h.now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- d:
		default:
			h.dropped++
		}
	}
}

// Subscribe returns a channel of diagnostics and a cancel func that closes
// it.
func (h *Hub) Subscribe(buffer int) (<-chan Diagnostic, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Diagnostic, buffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Discard drops everything.
type Discard struct{}

func (Discard) Publish(Diagnostic) {}
