package model

import (
	"errors"
	"fmt"
)

// DefaultSegmentSlots is the number of segment slots a controller exposes.
const DefaultSegmentSlots = 10

var ErrSlotOutOfRange = errors.New("segment index out of range")

// Segment is one slot of the layout. A zero length means unconfigured.
type Segment struct {
	Index  int `json:"index" yaml:"index"`
	Length int `json:"length" yaml:"length"`
}

// Range is the half-open pixel interval [Start, End) held by a segment.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) Len() int {
	return r.End - r.Start
}

func (r Range) Empty() bool {
	return r.End <= r.Start
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// StateCommand is the desired instantaneous state for a segment as issued by
// the control surface.
type StateCommand struct {
	Index      int  `json:"index"`
	On         bool `json:"on"`
	Hue        int  `json:"hue"`
	Saturation int  `json:"saturation"`
	Brightness int  `json:"brightness"`
}

// Color returns the HSB color carried by the command.
func (c StateCommand) Color() HSB {
	return HSB{H: float64(c.Hue), S: float64(c.Saturation), B: float64(c.Brightness)}
}

// Layout is a fixed set of segment slots partitioning the pixel buffer in
// index order. The zero value has no slots.
type Layout struct {
	lengths []int
}

func NewLayout(slots int) Layout {
	if slots < 0 {
		slots = 0
	}
	return Layout{lengths: make([]int, slots)}
}

// LayoutOf builds a layout whose slots hold the given lengths.
func LayoutOf(lengths ...int) Layout {
	l := NewLayout(len(lengths))
	copy(l.lengths, lengths)
	return l
}

func (l Layout) Slots() int {
	return len(l.lengths)
}

func (l Layout) Length(index int) int {
	if index < 0 || index >= len(l.lengths) {
		return 0
	}
	return l.lengths[index]
}

// WithLength returns a copy of l with slot index set to length. The
// receiver is never modified.
func (l Layout) WithLength(index, length int) (Layout, error) {
	if index < 0 || index >= len(l.lengths) {
		return l, fmt.Errorf("%w: %d not in [0,%d)", ErrSlotOutOfRange, index, len(l.lengths))
	}
	if length < 0 {
		return l, fmt.Errorf("segment %d: negative length %d", index, length)
	}
	n := l.Clone()
	n.lengths[index] = length
	return n, nil
}

// Total is the sum of every slot length, which is the buffer size.
func (l Layout) Total() int {
	sum := 0
	for _, v := range l.lengths {
		sum += v
	}
	return sum
}

// Range sums the lengths of every lower slot to find where index starts.
func (l Layout) Range(index int) Range {
	if index < 0 || index >= len(l.lengths) {
		return Range{}
	}
	start := 0
	for i := 0; i < index; i++ {
		start += l.lengths[i]
	}
	return Range{Start: start, End: start + l.lengths[index]}
}

// Ranges returns the range of every slot, configured or not.
func (l Layout) Ranges() []Range {
	out := make([]Range, len(l.lengths))
	start := 0
	for i, v := range l.lengths {
		out[i] = Range{Start: start, End: start + v}
		start += v
	}
	return out
}

func (l Layout) Segments() []Segment {
	out := make([]Segment, len(l.lengths))
	for i, v := range l.lengths {
		out[i] = Segment{Index: i, Length: v}
	}
	return out
}

func (l Layout) Lengths() []int {
	return append([]int(nil), l.lengths...)
}

func (l Layout) Clone() Layout {
	return Layout{lengths: l.Lengths()}
}

func (l Layout) Equal(o Layout) bool {
	if len(l.lengths) != len(o.lengths) {
		return false
	}
	for i := range l.lengths {
		if l.lengths[i] != o.lengths[i] {
			return false
		}
	}
	return true
}
