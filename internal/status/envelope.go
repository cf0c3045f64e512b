package status

// Key is one point of an envelope. Ease shapes the segment that starts at
// this key.
type Key struct {
	T    float64 // seconds
	V    float64
	Ease string // "linear" | "smooth" | "cubic"
}

// Envelope is a piecewise curve over time. Keys must be sorted by T.
type Envelope struct {
	Keys []Key
}

// Eases lists the ease names Key accepts.
var Eases = []string{"linear", "smooth", "cubic"}

func validEase(kind string) bool {
	for _, e := range Eases {
		if e == kind {
			return true
		}
	}
	return false
}

// BreatheEnvelope rises 0 to 1 over the first half of period and falls back
// over the second, easing both halves with ease.
func BreatheEnvelope(period float64, ease string) Envelope {
	return Envelope{Keys: []Key{
		{T: 0, V: 0, Ease: ease},
		{T: period / 2, V: 1, Ease: ease},
		{T: period, V: 0},
	}}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// 6x^5 - 15x^4 + 10x^3
func smootherstep(x float64) float64 {
	return x * x * x * (x*(x*6-15) + 10)
}

func easeApply(kind string, x float64) float64 {
	switch kind {
	case "smooth":
		return x * x * (3 - 2*x)
	case "cubic":
		return smootherstep(x)
	default:
		return x
	}
}

// Eval returns the value at t. Before the first key and after the last the
// curve holds the end values.
func (e Envelope) Eval(t float64) float64 {
	n := len(e.Keys)
	if n == 0 {
		return 0
	}
	if t <= e.Keys[0].T {
		return e.Keys[0].V
	}
	if t >= e.Keys[n-1].T {
		return e.Keys[n-1].V
	}
	for i := 0; i < n-1; i++ {
		a, b := e.Keys[i], e.Keys[i+1]
		if t < a.T || t > b.T {
			continue
		}
		den := b.T - a.T
		if den <= 0 {
			return b.V
		}
		u := easeApply(a.Ease, clamp01((t-a.T)/den))
		return a.V + (b.V-a.V)*u
	}
	return e.Keys[n-1].V
}

// Duration is the time of the last key.
func (e Envelope) Duration() float64 {
	if len(e.Keys) == 0 {
		return 0
	}
	return e.Keys[len(e.Keys)-1].T
}
