// Package drag classifies pointer gestures on the calendar and turns drops
// into reschedule requests.
package drag

import (
	"math"
	"time"
)

// DefaultThreshold is the Manhattan distance, in pixels, a pointer must travel
// before a press becomes a drag.
const DefaultThreshold = 5

// State is the gesture classification.
type State int

const (
	Idle State = iota
	Armed
	Dragging
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Dragging:
		return "dragging"
	default:
		return "idle"
	}
}

// Point is a pointer position in screen pixels.
type Point struct {
	X, Y float64
}

// Context identifies the event under the pointer when the press began.
type Context struct {
	ID            string
	OriginalStart time.Time
	OriginalEnd   time.Time
}

// Drop is delivered once per completed drag.
type Drop struct {
	ID            string
	NewStart      time.Time
	OriginalStart time.Time
	OriginalEnd   time.Time
}

// NewStartISO renders NewStart as RFC 3339.
func (d Drop) NewStartISO() string {
	return d.NewStart.Format(time.RFC3339)
}

// NewEnd keeps the original duration at the new start.
func (d Drop) NewEnd() time.Time {
	length := d.OriginalEnd.Sub(d.OriginalStart)
	if length < 0 {
		length = 0
	}
	return d.NewStart.Add(length)
}

// TargetFunc resolves the calendar day under a pointer. ok is false outside
// every drop zone.
type TargetFunc func(p Point) (day time.Time, ok bool)

// Option configures a Gesture.
type Option func(*Gesture)

// WithThreshold overrides DefaultThreshold.
func WithThreshold(px float64) Option {
	return func(g *Gesture) {
		if px > 0 {
			g.threshold = px
		}
	}
}

// WithLocation sets the zone in which the target day and the original clock
// time are combined.
func WithLocation(loc *time.Location) Option {
	return func(g *Gesture) {
		if loc != nil {
			g.loc = loc
		}
	}
}

type press struct {
	ctx    Context
	origin Point
}

// Gesture is a single-threaded pointer state machine. It is not safe for
// concurrent use; drive it from one event loop.
type Gesture struct {
	onDrop    func(Drop) error
	threshold float64
	loc       *time.Location
	state     State
	press     press
}

// NewGesture builds a Gesture that calls onDrop for every completed drag.
func NewGesture(onDrop func(Drop) error, opts ...Option) *Gesture {
	g := &Gesture{onDrop: onDrop, threshold: DefaultThreshold, loc: time.UTC}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State reports the current classification.
func (g *Gesture) State() State { return g.state }

// PointerDown records a press on an event.
func (g *Gesture) PointerDown(p Point, ctx Context) {
	g.press = press{ctx: ctx, origin: p}
	g.state = Armed
}

// PointerMove promotes an armed press to a drag once it travels far enough.
func (g *Gesture) PointerMove(p Point) {
	if g.state != Armed {
		return
	}
	if math.Abs(p.X-g.press.origin.X)+math.Abs(p.Y-g.press.origin.Y) >= g.threshold {
		g.state = Dragging
	}
}

// PointerUp ends the gesture. It reports whether a drop was delivered. A
// press that never became a drag is a click, and a drag released outside a
// drop zone is abandoned; neither is an error.
func (g *Gesture) PointerUp(p Point, target TargetFunc) (bool, error) {
	state, pressed := g.state, g.press
	g.Cancel()

	if state != Dragging || target == nil {
		return false, nil
	}
	day, ok := target(p)
	if !ok {
		return false, nil
	}

	drop := Drop{
		ID:            pressed.ctx.ID,
		NewStart:      g.compose(day, pressed.ctx.OriginalStart),
		OriginalStart: pressed.ctx.OriginalStart,
		OriginalEnd:   pressed.ctx.OriginalEnd,
	}
	if g.onDrop == nil {
		return true, nil
	}
	return true, g.onDrop(drop)
}

// Cancel resets the gesture from any state.
func (g *Gesture) Cancel() {
	g.state = Idle
	g.press = press{}
}

// compose places the original start's clock time on the target day. The day
// is read as a calendar date in its own location.
func (g *Gesture) compose(day, original time.Time) time.Time {
	y, m, d := day.Date()
	clock := original.In(g.loc)
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), clock.Second(), 0, g.loc)
}
