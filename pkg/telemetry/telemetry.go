// Package telemetry carries status from the control loop to whatever displays it.  The loop is
// the only producer; delivery is fire-and-forget and at most once, so a slow screen or a dead
// broker can never hold up a motor command.
package telemetry

import (
	"fmt"
	"time"
)

type Move int

const (
	Forward Move = iota
	TurnRight
	TurnLeft
	Stop
)

func (m Move) String() string {
	switch m {
	case Forward:
		return "Forward"
	case TurnRight:
		return "TurnRight"
	case TurnLeft:
		return "TurnLeft"
	case Stop:
		return "Stop"
	}
	return fmt.Sprintf("Move(%d)", int(m))
}

func (m Move) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

type DistanceStatus int

const (
	Measured DistanceStatus = iota
	TimedOut
	// Unavailable is used when the loop stopped for a reason other than the sensor.
	Unavailable
)

type Distance struct {
	Cm     float64
	Status DistanceStatus
}

func Cm(cm float64) Distance {
	return Distance{Cm: cm, Status: Measured}
}

func Timeout() Distance {
	return Distance{Status: TimedOut}
}

func NoReading() Distance {
	return Distance{Status: Unavailable}
}

func (d Distance) String() string {
	switch d.Status {
	case Measured:
		return fmt.Sprintf("%.1fcm", d.Cm)
	case TimedOut:
		return "timeout"
	}
	return "n/a"
}

func (d Distance) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type PowerReading struct {
	BusVolts float64
	Amps     float64
	Watts    float64
}

type Kind int

const (
	KindLog Kind = iota
	KindMove
	KindPower
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindMove:
		return "move"
	case KindPower:
		return "power"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Event struct {
	Kind     Kind          `json:"kind"`
	Time     time.Time     `json:"time"`
	Text     string        `json:"text,omitempty"`
	Move     Move          `json:"move"`
	Distance Distance      `json:"distance"`
	Power    *PowerReading `json:"power,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindLog:
		return e.Text
	case KindMove:
		return fmt.Sprintf("%v(%v)", e.Move, e.Distance)
	case KindPower:
		if e.Power != nil {
			return fmt.Sprintf("%.2fV %.3fA %.3fW", e.Power.BusVolts, e.Power.Amps, e.Power.Watts)
		}
	}
	return e.Kind.String()
}

// Sink receives telemetry.  Implementations must not block the caller.
type Sink interface {
	Log(text string)
	Move(move Move, distance Distance)
	Power(reading PowerReading)
}

// Renderer consumes events on the telemetry goroutine; it may be slow.
type Renderer interface {
	Render(e Event)
}

type RendererFunc func(e Event)

func (f RendererFunc) Render(e Event) {
	f(e)
}
