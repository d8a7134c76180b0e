package motor

import (
	"fmt"

	"github.com/tigerbot-team/rover/pkg/gpio"
)

// Interface is a single DC motor driven through an H-bridge.
type Interface interface {
	MoveForward() error
	MoveBackward() error
	Stop() error
	Close() error
}

// Motor drives one H-bridge channel with a pair of output lines:
//
//	forward:  a=Low,  b=High
//	backward: a=High, b=Low
//	stop:     a=Low,  b=Low
//
// Both inputs are never driven high together.
type Motor struct {
	a, b gpio.Line
}

// WriteError is a line write that failed while the motor was being commanded.
type WriteError struct {
	Op   string
	Line string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("motor %s: write to %s failed: %v", e.Op, e.Line, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// New configures both lines as outputs and leaves the motor stopped.
func New(a, b gpio.Line) (*Motor, error) {
	if err := gpio.Configure(a, gpio.Output, gpio.Low); err != nil {
		return nil, err
	}
	if err := gpio.Configure(b, gpio.Output, gpio.Low); err != nil {
		return nil, err
	}
	return &Motor{a: a, b: b}, nil
}

// Open opens the two pins and builds a Motor from them, releasing whatever was opened on failure.
func Open(opener gpio.Opener, pinA, pinB int) (*Motor, error) {
	a, err := opener.Open(pinA)
	if err != nil {
		return nil, err
	}
	b, err := opener.Open(pinB)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	m, err := New(a, b)
	if err != nil {
		_ = a.Close()
		_ = b.Close()
		return nil, err
	}
	return m, nil
}

var _ Interface = (*Motor)(nil)

func (m *Motor) MoveForward() error {
	// Drop a first so there is never a moment with both inputs high.
	if err := m.write("forward", m.a, gpio.Low); err != nil {
		return err
	}
	return m.write("forward", m.b, gpio.High)
}

func (m *Motor) MoveBackward() error {
	if err := m.write("backward", m.b, gpio.Low); err != nil {
		return err
	}
	return m.write("backward", m.a, gpio.High)
}

// Stop drives both lines low.  The second write is attempted even if the first fails.
func (m *Motor) Stop() error {
	errA := m.write("stop", m.a, gpio.Low)
	errB := m.write("stop", m.b, gpio.Low)
	if errA != nil {
		return errA
	}
	return errB
}

func (m *Motor) Close() error {
	stopErr := m.Stop()
	errA := m.a.Close()
	errB := m.b.Close()
	switch {
	case stopErr != nil:
		return stopErr
	case errA != nil:
		return errA
	}
	return errB
}

func (m *Motor) write(op string, line gpio.Line, level gpio.Level) error {
	if err := line.Write(level); err != nil {
		return &WriteError{Op: op, Line: line.Name(), Err: err}
	}
	return nil
}
