// Package gpio is the digital line abstraction the motor and sensor drivers are written against.
// The platform binding (periph.io on the Pi) and the in-memory fakes both live here so that the
// drivers never import a specific GPIO library.
package gpio

import (
	"fmt"

	"github.com/pkg/errors"
)

type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "High"
	}
	return "Low"
}

type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	switch d {
	case Input:
		return "Input"
	case Output:
		return "Output"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Line is a single digital pin.  Implementations are not safe for concurrent mutation; callers
// serialise access to a given line.
type Line interface {
	Name() string
	SetDirection(dir Direction) error
	Write(level Level) error
	Read() Level
	Close() error
}

type Opener interface {
	Open(pin int) (Line, error)
}

// HardwareError reports a line that could not be opened or configured.  There is no safe way to
// retry these so callers treat them as fatal.
type HardwareError struct {
	Line string
	Op   string
	Err  error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("gpio %s: failed to %s: %v", e.Line, e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}

func IsHardwareError(err error) bool {
	var hwErr *HardwareError
	return errors.As(err, &hwErr)
}

// Configure sets the direction of a line and, for outputs, drives it to the given initial level.
// Any failure comes back as a HardwareError.
func Configure(line Line, dir Direction, initial Level) error {
	if err := line.SetDirection(dir); err != nil {
		return &HardwareError{Line: line.Name(), Op: "set direction " + dir.String(), Err: err}
	}
	if dir != Output {
		return nil
	}
	if err := line.Write(initial); err != nil {
		return &HardwareError{Line: line.Name(), Op: "write initial level", Err: err}
	}
	return nil
}

func pinName(pin int) string {
	return fmt.Sprintf("GPIO%d", pin)
}
