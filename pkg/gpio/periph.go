package gpio

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	pgpio "periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"
)

// PeriphOpener opens lines through periph.io's pin registry, using BCM pin numbers.
type PeriphOpener struct {
	initOnce sync.Once
	initErr  error
}

func NewPeriphOpener() *PeriphOpener {
	return &PeriphOpener{}
}

var _ Opener = (*PeriphOpener)(nil)

func (o *PeriphOpener) Open(pin int) (Line, error) {
	// Make sure periph is initialized.
	o.initOnce.Do(func() {
		_, o.initErr = host.Init()
	})
	if o.initErr != nil {
		return nil, &HardwareError{Line: pinName(pin), Op: "initialise host", Err: o.initErr}
	}

	p := gpioreg.ByName(strconv.Itoa(pin))
	if p == nil {
		return nil, &HardwareError{Line: pinName(pin), Op: "open", Err: errors.New("no such pin")}
	}
	return &periphLine{pin: p}, nil
}

type periphLine struct {
	pin pgpio.PinIO
}

func (l *periphLine) Name() string {
	return l.pin.Name()
}

func (l *periphLine) SetDirection(dir Direction) error {
	switch dir {
	case Output:
		return l.pin.Out(pgpio.Low)
	case Input:
		// Echo pins idle low; pull down so a disconnected sensor reads as "no echo".
		return l.pin.In(pgpio.PullDown, pgpio.NoEdge)
	}
	return errors.Errorf("unknown direction %v", dir)
}

func (l *periphLine) Write(level Level) error {
	return l.pin.Out(pgpio.Level(level))
}

func (l *periphLine) Read() Level {
	return Level(l.pin.Read())
}

func (l *periphLine) Close() error {
	return l.pin.Halt()
}
