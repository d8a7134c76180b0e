package gpio

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrLineClosed = errors.New("line closed")
	ErrNotOutput  = errors.New("line is not configured as an output")
)

// FakeLine is an in-memory line.  It remembers every level written to it so tests can check the
// exact sequence a driver produced.
type FakeLine struct {
	lock sync.Mutex

	name      string
	direction Direction
	level     Level
	writes    []Level
	closed    bool

	writeErr     error
	directionErr error

	// Hooks used by the echo simulator.
	onWrite  func(Level)
	readFunc func() Level
}

func NewFakeLine(name string) *FakeLine {
	return &FakeLine{name: name}
}

var _ Line = (*FakeLine)(nil)

func (f *FakeLine) Name() string {
	return f.name
}

func (f *FakeLine) SetDirection(dir Direction) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.closed {
		return ErrLineClosed
	}
	if f.directionErr != nil {
		return f.directionErr
	}
	f.direction = dir
	return nil
}

func (f *FakeLine) Write(level Level) error {
	f.lock.Lock()
	if f.closed {
		f.lock.Unlock()
		return ErrLineClosed
	}
	if f.writeErr != nil {
		err := f.writeErr
		f.lock.Unlock()
		return err
	}
	if f.direction != Output {
		f.lock.Unlock()
		return ErrNotOutput
	}
	f.level = level
	f.writes = append(f.writes, level)
	hook := f.onWrite
	f.lock.Unlock()

	if hook != nil {
		hook(level)
	}
	return nil
}

func (f *FakeLine) Read() Level {
	f.lock.Lock()
	readFunc := f.readFunc
	level := f.level
	f.lock.Unlock()
	if readFunc != nil {
		return readFunc()
	}
	return level
}

func (f *FakeLine) Close() error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	return nil
}

// SetLevel drives the level seen by Read, as an external device would for an input.
func (f *FakeLine) SetLevel(level Level) {
	f.lock.Lock()
	f.level = level
	f.lock.Unlock()
}

func (f *FakeLine) Level() Level {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.level
}

func (f *FakeLine) Direction() Direction {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.direction
}

func (f *FakeLine) Writes() []Level {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]Level(nil), f.writes...)
}

func (f *FakeLine) Closed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.closed
}

// FailWrites makes every subsequent Write return err.  Pass nil to heal the line.
func (f *FakeLine) FailWrites(err error) {
	f.lock.Lock()
	f.writeErr = err
	f.lock.Unlock()
}

func (f *FakeLine) FailDirection(err error) {
	f.lock.Lock()
	f.directionErr = err
	f.lock.Unlock()
}

// FakeOpener hands out FakeLines by pin number.  Opening the same pin twice returns the same line.
type FakeOpener struct {
	lock    sync.Mutex
	lines   map[int]*FakeLine
	refused map[int]error
}

func NewFakeOpener() *FakeOpener {
	return &FakeOpener{
		lines:   map[int]*FakeLine{},
		refused: map[int]error{},
	}
}

var _ Opener = (*FakeOpener)(nil)

func (o *FakeOpener) Open(pin int) (Line, error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	if err := o.refused[pin]; err != nil {
		return nil, &HardwareError{Line: pinName(pin), Op: "open", Err: err}
	}
	return o.lineLocked(pin), nil
}

// Line returns the fake behind a pin, creating it if it has not been opened yet.
func (o *FakeOpener) Line(pin int) *FakeLine {
	o.lock.Lock()
	defer o.lock.Unlock()
	return o.lineLocked(pin)
}

func (o *FakeOpener) lineLocked(pin int) *FakeLine {
	l, ok := o.lines[pin]
	if !ok {
		l = NewFakeLine(pinName(pin))
		o.lines[pin] = l
	}
	return l
}

// Refuse makes Open fail for the pin.
func (o *FakeOpener) Refuse(pin int, err error) {
	o.lock.Lock()
	o.refused[pin] = err
	o.lock.Unlock()
}

// Attach installs a pre-built line (for example one half of an EchoSimulator) behind a pin.
func (o *FakeOpener) Attach(pin int, line *FakeLine) {
	o.lock.Lock()
	o.lines[pin] = line
	o.lock.Unlock()
}
