package gpio

import (
	"sync"
	"time"

	"github.com/tigerbot-team/rover/pkg/clock"
)

// EchoSimulator behaves like an HC-SR04 wired to a trigger/echo pair of FakeLines.  When the
// trigger falls after being high it asks PulseWidth for the next echo; the echo line then reads
// high for that long, starting Latency after the trigger fell.  A negative width means the
// sensor never answers.
type EchoSimulator struct {
	Trig *FakeLine
	Echo *FakeLine

	clock      clock.Clock
	latency    time.Duration
	pulseWidth func() time.Duration

	lock       sync.Mutex
	trigHigh   bool
	pulseStart time.Time
	pulseEnd   time.Time
	pings      int
}

func NewEchoSimulator(c clock.Clock, latency time.Duration, pulseWidth func() time.Duration) *EchoSimulator {
	s := &EchoSimulator{
		Trig:       NewFakeLine("trig"),
		Echo:       NewFakeLine("echo"),
		clock:      c,
		latency:    latency,
		pulseWidth: pulseWidth,
	}
	s.Trig.onWrite = s.onTrigWrite
	s.Echo.readFunc = s.readEcho
	return s
}

func (s *EchoSimulator) onTrigWrite(level Level) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if level == High {
		s.trigHigh = true
		return
	}
	if !s.trigHigh {
		// Idle low writes don't fire a ping.
		return
	}
	s.trigHigh = false
	s.pings++

	width := s.pulseWidth()
	if width < 0 {
		s.pulseStart, s.pulseEnd = time.Time{}, time.Time{}
		return
	}
	s.pulseStart = s.clock.Now().Add(s.latency)
	s.pulseEnd = s.pulseStart.Add(width)
}

func (s *EchoSimulator) readEcho() Level {
	now := s.clock.Now()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.pulseStart.IsZero() {
		return Low
	}
	if !now.Before(s.pulseStart) && now.Before(s.pulseEnd) {
		return High
	}
	return Low
}

// Pings returns the number of complete trigger pulses seen.
func (s *EchoSimulator) Pings() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.pings
}
