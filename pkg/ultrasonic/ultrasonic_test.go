package ultrasonic

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/clock"
	"github.com/tigerbot-team/rover/pkg/gpio"
)

const pollStep = time.Microsecond

func newSimulatedSensor(t *testing.T, width func() time.Duration) (*Sensor, *gpio.EchoSimulator, *clock.Fake) {
	c := clock.NewFake(pollStep)
	sim := gpio.NewEchoSimulator(c, 450*time.Microsecond, width)
	s, err := New(sim.Trig, sim.Echo, WithClock(c))
	if err != nil {
		t.Fatalf("Failed to create sensor: %v", err)
	}
	return s, sim, c
}

func fixedPulse(w time.Duration) func() time.Duration {
	return func() time.Duration { return w }
}

func TestDistanceFromPulse(t *testing.T) {
	for _, tc := range []struct {
		width    time.Duration
		expected float64
	}{
		{2 * time.Millisecond, 34.3},
		{0, 0},
		{time.Second, 17150},
		{583 * time.Microsecond, 9.99845},
	} {
		got := DistanceFromPulse(tc.width)
		if math.Abs(got-tc.expected) > 1e-9 {
			t.Errorf("DistanceFromPulse(%v) = %f, expected %f", tc.width, got, tc.expected)
		}
	}
}

func TestPulseForDistanceRoundTrip(t *testing.T) {
	for _, cm := range []float64{2, 35, 34.3, 123.4, 400} {
		got := DistanceFromPulse(PulseForDistance(cm))
		if math.Abs(got-cm) > 0.001 {
			t.Errorf("Round trip of %fcm gave %fcm", cm, got)
		}
	}
}

func TestMeasureSimulatedEcho(t *testing.T) {
	for _, w := range []time.Duration{
		2 * time.Millisecond,
		500 * time.Microsecond,
		23 * time.Millisecond,
	} {
		s, sim, _ := newSimulatedSensor(t, fixedPulse(w))
		m, err := s.Measure(time.Second)
		if err != nil {
			t.Fatalf("Measure failed for %v pulse: %v", w, err)
		}
		expected := w.Seconds() * 17150
		// Each poll costs two clock steps (the sensor's read plus the echo line's).
		if math.Abs(m.DistanceCm-expected) > DistanceFromPulse(4*pollStep) {
			t.Errorf("Pulse %v measured as %v, expected %.3fcm", w, m, expected)
		}
		if sim.Pings() != 1 {
			t.Errorf("Expected exactly one ping, got %d", sim.Pings())
		}
		if sim.Trig.Level() != gpio.Low {
			t.Errorf("Trigger left high")
		}
	}
}

func TestTriggerPulseWidth(t *testing.T) {
	s, _, c := newSimulatedSensor(t, fixedPulse(time.Millisecond))
	_ = s.Init(context.Background())

	// Record the clock at each trigger edge.
	var edges []time.Time
	s.trig = &recordingLine{Line: s.trig, onWrite: func(l gpio.Level) { edges = append(edges, c.Peek()) }}

	if _, err := s.Measure(time.Second); err != nil {
		t.Fatal(err)
	}
	if len(edges) != 2 {
		t.Fatalf("Expected a high and a low write, got %d writes", len(edges))
	}
	if width := edges[1].Sub(edges[0]); width < DefaultTriggerPulse {
		t.Fatalf("Trigger pulse was %v, shorter than %v", width, DefaultTriggerPulse)
	}
}

type recordingLine struct {
	gpio.Line
	onWrite func(gpio.Level)
}

func (r *recordingLine) Write(l gpio.Level) error {
	err := r.Line.Write(l)
	r.onWrite(l)
	return err
}

func TestNoRisingEdgeTimesOut(t *testing.T) {
	c := clock.NewFake(10 * time.Microsecond)
	sim := gpio.NewEchoSimulator(c, 0, fixedPulse(-1))
	s, err := New(sim.Trig, sim.Echo, WithClock(c))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Init(context.Background())

	start := c.Peek()
	m, err := s.Measure(time.Second)
	if !errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("Expected ErrSensorTimeout, got %v (%v)", err, m)
	}
	if m != (Measurement{}) {
		t.Fatalf("A timed out measurement must not carry a distance, got %v", m)
	}
	if waited := c.Peek().Sub(start); waited < time.Second || waited > 2*time.Second {
		t.Fatalf("Expected to give up after about 1s, waited %v", waited)
	}
}

func TestStuckHighEchoTimesOut(t *testing.T) {
	s, _, _ := newSimulatedSensor(t, fixedPulse(5*time.Second))
	_, err := s.Measure(100 * time.Millisecond)
	if !errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("Expected ErrSensorTimeout, got %v", err)
	}
}

// scriptedEcho plays back a fixed sequence of levels, one per read, then holds Low.
type scriptedEcho struct {
	gpio.Line
	levels []gpio.Level
	reads  int
}

func (e *scriptedEcho) Read() gpio.Level {
	defer func() { e.reads++ }()
	if e.reads < len(e.levels) {
		return e.levels[e.reads]
	}
	return gpio.Low
}

func levelRun(level gpio.Level, n int) []gpio.Level {
	out := make([]gpio.Level, n)
	for i := range out {
		out[i] = level
	}
	return out
}

func newScriptedSensor(t *testing.T, levels []gpio.Level) (*Sensor, *clock.Fake) {
	c := clock.NewFake(pollStep)
	echo := &scriptedEcho{Line: gpio.NewFakeLine("echo"), levels: levels}
	s, err := New(gpio.NewFakeLine("trig"), echo, WithClock(c), WithSettleTime(0))
	if err != nil {
		t.Fatalf("Failed to create sensor: %v", err)
	}
	return s, c
}

func TestLeftoverEchoIsNotMeasured(t *testing.T) {
	// High from an earlier ping when we trigger, then nothing.
	s, _ := newScriptedSensor(t, levelRun(gpio.High, 100))
	m, err := s.Measure(time.Second)
	if !errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("Expected ErrSensorTimeout, got %v (%v)", err, m)
	}
	if m != (Measurement{}) {
		t.Fatalf("A timed out measurement must not carry a distance, got %v", m)
	}
}

func TestLeftoverEchoThenRealEcho(t *testing.T) {
	var levels []gpio.Level
	levels = append(levels, levelRun(gpio.High, 100)...)
	levels = append(levels, levelRun(gpio.Low, 100)...)
	levels = append(levels, levelRun(gpio.High, 500)...)
	s, _ := newScriptedSensor(t, levels)

	m, err := s.Measure(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	// One clock step per read.
	if m.PulseWidth != 500*pollStep {
		t.Fatalf("Expected the 500µs echo, got %v (%v)", m.PulseWidth, m)
	}
}

func TestEchoHighForWholeTimeoutTimesOut(t *testing.T) {
	s, _ := newScriptedSensor(t, levelRun(gpio.High, 1<<20))
	if _, err := s.Measure(10 * time.Millisecond); !errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("Expected ErrSensorTimeout, got %v", err)
	}
}

func TestInitWaitsOnce(t *testing.T) {
	s, _, c := newSimulatedSensor(t, fixedPulse(time.Millisecond))

	start := c.Peek()
	if err := s.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if waited := c.Peek().Sub(start); waited < DefaultSettleTime {
		t.Fatalf("Init only waited %v", waited)
	}

	start = c.Peek()
	_ = s.Init(context.Background())
	if waited := c.Peek().Sub(start); waited > time.Millisecond {
		t.Fatalf("Second Init should not wait, waited %v", waited)
	}
}

func TestMeasureInitialisesLazily(t *testing.T) {
	s, _, c := newSimulatedSensor(t, fixedPulse(time.Millisecond))
	start := c.Peek()
	if _, err := s.Measure(time.Second); err != nil {
		t.Fatal(err)
	}
	if c.Peek().Sub(start) < DefaultSettleTime {
		t.Fatal("First Measure should have waited for the sensor to settle")
	}
}

func TestInitHonoursContext(t *testing.T) {
	s, _, _ := newSimulatedSensor(t, fixedPulse(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Init(ctx); err != context.Canceled {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestNotReentrant(t *testing.T) {
	s, _, _ := newSimulatedSensor(t, fixedPulse(time.Millisecond))
	s.lock.Lock()
	_, err := s.Measure(time.Second)
	s.lock.Unlock()
	if err != ErrBusy {
		t.Fatalf("Expected ErrBusy, got %v", err)
	}
}

func TestTriggerWriteFailure(t *testing.T) {
	s, sim, _ := newSimulatedSensor(t, fixedPulse(time.Millisecond))
	_ = s.Init(context.Background())
	sim.Trig.FailWrites(errors.New("bus fault"))
	if _, err := s.Measure(time.Second); err == nil || errors.Is(err, ErrSensorTimeout) {
		t.Fatalf("Expected a write error, got %v", err)
	}
}

func TestNewRejectsBadLines(t *testing.T) {
	o := gpio.NewFakeOpener()
	o.Refuse(24, errors.New("no such pin"))
	if _, err := Open(o, 23, 24); !gpio.IsHardwareError(err) {
		t.Fatalf("Expected HardwareError, got %v", err)
	}
	if !o.Line(23).Closed() {
		t.Fatal("Trigger line should have been released")
	}
}
