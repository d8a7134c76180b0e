// Package ultrasonic drives an HC-SR04 style ping/echo range finder from two plain GPIO lines.
//
// A measurement raises the trigger line for a short pulse, then times how long the echo line
// stays high.  There is no hardware timer or edge interrupt involved: both the wait for the echo
// to start and the pulse width are measured by polling the echo line against a monotonic clock,
// bounded by the caller's timeout.  Pulses are sub-millisecond to tens of milliseconds and the
// control loop only pings a few times a second, so the CPU spent polling doesn't matter.
package ultrasonic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/clock"
	"github.com/tigerbot-team/rover/pkg/gpio"
)

// CmPerSecond converts echo pulse width to one-way distance: 343m/s, halved for the round trip.
const CmPerSecond = 17150.0

const (
	DefaultTimeout      = time.Second
	DefaultSettleTime   = 2 * time.Second
	DefaultTriggerPulse = 10 * time.Microsecond

	settlePoll = 100 * time.Millisecond
)

var (
	// ErrSensorTimeout means no usable echo arrived in time.  Callers must treat the distance as
	// unknown; there is deliberately no "very far away" value returned alongside it.
	ErrSensorTimeout = errors.New("ultrasonic: timed out waiting for echo")
	ErrBusy          = errors.New("ultrasonic: measurement already in progress")
)

type Measurement struct {
	DistanceCm float64
	PulseWidth time.Duration
	Taken      time.Time
}

func (m Measurement) String() string {
	return fmt.Sprintf("%.1fcm (%v)", m.DistanceCm, m.PulseWidth)
}

func DistanceFromPulse(width time.Duration) float64 {
	return width.Seconds() * CmPerSecond
}

// PulseForDistance is the inverse of DistanceFromPulse, used to simulate a sensor.
func PulseForDistance(cm float64) time.Duration {
	return time.Duration(cm / CmPerSecond * float64(time.Second))
}

type Option func(*Sensor)

func WithClock(c clock.Clock) Option {
	return func(s *Sensor) { s.clock = c }
}

func WithTriggerPulse(d time.Duration) Option {
	return func(s *Sensor) { s.triggerPulse = d }
}

func WithSettleTime(d time.Duration) Option {
	return func(s *Sensor) { s.settleTime = d }
}

// Sensor is not reentrant: only one measurement can be in flight, a concurrent call gets ErrBusy.
type Sensor struct {
	trig, echo gpio.Line

	clock        clock.Clock
	triggerPulse time.Duration
	settleTime   time.Duration

	// Held for the whole of Init or Measure.
	lock        sync.Mutex
	initialised bool
}

func New(trig, echo gpio.Line, opts ...Option) (*Sensor, error) {
	s := &Sensor{
		trig:         trig,
		echo:         echo,
		clock:        clock.Real(),
		triggerPulse: DefaultTriggerPulse,
		settleTime:   DefaultSettleTime,
	}
	for _, o := range opts {
		o(s)
	}
	if err := gpio.Configure(trig, gpio.Output, gpio.Low); err != nil {
		return nil, err
	}
	if err := gpio.Configure(echo, gpio.Input, gpio.Low); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens the trigger and echo pins and builds a Sensor on them.
func Open(opener gpio.Opener, trigPin, echoPin int, opts ...Option) (*Sensor, error) {
	trig, err := opener.Open(trigPin)
	if err != nil {
		return nil, err
	}
	echo, err := opener.Open(echoPin)
	if err != nil {
		_ = trig.Close()
		return nil, err
	}
	s, err := New(trig, echo, opts...)
	if err != nil {
		_ = trig.Close()
		_ = echo.Close()
		return nil, err
	}
	return s, nil
}

// Init holds the trigger low for the settle time so the sensor's first readings are sane.  Only
// the first call waits.  Measure calls it implicitly if it was never run.
func (s *Sensor) Init(ctx context.Context) error {
	if !s.lock.TryLock() {
		return ErrBusy
	}
	defer s.lock.Unlock()
	return s.initLocked(ctx)
}

func (s *Sensor) initLocked(ctx context.Context) error {
	if s.initialised {
		return nil
	}
	if err := s.trig.Write(gpio.Low); err != nil {
		return errors.Wrap(err, "ultrasonic: failed to idle trigger")
	}
	fmt.Println("Ultrasonic: waiting", s.settleTime, "for sensor to settle")
	deadline := s.clock.Now().Add(s.settleTime)
	for {
		remaining := deadline.Sub(s.clock.Now())
		if remaining <= 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.clock.Sleep(min(remaining, settlePoll))
	}
	s.initialised = true
	return nil
}

// Measure pings once and returns the distance to the nearest obstacle.  The whole exchange,
// from the end of the trigger pulse to the end of the echo, must complete within timeout
// (DefaultTimeout if <= 0); otherwise the error wraps ErrSensorTimeout.
func (s *Sensor) Measure(timeout time.Duration) (Measurement, error) {
	if !s.lock.TryLock() {
		return Measurement{}, ErrBusy
	}
	defer s.lock.Unlock()

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := s.initLocked(context.Background()); err != nil {
		return Measurement{}, err
	}

	if err := s.trigger(); err != nil {
		return Measurement{}, err
	}
	deadline := s.clock.Now().Add(timeout)

	// A line that is already high is the tail of an earlier echo, not ours.
	if _, ok := s.waitForEcho(gpio.Low, deadline); !ok {
		return Measurement{}, errors.Wrapf(ErrSensorTimeout, "echo never idled low within %v", timeout)
	}
	// The echo starts some variable time after the trigger; only the high time is the pulse.
	rise, ok := s.waitForEcho(gpio.High, deadline)
	if !ok {
		return Measurement{}, errors.Wrapf(ErrSensorTimeout, "no echo started within %v", timeout)
	}
	fall, ok := s.waitForEcho(gpio.Low, deadline)
	if !ok {
		return Measurement{}, errors.Wrapf(ErrSensorTimeout, "echo still high after %v", timeout)
	}

	width := fall.Sub(rise)
	return Measurement{
		DistanceCm: DistanceFromPulse(width),
		PulseWidth: width,
		Taken:      fall,
	}, nil
}

// trigger sends the ping.  The trigger line is always left low, even if raising it failed.
func (s *Sensor) trigger() (err error) {
	defer func() {
		if lowErr := s.trig.Write(gpio.Low); lowErr != nil && err == nil {
			err = errors.Wrap(lowErr, "ultrasonic: failed to end trigger pulse")
		}
	}()
	if err := s.trig.Write(gpio.High); err != nil {
		return errors.Wrap(err, "ultrasonic: failed to start trigger pulse")
	}
	// Sleeping is far too coarse for a 10µs pulse; spin instead.
	start := s.clock.Now()
	for s.clock.Now().Sub(start) < s.triggerPulse {
	}
	return nil
}

// waitForEcho polls until the echo line reads level, returning the time of the sample that saw
// it, or false once the deadline passes.
func (s *Sensor) waitForEcho(level gpio.Level, deadline time.Time) (time.Time, bool) {
	for {
		now := s.clock.Now()
		if s.echo.Read() == level {
			return now, true
		}
		if !now.Before(deadline) {
			return now, false
		}
	}
}

func (s *Sensor) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	_ = s.trig.Write(gpio.Low)
	errT := s.trig.Close()
	errE := s.echo.Close()
	if errT != nil {
		return errT
	}
	return errE
}
