// Package avoidmode is the obstacle avoidance control loop: drive forward, ping, and turn in
// place whenever something is closer than the threshold.
//
// Everything that touches the motors or the sensor happens on the single loop goroutine.
// Shutdown is cooperative: the context is checked at the top of each iteration and again after
// each measurement, and a turn that has started always runs to completion.  Any sensor or
// motor failure stops the drive train before the loop carries on, so the robot never keeps
// moving on a reading it couldn't confirm.
package avoidmode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/telemetry"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

var ErrTooManyFailures = errors.New("too many consecutive failures")

type Driver interface {
	Forward() error
	Stop() error
	Turn(ctx context.Context, dir drivetrain.Direction, duration time.Duration) error
}

type Ranger interface {
	Init(ctx context.Context) error
	Measure(timeout time.Duration) (ultrasonic.Measurement, error)
}

type Settings struct {
	ObstacleThresholdCm float64
	MeasurementTimeout  time.Duration
	TurnDuration        time.Duration
	TurnDirection       drivetrain.Direction
	LoopCadence         time.Duration

	// MaxConsecutiveFailures halts the loop with ErrTooManyFailures after that many failed
	// iterations in a row.  Zero means keep trying forever.
	MaxConsecutiveFailures int
}

func DefaultSettings() Settings {
	return Settings{
		ObstacleThresholdCm: 35,
		MeasurementTimeout:  ultrasonic.DefaultTimeout,
		TurnDuration:        drivetrain.DefaultTurnDuration,
		TurnDirection:       drivetrain.Right,
		LoopCadence:         200 * time.Millisecond,
	}
}

type Phase int32

const (
	Stopped Phase = iota
	Forward
	Turning
)

func (p Phase) String() string {
	switch p {
	case Stopped:
		return "Stopped"
	case Forward:
		return "Forward"
	case Turning:
		return "Turning"
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

type AvoidMode struct {
	driver   Driver
	ranger   Ranger
	sink     telemetry.Sink
	settings Settings

	phase    int32
	failures int

	cancel context.CancelFunc
	stopWG sync.WaitGroup
	done   chan struct{}

	errLock sync.Mutex
	err     error
}

func New(driver Driver, ranger Ranger, sink telemetry.Sink, settings Settings) *AvoidMode {
	return &AvoidMode{
		driver:   driver,
		ranger:   ranger,
		sink:     sink,
		settings: settings,
	}
}

func (m *AvoidMode) Name() string {
	return "Avoid mode"
}

// Start runs the loop on a background goroutine.
func (m *AvoidMode) Start(ctx context.Context) {
	m.stopWG.Add(1)
	m.done = make(chan struct{})
	var loopCtx context.Context
	loopCtx, m.cancel = context.WithCancel(ctx)
	go m.loop(loopCtx)
}

// Stop requests shutdown and waits for the loop to finish its current iteration.
func (m *AvoidMode) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.stopWG.Wait()
}

// Done is closed when the loop started by Start exits, whether asked to or not.
func (m *AvoidMode) Done() <-chan struct{} {
	return m.done
}

// Err returns the reason the loop exited, nil for a requested shutdown.
func (m *AvoidMode) Err() error {
	m.errLock.Lock()
	defer m.errLock.Unlock()
	return m.err
}

func (m *AvoidMode) Phase() Phase {
	return Phase(atomic.LoadInt32(&m.phase))
}

func (m *AvoidMode) setPhase(p Phase) {
	atomic.StoreInt32(&m.phase, int32(p))
}

func (m *AvoidMode) loop(ctx context.Context) {
	defer m.stopWG.Done()
	defer close(m.done)

	err := m.Run(ctx)
	if err != nil {
		fmt.Println("Avoid: loop exited:", err)
	}
	m.errLock.Lock()
	m.err = err
	m.errLock.Unlock()
}

// Run executes the loop on the calling goroutine until ctx is cancelled.  It returns nil after
// a requested shutdown, or the error that made it give up.  The drive train is stopped on
// every exit path.
func (m *AvoidMode) Run(ctx context.Context) error {
	defer m.shutdown()

	if err := m.ranger.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "sensor initialisation failed")
	}

	m.setPhase(Forward)
	m.failures = 0
	m.sink.Log("Moving forward")

	for ctx.Err() == nil {
		if err := m.step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *AvoidMode) step(ctx context.Context) error {
	if err := m.driver.Forward(); err != nil {
		return m.recoverFrom(errors.Wrap(err, "motor failure"), telemetry.NoReading())
	}

	time.Sleep(m.settings.LoopCadence)

	reading, err := m.ranger.Measure(m.settings.MeasurementTimeout)
	if err != nil {
		dist := telemetry.NoReading()
		if errors.Is(err, ultrasonic.ErrSensorTimeout) {
			dist = telemetry.Timeout()
		}
		return m.recoverFrom(errors.Wrap(err, "sensor failure"), dist)
	}
	m.failures = 0

	if ctx.Err() != nil {
		return nil
	}

	dist := telemetry.Cm(reading.DistanceCm)
	if reading.DistanceCm > m.settings.ObstacleThresholdCm {
		m.sink.Move(telemetry.Forward, dist)
		return nil
	}

	dir := m.settings.TurnDirection
	move := telemetry.TurnRight
	if dir == drivetrain.Left {
		move = telemetry.TurnLeft
	}
	m.sink.Log(fmt.Sprintf("Obstacle found at %v or less. Turning %v", dist, dir))
	m.sink.Move(move, dist)

	m.setPhase(Turning)
	// A turn that has started always finishes; shutdown is only honoured between iterations.
	err = m.driver.Turn(context.WithoutCancel(ctx), dir, m.settings.TurnDuration)
	m.setPhase(Forward)
	if err != nil {
		return m.recoverFrom(errors.Wrap(err, "motor failure while turning"), dist)
	}

	m.sink.Log("Moving forward")
	return nil
}

// recoverFrom brings the robot to a halt and reports why.  The loop resumes on the next
// iteration unless the failure cap has been reached.
func (m *AvoidMode) recoverFrom(cause error, dist telemetry.Distance) error {
	stopErr := m.driver.Stop()
	m.sink.Move(telemetry.Stop, dist)
	m.sink.Log(fmt.Sprintf("Stopped: %v", cause))
	if stopErr != nil {
		m.sink.Log(fmt.Sprintf("Failed to stop motors: %v", stopErr))
	}

	m.failures++
	if limit := m.settings.MaxConsecutiveFailures; limit > 0 && m.failures >= limit {
		return errors.Wrapf(ErrTooManyFailures, "%d in a row, last: %v", m.failures, cause)
	}
	return nil
}

func (m *AvoidMode) shutdown() {
	if err := m.driver.Stop(); err != nil {
		m.sink.Log(fmt.Sprintf("Failed to stop motors on shutdown: %v", err))
	}
	m.setPhase(Stopped)
	m.sink.Log("Stopped")
}
