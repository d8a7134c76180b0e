package drivetrain

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/motor"
)

// DefaultTurnDuration is roughly a quarter turn in place on the reference chassis.
const DefaultTurnDuration = 250 * time.Millisecond

type Direction int

const (
	Right Direction = iota
	Left
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

func ParseDirection(s string) (Direction, error) {
	switch s {
	case "right", "":
		return Right, nil
	case "left":
		return Left, nil
	}
	return Right, errors.Errorf("unknown turn direction %q", s)
}

// DriveTrain owns a left and a right motor and issues every command to both.  It holds no state
// of its own; it is not safe for use from more than one goroutine at a time.
type DriveTrain struct {
	left, right motor.Interface
}

func New(left, right motor.Interface) *DriveTrain {
	return &DriveTrain{left: left, right: right}
}

func (d *DriveTrain) Forward() error {
	if err := d.left.MoveForward(); err != nil {
		return err
	}
	return d.right.MoveForward()
}

func (d *DriveTrain) Backward() error {
	if err := d.left.MoveBackward(); err != nil {
		return err
	}
	return d.right.MoveBackward()
}

// Stop stops both motors; the right motor is stopped even if stopping the left one failed.
func (d *DriveTrain) Stop() error {
	errL := d.left.Stop()
	errR := d.right.Stop()
	if errL != nil {
		return errL
	}
	return errR
}

// TurnRight spins in place clockwise for the given duration and then stops.  See Turn.
func (d *DriveTrain) TurnRight(ctx context.Context, duration time.Duration) error {
	return d.Turn(ctx, Right, duration)
}

func (d *DriveTrain) TurnLeft(ctx context.Context, duration time.Duration) error {
	return d.Turn(ctx, Left, duration)
}

// Turn drives the motors in opposite directions for duration (DefaultTurnDuration if <= 0),
// blocking the caller, then stops both motors.  The motors are stopped however Turn exits:
// after the full duration, on ctx cancellation (which returns ctx.Err()) or after a failed write.
func (d *DriveTrain) Turn(ctx context.Context, dir Direction, duration time.Duration) (err error) {
	if duration <= 0 {
		duration = DefaultTurnDuration
	}
	defer func() {
		stopErr := d.Stop()
		if err == nil {
			err = stopErr
		}
	}()

	forward, backward := d.left, d.right
	if dir == Left {
		forward, backward = d.right, d.left
	}
	if err := forward.MoveForward(); err != nil {
		return err
	}
	if err := backward.MoveBackward(); err != nil {
		return err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DriveTrain) Close() error {
	errL := d.left.Close()
	errR := d.right.Close()
	if errL != nil {
		return errL
	}
	return errR
}
