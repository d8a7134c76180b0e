package avoidmode

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/tigerbot-team/rover/pkg/clock"
	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/gpio"
	"github.com/tigerbot-team/rover/pkg/motor"
	"github.com/tigerbot-team/rover/pkg/telemetry"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

// TestFullStackOnFakeLines runs the loop against the real drive train and sensor drivers, wired
// to fake lines and a simulated echo.
func TestFullStackOnFakeLines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lock sync.Mutex
	script := []float64{50, 48, 20}
	pulse := func() time.Duration {
		lock.Lock()
		defer lock.Unlock()
		if len(script) == 0 {
			cancel()
			return ultrasonic.PulseForDistance(1000)
		}
		cm := script[0]
		script = script[1:]
		return ultrasonic.PulseForDistance(cm)
	}
	clk := clock.NewFake(time.Microsecond)
	echo := gpio.NewEchoSimulator(clk, 300*time.Microsecond, pulse)
	sensor, err := ultrasonic.New(echo.Trig, echo.Echo, ultrasonic.WithClock(clk), ultrasonic.WithSettleTime(0))
	if err != nil {
		t.Fatal(err)
	}

	opener := gpio.NewFakeOpener()
	left, err := motor.Open(opener, 27, 22)
	if err != nil {
		t.Fatal(err)
	}
	right, err := motor.Open(opener, 5, 6)
	if err != nil {
		t.Fatal(err)
	}
	dt := drivetrain.New(left, right)

	rec := &telemetry.Recorder{}
	if err := New(dt, sensor, rec, testSettings()).Run(ctx); err != nil {
		t.Fatal(err)
	}

	moves := rec.Moves()
	expected := []struct {
		move telemetry.Move
		cm   float64
	}{
		{telemetry.Forward, 50},
		{telemetry.Forward, 48},
		{telemetry.TurnRight, 20},
	}
	if len(moves) != len(expected) {
		t.Fatalf("Expected %d moves, got %v", len(expected), moves)
	}
	for i, e := range expected {
		if moves[i].Move != e.move || math.Abs(moves[i].Distance.Cm-e.cm) > 0.5 {
			t.Errorf("Move %d: expected %v at %vcm, got %v", i, e.move, e.cm, moves[i])
		}
	}
	if echo.Pings() != 4 {
		t.Errorf("Expected 4 pings, got %d", echo.Pings())
	}
	for _, pin := range []int{27, 22, 5, 6} {
		if opener.Line(pin).Level() != gpio.Low {
			t.Errorf("Motor pin %d left high after shutdown", pin)
		}
	}
}
