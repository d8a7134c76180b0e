package hardware

import (
	"fmt"
	"time"

	"github.com/tigerbot-team/rover/pkg/clock"
	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/gpio"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

// echoLatency is roughly how long a real HC-SR04 takes to start its echo pulse.
const echoLatency = 500 * time.Microsecond

type dummyOpener struct {
	*gpio.FakeOpener
}

func (d dummyOpener) Open(pin int) (gpio.Line, error) {
	fmt.Printf("DHW: Open GPIO%d\n", pin)
	return d.FakeOpener.Open(pin)
}

// Dummy is a rover on simulated lines, for running without the robot.
type Dummy struct {
	*Rover
	Opener *gpio.FakeOpener
	Echo   *gpio.EchoSimulator
}

// OpenDummy builds a rover whose sensor sees whatever distance() returns at each ping; a
// negative distance simulates a missing echo.
func OpenDummy(cfg config.Config, distance func() float64) (*Dummy, error) {
	echo := gpio.NewEchoSimulator(clock.Real(), echoLatency, func() time.Duration {
		cm := distance()
		if cm < 0 {
			return -1
		}
		return ultrasonic.PulseForDistance(cm)
	})
	opener := gpio.NewFakeOpener()
	opener.Attach(cfg.TriggerPin, echo.Trig)
	opener.Attach(cfg.EchoPin, echo.Echo)

	r, err := Open(dummyOpener{opener}, cfg)
	if err != nil {
		return nil, err
	}
	return &Dummy{Rover: r, Opener: opener, Echo: echo}, nil
}
