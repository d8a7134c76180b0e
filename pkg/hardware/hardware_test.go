package hardware

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/gpio"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SensorSettleTime = 0
	return cfg
}

func TestOpenConfiguresAllLines(t *testing.T) {
	cfg := testConfig()
	opener := gpio.NewFakeOpener()
	r, err := Open(opener, cfg)
	if err != nil {
		t.Fatal(err)
	}

	for _, pin := range append(append([]int{}, cfg.LeftMotorPins...), cfg.RightMotorPins...) {
		l := opener.Line(pin)
		if l.Direction() != gpio.Output || l.Level() != gpio.Low {
			t.Errorf("Motor pin %d: expected low output, got %v %v", pin, l.Direction(), l.Level())
		}
	}
	if d := opener.Line(cfg.TriggerPin).Direction(); d != gpio.Output {
		t.Errorf("Trigger should be an output, got %v", d)
	}
	if d := opener.Line(cfg.EchoPin).Direction(); d != gpio.Input {
		t.Errorf("Echo should be an input, got %v", d)
	}

	if err := r.DriveTrain.Forward(); err != nil {
		t.Fatal(err)
	}
	r.Shutdown()
	for _, pin := range []int{27, 22, 5, 6, 23, 24} {
		l := opener.Line(pin)
		if !l.Closed() {
			t.Errorf("Pin %d not released", pin)
		}
		if l.Level() != gpio.Low {
			t.Errorf("Pin %d left high", pin)
		}
	}
}

func TestOpenFailureReleasesEarlierLines(t *testing.T) {
	cfg := testConfig()
	opener := gpio.NewFakeOpener()
	opener.Refuse(cfg.EchoPin, errors.New("pin busy"))

	_, err := Open(opener, cfg)
	if !gpio.IsHardwareError(err) {
		t.Fatalf("Expected a HardwareError, got %v", err)
	}
	for _, pin := range []int{27, 22, 5, 6, 23} {
		if !opener.Line(pin).Closed() {
			t.Errorf("Pin %d not released after failed open", pin)
		}
	}
}

func TestOpenFailureOnRightMotor(t *testing.T) {
	cfg := testConfig()
	opener := gpio.NewFakeOpener()
	opener.Refuse(cfg.RightMotorPins[1], errors.New("no such pin"))

	if _, err := Open(opener, cfg); !gpio.IsHardwareError(err) {
		t.Fatalf("Expected a HardwareError, got %v", err)
	}
	for _, pin := range []int{27, 22, 5} {
		if !opener.Line(pin).Closed() {
			t.Errorf("Pin %d not released after failed open", pin)
		}
	}
}

func TestDummyMeasures(t *testing.T) {
	d, err := OpenDummy(testConfig(), func() float64 { return 50 })
	if err != nil {
		t.Fatal(err)
	}
	defer d.Shutdown()

	if err := d.Sensor.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	m, err := d.Sensor.Measure(0)
	if err != nil {
		t.Fatal(err)
	}
	// Real clock, so allow for scheduling noise.
	if math.Abs(m.DistanceCm-50) > 5 {
		t.Fatalf("Expected about 50cm, got %v", m)
	}
	if d.Echo.Pings() != 1 {
		t.Fatalf("Expected one ping, got %d", d.Echo.Pings())
	}
}
