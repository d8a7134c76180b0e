// Package hardware assembles the rover from its configured pins.
package hardware

import (
	"fmt"

	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/gpio"
	"github.com/tigerbot-team/rover/pkg/motor"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

type Rover struct {
	Left, Right *motor.Motor
	DriveTrain  *drivetrain.DriveTrain
	Sensor      *ultrasonic.Sensor
}

// Open claims every line the rover needs.  If any of them can't be had, the ones already
// claimed are released and the error (usually a *gpio.HardwareError) is returned.
func Open(opener gpio.Opener, cfg config.Config, opts ...ultrasonic.Option) (*Rover, error) {
	fmt.Printf("HW: Opening motors on %v/%v\n", cfg.LeftMotorPins, cfg.RightMotorPins)
	left, err := motor.Open(opener, cfg.LeftMotorPins[0], cfg.LeftMotorPins[1])
	if err != nil {
		return nil, err
	}
	right, err := motor.Open(opener, cfg.RightMotorPins[0], cfg.RightMotorPins[1])
	if err != nil {
		_ = left.Close()
		return nil, err
	}

	fmt.Printf("HW: Opening ultrasonic sensor trig=%d echo=%d\n", cfg.TriggerPin, cfg.EchoPin)
	opts = append([]ultrasonic.Option{
		ultrasonic.WithTriggerPulse(cfg.TriggerPulse),
		ultrasonic.WithSettleTime(cfg.SensorSettleTime),
	}, opts...)
	sensor, err := ultrasonic.Open(opener, cfg.TriggerPin, cfg.EchoPin, opts...)
	if err != nil {
		_ = left.Close()
		_ = right.Close()
		return nil, err
	}

	return &Rover{
		Left:       left,
		Right:      right,
		DriveTrain: drivetrain.New(left, right),
		Sensor:     sensor,
	}, nil
}

// OpenPeriph opens the rover on the host's real GPIO.
func OpenPeriph(cfg config.Config) (*Rover, error) {
	return Open(gpio.NewPeriphOpener(), cfg)
}

// Shutdown zeroes the motors and releases all the lines.
func (r *Rover) Shutdown() {
	fmt.Println("HW: Zeroing motors for shut down")
	if err := r.DriveTrain.Stop(); err != nil {
		fmt.Println("HW: Failed to stop motors:", err)
	}
	if err := r.DriveTrain.Close(); err != nil {
		fmt.Println("HW: Failed to release motor lines:", err)
	}
	if err := r.Sensor.Close(); err != nil {
		fmt.Println("HW: Failed to release sensor lines:", err)
	}
}
