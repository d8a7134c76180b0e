// Package config holds the rover's startup configuration.  Values come from the built-in
// defaults, then the YAML file, then ROVER_* environment variables.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/tigerbot-team/rover/pkg/avoidmode"
	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

const DefaultPath = "/cfg/rover.yaml"

type Config struct {
	LeftMotorPins  []int `yaml:"left_motor_pins" env:"ROVER_LEFT_MOTOR_PINS"`
	RightMotorPins []int `yaml:"right_motor_pins" env:"ROVER_RIGHT_MOTOR_PINS"`
	TriggerPin     int   `yaml:"trigger_pin" env:"ROVER_TRIGGER_PIN"`
	EchoPin        int   `yaml:"echo_pin" env:"ROVER_ECHO_PIN"`

	ObstacleThresholdCm    float64       `yaml:"obstacle_threshold_cm" env:"ROVER_OBSTACLE_THRESHOLD_CM"`
	MeasurementTimeout     time.Duration `yaml:"measurement_timeout" env:"ROVER_MEASUREMENT_TIMEOUT"`
	TurnDuration           time.Duration `yaml:"turn_duration" env:"ROVER_TURN_DURATION"`
	TurnDirection          string        `yaml:"turn_direction" env:"ROVER_TURN_DIRECTION"`
	LoopCadence            time.Duration `yaml:"loop_cadence" env:"ROVER_LOOP_CADENCE"`
	SensorSettleTime       time.Duration `yaml:"sensor_settle_time" env:"ROVER_SENSOR_SETTLE_TIME"`
	TriggerPulse           time.Duration `yaml:"trigger_pulse" env:"ROVER_TRIGGER_PULSE"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" env:"ROVER_MAX_CONSECUTIVE_FAILURES"`

	Telemetry Telemetry `yaml:"telemetry"`
	Power     Power     `yaml:"power"`
}

type Telemetry struct {
	Buffer       int    `yaml:"buffer" env:"ROVER_TELEMETRY_BUFFER"`
	Console      bool   `yaml:"console" env:"ROVER_TELEMETRY_CONSOLE"`
	ScreenDevice string `yaml:"screen_device" env:"ROVER_SCREEN_DEVICE"`
	Sounds       Sounds `yaml:"sounds"`
	MQTT         MQTT   `yaml:"mqtt"`
}

// Sounds are WAV files played for each move; empty disables the cue.
type Sounds struct {
	Forward string `yaml:"forward" env:"ROVER_SOUND_FORWARD"`
	Turn    string `yaml:"turn" env:"ROVER_SOUND_TURN"`
	Stop    string `yaml:"stop" env:"ROVER_SOUND_STOP"`
}

type MQTT struct {
	Broker   string `yaml:"broker" env:"ROVER_MQTT_BROKER"`
	Topic    string `yaml:"topic" env:"ROVER_MQTT_TOPIC"`
	ClientID string `yaml:"client_id" env:"ROVER_MQTT_CLIENT_ID"`
}

type Power struct {
	I2CDevice      string        `yaml:"i2c_device" env:"ROVER_POWER_I2C_DEVICE"`
	Address        int           `yaml:"address" env:"ROVER_POWER_ADDRESS"`
	ShuntOhms      float64       `yaml:"shunt_ohms" env:"ROVER_POWER_SHUNT_OHMS"`
	MaxCurrentAmps float64       `yaml:"max_current_amps" env:"ROVER_POWER_MAX_CURRENT_AMPS"`
	Interval       time.Duration `yaml:"interval" env:"ROVER_POWER_INTERVAL"`
}

func Default() Config {
	return Config{
		LeftMotorPins:  []int{27, 22},
		RightMotorPins: []int{5, 6},
		TriggerPin:     23,
		EchoPin:        24,

		ObstacleThresholdCm: 35,
		MeasurementTimeout:  ultrasonic.DefaultTimeout,
		TurnDuration:        drivetrain.DefaultTurnDuration,
		TurnDirection:       drivetrain.Right.String(),
		LoopCadence:         200 * time.Millisecond,
		SensorSettleTime:    ultrasonic.DefaultSettleTime,
		TriggerPulse:        ultrasonic.DefaultTriggerPulse,

		Telemetry: Telemetry{
			Buffer:  64,
			Console: true,
			MQTT: MQTT{
				Topic:    "rover/telemetry",
				ClientID: "rover",
			},
		},
		Power: Power{
			Address:        0x41,
			ShuntOhms:      0.1,
			MaxCurrentAmps: 2.0,
			Interval:       10 * time.Second,
		},
	}
}

// PathFromEnv returns the config file named by ROVER_CONFIG, or DefaultPath.
func PathFromEnv() string {
	if p := os.Getenv("ROVER_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load applies the file at path (if it exists) and then the environment over the defaults, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := ioutil.ReadFile(path)
		if os.IsNotExist(err) {
			fmt.Println("Config: no config file at", path, "using defaults")
		} else if err != nil {
			return cfg, errors.Wrapf(err, "failed to read %s", path)
		} else if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "failed to parse %s", path)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, errors.Wrap(err, "bad environment override")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if len(c.LeftMotorPins) != 2 {
		addf("left_motor_pins needs exactly two pins, got %v", c.LeftMotorPins)
	}
	if len(c.RightMotorPins) != 2 {
		addf("right_motor_pins needs exactly two pins, got %v", c.RightMotorPins)
	}
	seen := map[int]string{}
	checkPin := func(name string, pin int) {
		if pin < 0 {
			addf("%s: negative pin %d", name, pin)
		}
		if other, ok := seen[pin]; ok {
			addf("pin %d used for both %s and %s", pin, other, name)
		}
		seen[pin] = name
	}
	for i, p := range c.LeftMotorPins {
		checkPin(fmt.Sprintf("left_motor_pins[%d]", i), p)
	}
	for i, p := range c.RightMotorPins {
		checkPin(fmt.Sprintf("right_motor_pins[%d]", i), p)
	}
	checkPin("trigger_pin", c.TriggerPin)
	checkPin("echo_pin", c.EchoPin)

	if c.ObstacleThresholdCm <= 0 {
		addf("obstacle_threshold_cm must be positive, got %v", c.ObstacleThresholdCm)
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"measurement_timeout", c.MeasurementTimeout},
		{"turn_duration", c.TurnDuration},
		{"loop_cadence", c.LoopCadence},
		{"trigger_pulse", c.TriggerPulse},
	} {
		if d.value <= 0 {
			addf("%s must be positive, got %v", d.name, d.value)
		}
	}
	if c.SensorSettleTime < 0 {
		addf("sensor_settle_time must not be negative, got %v", c.SensorSettleTime)
	}
	if _, err := drivetrain.ParseDirection(c.TurnDirection); err != nil {
		addf("turn_direction: %v", err)
	}
	if c.MaxConsecutiveFailures < 0 {
		addf("max_consecutive_failures must not be negative, got %d", c.MaxConsecutiveFailures)
	}
	if c.Telemetry.Buffer <= 0 {
		addf("telemetry.buffer must be positive, got %d", c.Telemetry.Buffer)
	}
	if c.Telemetry.MQTT.Broker != "" && c.Telemetry.MQTT.Topic == "" {
		addf("telemetry.mqtt.topic is required when a broker is set")
	}
	if c.Power.I2CDevice != "" {
		if c.Power.Address <= 0 || c.Power.Address > 0x7f {
			addf("power.address %#x is not a 7-bit I2C address", c.Power.Address)
		}
		if c.Power.ShuntOhms <= 0 || c.Power.MaxCurrentAmps <= 0 {
			addf("power.shunt_ohms and power.max_current_amps must be positive")
		}
		if c.Power.Interval <= 0 {
			addf("power.interval must be positive, got %v", c.Power.Interval)
		}
	}

	if len(problems) > 0 {
		return errors.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Settings converts the loop parameters.  The config must have passed Validate.
func (c Config) Settings() avoidmode.Settings {
	dir, _ := drivetrain.ParseDirection(c.TurnDirection)
	return avoidmode.Settings{
		ObstacleThresholdCm:    c.ObstacleThresholdCm,
		MeasurementTimeout:     c.MeasurementTimeout,
		TurnDuration:           c.TurnDuration,
		TurnDirection:          dir,
		LoopCadence:            c.LoopCadence,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
	}
}

// InUsePath is where WriteInUse puts the effective config for a given input path.
func InUsePath(path string) string {
	if path == "" {
		path = DefaultPath
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-in-use" + ext
}

// WriteInUse records the effective configuration next to the input file.
func (c Config) WriteInUse(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	out := InUsePath(path)
	if err := ioutil.WriteFile(out, data, 0666); err != nil {
		return errors.Wrapf(err, "failed to write %s", out)
	}
	return nil
}
