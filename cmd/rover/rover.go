package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/tigerbot-team/rover/pkg/avoidmode"
	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/gpio"
	"github.com/tigerbot-team/rover/pkg/hardware"
	"github.com/tigerbot-team/rover/pkg/ina219"
	"github.com/tigerbot-team/rover/pkg/mqttsink"
	"github.com/tigerbot-team/rover/pkg/screen"
	"github.com/tigerbot-team/rover/pkg/sound"
	"github.com/tigerbot-team/rover/pkg/telemetry"
)

func main() {
	fmt.Println("---- Rover ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	configFile := flag.String("config", config.PathFromEnv(), "YAML config file; a missing file means defaults")
	dummy := flag.Bool("dummy", false, "run on simulated hardware")
	flag.Parse()

	os.Exit(run(*configFile, *dummy))
}

func run(configFile string, dummy bool) int {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		return 1
	}
	if err := cfg.WriteInUse(configFile); err != nil {
		fmt.Println("Failed to record config in use:", err)
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialise the hardware.
	rover, err := openHardware(cfg, dummy)
	if err != nil {
		if gpio.IsHardwareError(err) {
			fmt.Println("Hardware unavailable:", err)
		} else {
			fmt.Println("Failed to open hardware:", err)
		}
		return 1
	}
	defer func() {
		rover.Shutdown()
		time.Sleep(100 * time.Millisecond)
	}()

	// Hook Ctrl-C etc.
	registerSignalHandlers(cancel, shutdownGrace(cfg), func() {
		if err := rover.DriveTrain.Stop(); err != nil {
			fmt.Println("Failed to stop motors:", err)
		}
	})

	// Telemetry: the loop only ever hands events to the channel; the pump does the slow work.
	events := telemetry.NewChannel(cfg.Telemetry.Buffer)
	renderers, closeRenderers := startRenderers(ctx, cfg)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		telemetry.Pump(context.Background(), events.Events(), renderers...)
	}()
	defer func() {
		events.Close()
		select {
		case <-pumpDone:
		case <-time.After(telemetryDrain):
			fmt.Println("Telemetry did not drain")
		}
		closeRenderers()
		if n := events.Dropped(); n > 0 {
			fmt.Println("Telemetry events dropped:", n)
		}
	}()

	startPowerMonitor(ctx, cfg, events)

	mode := avoidmode.New(rover.DriveTrain, rover.Sensor, events, cfg.Settings())
	fmt.Printf("----- %s -----\n", mode.Name())
	mode.Start(ctx)

	watchdog := time.NewTicker(5 * time.Second)
	defer watchdog.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("Context done, stopping active mode and shutting down")
			mode.Stop()
			return 0
		case <-mode.Done():
			mode.Stop()
			if err := mode.Err(); err != nil {
				fmt.Println("Active mode failed:", err)
				return 1
			}
			return 0
		case <-watchdog.C:
			fmt.Println("Main loop still running, phase:", mode.Phase())
		}
	}
}

func openHardware(cfg config.Config, dummy bool) (*hardware.Rover, error) {
	if !dummy {
		r, err := hardware.OpenPeriph(cfg)
		if err == nil {
			return r, nil
		}
		if os.Getenv("IGNORE_MISSING_HARDWARE") != "true" {
			return nil, err
		}
		fmt.Println("Failed to open hardware, falling back to dummy:", err)
	}
	d, err := hardware.OpenDummy(cfg, wander(cfg.ObstacleThresholdCm))
	if err != nil {
		return nil, err
	}
	return d.Rover, nil
}

// wander simulates driving at a wall: the distance shrinks each ping until the robot would have
// turned, then opens up again.
func wander(thresholdCm float64) func() float64 {
	const start = 150.0
	d := start
	return func() float64 {
		d -= 7
		if d < thresholdCm/2 {
			d = start
		}
		return d
	}
}

func startRenderers(ctx context.Context, cfg config.Config) ([]telemetry.Renderer, func()) {
	var renderers []telemetry.Renderer
	var closers []func()

	if cfg.Telemetry.Console {
		renderers = append(renderers, telemetry.Console{})
	}
	if dev := cfg.Telemetry.ScreenDevice; dev != "" {
		s := screen.New()
		go s.Loop(ctx, dev)
		renderers = append(renderers, s)
	}
	if cues := soundCues(cfg.Telemetry.Sounds); len(cues) > 0 {
		p := sound.NewPlayer(cues)
		renderers = append(renderers, p)
		closers = append(closers, p.Close)
	}
	if m := cfg.Telemetry.MQTT; m.Broker != "" {
		p, err := mqttsink.Dial(m.Broker, m.ClientID, m.Topic)
		if err != nil {
			fmt.Println("MQTT telemetry disabled:", err)
		} else {
			renderers = append(renderers, p)
			closers = append(closers, p.Close)
		}
	}

	return renderers, func() {
		for _, c := range closers {
			c()
		}
	}
}

func soundCues(s config.Sounds) sound.Cues {
	cues := sound.Cues{}
	if s.Forward != "" {
		cues[telemetry.Forward] = s.Forward
	}
	if s.Turn != "" {
		cues[telemetry.TurnRight] = s.Turn
		cues[telemetry.TurnLeft] = s.Turn
	}
	if s.Stop != "" {
		cues[telemetry.Stop] = s.Stop
	}
	return cues
}

func startPowerMonitor(ctx context.Context, cfg config.Config, sink telemetry.Sink) {
	p := cfg.Power
	if p.I2CDevice == "" {
		return
	}
	m, err := ina219.NewI2C(p.I2CDevice, p.Address)
	if err != nil {
		fmt.Println("Power monitoring disabled:", err)
		return
	}
	if err := m.Configure(p.ShuntOhms, p.MaxCurrentAmps); err != nil {
		fmt.Println("Power monitoring disabled:", err)
		_ = m.Close()
		return
	}
	go func() {
		defer m.Close()
		ina219.Monitor(ctx, m, sink, p.Interval)
	}()
}

// telemetryDrain bounds how long shutdown waits for queued events to reach the renderers.
const telemetryDrain = 2 * time.Second

// shutdownGrace covers the loop finishing its current iteration and the telemetry drain.
func shutdownGrace(cfg config.Config) time.Duration {
	iteration := cfg.LoopCadence + cfg.MeasurementTimeout + cfg.TurnDuration
	return iteration + telemetryDrain + 3*time.Second
}

func registerSignalHandlers(cancelFunc context.CancelFunc, grace time.Duration, stopMotors func()) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		watchSignals(signals, cancelFunc, grace, stopMotors)
		os.Exit(1)
	}()
}

// watchSignals cancels on the first signal.  If a second signal arrives, or shutdown is still
// going after grace, it stops the motors itself and returns so the caller can exit.
func watchSignals(signals <-chan os.Signal, cancelFunc context.CancelFunc, grace time.Duration, stopMotors func()) {
	s := <-signals
	log.Println("Signal: ", s)
	cancelFunc()
	select {
	case s = <-signals:
		log.Println("Second signal, exiting: ", s)
	case <-time.After(grace):
		log.Println("Shutdown timed out after", grace)
	}
	stopMotors()
}
