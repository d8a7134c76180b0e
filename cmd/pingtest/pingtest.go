package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/gpio"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

func main() {
	configFile := flag.String("config", config.PathFromEnv(), "YAML config file")
	interval := flag.Duration("interval", 100*time.Millisecond, "time between pings")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}

	sensor, err := ultrasonic.Open(gpio.NewPeriphOpener(), cfg.TriggerPin, cfg.EchoPin,
		ultrasonic.WithTriggerPulse(cfg.TriggerPulse),
		ultrasonic.WithSettleTime(cfg.SensorSettleTime))
	if err != nil {
		fmt.Println("Failed to open sensor ", err)
		os.Exit(1)
	}
	defer func() {
		_ = sensor.Close()
	}()

	if err := sensor.Init(context.Background()); err != nil {
		fmt.Println("Sensor failed to settle", err)
		os.Exit(1)
	}

	var ok, failed int
	for range time.NewTicker(*interval).C {
		m, err := sensor.Measure(cfg.MeasurementTimeout)
		if err != nil {
			failed++
			fmt.Printf("%v (ok=%d failed=%d)\n", err, ok, failed)
			continue
		}
		ok++
		fmt.Println(m)
	}
}
