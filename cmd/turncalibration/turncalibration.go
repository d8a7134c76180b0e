package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/hardware"
)

// How long each trial turn lasts.
var durations = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	250 * time.Millisecond,
	300 * time.Millisecond,
	400 * time.Millisecond,
	600 * time.Millisecond,
	800 * time.Millisecond,
}

type measurement struct {
	duration time.Duration
	dir      drivetrain.Direction
	degrees  float64
}

var scanner *bufio.Scanner

func init() {
	scanner = bufio.NewScanner(os.Stdin)
}

func getDegrees() float64 {
	fmt.Println("Enter the angle turned (degrees):")
	for {
		if !scanner.Scan() {
			panic(scanner.Err())
		}
		deg, err := strconv.ParseFloat(scanner.Text(), 64)
		if err == nil {
			return deg
		}
		fmt.Printf("error: %v, please try again:\n", err)
	}
}

func main() {
	fmt.Println("---- Turn Calibration ----")
	fmt.Println("GOMAXPROCS", runtime.GOMAXPROCS(0))

	configFile := flag.String("config", config.PathFromEnv(), "YAML config file")
	flag.Parse()
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}

	// Initialise the hardware.
	rover, err := hardware.OpenPeriph(cfg)
	if err != nil {
		fmt.Println("Failed to open hardware:", err)
		os.Exit(1)
	}
	defer func() {
		rover.Shutdown()
		time.Sleep(100 * time.Millisecond)
	}()

	var table []measurement
	for i, d := range durations {
		for _, dir := range []drivetrain.Direction{drivetrain.Right, drivetrain.Left} {
			fmt.Printf("Measurement %v/%v: %v %v, press enter when ready...\n", 2*i+1+int(dir), 2*len(durations), dir, d)
			scanner.Scan()
			if err := rover.DriveTrain.Turn(context.Background(), dir, d); err != nil {
				fmt.Println("Turn failed:", err)
				return
			}
			m := measurement{duration: d, dir: dir, degrees: getDegrees()}
			table = append(table, m)
			printRow(m)
		}
	}

	fmt.Println("")
	fmt.Println("Whole table:")
	for _, m := range table {
		printRow(m)
	}
	if ms, ok := durationFor(table, 90); ok {
		fmt.Printf("Suggested turn_duration for 90 degrees: %v\n", ms)
	}
}

func printRow(m measurement) {
	fmt.Printf("%-5v %-6v %6.1f deg  %.3f deg/ms\n", m.dir, m.duration, m.degrees,
		m.degrees/float64(m.duration.Milliseconds()))
}

// durationFor estimates the turn duration for the target angle from the average turn rate.
func durationFor(table []measurement, degrees float64) (time.Duration, bool) {
	var totalDeg, totalMS float64
	for _, m := range table {
		totalDeg += m.degrees
		totalMS += float64(m.duration.Milliseconds())
	}
	if totalDeg <= 0 || totalMS <= 0 {
		return 0, false
	}
	rate := totalDeg / totalMS
	return time.Duration(math.Round(degrees/rate)) * time.Millisecond, true
}
