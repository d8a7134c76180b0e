package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/hardware"
	"github.com/tigerbot-team/rover/pkg/tunable"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

const help = `Commands:
  fwd                 drive forward until stopped
  back                drive backward until stopped
  stop                stop both motors
  left [ms]           spin left for ms (default: turn_ms)
  right [ms]          spin right for ms (default: turn_ms)
  ping                take one distance measurement
  tune next|prev      select a tunable
  tune +N|-N          adjust the selected tunable
  help                this text
  quit                stop and exit`

var errQuit = errors.New("quit")

type driver interface {
	Forward() error
	Backward() error
	Stop() error
	Turn(ctx context.Context, dir drivetrain.Direction, duration time.Duration) error
}

type ranger interface {
	Measure(timeout time.Duration) (ultrasonic.Measurement, error)
}

type console struct {
	drive  driver
	sensor ranger
	out    io.Writer

	tunables  tunable.Tunables
	turnMS    *tunable.Tunable
	timeoutMS *tunable.Tunable
}

func newConsole(drive driver, sensor ranger, cfg config.Config, out io.Writer) *console {
	c := &console{drive: drive, sensor: sensor, out: out}
	c.turnMS = c.tunables.Create("turn_ms", int(cfg.TurnDuration/time.Millisecond), 10, 5000)
	c.timeoutMS = c.tunables.Create("ping_timeout_ms", int(cfg.MeasurementTimeout/time.Millisecond), 10, 5000)
	return c
}

// execute runs one command line.  It returns errQuit for quit.
func (c *console) execute(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "bad command line")
	}
	if len(args) == 0 {
		return nil
	}

	switch cmd := strings.ToLower(args[0]); cmd {
	case "fwd", "forward":
		return c.drive.Forward()
	case "back", "backward":
		return c.drive.Backward()
	case "stop":
		return c.drive.Stop()
	case "left", "right":
		dir, _ := drivetrain.ParseDirection(cmd)
		d := time.Duration(c.turnMS.Get()) * time.Millisecond
		if len(args) > 1 {
			ms, err := strconv.Atoi(args[1])
			if err != nil || ms <= 0 {
				return errors.Errorf("bad turn duration %q", args[1])
			}
			d = time.Duration(ms) * time.Millisecond
		}
		fmt.Fprintf(c.out, "Turning %v for %v\n", dir, d)
		return c.drive.Turn(ctx, dir, d)
	case "ping":
		m, err := c.sensor.Measure(time.Duration(c.timeoutMS.Get()) * time.Millisecond)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Distance:", m)
		return nil
	case "tune":
		return c.tune(args[1:])
	case "help", "?":
		fmt.Fprintln(c.out, help)
		return nil
	case "quit", "exit":
		return errQuit
	default:
		return errors.Errorf("unknown command %q, try help", cmd)
	}
}

func (c *console) tune(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: tune next|prev|+N|-N")
	}
	switch args[0] {
	case "next":
		c.tunables.SelectNext()
	case "prev":
		c.tunables.SelectPrev()
	default:
		delta, err := strconv.Atoi(args[0])
		if err != nil {
			return errors.Errorf("bad adjustment %q", args[0])
		}
		c.tunables.Current().Add(delta)
	}
	fmt.Fprintln(c.out, c.tunables.Current())
	return nil
}

func main() {
	configFile := flag.String("config", config.PathFromEnv(), "YAML config file")
	dummy := flag.Bool("dummy", false, "run on simulated hardware")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hook Ctrl-C etc.
	registerSignalHandlers(cancel)

	var rover *hardware.Rover
	if *dummy {
		d, err := hardware.OpenDummy(cfg, func() float64 { return 100 })
		if err != nil {
			fmt.Println("Failed to open dummy hardware:", err)
			os.Exit(1)
		}
		rover = d.Rover
	} else {
		rover, err = hardware.OpenPeriph(cfg)
		if err != nil {
			fmt.Println("Failed to open hardware:", err)
			os.Exit(1)
		}
	}
	defer rover.Shutdown()

	if err := rover.Sensor.Init(ctx); err != nil {
		fmt.Println("Sensor failed to settle:", err)
		return
	}

	c := newConsole(rover.DriveTrain, rover.Sensor, cfg, os.Stdout)
	fmt.Println(help)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			err := c.execute(ctx, line)
			if err == errQuit {
				return
			}
			if err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func registerSignalHandlers(cancelFunc context.CancelFunc) {
	// Hook Ctrl-C to cause shut down.
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Println("Signal: ", s)
		cancelFunc()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()
}
