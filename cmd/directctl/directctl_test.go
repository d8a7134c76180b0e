package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tigerbot-team/rover/pkg/config"
	"github.com/tigerbot-team/rover/pkg/drivetrain"
	"github.com/tigerbot-team/rover/pkg/ultrasonic"
)

type fakeRover struct {
	calls []string
}

func (f *fakeRover) Forward() error  { f.calls = append(f.calls, "forward"); return nil }
func (f *fakeRover) Backward() error { f.calls = append(f.calls, "backward"); return nil }
func (f *fakeRover) Stop() error     { f.calls = append(f.calls, "stop"); return nil }
func (f *fakeRover) Turn(ctx context.Context, dir drivetrain.Direction, d time.Duration) error {
	f.calls = append(f.calls, dir.String()+" "+d.String())
	return nil
}
func (f *fakeRover) Measure(timeout time.Duration) (ultrasonic.Measurement, error) {
	f.calls = append(f.calls, "ping "+timeout.String())
	return ultrasonic.Measurement{DistanceCm: 42}, nil
}

func TestCommands(t *testing.T) {
	f := &fakeRover{}
	var out bytes.Buffer
	c := newConsole(f, f, config.Default(), &out)
	ctx := context.Background()

	for _, line := range []string{
		"fwd",
		"back",
		"  stop  ",
		"",
		"right",
		"left 400",
		"tune +50",
		"right",
		"tune next",
		"tune -950",
		"ping",
	} {
		if err := c.execute(ctx, line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
	expected := []string{
		"forward", "backward", "stop",
		"right 250ms", "left 400ms", "right 300ms",
		"ping 50ms",
	}
	if strings.Join(f.calls, ",") != strings.Join(expected, ",") {
		t.Fatalf("Expected %v, got %v", expected, f.calls)
	}
}

func TestPingReportsDistance(t *testing.T) {
	f := &fakeRover{}
	var out bytes.Buffer
	c := newConsole(f, f, config.Default(), &out)
	if err := c.execute(context.Background(), "ping"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "42.0cm") {
		t.Fatalf("Expected the distance in the output, got %q", out.String())
	}
}

func TestBadCommands(t *testing.T) {
	f := &fakeRover{}
	c := newConsole(f, f, config.Default(), &bytes.Buffer{})
	for _, line := range []string{"jump", "left soon", "left -5", "tune", "tune up", `fwd "unterminated`} {
		if err := c.execute(context.Background(), line); err == nil {
			t.Errorf("%q: expected an error", line)
		}
	}
	if len(f.calls) != 0 {
		t.Fatalf("Bad commands should not move the robot: %v", f.calls)
	}
	if err := c.execute(context.Background(), "quit"); err != errQuit {
		t.Fatalf("Expected errQuit, got %v", err)
	}
}
