package sound

import (
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/telemetry"
)

func drain(c chan string) []string {
	var out []string
	for {
		select {
		case s := <-c:
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestPlaysCueOnMoveChange(t *testing.T) {
	p := &Player{
		cues: Cues{
			telemetry.Forward:   "fwd.wav",
			telemetry.TurnRight: "turn.wav",
		},
		sounds: make(chan string, 10),
	}
	for _, m := range []telemetry.Move{
		telemetry.Forward, telemetry.Forward, telemetry.TurnRight, telemetry.Forward, telemetry.Stop,
	} {
		p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: m})
	}
	p.Render(telemetry.Event{Kind: telemetry.KindLog, Text: "ignored"})

	played := drain(p.sounds)
	expected := []string{"fwd.wav", "turn.wav", "fwd.wav"}
	if len(played) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, played)
	}
	for i := range expected {
		if played[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, played)
		}
	}
}

func TestRenderNeverBlocks(t *testing.T) {
	p := &Player{
		cues:   Cues{telemetry.Forward: "fwd.wav", telemetry.Stop: "stop.wav"},
		sounds: make(chan string),
	}
	// Nobody is reading; both cues must be skipped rather than blocking.
	p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.Forward})
	p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.Stop})
}

type fakeOutput struct {
	openErr error
	playErr error
	panicOn string
	played  chan string
	closed  chan struct{}
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{played: make(chan string, 10), closed: make(chan struct{})}
}

func (f *fakeOutput) Open() error { return f.openErr }

func (f *fakeOutput) Play(file string) error {
	if file == f.panicOn {
		panic("sound card went away")
	}
	f.played <- file
	return f.playErr
}

func (f *fakeOutput) Close() { close(f.closed) }

func expectPlayed(t *testing.T, f *fakeOutput, expected string) {
	t.Helper()
	select {
	case got := <-f.played:
		if got != expected {
			t.Fatalf("Expected %s to play, got %s", expected, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for %s", expected)
	}
}

func TestPlayerPlaysOnItsOwnGoroutine(t *testing.T) {
	out := newFakeOutput()
	out.playErr = errors.New("decode failed")
	p := newPlayer(Cues{telemetry.Forward: "fwd.wav", telemetry.TurnLeft: "left.wav"}, out)

	p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.Forward})
	expectPlayed(t, out, "fwd.wav")
	// A failed cue doesn't stop the next one.
	p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.TurnLeft})
	expectPlayed(t, out, "left.wav")

	p.Close()
	select {
	case <-out.closed:
	default:
		t.Fatal("Output not closed")
	}
}

func TestPlayerWithoutSpeaker(t *testing.T) {
	out := newFakeOutput()
	out.openErr = errors.New("no sound card")
	p := newPlayer(Cues{telemetry.Forward: "fwd.wav", telemetry.Stop: "stop.wav"}, out)

	for _, m := range []telemetry.Move{telemetry.Forward, telemetry.Stop, telemetry.Forward} {
		p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: m})
	}
	p.Close()
	if len(out.played) != 0 {
		t.Fatalf("Nothing should have played, got %d cues", len(out.played))
	}
}

func TestPlayerSurvivesPanic(t *testing.T) {
	out := newFakeOutput()
	out.panicOn = "fwd.wav"
	p := newPlayer(Cues{telemetry.Forward: "fwd.wav", telemetry.Stop: "stop.wav"}, out)

	p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.Forward})
	for i := 0; i < 10; i++ {
		p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.Stop})
		p.Render(telemetry.Event{Kind: telemetry.KindMove, Move: telemetry.Forward})
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close hung after playback failed")
	}
}
