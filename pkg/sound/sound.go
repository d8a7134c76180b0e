package sound

import (
	"fmt"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/pkg/errors"

	"github.com/tigerbot-team/rover/pkg/telemetry"
)

const (
	sampleRate = beep.SampleRate(44100)
	bufferTime = time.Second / 5
)

// Cues maps each move to the WAV file to play for it.  Moves without a file are silent.
type Cues map[telemetry.Move]string

// output is where cues end up.  Play interrupts whatever is already playing.
type output interface {
	Open() error
	Play(file string) error
	Close()
}

// Player is a telemetry renderer that plays a cue when the move changes.  Playback happens on its
// own goroutine; if the player falls behind, cues are skipped.
type Player struct {
	cues   Cues
	out    output
	sounds chan string
	done   chan struct{}

	lastMove telemetry.Move
	started  bool
}

var _ telemetry.Renderer = (*Player)(nil)

func NewPlayer(cues Cues) *Player {
	return newPlayer(cues, &speakerOutput{})
}

func newPlayer(cues Cues, out output) *Player {
	p := &Player{
		cues:   cues,
		out:    out,
		sounds: make(chan string, 1),
		done:   make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Player) Render(e telemetry.Event) {
	if e.Kind != telemetry.KindMove {
		return
	}
	if p.started && e.Move == p.lastMove {
		return
	}
	p.started = true
	p.lastMove = e.Move
	file := p.cues[e.Move]
	if file == "" {
		return
	}
	select {
	case p.sounds <- file:
	default:
		fmt.Println("Sound: busy, skipping", file)
	}
}

// Close stops playback and waits for the playback goroutine to exit.
func (p *Player) Close() {
	close(p.sounds)
	<-p.done
}

func (p *Player) loop() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			fmt.Println("Sound: playback failed:", r)
		}
		// Keep Render from filling the channel once we can no longer play.
		for file := range p.sounds {
			fmt.Println("Sound: unable to play", file)
		}
	}()

	if err := p.out.Open(); err != nil {
		fmt.Println("Sound: failed to open speaker:", err)
		return
	}
	defer p.out.Close()

	for file := range p.sounds {
		if err := p.out.Play(file); err != nil {
			fmt.Println("Sound:", err)
		}
	}
}

// speakerOutput plays WAV files on the default sound card.
type speakerOutput struct {
	ctrl   *beep.Ctrl
	stream beep.StreamSeekCloser
}

func (o *speakerOutput) Open() error {
	return speaker.Init(sampleRate, sampleRate.N(bufferTime))
}

func (o *speakerOutput) Play(file string) error {
	o.stop()
	f, err := os.Open(file)
	if err != nil {
		return errors.Wrap(err, "failed to open cue")
	}
	s, _, err := wav.Decode(f)
	if err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to decode %s", file)
	}
	o.stream = s
	o.ctrl = &beep.Ctrl{Streamer: s}
	speaker.Play(o.ctrl)
	return nil
}

func (o *speakerOutput) stop() {
	if o.ctrl != nil {
		speaker.Lock()
		o.ctrl.Paused = true
		o.ctrl.Streamer = nil
		speaker.Unlock()
		o.ctrl = nil
	}
	if o.stream != nil {
		_ = o.stream.Close()
		o.stream = nil
	}
}

func (o *speakerOutput) Close() {
	o.stop()
}
