package telemetry

import (
	"sync"
	"time"
)

// Recorder is a Sink that keeps every event in memory.  It is also a Renderer so it can sit at
// the end of a Pump.
type Recorder struct {
	lock   sync.Mutex
	events []Event
}

var (
	_ Sink     = (*Recorder)(nil)
	_ Renderer = (*Recorder)(nil)
)

func (r *Recorder) Log(text string) {
	r.Render(Event{Kind: KindLog, Time: time.Now(), Text: text})
}

func (r *Recorder) Move(move Move, distance Distance) {
	r.Render(Event{Kind: KindMove, Time: time.Now(), Move: move, Distance: distance})
}

func (r *Recorder) Power(reading PowerReading) {
	r.Render(Event{Kind: KindPower, Time: time.Now(), Power: &reading})
}

func (r *Recorder) Render(e Event) {
	r.lock.Lock()
	r.events = append(r.events, e)
	r.lock.Unlock()
}

func (r *Recorder) Events() []Event {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) Moves() []Event {
	return r.filter(KindMove)
}

func (r *Recorder) Logs() []string {
	var logs []string
	for _, e := range r.filter(KindLog) {
		logs = append(logs, e.Text)
	}
	return logs
}

func (r *Recorder) filter(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
