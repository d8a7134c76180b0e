package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Channel is a Sink backed by a buffered channel.  When the buffer is full events are dropped
// and counted rather than blocking the producer.
type Channel struct {
	events  chan Event
	dropped int64

	closeOnce sync.Once
	lock      sync.RWMutex
	closed    bool
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 1
	}
	return &Channel{events: make(chan Event, size)}
}

var _ Sink = (*Channel)(nil)

func (c *Channel) Log(text string) {
	c.send(Event{Kind: KindLog, Time: time.Now(), Text: text})
}

func (c *Channel) Move(move Move, distance Distance) {
	c.send(Event{Kind: KindMove, Time: time.Now(), Move: move, Distance: distance})
}

func (c *Channel) Power(reading PowerReading) {
	c.send(Event{Kind: KindPower, Time: time.Now(), Power: &reading})
}

func (c *Channel) send(e Event) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	if c.closed {
		atomic.AddInt64(&c.dropped, 1)
		return
	}
	select {
	case c.events <- e:
	default:
		atomic.AddInt64(&c.dropped, 1)
	}
}

func (c *Channel) Events() <-chan Event {
	return c.events
}

func (c *Channel) Dropped() int64 {
	return atomic.LoadInt64(&c.dropped)
}

// Close stops accepting events; Pump drains what's buffered and returns.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.lock.Lock()
		c.closed = true
		close(c.events)
		c.lock.Unlock()
	})
}

// Pump delivers events to the renderers until the channel is closed or ctx is done.  It is the
// single consumer of a Channel.
func Pump(ctx context.Context, events <-chan Event, renderers ...Renderer) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			for _, r := range renderers {
				renderSafely(r, e)
			}
		}
	}
}

func renderSafely(r Renderer, e Event) {
	defer func() {
		if p := recover(); p != nil {
			fmt.Println("Telemetry: renderer panicked:", p)
		}
	}()
	r.Render(e)
}

// Console prints events to stdout, one per line.
type Console struct{}

func (Console) Render(e Event) {
	fmt.Printf("%s %s\n", e.Time.Format("15:04:05.000"), e)
}
