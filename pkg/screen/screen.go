// Package screen shows the rover's status on the little 128x128 TFT behind /dev/fb1.
package screen

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/tigerbot-team/rover/pkg/telemetry"
)

const (
	S = 128

	refreshInterval = 500 * time.Millisecond
)

// Renderer is a telemetry renderer that remembers the latest state; Loop paints it.
type Renderer struct {
	lock     sync.Mutex
	move     telemetry.Move
	distance telemetry.Distance
	message  string
	voltage  float64
	moves    int
}

var _ telemetry.Renderer = (*Renderer)(nil)

func New() *Renderer {
	return &Renderer{
		move:     telemetry.Stop,
		distance: telemetry.NoReading(),
	}
}

func (r *Renderer) Render(e telemetry.Event) {
	r.lock.Lock()
	defer r.lock.Unlock()
	switch e.Kind {
	case telemetry.KindMove:
		r.move = e.Move
		r.distance = e.Distance
		r.moves++
	case telemetry.KindLog:
		r.message = e.Text
	case telemetry.KindPower:
		if e.Power != nil {
			r.voltage = e.Power.BusVolts
		}
	}
}

// Draw paints the current state.
func (r *Renderer) Draw() image.Image {
	r.lock.Lock()
	move, distance, message, voltage := r.move, r.distance, r.message, r.voltage
	r.lock.Unlock()

	dc := gg.NewContext(S, S)
	dc.SetRGBA(1, 0.9, 0, 1)

	if move == telemetry.Stop {
		dc.Push()
		dc.Translate(14, 16)
		DrawWarning(dc)
		dc.Pop()
		dc.SetRGBA(1, 0.9, 0, 1)
	}
	dc.DrawString(move.String(), 30, 20)
	dc.DrawString(distance.String(), 30, 36)
	if len(message) > 18 {
		message = message[:18]
	}
	dc.DrawString(message, 4, 120)

	dc.Push()
	dc.Translate(90, 5)
	dc.DrawString("BATT", 0, 10)
	drawPowerBar(dc, voltage)
	dc.Pop()

	return dc.Image()
}

// Loop redraws the screen every half second until ctx is done, then blanks it.  A missing
// device is logged and ignored.
func (r *Renderer) Loop(ctx context.Context, device string) {
	f, err := os.OpenFile(device, os.O_RDWR, 0666)
	if err != nil {
		fmt.Println("Failed to open screen, ignoring:", err)
		return
	}
	defer f.Close()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			var buf [S * S * 2]byte
			_ = writeFrame(f, buf[:])
			return
		case <-ticker.C:
		}
		if err := writeFrame(f, ToRGB565(r.Draw())); err != nil {
			fmt.Println("Screen failure: ", err)
			return
		}
	}
}

type seekWriter interface {
	io.Writer
	io.Seeker
}

func writeFrame(f seekWriter, buf []byte) error {
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	// The framebuffer driver drops data if it's written too fast, so go a row at a time.
	for i := 0; i < S; i++ {
		if _, err := f.Write(buf[i*S*2 : (i+1)*S*2]); err != nil {
			return err
		}
		time.Sleep(10 * time.Microsecond)
	}
	return nil
}

// ToRGB565 converts an SxS image to the panel's format.  The panel is mounted rotated by 90
// degrees.
func ToRGB565(img image.Image) []byte {
	buf := make([]byte, S*S*2)
	for y := 0; y < S; y++ {
		for x := 0; x < S; x++ {
			r, g, b, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied

			rb := byte(r >> (16 - 5))
			gb := byte(g >> (16 - 6)) // Green has 6 bits
			bb := byte(b >> (16 - 5))

			buf[(S-1-y)*2+x*S*2+1] = (rb << 3) | (gb >> 3)
			buf[(S-1-y)*2+x*S*2] = bb | (gb << 5)
		}
	}
	return buf
}

const (
	minCellVoltage = 3
	maxCellVoltage = 4.2
)

func chargeFraction(voltage float64) float64 {
	var cellVoltage float64
	if voltage > 9 {
		// assume the 4-cell pack
		cellVoltage = voltage / 4
	} else {
		// assume the 2-cell pack
		cellVoltage = voltage / 2
	}
	return (cellVoltage - minCellVoltage) / (maxCellVoltage - minCellVoltage)
}

func drawPowerBar(dc *gg.Context, voltage float64) {
	charge := chargeFraction(voltage)

	if charge < 0.1 {
		dc.SetRGBA(1, 0.2, 0, 1)
	}
	dc.DrawRectangle(0, 70, 30, 10)
	for n := 2; n < 13; n++ {
		if charge >= (float64(n) / 13) {
			dc.DrawRectangle(2, 75-float64(n)*5, 26, 3)
		}
	}
	dc.Fill()
	if voltage > 0 {
		dc.DrawString(fmt.Sprintf("%.1fv", voltage), -2, 93)
	}
}

func DrawWarning(dc *gg.Context) {
	dc.SetRGB(1, 0.2, 0)
	dc.DrawRegularPolygon(3, 0, 0, 14, 0)
	dc.Fill()
	dc.SetRGBA(0, 0, 0, 0.9)
	dc.DrawString("!", -3, 3)
}
