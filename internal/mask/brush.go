// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package mask

import (
	"image"
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"
	"github.com/fogleman/gg"
)

// The view hosting the mask. Supplies the zoom factor and the pointer position in mask coordinates
type View interface {
	Zoom() float64
	PointerInScene() gg.Point
}

// A view with a fixed zoom and pointer position, for scripted strokes
type FixedView struct {
	Scale   float64
	Pointer gg.Point
}

func (v *FixedView) Zoom() float64            { return v.Scale }
func (v *FixedView) PointerInScene() gg.Point { return v.Pointer }

// Pointer buttons
type Button int

const (
	ButtonPrimary Button = iota
	ButtonSecondary
	ButtonMiddle
)

const (
	DefaultSize     = 32
	DefaultStrength = 255
	minCursorAlpha  = 60
)

// Translates pointer gestures into strokes on a canvas
type Brush struct {
	canvas *Canvas
	view   View
	bus    *Bus

	mu       sync.Mutex   // guards the fields below, and serializes ticks against setters
	size     int          // diameter in pixels
	strength int          // signed, negative in remove mode
	color    color.NRGBA  // alpha is max(60, strength) after SetStrength
	additive bool
	active   bool
	manual   bool         // no driver goroutine, caller invokes Tick
	stop     chan struct{}
	done     chan struct{}

	glyph atomic.Pointer[image.RGBA]
}

// Creates a brush painting onto the given canvas, in add mode with default size and strength.
// If manual is set, Press does not start a driver and strokes are painted by calling Tick
func NewBrush(canvas *Canvas, view View, bus *Bus, manual bool) *Brush {
	b:=&Brush{
		canvas:   canvas,
		view:     view,
		bus:      bus,
		size:     DefaultSize,
		color:    color.NRGBA{0, 255, 0, 255},
		additive: true,
		manual:   manual,
	}
	b.SetStrength(DefaultStrength)
	return b
}

// Starts a paint gesture on primary press. Other buttons are ignored
func (b *Brush) Press(btn Button) {
	if btn!=ButtonPrimary { return }
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return
	}
	b.active=true
	var stop, done chan struct{}
	if !b.manual {
		stop, done = make(chan struct{}), make(chan struct{})
		b.stop, b.done = stop, done
	}
	b.mu.Unlock()

	b.bus.Publish(Event{Kind: GestureStarted})
	if stop!=nil {
		go b.drive(stop, done)
	}
}

// Ends the paint gesture on primary release. When Release returns, no further tick runs
func (b *Brush) Release(btn Button) {
	if btn!=ButtonPrimary { return }
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	b.active=false
	stop, done:=b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()

	if stop!=nil {
		close(stop)
		<-done
	}
	b.bus.Publish(Event{Kind: GestureEnded})
}

// Ticks at the fastest cadence until stopped, yielding between ticks
func (b *Brush) drive(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		b.Tick()
		runtime.Gosched()
	}
}

// Paints one stroke at the current pointer position if a gesture is active.
// Returns true if a stroke was painted
func (b *Brush) Tick() bool {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return false
	}
	zoom:=b.view.Zoom()
	if zoom<=0 { zoom=1 }
	radius:=float64(b.size>>1)/zoom
	col:=color.RGBAModel.Convert(b.color).(color.RGBA)
	damage:=b.canvas.PaintStroke(b.view.PointerInScene(), radius, col, b.additive)
	b.mu.Unlock()

	b.bus.Publish(Event{Kind: StrokePainted, Damage: damage})
	return true
}

// Sets the brush diameter in pixels and regenerates the cursor glyph
func (b *Brush) SetSize(size int) {
	if size<1 { size=1 }
	b.mu.Lock()
	b.size=size
	glyph:=b.refreshCursorGlyph()
	b.mu.Unlock()
	b.bus.Publish(Event{Kind: CursorChanged, Glyph: glyph})
}

// Sets the brush color and regenerates the cursor glyph
func (b *Brush) SetColor(c color.NRGBA) {
	b.mu.Lock()
	b.color=c
	glyph:=b.refreshCursorGlyph()
	b.mu.Unlock()
	b.bus.Publish(Event{Kind: CursorChanged, Glyph: glyph})
}

// Switches between remove and add mode. Always flips the sign of the stored strength,
// so selecting remove mode twice in a row flips it back
func (b *Brush) SetMode(remove bool) {
	b.mu.Lock()
	b.strength*=-1
	b.additive=!remove
	b.mu.Unlock()
}

// Sets the brush strength. The color alpha becomes max(60, strength), while the stored
// strength keeps the requested magnitude, negated in remove mode
func (b *Brush) SetStrength(strength int) {
	b.mu.Lock()
	b.strength=strength
	alpha:=strength
	if alpha<minCursorAlpha { alpha=minCursorAlpha }
	if alpha>255 { alpha=255 }
	b.color.A=uint8(alpha)
	if !b.additive { b.strength*=-1 }
	glyph:=b.refreshCursorGlyph()
	b.mu.Unlock()
	b.bus.Publish(Event{Kind: CursorChanged, Glyph: glyph})
}

// Shows or hides the brush cursor
func (b *Brush) SetAntiGhostingMode(on bool) {
	if on {
		b.bus.Publish(Event{Kind: CursorChanged, Glyph: b.Cursor()})
	} else {
		b.bus.Publish(Event{Kind: CursorHidden})
	}
}

// Regenerates the cursor glyph from size and color: a filled circle in the brush color
// with a dashed outline. Caller must hold b.mu
func (b *Brush) refreshCursorGlyph() *image.RGBA {
	s:=float64(b.size)
	dc:=gg.NewContext(b.size, b.size)
	dc.DrawEllipse(s/2, s/2, s/2-0.5, s/2-0.5)
	dc.SetColor(b.color)
	dc.FillPreserve()
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.SetDash(4, 2)
	dc.Stroke()
	glyph:=dc.Image().(*image.RGBA)
	b.glyph.Store(glyph)
	return glyph
}

// The current cursor glyph
func (b *Brush) Cursor() *image.RGBA { return b.glyph.Load() }

func (b *Brush) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// The stored, signed strength
func (b *Brush) Strength() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strength
}

func (b *Brush) Color() color.NRGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.color
}

func (b *Brush) Additive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.additive
}

func (b *Brush) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}
