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
// Package wizard holds the state of one channel merge session and executes its commands.
package wizard

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"
	"github.com/pkg/errors"
	"github.com/mlnoga/fitsmerge/internal/align"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/composite"
	"github.com/mlnoga/fitsmerge/internal/fits"
	"github.com/mlnoga/fitsmerge/internal/ops"
)

// Creates an aligner. Replaceable for tests
type AlignerFactory func(method align.Method, cfg align.Config) (align.Aligner, error)

// A channel merge session. All commands run under the session lock, and events are
// published synchronously while it is held, so handlers must not call back into the session
type Session struct {
	mu       sync.Mutex
	c        *ops.Context
	cfg      Config
	loader   *channel.Loader
	preview  *composite.Preview
	bus      Bus

	ids          [channel.NumSlots]string
	weights      composite.Weights
	colors       composite.Colors
	method       align.Method
	autoCrop     bool
	alignEnabled bool
	selected     channel.Slot
	lastPreview  *image.RGBA

	NewAligner AlignerFactory
}

// A snapshot of the session state
type State struct {
	Identifiers   [channel.NumSlots]string
	Loaded        [channel.NumSlots]bool
	Weights       composite.Weights
	Colors        composite.Colors
	Method        align.Method
	AutoCrop      bool
	Align         bool
	Selected      channel.Slot
	UseLuminosity bool
	LoadEnabled   bool
	CommitEnabled bool    // channels loaded, and all of the same size
	Mismatch      string  // why the loaded channels differ in size, if they do
}

func NewSession(c *ops.Context, cfg Config) (*Session, error) {
	weights, colors, err:=cfg.Mix()
	if err!=nil { return nil, err }
	method:=cfg.Method
	if method=="" { method=align.MethodExternal }
	if cfg.MaxThreads>0 { c.MaxThreads=cfg.MaxThreads }
	return &Session{
		c:            c,
		cfg:          cfg,
		loader:       channel.NewLoader(c),
		preview:      composite.NewPreview(),
		weights:      weights,
		colors:       colors,
		method:       method,
		autoCrop:     cfg.Align.AutoCrop,
		alignEnabled: cfg.AlignEnabled,
		NewAligner:   align.New,
	}, nil
}

// Registers an event handler
func (s *Session) Subscribe(h func(e Event)) (unsubscribe func()) {
	return s.bus.Subscribe(h)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	st:=State{
		Identifiers:   s.ids,
		Weights:       s.weights,
		Colors:        s.colors,
		Method:        s.method,
		AutoCrop:      s.autoCrop,
		Align:         s.alignEnabled,
		Selected:      s.selected,
		UseLuminosity: s.useLuminosityLocked(),
		LoadEnabled:   s.loadEnabledLocked(),
	}
	items:=s.loader.Items()
	for i:=range items {
		st.Loaded[i]=items[i].Valid
	}
	if err:=s.loader.ValidateDimensions(); err!=nil { st.Mismatch=err.Error() }
	st.CommitEnabled=items.NumLoaded()>0 && st.Mismatch==""
	return st
}

// True when at least one slot has an identifier
func (s *Session) LoadEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEnabledLocked()
}

func (s *Session) loadEnabledLocked() bool {
	for _,id:=range s.ids {
		if id!="" { return true }
	}
	return false
}

// Luminosity substitution is used exactly when the luminosity slot is loaded
func (s *Session) UseLuminosity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useLuminosityLocked()
}

func (s *Session) useLuminosityLocked() bool {
	return s.loader.Items()[channel.Luminosity].Valid
}

// The most recently rendered preview, or nil
func (s *Session) Preview() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPreview
}

// Sets the source for a slot. An empty identifier clears it. When all five slots
// have a source, the batch is loaded right away
func (s *Session) SelectChannelFile(ctx context.Context, slot channel.Slot, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err:=checkSlot(slot); err!=nil { return s.failLocked("select", err) }
	s.ids[slot]=id
	s.bus.Publish(Event{Kind:StateChanged, Slot:slot})
	for _,id:=range s.ids {
		if id=="" { return nil }
	}
	return s.loadLocked(ctx)
}

// Loads all selected sources as one batch
func (s *Session) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Session) loadLocked(ctx context.Context) error {
	if !s.loadEnabledLocked() { return s.failLocked("load", errors.New("no channel selected")) }
	items, err:=s.loader.Load(ctx, s.ids)
	if err!=nil {
		s.preview.SetThumbnails(s.loader.Items())
		s.lastPreview=nil
		return s.failLocked("load", err)
	}

	// select the first used slot, for rotation
	for _,sl:=range channel.Slots {
		if !items[sl].Empty() {
			s.selected=sl
			break
		}
	}
	s.bus.Publish(Event{Kind:Loaded, Slot:s.selected})
	s.preview.SetThumbnails(s.loader.Items())
	s.renderPreviewLocked()
	return nil
}

// Selects the slot which RotateSelected90CW acts on
func (s *Session) SelectSlot(slot channel.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err:=checkSlot(slot); err!=nil { return s.failLocked("select", err) }
	s.selected=slot
	s.bus.Publish(Event{Kind:StateChanged, Slot:slot})
	return nil
}

// Rotates the selected channel by 90 degrees clockwise
func (s *Session) RotateSelected90CW() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err:=s.loader.RotateSelected90CW(s.selected); err!=nil {
		return s.failLocked("rotate", err)
	}
	if err:=s.loader.ValidateDimensions(); err!=nil {
		fmt.Fprintf(s.c.Log, "Warning: %v. Rotate the other channels to match before committing\n", err)
	}
	s.bus.Publish(Event{Kind:StateChanged, Slot:s.selected})
	s.preview.SetThumbnails(s.loader.Items())
	s.renderPreviewLocked()
	return nil
}

func (s *Session) SetAlignMethod(m align.Method) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err:=align.ParseMethod(string(m))
	if err!=nil { return s.failLocked("align", err) }
	s.method=m
	s.bus.Publish(Event{Kind:StateChanged})
	return nil
}

// Flips auto-crop and returns the new value
func (s *Session) ToggleAutoCrop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoCrop=!s.autoCrop
	s.bus.Publish(Event{Kind:StateChanged})
	return s.autoCrop
}

func (s *Session) SetAutoCrop(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoCrop=on
	s.bus.Publish(Event{Kind:StateChanged})
}

func (s *Session) SetAlign(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alignEnabled=on
	s.bus.Publish(Event{Kind:StateChanged})
}

// Sets the weight of a slot, clamped to [0,1], and refreshes the preview
func (s *Session) SetChannelWeight(slot channel.Slot, w float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err:=checkSlot(slot); err!=nil { return s.failLocked("weight", err) }
	s.weights[slot]=composite.ClampWeight(w)
	s.renderPreviewLocked()
	return nil
}

// Sets the tint of a slot and refreshes the preview
func (s *Session) SetChannelColor(slot channel.Slot, c color.RGBA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err:=checkSlot(slot); err!=nil { return s.failLocked("color", err) }
	c.A=255
	s.colors[slot]=c
	s.renderPreviewLocked()
	return nil
}

func (s *Session) renderPreviewLocked() {
	s.lastPreview=s.preview.Render(s.weights, s.colors, s.useLuminosityLocked())
	s.bus.Publish(Event{Kind:PreviewUpdated, Preview:s.lastPreview})
}

// Aligns the loaded channels if enabled, composites them at full resolution, and writes
// the result if an output file name is given
func (s *Session) Commit(ctx context.Context, output string) (*composite.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start:=time.Now()

	if output!="" && !composite.IsSupportedOutput(output) {
		return nil, s.failLocked("commit", errors.Errorf("unsupported output format '%s'", output))
	}
	if err:=s.loader.ValidateDimensions(); err!=nil { return nil, s.failLocked("commit", err) }
	frames, slots:=s.loader.Items().Frames()
	if len(frames)==0 { return nil, s.failLocked("commit", composite.ErrInvalidInput) }

	if s.alignEnabled && len(frames)>1 {
		aligned, err:=s.alignLocked(ctx, frames)
		if err!=nil { return nil, s.failLocked("align", err) }
		frames=aligned
		s.bus.Publish(Event{Kind:Aligned})
	}

	var bySlot [channel.NumSlots]*fits.Image
	for i, f:=range frames {
		bySlot[slots[i]]=f
	}
	w, h:=frames[0].Width(), frames[0].Height()
	s.c.WarnIfOverBudget(-1, "composite buffers", int64(w)*int64(h)*4*int64(3+len(frames)))
	img, err:=composite.Composite(composite.ChannelsFromFrames(bySlot), composite.NewMixMatrix(s.weights, s.colors), s.useLuminosityLocked())
	if err!=nil { return nil, s.failLocked("commit", err) }

	if output!="" {
		if err:=img.WriteFile(output, s.jpegQuality()); err!=nil {
			return nil, s.failLocked("commit", errors.Wrapf(err, "writing %s", output))
		}
		fmt.Fprintf(s.c.Log, "Wrote %dx%d composite to %s\n", w, h, output)
	}
	fmt.Fprintf(s.c.Log, "Composited %d channels in %v\n", len(frames), time.Since(start))
	s.bus.Publish(Event{Kind:Committed, Path:output})
	return img, nil
}

func (s *Session) jpegQuality() int {
	if s.cfg.JPEGQuality>0 { return s.cfg.JPEGQuality }
	return 95
}

// Runs the aligner on a separate goroutine. Its output and progress are handed back
// and published from the goroutine holding the session lock
func (s *Session) alignLocked(ctx context.Context, frames []*fits.Image) ([]*fits.Image, error) {
	msgs:=make(chan Event, 64)
	cfg:=s.cfg.Align
	cfg.AutoCrop=s.autoCrop && s.method==align.MethodExternal
	cfg.Log=s.c.Log
	cfg.Output=func(line string) { msgs <- Event{Kind:AlignOutput, Line:line} }
	a, err:=s.NewAligner(s.method, cfg)
	if err!=nil { return nil, err }

	type result struct {
		frames []*fits.Image
		err    error
	}
	done:=make(chan result, 1)
	go func() {
		res, err:=a.Align(ctx, frames, func(p int) { msgs <- Event{Kind:AlignProgress, Percent:p} })
		done <- result{res, err}
	}()

	for {
		select {
		case e:=<-msgs:
			s.bus.Publish(e)
		case r:=<-done:
			for {
				select {
				case e:=<-msgs:
					s.bus.Publish(e)
				default:
					return r.frames, r.err
				}
			}
		}
	}
}

// Reports a failed command and returns the error
func (s *Session) failLocked(op string, err error) error {
	fmt.Fprintf(s.c.Log, "Error: %s: %v\n", op, err)
	s.bus.Publish(Event{Kind:Error, Op:op, Err:err})
	return err
}

func checkSlot(slot channel.Slot) error {
	if slot<0 || int(slot)>=channel.NumSlots { return errors.Errorf("invalid slot %d", int(slot)) }
	return nil
}
