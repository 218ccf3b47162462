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


package channel

import (
	"context"
	"fmt"
	"image"
	"time"
	"github.com/pkg/errors"
	"github.com/mlnoga/fitsmerge/internal/fits"
	"github.com/mlnoga/fitsmerge/internal/ops"
)

const (
	DefaultThumbWidth  = 300
	DefaultThumbHeight = 200
)

// Loads the five channel slots as one batch, and owns the results
type Loader struct {
	c           *ops.Context
	ThumbWidth  int
	ThumbHeight int
	items       Items
}

func NewLoader(c *ops.Context) *Loader {
	return &Loader{c:c, ThumbWidth:DefaultThumbWidth, ThumbHeight:DefaultThumbHeight}
}

// The current slot contents
func (l *Loader) Items() *Items { return &l.items }

// Empties all five slots
func (l *Loader) Clear() { l.items=Items{} }

// Decodes all non-empty identifiers in parallel and waits for the whole batch.
// Empty identifiers become placeholders without scheduling any work. If any non-empty
// slot fails to decode, or the decoded frames disagree in size, all slots are cleared
// and a *DecodeError or *DimensionMismatchError is returned
func (l *Loader) Load(ctx context.Context, ids [NumSlots]string) (Items, error) {
	l.Clear()
	if err:=ctx.Err(); err!=nil { return l.items, err }
	start:=time.Now()

	// scatter
	promises:=make([]ops.Promise, NumSlots)
	var launchErr error
	for _,s:=range Slots {
		if ids[s]=="" { continue }
		p, err:=ops.NewOpLoad(int(s), ids[s]).MakePromise(l.c)
		if err!=nil {
			if launchErr==nil { launchErr=&DecodeError{Slot:s, Identifier:ids[s], Err:err} }
			continue
		}
		promises[s]=p
	}
	if launchErr!=nil { return l.items, launchErr }

	// gather behind the join barrier
	frames, errs:=ops.MaterializeAll(promises, l.c.MaxThreads)

	// classify in slot order, remembering the first failure
	var firstErr error
	for _,s:=range Slots {
		it:=&l.items[s]
		it.Identifier=ids[s]
		if it.Empty() {
			continue
		}
		if errs[s]!=nil || frames[s]==nil {
			err:=errs[s]
			if err==nil { err=errors.New("decoder returned no frame") }
			fmt.Fprintf(l.c.Log, "%d: Error decoding %s: %v\n", int(s), ids[s], err)
			if firstErr==nil {
				firstErr=&DecodeError{Slot:s, Identifier:ids[s], Err:errors.Wrapf(err, "slot %s", s)}
			}
			continue
		}
		it.Frame, it.Valid = frames[s], true
	}
	if firstErr!=nil {
		l.Clear()
		return l.items, firstErr
	}

	if err:=l.ValidateDimensions(); err!=nil {
		fmt.Fprintf(l.c.Log, "Error: %v\n", err)
		l.Clear()
		return l.items, err
	}

	for _,s:=range Slots {
		l.refreshThumbnail(s)
	}
	fmt.Fprintf(l.c.Log, "Loaded %d of %d channels in %v\n", l.items.NumLoaded(), NumSlots, time.Since(start))
	return l.items, nil
}

// Checks that all loaded frames share width and height
func (l *Loader) ValidateDimensions() error {
	var ref *fits.Image
	for _,s:=range Slots {
		it:=&l.items[s]
		if !it.Valid || it.Frame==nil { continue }
		if ref==nil {
			ref=it.Frame
			continue
		}
		if !it.Frame.SameSize(ref) {
			return &DimensionMismatchError{
				Slot:s, Width:it.Frame.Width(), Height:it.Frame.Height(),
				WantWidth:ref.Width(), WantHeight:ref.Height(),
			}
		}
	}
	return nil
}

// Rotates the frame in the given slot by 90 degrees clockwise and refreshes its thumbnail.
// Rotating a single slot makes its dimensions differ from non-square neighbours; callers
// validate before compositing
func (l *Loader) RotateSelected90CW(s Slot) error {
	if s<0 || int(s)>=NumSlots { return errors.Errorf("invalid slot %d", int(s)) }
	it:=&l.items[s]
	if !it.Valid || it.Frame==nil { return errors.Errorf("%s: no frame loaded", s) }
	it.Frame=it.Frame.Rotate90CW()
	fmt.Fprintf(l.c.Log, "%d: Rotated to %s\n", int(s), it.Frame.DimensionsToString())
	l.refreshThumbnail(s)
	return nil
}

// Rebuilds the thumbnail for the given slot. Placeholders get an all-black thumbnail
func (l *Loader) refreshThumbnail(s Slot) {
	it:=&l.items[s]
	if !it.Valid || it.Frame==nil {
		it.Thumbnail=image.NewGray(image.Rect(0, 0, l.ThumbWidth, l.ThumbHeight))
		return
	}
	it.Thumbnail=it.Frame.Thumbnail(l.ThumbWidth, l.ThumbHeight)
}
