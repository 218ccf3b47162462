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
	"github.com/mlnoga/fitsmerge/internal/events"
)

// Kinds of brush events
type EventKind int

const (
	CursorChanged EventKind = iota  // the cursor glyph was regenerated or shown
	CursorHidden
	StrokePainted                   // a tick painted into the mask
	GestureStarted
	GestureEnded
)

func (k EventKind) String() string {
	switch k {
	case CursorChanged:  return "cursorChanged"
	case CursorHidden:   return "cursorHidden"
	case StrokePainted:  return "strokePainted"
	case GestureStarted: return "gestureStarted"
	case GestureEnded:   return "gestureEnded"
	}
	return "unknown"
}

// An event published by the brush controller
type Event struct {
	Kind   EventKind
	Glyph  *image.RGBA      // CursorChanged only
	Damage image.Rectangle  // StrokePainted only
}

// Event bus between brush controller, canvas and hosting view
type Bus = events.Bus[Event]
