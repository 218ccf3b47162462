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
package wizard

import (
	"image"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/events"
)

type EventKind int

const (
	StateChanged EventKind = iota
	Loaded
	PreviewUpdated
	AlignOutput
	AlignProgress
	Aligned
	Committed
	Error
)

var eventKindNames = []string{"state", "loaded", "preview", "alignOutput", "alignProgress", "aligned", "committed", "error"}

func (k EventKind) String() string {
	if k<0 || int(k)>=len(eventKindNames) { return "unknown" }
	return eventKindNames[k]
}

// A session event. Only the fields relevant to the kind are set
type Event struct {
	Kind    EventKind
	Slot    channel.Slot
	Percent int
	Line    string
	Op      string       // command which failed, for Error events
	Err     error
	Preview *image.RGBA
	Path    string
}

type Bus = events.Bus[Event]
