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


// Package channel loads up to five single-channel frames into fixed slots.
package channel

import (
	"fmt"
	"image"
	"strings"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// One of the five fixed channel roles
type Slot int

const (
	Luminosity Slot = iota
	Red
	Green
	Blue
	H          // H-alpha
)

const NumSlots = 5

// All slots in canonical order
var Slots = [NumSlots]Slot{Luminosity, Red, Green, Blue, H}

var slotNames = [NumSlots]string{"lum", "red", "green", "blue", "h"}

func (s Slot) String() string {
	if s<0 || int(s)>=NumSlots { return fmt.Sprintf("slot%d", int(s)) }
	return slotNames[s]
}

// Parses a slot from its name or index, case insensitive
func ParseSlot(s string) (Slot, error) {
	ls:=strings.ToLower(strings.TrimSpace(s))
	for i, n:=range slotNames {
		if ls==n || ls==fmt.Sprintf("%d", i) { return Slot(i), nil }
	}
	switch ls {
	case "l", "luminosity", "luminance": return Luminosity, nil
	case "r": return Red,   nil
	case "g": return Green, nil
	case "b": return Blue,  nil
	case "ha", "halpha", "h-alpha": return H, nil
	}
	return 0, fmt.Errorf("unknown channel slot '%s'", s)
}

// A channel slot with its source identifier, decoded frame and thumbnail.
// An empty identifier marks an unused slot
type Item struct {
	Identifier string
	Frame      *fits.Image
	Thumbnail  *image.Gray
	Valid      bool
}

// True if no source was supplied for this slot
func (it *Item) Empty() bool { return it.Identifier=="" }

// Contents of all five slots, indexed by Slot
type Items [NumSlots]Item

// Frames of the loaded slots, in slot order. Unused slots are skipped
func (items *Items) Frames() (frames []*fits.Image, slots []Slot) {
	for _,s:=range Slots {
		if it:=&items[s]; it.Valid && it.Frame!=nil {
			frames=append(frames, it.Frame)
			slots=append(slots, s)
		}
	}
	return frames, slots
}

// Number of loaded slots
func (items *Items) NumLoaded() int {
	n:=0
	for i:=range items {
		if items[i].Valid { n++ }
	}
	return n
}
