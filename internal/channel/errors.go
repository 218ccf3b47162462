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
	"fmt"
)

// A non-empty slot could not be decoded
type DecodeError struct {
	Slot       Slot
	Identifier string
	Err        error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: cannot decode %s: %v", e.Slot, e.Identifier, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Loaded channels disagree on width or height
type DimensionMismatchError struct {
	Slot                  Slot
	Width, Height         int
	WantWidth, WantHeight int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: size %dx%d does not match %dx%d of the other channels",
		e.Slot, e.Width, e.Height, e.WantWidth, e.WantHeight)
}
