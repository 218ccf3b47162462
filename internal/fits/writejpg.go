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

package fits

import (
	"bufio"
	"image"
	"image/jpeg"
	"io"
	"os"
)

// Write a golang image to a JPG file with the given quality.
func WriteJPGToFile(fileName string, img image.Image, quality int) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err = WriteJPG(writer, img, quality); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a golang image to JPG with the given quality.
func WriteJPG(writer io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
