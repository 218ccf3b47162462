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
	"image/color"
	"io"
	"math"
	"os"

	"github.com/mlnoga/fitsmerge/internal/stats"
	"golang.org/x/image/tiff"
)

// Write a grayscale FITS image to 16-bit TIFF, mapping [min, max] to [0, 65535].
func (f *Image) WriteMonoTIFF16ToFile(fileName string, min, max float32) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	if err = f.WriteMonoTIFF16(writer, min, max); err != nil {
		return err
	}
	return writer.Flush()
}

// Write a grayscale FITS image to 16-bit TIFF, mapping [min, max] to [0, 65535].
func (f *Image) WriteMonoTIFF16(writer io.Writer, min, max float32) error {
	width, height := f.Width(), f.Height()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	scale := float32(1)
	if max > min {
		scale = 1 / (max - min)
	}
	for y := 0; y < height; y++ {
		yoffset := y * width
		for x := 0; x < width; x++ {
			gray := (f.Data[yoffset+x] - min) * scale
			// replace NaNs with zeros for export, else TIFF output breaks
			if math.IsNaN(float64(gray)) || gray < 0 {
				gray = 0
			}
			if gray > 1 {
				gray = 1
			}
			img.SetGray16(x, y, color.Gray16{uint16(gray*65535 + 0.5)})
		}
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Uncompressed, Predictor: false})
}

// Read a color or grayscale TIFF image into a single channel FITS image.
// Color images are reduced to their luminance.
func (f *Image) ReadTIFF(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	t, err := tiff.Decode(bufio.NewReader(file))
	if err != nil {
		return err
	}
	f.FromImage(t)
	return nil
}

// Converts a golang image into a single channel FITS image, reducing colors to luminance.
func (f *Image) FromImage(t image.Image) {
	b := t.Bounds()
	width, height := b.Dx(), b.Dy()
	bitpix, _ := colorModelToBitpixAndChannels(t.ColorModel())
	if bitpix == 0 {
		bitpix = 16
	}

	f.Bitpix = bitpix
	f.Naxisn = []int32{int32(width), int32(height)}
	f.Pixels = int32(width) * int32(height)
	f.Bzero, f.Bscale = 0, 1
	f.Data = make([]float32, f.Pixels)

	// keep running stats
	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var gray float32
			switch img := t.(type) {
			case *image.Gray16:
				gray = float32(img.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			case *image.Gray:
				gray = float32(img.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			default:
				r, g, b16, _ := t.At(b.Min.X+x, b.Min.Y+y).RGBA()
				gray = 0.2126*float32(r) + 0.7152*float32(g) + 0.0722*float32(b16)
				if bitpix == 8 {
					gray /= 257
				}
			}
			f.Data[y*width+x] = gray

			if gray < min {
				min = gray
			}
			if gray > max {
				max = gray
			}
			sum += float64(gray)
		}
	}

	mean := float32(sum / float64(width) / float64(height))
	f.Stats = stats.NewStatsWithMMM(f.Data, f.Naxisn[0], min, max, mean)
}

func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBAModel:
		return 8, 3
	case color.RGBA64Model:
		return 16, 3
	case color.NRGBAModel:
		return 8, 3
	case color.NRGBA64Model:
		return 16, 3
	case color.AlphaModel:
		return 8, 1
	case color.Alpha16Model:
		return 16, 1
	case color.GrayModel:
		return 8, 1
	case color.Gray16Model:
		return 16, 1
	default:
		return 0, 0
	}
}
