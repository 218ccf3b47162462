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
package composite

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/pkg/errors"
	"golang.org/x/image/tiff"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// True if the file name has an extension WriteFile can produce
func IsSupportedOutput(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".hdr", ".tif", ".tiff", ".jpg", ".jpeg", ".fits", ".fit", ".fts":
		return true
	}
	return false
}

// Writes the image to a file. The format follows the extension: Radiance RGBE for .hdr,
// 16-bit TIFF for .tif, 8-bit JPEG for .jpg, and a three plane float FITS for .fits
func (img *Image) WriteFile(fileName string, jpegQuality int) error {
	ext:=strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".jpg", ".jpeg":
		return fits.WriteJPGToFile(fileName, img.ToRGBA(), jpegQuality)
	case ".fits", ".fit", ".fts":
		return img.ToFITS().WriteFile(fileName)
	case ".hdr", ".tif", ".tiff":
	default:
		return errors.Errorf("unsupported output format '%s'", ext)
	}

	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()
	writer:=bufio.NewWriter(file)

	if ext==".hdr" {
		err=rgbe.Encode(writer, img)
	} else {
		err=tiff.Encode(writer, img.ToRGBA64(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	}
	if err!=nil { return errors.Wrapf(err, "encoding %s", fileName) }
	return writer.Flush()
}

// Converts to a FITS image with one plane per colour
func (img *Image) ToFITS() *fits.Image {
	plane:=img.Width*img.Height
	data:=make([]float32, 3*plane)
	for i:=0; i<plane; i++ {
		data[i]        =img.Data[3*i]
		data[i+plane]  =img.Data[3*i+1]
		data[i+2*plane]=img.Data[3*i+2]
	}
	f:=fits.NewImageFromNaxisn([]int32{int32(img.Width), int32(img.Height), 3}, data)
	f.Header.History=append(f.Header.History, "Composited by fitsmerge from normalized channels")
	return f
}
