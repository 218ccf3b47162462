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
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/fitsmerge/internal/stats"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

// Decodes the image with the given file name into a single 2D channel.
// FITS files (optionally gzipped) and TIFF files are supported
func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	if err = i.ReadFile(fileName, logWriter); err != nil {
		return nil, err
	}
	return i.FirstPlane(), nil
}

// Returns true if the file name carries an extension this package can decode
func IsSupported(fileName string) bool {
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".gz" || lExt == ".gzip" {
		lExt = strings.ToLower(path.Ext(strings.TrimSuffix(fileName, path.Ext(fileName))))
	}
	switch lExt {
	case ".fit", ".fits", ".fts", ".tif", ".tiff":
		return true
	}
	return false
}

// Read image data from the file with the given name. Decompresses gzip if .gz or gzip suffix is present.
func (fits *Image) ReadFile(fileName string, logWriter io.Writer) error {
	fits.FileName = fileName
	lExt := strings.ToLower(path.Ext(fileName))
	if lExt == ".tif" || lExt == ".tiff" {
		return fits.ReadTIFF(fileName)
	}

	f, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if lExt == ".gz" || lExt == ".gzip" {
		if r, err = gzip.NewReader(r); err != nil {
			return err
		}
	}
	return fits.Read(r, logWriter)
}

func (fits *Image) PopHeaderInt32(key string) (res int32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

func (fits *Image) PopHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := fits.Header.Ints[key]; ok {
		delete(fits.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := fits.Header.Floats[key]; ok {
		delete(fits.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", fits.ID, key)
}

// Reads header and data of a FITS primary HDU from the given reader
func (fits *Image) Read(f io.Reader, logWriter io.Writer) (err error) {
	if err = fits.Header.read(f, fits.ID, logWriter); err != nil {
		return err
	}

	if !fits.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: Not a valid FITS file; SIMPLE=T missing in header", fits.ID)
	}
	delete(fits.Header.Bools, "SIMPLE")

	if fits.Bitpix, err = fits.PopHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = fits.PopHeaderInt32("NAXIS"); err != nil {
		return err
	}
	if naxis < 2 {
		return fmt.Errorf("%d: Need at least two axes, got NAXIS=%d", fits.ID, naxis)
	}
	fits.Naxisn = make([]int32, naxis)
	fits.Pixels = int32(1)
	for i := int32(1); i <= naxis; i++ {
		var nai int32
		if nai, err = fits.PopHeaderInt32("NAXIS" + strconv.FormatInt(int64(i), 10)); err != nil {
			return err
		}
		if nai <= 0 {
			return fmt.Errorf("%d: Invalid NAXIS%d=%d", fits.ID, i, nai)
		}
		fits.Naxisn[i-1] = nai
		fits.Pixels *= nai
	}

	if fits.Bzero, err = fits.PopHeaderInt32OrFloat("BZERO"); err != nil {
		fits.Bzero = 0
	}
	if fits.Bscale, err = fits.PopHeaderInt32OrFloat("BSCALE"); err != nil {
		fits.Bscale = 1
	}
	if fits.Exposure, err = fits.PopHeaderInt32OrFloat("EXPOSURE"); err != nil {
		if fits.Exposure, err = fits.PopHeaderInt32OrFloat("EXPTIME"); err != nil {
			fits.Exposure = 0
		}
	}

	return fits.readData(f, logWriter)
}

// Converts one big-endian value of the respective BITPIX type to float64
type valueDecoder func(b []byte) float64

func decoderFor(bitpix int32) (dec valueDecoder, bytesPerValue int) {
	switch bitpix {
	case 8:
		return func(b []byte) float64 { return float64(b[0]) }, 1
	case 16:
		return func(b []byte) float64 { return float64(int16(uint16(b[0])<<8 | uint16(b[1]))) }, 2
	case 32:
		return func(b []byte) float64 {
			return float64(int32(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])))
		}, 4
	case 64:
		return func(b []byte) float64 { return float64(int64(be64(b))) }, 8
	case -32:
		return func(b []byte) float64 {
			return float64(math.Float32frombits(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])))
		}, 4
	case -64:
		return func(b []byte) float64 { return math.Float64frombits(be64(b)) }, 8
	}
	return nil, 0
}

func be64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

const bufLen int = 16 * 1024 // input buffer length for reading from file

// Batched read of image data, converting from network byte order to float32 and applying Bzero and Bscale.
// Sets Bzero to 0 and Bscale to 1 afterwards
func (fits *Image) readData(r io.Reader, logWriter io.Writer) error {
	dec, bytesPerValue := decoderFor(fits.Bitpix)
	if dec == nil {
		return fmt.Errorf("%d: Unknown BITPIX value %d", fits.ID, fits.Bitpix)
	}
	if fits.Bitpix == 32 || fits.Bitpix == 64 || fits.Bitpix == -64 {
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting BITPIX %d to float32 values\n", fits.ID, fits.Bitpix)
	}

	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	fits.Data = make([]float32, int(fits.Pixels))
	buf := make([]byte, bufLen-bufLen%bytesPerValue)
	bscale, bzero := float64(fits.Bscale), float64(fits.Bzero)

	for dataIndex := 0; dataIndex < len(fits.Data); {
		bytesToRead := (len(fits.Data) - dataIndex) * bytesPerValue
		if bytesToRead > len(buf) {
			bytesToRead = len(buf)
		}
		if _, err := io.ReadFull(r, buf[:bytesToRead]); err != nil {
			return fmt.Errorf("%d: %s", fits.ID, err.Error())
		}
		for i := 0; i < bytesToRead; i += bytesPerValue {
			v := float32(dec(buf[i:i+bytesPerValue])*bscale + bzero)
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += float64(v)
			fits.Data[dataIndex] = v
			dataIndex++
		}
	}
	fits.Bzero, fits.Bscale = 0, 1 // reflect that data values incorporate these now
	mean := float32(sum / float64(len(fits.Data)))
	fits.Stats = stats.NewStatsWithMMM(fits.Data, fits.Naxisn[0], min, max, mean)
	return nil
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil {
			return fmt.Errorf("%d: %s", id, err.Error())
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning:Cannot parse '%s', ignoring\n", id, string(line))
			} else {
				h.readLine(reParser.SubexpNames(), subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] == nil || len(subNames[i]) != 1 {
			continue
		}
		switch c := subNames[i][0]; c {
		case 'E': // end line
			h.End = true
		case 'H': // history line
			h.History = append(h.History, string(subValues[i]))
		case 'C': // comment line
			h.Comments = append(h.Comments, string(subValues[i]))
		case 'k': // key
			key = string(subValues[i])
		case 'b': // boolean
			if len(subValues[i]) > 0 {
				v := subValues[i][0]
				h.Bools[key] = v == 't' || v == 'T'
			}
		case 'i': // int
			if val, err := strconv.ParseInt(string(subValues[i]), 10, 64); err == nil {
				h.Ints[key] = int32(val)
			}
		case 'f': // float
			s := strings.Replace(string(subValues[i]), "D", "E", 1)
			if val, err := strconv.ParseFloat(s, 64); err == nil {
				h.Floats[key] = float32(val)
			}
		case 's': // string
			h.Strings[key] = strings.TrimRight(string(subValues[i]), " ")
		case 'd': // date
			h.Dates[key] = string(subValues[i])
		case 'c': // value comments are ignored
		default:
			fmt.Fprintf(logWriter, "%d:%d:Warning:Unknown token '%s'\n", id, lineNo, string(c))
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	rest := ".*"
	histLine := "HISTORY" + white + "(?P<H>" + rest + ")"
	commLine := "COMMENT" + white + "(?P<C>" + rest + ")"
	endLine := "(?P<E>END)" + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>[^']*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
