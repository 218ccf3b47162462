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
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Writes an in-memory FITS image to a file with given filename.
// Creates or truncates the file if necessary
func (fits *Image) WriteFile(fileName string) error {
	f, err:=os.Create(fileName)
	if err!=nil { return err }
	defer f.Close()
	w:=bufio.NewWriter(f)
	if err=fits.Write(w); err!=nil { return err }
	return w.Flush()
}


// Writes an in-memory FITS image to an io.Writer, as 32-bit floating point data
func (fits *Image) Write(f io.Writer) error {
	sb:=strings.Builder{}
	writeBool(&sb, "SIMPLE", true, "    FITS standard 4.0")
	writeInt32(&sb, "BITPIX", -32, "    32-bit floating point")
	writeInt32(&sb, "NAXIS",  int32(len(fits.Naxisn)), "[1] Number of axis")
	for i:=0; i<len(fits.Naxisn); i++ {
		writeInt32(&sb, fmt.Sprintf("NAXIS%d",i+1), fits.Naxisn[i], "[1] Axis size")
	}
	writeFloat32(&sb, "BZERO", fits.Bzero, "[1] Zero offset")
	if fits.Exposure!=0 {
		writeFloat32(&sb, "EXPTIME", fits.Exposure, "[s] Exposure time")
	}
	for _,h:=range fits.Header.History {
		writeHistory(&sb, h)
	}
	writeEnd(&sb)

	// Pad current header block with spaces if necessary
	if bytesInHeaderBlock:=sb.Len()%fitsBlockSize; bytesInHeaderBlock>0 {
		sb.WriteString(strings.Repeat(" ", fitsBlockSize-bytesInHeaderBlock))
	}

	if _, err:=io.WriteString(f, sb.String()); err!=nil { return err }

	// Write payload data, replacing NaNs with zeros for compatibility
	if err:=writeFloat32Array(f, fits.Data, true); err!=nil { return err }

	// Pad data block with zeros
	if bytesInDataBlock:=(len(fits.Data)*4)%fitsBlockSize; bytesInDataBlock>0 {
		_, err:=f.Write(make([]byte, fitsBlockSize-bytesInDataBlock))
		return err
	}
	return nil
}


// Writes a FITS header boolean value
func writeBool(w io.Writer, key string, value bool, comment string) {
	if len(key)>8 { key=key[0:8] }
	if len(comment)>47 { comment=comment[0:47] }
	v:="F"
	if value { v="T" }
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
}

// Writes a FITS header int32 value
func writeInt32(w io.Writer, key string, value int32, comment string) {
	if len(key)>8 { key=key[0:8] }
	if len(comment)>47 { comment=comment[0:47] }
	fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
}

// Writes a FITS header float32 value. Always carries a decimal point, so readers parse it as float
func writeFloat32(w io.Writer, key string, value float32, comment string) {
	if len(key)>8 { key=key[0:8] }
	if len(comment)>47 { comment=comment[0:47] }
	s:=strings.ToUpper(fmt.Sprintf("%g", value))
	if !strings.Contains(s, ".") {
		if strings.Contains(s, "E") {
			s=strings.Replace(s, "E", ".E", 1)
		} else {
			s+=".0"
		}
	}
	fmt.Fprintf(w, "%-8s= %20s / %-47s", key, s, comment)
}

// Writes a FITS history record, truncated to one line
func writeHistory(w io.Writer, text string) {
	if len(text)>72 { text=text[0:72] }
	fmt.Fprintf(w, "HISTORY %-72s", text)
}

// Writes a FITS header end record
func writeEnd(w io.Writer) {
	fmt.Fprintf(w, "END%s", strings.Repeat(" ", HeaderLineSize-3))
}

// Writes FITS binary body data in network byte order.
// Optionally replaces NaNs with zeros for compatibility with other software
func writeFloat32Array(w io.Writer, data []float32, replaceNaNs bool) error {
	buf:=make([]byte,bufLen)

	for block:=0; block<len(data); block+=(bufLen>>2) {
		size:=len(data)-block
		if size>(bufLen>>2) { size=(bufLen>>2) }

		for offset:=0; offset<size; offset++ {
			d:=data[block+offset]
			if replaceNaNs && math.IsNaN(float64(d)) { d=0 }
			val:=math.Float32bits(d)
			buf[(offset<<2)+0]=byte(val>>24)
			buf[(offset<<2)+1]=byte(val>>16)
			buf[(offset<<2)+2]=byte(val>> 8)
			buf[(offset<<2)+3]=byte(val    )
		}
		if _, err:=w.Write(buf[:(size<<2)]); err!=nil { return err }
	}
	return nil
}
