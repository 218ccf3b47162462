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


package align

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
)

var (
	reProgress      =regexp.MustCompile(`:\s*(\d+)\s*`)
	reProgressAfter =regexp.MustCompile(`remapping\s*(\d+)`)
)

const progressMarker = ": remapping"

// Removes terminal cursor movement sequences and escape characters
func stripEscapes(line string) string {
	line=strings.ReplaceAll(line, "[1A", "")
	line=strings.ReplaceAll(line, "[2A", "")
	return strings.ReplaceAll(line, "\x1b", "")
}

// Extracts a progress percentage from a cleaned line of aligner output.
// Only lines carrying the remapping marker count
func parseProgress(line string) (percent int, ok bool) {
	if !strings.Contains(line, progressMarker) { return 0, false }
	m:=reProgress.FindStringSubmatch(line)
	if m==nil { m=reProgressAfter.FindStringSubmatch(line) }
	if m==nil { return 0, false }
	v, err:=strconv.Atoi(m[1])
	if err!=nil { return 0, false }
	if v<0 { v=0 } else if v>100 { v=100 }
	return v, true
}

// A bufio.SplitFunc which splits on \n as well as \r, so progress lines
// redrawn with carriage returns arrive one by one
func scanLinesAndReturns(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data)==0 { return 0, nil, nil }
	if i:=bytes.IndexAny(data, "\r\n"); i>=0 {
		return i+1, data[:i], nil
	}
	if atEOF { return len(data), data, nil }
	return 0, nil, nil
}
