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
package internal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// Singleton log writer. Writes to stdout, and optionally to a file.
// Does not add prefixes, or force newlines. Safe for concurrent use

var logMu     sync.Mutex
var logStdout io.Writer = os.Stdout

// The optional additional file to log into
var logFile   *bufio.Writer
var logFileOS *os.File

// Enables logging to file, closing any previous log file
func LogAlsoToFile(fileName string) (err error) {
	logMu.Lock()
	defer logMu.Unlock()
	if err=closeLogFileLocked(); err!=nil { return err }
	f, err:=os.OpenFile(fileName, os.O_CREATE | os.O_TRUNC | os.O_WRONLY, 0666)
	if err!=nil { return err }
	logFileOS, logFile = f, bufio.NewWriter(f)
	return nil
}

func closeLogFileLocked() error {
	if logFile==nil { return nil }
	err:=logFile.Flush()
	if cerr:=logFileOS.Close(); err==nil { err=cerr }
	logFile, logFileOS = nil, nil
	return err
}

type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	logMu.Lock()
	defer logMu.Unlock()
	n, err=logStdout.Write(p)
	if err!=nil || logFile==nil { return n, err }
	return logFile.Write(p)
}

// Returns a writer into the log, for handing to components
func LogWriter() io.Writer { return logWriter{} }

func LogPrintf(format string, args ...interface{}) (n int, err error) {
	return fmt.Fprintf(logWriter{}, format, args...)
}

func LogPrintln(args ...interface{}) (n int, err error) {
	return fmt.Fprintln(logWriter{}, args...)
}

func LogFatalf(format string, args ...interface{}) {
	fmt.Fprintf(logWriter{}, format, args...)
	logMu.Lock()
	closeLogFileLocked()
	logMu.Unlock()
	os.Exit(-1)
}

func LogSync() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile==nil { return }
	logFile.Flush()
	logFileOS.Sync()
}
