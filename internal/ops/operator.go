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


package ops

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

// An execution context for operators
type Context struct {
	Log              io.Writer
	MemoryMB         int          // memory.TotalMemory()/1024/1024
	BufferMemoryMB   int          // MemoryMB*7/10, budget for full resolution buffers
	MaxThreads       int          `yaml:"maxThreads"`
	RestrictPaths    bool         // only allow relative paths inside the working directory tree
}

func NewContext(log io.Writer) *Context {
	memoryMB:=int(memory.TotalMemory()/1024/1024)
	return &Context{
		Log             : log,
		MemoryMB        : memoryMB,
		BufferMemoryMB  : memoryMB*7/10,
		MaxThreads      : DefaultThreads(),
	}
}

// Number of worker threads: the logical cores reported by the CPU, or GOMAXPROCS if unknown
func DefaultThreads() int {
	if n:=cpuid.CPU.LogicalCores; n>0 && n<=runtime.GOMAXPROCS(0) {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// Writes a warning to the log if a buffer of the given number of bytes exceeds the memory budget
func (c *Context) WarnIfOverBudget(id int, what string, bytes int64) {
	if c.BufferMemoryMB>0 && bytes/1024/1024>int64(c.BufferMemoryMB) {
		fmt.Fprintf(c.Log, "%d: Warning: %s needs %d MB, more than the %d MB budget\n",
		            id, what, bytes/1024/1024, c.BufferMemoryMB)
	}
}


// A promise for a FITS image. Returns a materialized image, or an error
type Promise func() (f *fits.Image, err error)

// Error for a promise which panicked while materializing
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Materializes all promises with given concurrency limit. Returns only after all promises
// have completed. Results and errors are reported per index; nil promises yield nil, nil.
// A panic in a promise is recovered and reported as a *PanicError for its index
func MaterializeAll(ins []Promise, maxThreads int) (outs []*fits.Image, errs []error) {
	if len(ins)==0 { return nil, nil }
	if maxThreads<1 { maxThreads=1 }
	outs=make([]*fits.Image, len(ins))
	errs=make([]error, len(ins))
	limiter:=make(chan bool, maxThreads)
	for i, in := range(ins) {
		if in==nil { continue }
		limiter <- true
		go func(i int, theIn Promise) {
			defer func() { <-limiter }()
			defer func() {
				if r:=recover(); r!=nil {
					outs[i], errs[i] = nil, &PanicError{Value:r, Stack:debug.Stack()}
				}
			}()
			outs[i], errs[i] = theIn() // materialize the promise
			if errs[i]!=nil { outs[i]=nil }
		}(i, in)
	}
	for i:=0; i<cap(limiter); i++ {  // wait for goroutines to finish
		limiter <- true
	}
	return outs, errs
}


// Base type for operators
type OpBase struct {
	Type        string `json:"type"`
	Active      bool   `json:"active"`
}

// Load a single image from a single filename. Takes zero inputs, produces one output
type OpLoad struct {
	OpBase
	ID 		    int     `json:"id"`
	FileName    string  `json:"fileName"`
}

func NewOpLoad(id int, fileName string) *OpLoad {
	return &OpLoad{
		OpBase : OpBase{Type: "load", Active: fileName!=""},
		ID : id,
		FileName : fileName,
	}
}

// Returns a promise which loads the image from the file, or nil for an inactive operator
func (op *OpLoad) MakePromise(c *Context) (Promise, error) {
	if !op.Active { return nil, nil }
	if c.RestrictPaths && !IsPathAllowed(op.FileName) {
		return nil, fmt.Errorf("%d: Filename %s outside current directory tree, aborting", op.ID, op.FileName)
	}
	return func() (f *fits.Image, err error) {
		return op.Apply(c)
	}, nil
}

// Returns true if a path is considered safe, i.e. not an absolute path,
// and doesn't contain the ".." characters to change to a parent directory
func IsPathAllowed(p string) bool {
	if filepath.IsAbs(p) { return false }          // relative paths only
	if strings.Contains(p, "..") { return false }  // no going outside the tree
	return true
}

func (op *OpLoad) Apply(c *Context) (result *fits.Image, err error) {
	f, err:=fits.NewImageFromFile(op.FileName, op.ID, c.Log)
	if err!=nil { return nil, err }

	warning:=""
	if f.Stats.Max-f.Stats.Min<1e-8 {
		warning="; WARNING low dynamic range"
	}

	fmt.Fprintf(c.Log, "%d: Loaded %s image with %v from %s%s\n",
		        f.ID, f.DimensionsToString(), f.Stats, f.FileName, warning)
	return f, nil
}
