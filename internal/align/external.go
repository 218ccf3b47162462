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
	"bufio"
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"
	"github.com/pkg/errors"
	"github.com/mlnoga/fitsmerge/internal/fits"
)

const DefaultProgram = "align_image_stack"

// How long to wait for the output pipe to close after the tool exited or was killed
const defaultWaitDelay = 5*time.Second

// The external alignment tool could not be started
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string { return fmt.Sprintf("cannot launch %s: %v", e.Program, e.Err) }
func (e *LaunchError) Unwrap() error { return e.Err }

// The external alignment tool exited with a non-zero code
type FailedError struct {
	Code int
}

func (e *FailedError) Error() string { return fmt.Sprintf("alignment tool exited with exit code %d", e.Code) }

// Aligns frames by running an external tool compatible with align_image_stack on
// temporary 16-bit TIFF copies, and reading back the aligned results
type External struct {
	Program  string
	Args     []string
	AutoCrop bool
	TempDir  string
	Log      io.Writer
	Output   OutputFunc

	removeTemp func(dir string) error
	waitDelay  time.Duration
}

func NewExternal(cfg Config) *External {
	e:=&External{
		Program:    cfg.Program,
		Args:       cfg.Args,
		AutoCrop:   cfg.AutoCrop,
		TempDir:    cfg.TempDir,
		Log:        cfg.Log,
		Output:     cfg.Output,
		removeTemp: os.RemoveAll,
		waitDelay:  defaultWaitDelay,
	}
	if e.Program=="" { e.Program=DefaultProgram }
	if e.Args==nil   { e.Args=[]string{"-v"} }
	if e.Log==nil    { e.Log=io.Discard }
	return e
}

// Runs the tool. Input frames are never modified; on success, new aligned frames are returned
// in the same order. Temporary files are removed on every path
func (e *External) Align(ctx context.Context, frames []*fits.Image, progress ProgressFunc) (res []*fits.Image, err error) {
	if len(frames)==0 { return nil, nil }

	dir, err:=os.MkdirTemp(e.TempDir, "fitsmerge-align-")
	if err!=nil { return nil, errors.Wrap(err, "creating temporary directory") }
	defer func() {
		if rmErr:=e.removeTemp(dir); rmErr!=nil {
			fmt.Fprintf(e.Log, "Warning: cannot remove temporary directory %s: %v\n", dir, rmErr)
		}
	}()

	inputs:=make([]string, len(frames))
	for i, f:=range frames {
		inputs[i]=filepath.Join(dir, fmt.Sprintf("input_%04d.tif", i))
		if err:=f.WriteMonoTIFF16ToFile(inputs[i], f.Stats.Min, f.Stats.Max); err!=nil {
			return nil, errors.Wrapf(err, "%d: writing temporary file", f.ID)
		}
	}

	prefix:=filepath.Join(dir, "aligned_")
	args:=append([]string{}, e.Args...)
	args=append(args, "-a", prefix)
	if e.AutoCrop { args=append(args, "-C") }
	args=append(args, inputs...)

	if err:=e.run(ctx, args, progress); err!=nil { return nil, err }

	res=make([]*fits.Image, len(frames))
	for i, f:=range frames {
		name:=fmt.Sprintf("%s%04d.tif", prefix, i)
		a, err:=fits.NewImageFromFile(name, f.ID, e.Log)
		if err!=nil { return nil, errors.Wrapf(err, "%d: reading aligned frame", f.ID) }
		a.Rescale(0, 65535, f.Stats.Min, f.Stats.Max)
		a.FileName, a.Exposure = f.FileName, f.Exposure
		res[i]=a
	}
	res=cropToCommonSize(res)
	report(progress, 100)
	return res, nil
}

// Starts the tool, streams its combined output line by line, and waits for it to exit
func (e *External) run(ctx context.Context, args []string, progress ProgressFunc) error {
	cmd:=exec.CommandContext(ctx, e.Program, args...)
	pr, pw:=io.Pipe()
	cmd.Stdout, cmd.Stderr = pw, pw
	cmd.WaitDelay=e.waitDelay  // children of the tool may keep the pipe open

	fmt.Fprintf(e.Log, "Running %s %v\n", e.Program, args)
	if err:=cmd.Start(); err!=nil {
		pw.Close()
		pr.Close()
		return &LaunchError{Program:e.Program, Err:err}
	}

	done:=make(chan struct{})
	go func() {
		defer close(done)
		scanner:=bufio.NewScanner(pr)
		scanner.Split(scanLinesAndReturns)
		for scanner.Scan() {
			line:=stripEscapes(scanner.Text())
			if line=="" { continue }
			if e.Output!=nil { e.Output(line) }
			if p, ok:=parseProgress(line); ok { report(progress, p) }
		}
		io.Copy(io.Discard, pr) // drain overlong lines so the tool never blocks
	}()

	err:=cmd.Wait()
	pw.Close()
	<-done

	if err!=nil && ctx.Err()!=nil {
		return errors.Wrapf(ctx.Err(), "%s interrupted", e.Program)
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		fmt.Fprintf(e.Log, "Warning: output of %s still open after exit\n", e.Program)
		err=nil
	}
	if err!=nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintf(e.Log, "Error: %s exited with exit code %d\n", e.Program, exitErr.ExitCode())
			return &FailedError{Code:exitErr.ExitCode()}
		}
		return &LaunchError{Program:e.Program, Err:err}
	}
	return nil
}

// Crops all frames to the size of the smallest one, anchored at the origin
func cropToCommonSize(frames []*fits.Image) []*fits.Image {
	if len(frames)==0 { return frames }
	w, h:=frames[0].Width(), frames[0].Height()
	for _,f:=range frames[1:] {
		if f.Width()<w  { w=f.Width() }
		if f.Height()<h { h=f.Height() }
	}
	for i, f:=range frames {
		if f.Width()!=w || f.Height()!=h {
			frames[i]=f.Crop(image.Rect(0, 0, w, h))
		}
	}
	return frames
}
