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
package main

import (
	"context"
	"flag"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"
	"github.com/fogleman/gg"
	nl "github.com/mlnoga/fitsmerge/internal"
	"github.com/mlnoga/fitsmerge/internal/align"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/fits"
	"github.com/mlnoga/fitsmerge/internal/mask"
	"github.com/mlnoga/fitsmerge/internal/ops"
	"github.com/mlnoga/fitsmerge/internal/rest"
	"github.com/mlnoga/fitsmerge/internal/wizard"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var config = flag.String("config", "", "read session defaults from YAML `file`. Flags given explicitly take precedence")

var out  = flag.String("out", "out.tif", "save output to `file`. Extension selects format: .tif, .hdr, .jpg or .fits")
var log  = flag.String("log", "%auto",   "save log output to `file`. `%auto` replaces suffix of output file with .log")

var lum   = flag.String("lum",   "", "load luminosity channel from `file`")
var red   = flag.String("red",   "", "load red channel from `file`")
var green = flag.String("green", "", "load green channel from `file`")
var blue  = flag.String("blue",  "", "load blue channel from `file`")
var ha    = flag.String("ha",    "", "load H-alpha channel from `file`")

var wRed   = flag.Float64("wRed",   1, "weight of the red channel in [0,1]")
var wGreen = flag.Float64("wGreen", 1, "weight of the green channel in [0,1]")
var wBlue  = flag.Float64("wBlue",  1, "weight of the blue channel in [0,1]")
var wHa    = flag.Float64("wHa",    1, "weight of the H-alpha channel in [0,1]")

var cRed   = flag.String("cRed",   "#ff0000", "tint of the red channel as #rrggbb")
var cGreen = flag.String("cGreen", "#00ff00", "tint of the green channel as #rrggbb")
var cBlue  = flag.String("cBlue",  "#0000ff", "tint of the blue channel as #rrggbb")
var cHa    = flag.String("cHa",    "#ff0000", "tint of the H-alpha channel as #rrggbb")

var rotate = flag.String("rotate", "", "rotate the given comma-separated channels by 90 degrees clockwise after loading, e.g. `red,ha`")

var alignOn      = flag.Int64 ("align",        1,   "1=align channels before compositing, 0=do not align")
var alignMethod  = flag.String("alignMethod",  "external", "alignment method, external (align_image_stack) or internal (median threshold bitmaps)")
var alignProgram = flag.String("alignProgram", align.DefaultProgram, "external alignment `program`")
var autoCrop     = flag.Int64 ("autoCrop",     0,   "1=crop aligned channels to their common area (external alignment only), 0=do not crop")
var alignLevels  = flag.Int64 ("alignLevels",  align.DefaultLevels, "pyramid levels for internal alignment")

var threads = flag.Int64("threads", 0, "number of decoding threads, 0=one per logical core")
var quality = flag.Int64("quality", 95, "JPEG output quality in percent")

var addr          = flag.String("addr", ":8080", "listen on `address` when serving")
var chroot        = flag.String("chroot", "", "chroot to `dir` when serving (requires root)")
var setuid        = flag.Int64 ("setuid", -1, "switch to user `id` when serving, -1=no change")
var restrictPaths = flag.Int64 ("restrictPaths", 0, "1=only allow relative paths below the working directory, 0=allow any path")

var maskIn        = flag.String("maskIn", "", "start the mask from PNG `file` instead of a blank one")
var maskWidth     = flag.Int64 ("maskWidth",  0, "width of a blank mask, 0=width of the loaded channels")
var maskHeight    = flag.Int64 ("maskHeight", 0, "height of a blank mask, 0=height of the loaded channels")
var brushSize     = flag.Int64 ("brushSize", mask.DefaultSize, "brush diameter in pixels")
var brushStrength = flag.Int64 ("brushStrength", mask.DefaultStrength, "brush strength 0..255")
var brushColor    = flag.String("brushColor", "#00ff00", "brush colour as #rrggbb")
var brushMode     = flag.String("brushMode", "add", "brush mode, add or remove")
var zoom          = flag.Float64("zoom", 1, "view zoom factor for strokes, radius is divided by it")
var stroke        = flag.String("stroke", "", "paint one gesture through the given points, e.g. `10,10;40,10;40,40`")

func main() {
	logWriter:=nl.LogWriter()
	start:=time.Now()
	flag.Usage=func(){
		fmt.Fprintf(os.Stdout, `fitsmerge Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (compose|preview|mask|serve|legal|version) [lum red green blue ha]

Channels are given with -lum, -red, -green, -blue and -ha, or positionally in that order.
Use - for an unused channel.

Commands:
  compose Load, optionally align, and composite the channels into the output file
  preview Write the 300x200 preview of the composite to the output file
  mask    Paint a brush gesture onto an anti-ghosting mask and save it as PNG to the output file
  serve   Serve the wizard and REST API on the given address
  legal   Show license and attribution information
  version Show version information

Flags:
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args:=flag.Args()
	if len(args)<1 {
		flag.Usage()
		return
	}
	cmd:=args[0]

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" && (cmd=="compose" || cmd=="preview" || cmd=="mask") {
			*log=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"
		} else {
			*log=""
		}
	}
	if *log!="" {
		if err:=nl.LogAlsoToFile(*log); err!=nil { nl.LogFatalf("Unable to open logfile '%s'\n", *log) }
	}
	defer nl.LogSync()

	// Enable CPU profiling if flagged
	if *cpuprofile!="" {
		f, err:=os.Create(*cpuprofile)
		if err!=nil { nl.LogFatalf("Could not create CPU profile: %v\n", err) }
		defer f.Close()
		if err:=pprof.StartCPUProfile(f); err!=nil { nl.LogFatalf("Could not start CPU profile: %v\n", err) }
		defer pprof.StopCPUProfile()
	}

	var err error
	switch cmd {
	case "compose", "preview", "mask", "serve":
		err=run(cmd, args[1:], logWriter)

	case "legal":
		fmt.Fprint(logWriter, legal)
		return

	case "version":
		fmt.Fprintf(logWriter, "Version %s\n", version)
		return

	case "help", "?":
		flag.Usage()
		return

	default:
		fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", cmd)
		flag.Usage()
		return
	}

	fmt.Fprintf(logWriter, "\nDone after %v\n", time.Since(start))

	// Store memory profile if flagged
	if *memprofile!="" {
		f, ferr:=os.Create(*memprofile)
		if ferr!=nil { nl.LogFatalf("Could not create memory profile: %v\n", ferr) }
		defer f.Close()
		runtime.GC() // get up-to-date statistics
		if ferr:=pprof.Lookup("allocs").WriteTo(f, 0); ferr!=nil { nl.LogFatalf("Could not write allocation profile: %v\n", ferr) }
	}

	if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		nl.LogSync()
		os.Exit(-1)
	}
}

// Sets up context and session, then runs the given command
func run(cmd string, args []string, logWriter io.Writer) error {
	cfg, err:=loadConfig()
	if err!=nil { return err }

	fmt.Fprintf(logWriter, "Configuration:\n\n%s\n", cfg.AsYaml())
	c:=ops.NewContext(logWriter)
	c.RestrictPaths=*restrictPaths!=0
	fmt.Fprintf(logWriter, "Using %d threads and %d MiB of memory\n", c.MaxThreads, c.MemoryMB)

	session, err:=wizard.NewSession(c, cfg)
	if err!=nil { return err }
	session.Subscribe(func(e wizard.Event) {
		switch e.Kind {
		case wizard.AlignOutput:   fmt.Fprintf(logWriter, "%s\n", e.Line)
		case wizard.AlignProgress: fmt.Fprintf(logWriter, "Alignment %d%%\n", e.Percent)
		}
	})

	if cmd=="serve" {
		if err:=rest.MakeSandbox(logWriter, *chroot, int(*setuid)); err!=nil { return err }
		return rest.NewServer(c, session, cfg).Serve(*addr)
	}

	ids, err:=channelIDs(args)
	if err!=nil { return err }
	if cmd=="mask" {
		return cmdMask(ids, cfg, logWriter)
	}
	return cmdCompose(cmd, session, ids, cfg)
}

// Reads the config file if given, then applies all flags set on the command line
func loadConfig() (wizard.Config, error) {
	cfg:=wizard.NewConfig()
	if *config!="" {
		var err error
		if cfg, err=wizard.LoadConfig(*config); err!=nil { return cfg, err }
	}

	if cfg.Weights==nil { cfg.Weights=map[string]float64{} }
	if cfg.Colors==nil  { cfg.Colors=map[string]string{} }

	var err error
	outSet:=false
	flag.Visit(func(f *flag.Flag) {
		if err!=nil { return }
		switch f.Name {
		case "out":    outSet=true
		case "wRed":   cfg.Weights["red"]  =*wRed
		case "wGreen": cfg.Weights["green"]=*wGreen
		case "wBlue":  cfg.Weights["blue"] =*wBlue
		case "wHa":    cfg.Weights["h"]    =*wHa
		case "cRed":   cfg.Colors["red"]   =*cRed
		case "cGreen": cfg.Colors["green"] =*cGreen
		case "cBlue":  cfg.Colors["blue"]  =*cBlue
		case "cHa":    cfg.Colors["h"]     =*cHa
		case "align":  cfg.AlignEnabled=*alignOn!=0
		case "alignMethod":
			var m align.Method
			if m, err=align.ParseMethod(*alignMethod); err==nil { cfg.Method=m }
		case "alignProgram": cfg.Align.Program=*alignProgram
		case "autoCrop":     cfg.Align.AutoCrop=*autoCrop!=0
		case "alignLevels":  cfg.Align.Levels=int(*alignLevels)
		case "threads":      cfg.MaxThreads=int(*threads)
		case "quality":      cfg.JPEGQuality=int(*quality)
		case "brushSize":    cfg.Brush.Size=int(*brushSize)
		case "brushStrength":cfg.Brush.Strength=int(*brushStrength)
		case "brushColor":   cfg.Brush.Color=*brushColor
		}
	})
	if err!=nil { return cfg, err }
	if !outSet && cfg.Output!="" { *out=cfg.Output }
	_, _, err=cfg.Mix()
	return cfg, err
}

// Collects channel file names from flags and positional arguments
func channelIDs(args []string) (ids [channel.NumSlots]string, err error) {
	ids=[channel.NumSlots]string{*lum, *red, *green, *blue, *ha}
	if len(args)>channel.NumSlots {
		return ids, fmt.Errorf("at most %d channels, got %d", channel.NumSlots, len(args))
	}
	for i, a:=range args {
		if a=="-" || a=="" { continue }
		if ids[i]!="" {
			return ids, fmt.Errorf("channel %s given twice", channel.Slot(i))
		}
		ids[i]=a
	}
	for i, id:=range ids {
		if id!="" && !fits.IsSupported(id) {
			return ids, fmt.Errorf("%s: unsupported file type '%s'", channel.Slot(i), id)
		}
	}
	return ids, nil
}

// Loads the channels, applies rotations, and writes the full composite or the preview
func cmdCompose(cmd string, session *wizard.Session, ids [channel.NumSlots]string, cfg wizard.Config) error {
	ctx:=context.Background()
	if err:=loadAndRotate(ctx, session, ids); err!=nil { return err }

	if cmd=="preview" {
		img:=session.Preview()
		if img==nil { return fmt.Errorf("no preview available") }
		return fits.WriteJPGToFile(*out, img, cfg.JPEGQuality)
	}
	_, err:=session.Commit(ctx, *out)
	return err
}

func loadAndRotate(ctx context.Context, session *wizard.Session, ids [channel.NumSlots]string) error {
	complete:=true
	for i, id:=range ids {
		if err:=session.SelectChannelFile(ctx, channel.Slot(i), id); err!=nil { return err }
		complete=complete && id!=""
	}
	if !complete {  // a full set was loaded on the last selection
		if err:=session.LoadAll(ctx); err!=nil { return err }
	}
	if *rotate=="" { return nil }
	for _,name:=range strings.Split(*rotate, ",") {
		s, err:=channel.ParseSlot(name)
		if err!=nil { return err }
		if err:=session.SelectSlot(s); err!=nil { return err }
		if err:=session.RotateSelected90CW(); err!=nil { return err }
	}
	return nil
}

// Creates a mask, paints the stroke gesture with the configured brush and saves it
func cmdMask(ids [channel.NumSlots]string, cfg wizard.Config, logWriter io.Writer) error {
	var canvas *mask.Canvas
	switch {
	case *maskIn!="":
		var err error
		if canvas, err=mask.LoadCanvas(*maskIn); err!=nil { return err }
	case *maskWidth>0 && *maskHeight>0:
		canvas=mask.NewCanvas(int(*maskWidth), int(*maskHeight))
	default:
		ref:=""
		for _,id:=range ids {
			if id!="" { ref=id; break }
		}
		if ref=="" { return fmt.Errorf("mask size: give -maskIn, -maskWidth and -maskHeight, or a channel file") }
		img, err:=fits.NewImageFromFile(ref, 0, logWriter)
		if err!=nil { return err }
		canvas=mask.NewCanvas(img.Width(), img.Height())
	}

	var bus mask.Bus
	strokes:=0
	bus.Subscribe(func(e mask.Event) {
		if e.Kind==mask.StrokePainted { strokes++ }
	})
	view:=&mask.FixedView{Scale:*zoom}
	brush:=mask.NewBrush(canvas, view, &bus, true)
	brush.SetSize(cfg.Brush.Size)
	col, err:=wizard.ParseColor(cfg.Brush.Color)
	if err!=nil { return err }
	brush.SetColor(color.NRGBA{col.R, col.G, col.B, col.A})
	brush.SetStrength(cfg.Brush.Strength)
	switch strings.ToLower(*brushMode) {
	case "add":
	case "remove": brush.SetMode(true)
	default:       return fmt.Errorf("unknown brush mode '%s'", *brushMode)
	}

	points, err:=parsePoints(*stroke)
	if err!=nil { return err }
	if len(points)>0 {
		view.Pointer=points[0]
		brush.Press(mask.ButtonPrimary)
		for _,p:=range points {
			view.Pointer=p
			brush.Tick()
		}
		brush.Release(mask.ButtonPrimary)
	}
	fmt.Fprintf(logWriter, "Painted %d strokes, mask coverage %.2f%%\n", strokes, 100*canvas.Coverage())
	return canvas.SavePNG(*out)
}

// Parses points given as x,y pairs separated by semicolons
func parsePoints(s string) (points []gg.Point, err error) {
	if strings.TrimSpace(s)=="" { return nil, nil }
	for _,pair:=range strings.Split(s, ";") {
		xy:=strings.Split(strings.TrimSpace(pair), ",")
		if len(xy)!=2 { return nil, fmt.Errorf("invalid point '%s'", pair) }
		x, err:=strconv.ParseFloat(strings.TrimSpace(xy[0]), 64)
		if err!=nil { return nil, fmt.Errorf("invalid point '%s': %v", pair, err) }
		y, err:=strconv.ParseFloat(strings.TrimSpace(xy[1]), 64)
		if err!=nil { return nil, fmt.Errorf("invalid point '%s': %v", pair, err) }
		points=append(points, gg.Point{X:x, Y:y})
	}
	return points, nil
}
