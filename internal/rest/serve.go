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
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"github.com/fogleman/gg"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/mlnoga/fitsmerge/internal/align"
	"github.com/mlnoga/fitsmerge/internal/channel"
	"github.com/mlnoga/fitsmerge/internal/composite"
	"github.com/mlnoga/fitsmerge/internal/fits"
	"github.com/mlnoga/fitsmerge/internal/mask"
	"github.com/mlnoga/fitsmerge/internal/ops"
	"github.com/mlnoga/fitsmerge/internal/wizard"
	"github.com/mlnoga/fitsmerge/web"
)

// Serves one wizard session and one anti-ghosting mask over HTTP
type Server struct {
	c       *ops.Context
	session *wizard.Session
	cfg     wizard.Config

	maskMu  sync.Mutex   // guards the mask fields
	canvas  *mask.Canvas
	brush   *mask.Brush
	view    *mask.FixedView
	maskBus mask.Bus
}

func NewServer(c *ops.Context, session *wizard.Session, cfg wizard.Config) *Server {
	s:=&Server{c:c, session:session, cfg:cfg}
	observeSession(session)
	s.maskBus.Subscribe(func(e mask.Event) {
		if e.Kind==mask.StrokePainted { strokesTotal.Inc() }
	})
	return s
}

// Builds the router
func (s *Server) Router() *gin.Engine {
	r:=gin.New()
	r.Use(gin.LoggerWithWriter(s.c.Log), gin.Recovery(), prometheusMiddleware())

	r.GET("/", func(c *gin.Context) { c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML) })
	r.StaticFS("/js", web.JavascriptFS())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api:=r.Group("/api")
	{
		v1:=api.Group("/v1")
		{
			v1.GET ("/ping",           getPing)
			v1.GET ("/state",          s.getState)
			v1.PUT ("/channels/:slot", s.putChannel)
			v1.POST("/load",           s.postLoad)
			v1.POST("/rotate",         s.postRotate)
			v1.PUT ("/align",          s.putAlign)
			v1.PUT ("/weights/:slot",  s.putWeight)
			v1.PUT ("/colors/:slot",   s.putColor)
			v1.GET ("/preview.jpg",    s.getPreview)
			v1.POST("/commit",         s.postCommit)
			v1.POST("/mask",           s.postMask)
			v1.PUT ("/mask/brush",     s.putBrush)
			v1.POST("/mask/stroke",    s.postStroke)
			v1.GET ("/mask.png",       s.getMask)
		}
	}
	return r
}

// Listens and serves on the given address until the server fails
func (s *Server) Serve(addr string) error {
	fmt.Fprintf(s.c.Log, "Serving on %s\n", addr)
	return s.Router().Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

// Writes an error response. Domain errors map to 422, everything else to 500
func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errorStatus(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	var decodeErr *channel.DecodeError
	var dimErr    *channel.DimensionMismatchError
	var launchErr *align.LaunchError
	var failedErr *align.FailedError
	switch {
	case errors.As(err, &decodeErr), errors.As(err, &dimErr),
	     errors.As(err, &launchErr), errors.As(err, &failedErr),
	     errors.Is(err, composite.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

type channelJSON struct {
	Identifier string  `json:"identifier"`
	Loaded     bool    `json:"loaded"`
	Weight     float64 `json:"weight"`
	Color      string  `json:"color"`
}

type stateJSON struct {
	Channels      map[string]channelJSON `json:"channels"`
	Method        align.Method           `json:"method"`
	AutoCrop      bool                   `json:"autoCrop"`
	Align         bool                   `json:"align"`
	Selected      string                 `json:"selected"`
	UseLuminosity bool                   `json:"useLuminosity"`
	LoadEnabled   bool                   `json:"loadEnabled"`
	CommitEnabled bool                   `json:"commitEnabled"`
	Mismatch      string                 `json:"mismatch,omitempty"`
}

func toStateJSON(st wizard.State) stateJSON {
	res:=stateJSON{
		Channels:      map[string]channelJSON{},
		Method:        st.Method,
		AutoCrop:      st.AutoCrop,
		Align:         st.Align,
		Selected:      st.Selected.String(),
		UseLuminosity: st.UseLuminosity,
		LoadEnabled:   st.LoadEnabled,
		CommitEnabled: st.CommitEnabled,
		Mismatch:      st.Mismatch,
	}
	for _,sl:=range channel.Slots {
		res.Channels[sl.String()]=channelJSON{
			Identifier: st.Identifiers[sl],
			Loaded:     st.Loaded[sl],
			Weight:     st.Weights[sl],
			Color:      wizard.FormatColor(st.Colors[sl]),
		}
	}
	return res
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, toStateJSON(s.session.State()))
}

// Parses the :slot path parameter, or aborts with 400
func slotParam(c *gin.Context) (channel.Slot, bool) {
	sl, err:=channel.ParseSlot(c.Param("slot"))
	if err!=nil {
		badRequest(c, err)
		return 0, false
	}
	return sl, true
}

// Checks a client supplied path against the sandbox rules, or aborts with 400
func (s *Server) checkPath(c *gin.Context, p string) bool {
	if p!="" && s.c.RestrictPaths && !ops.IsPathAllowed(p) {
		badRequest(c, errors.Errorf("path '%s' not allowed", p))
		return false
	}
	return true
}

type putChannelArgs struct {
	Identifier string `json:"identifier"`
}

func (s *Server) putChannel(c *gin.Context) {
	sl, ok:=slotParam(c)
	if !ok { return }
	var args putChannelArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	if !s.checkPath(c, args.Identifier) { return }
	if args.Identifier!="" && !fits.IsSupported(args.Identifier) {
		badRequest(c, errors.Errorf("unsupported file type '%s'", args.Identifier))
		return
	}
	if err:=s.session.SelectChannelFile(c.Request.Context(), sl, args.Identifier); err!=nil {
		abortWithError(c, err)
		return
	}
	s.getState(c)
}

func (s *Server) postLoad(c *gin.Context) {
	if err:=s.session.LoadAll(c.Request.Context()); err!=nil {
		abortWithError(c, err)
		return
	}
	s.getState(c)
}

type postRotateArgs struct {
	Slot string `json:"slot"`
}

func (s *Server) postRotate(c *gin.Context) {
	var args postRotateArgs
	if c.Request.ContentLength>0 {
		if err:=c.ShouldBindJSON(&args); err!=nil {
			badRequest(c, err)
			return
		}
	}
	if args.Slot!="" {
		sl, err:=channel.ParseSlot(args.Slot)
		if err!=nil {
			badRequest(c, err)
			return
		}
		s.session.SelectSlot(sl)
	}
	if err:=s.session.RotateSelected90CW(); err!=nil {
		abortWithError(c, err)
		return
	}
	s.getState(c)
}

type putAlignArgs struct {
	Method   *string `json:"method"`
	Enabled  *bool   `json:"enabled"`
	AutoCrop *bool   `json:"autoCrop"`
}

func (s *Server) putAlign(c *gin.Context) {
	var args putAlignArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	if args.Method!=nil {
		if err:=s.session.SetAlignMethod(align.Method(*args.Method)); err!=nil {
			badRequest(c, err)
			return
		}
	}
	if args.Enabled!=nil  { s.session.SetAlign(*args.Enabled) }
	if args.AutoCrop!=nil { s.session.SetAutoCrop(*args.AutoCrop) }
	s.getState(c)
}

type putWeightArgs struct {
	Weight *float64 `json:"weight" binding:"required"`
}

func (s *Server) putWeight(c *gin.Context) {
	sl, ok:=slotParam(c)
	if !ok { return }
	var args putWeightArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	s.session.SetChannelWeight(sl, *args.Weight)
	s.getState(c)
}

type putColorArgs struct {
	Color string `json:"color" binding:"required"`
}

func (s *Server) putColor(c *gin.Context) {
	sl, ok:=slotParam(c)
	if !ok { return }
	var args putColorArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	col, err:=wizard.ParseColor(args.Color)
	if err!=nil {
		badRequest(c, err)
		return
	}
	s.session.SetChannelColor(sl, col)
	s.getState(c)
}

func (s *Server) getPreview(c *gin.Context) {
	img:=s.session.Preview()
	if img==nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no channels loaded"})
		return
	}
	var buf bytes.Buffer
	if err:=fits.WriteJPG(&buf, img, 90); err!=nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", buf.Bytes())
}

type postCommitArgs struct {
	Output string `json:"output"`
}

func (s *Server) postCommit(c *gin.Context) {
	var args postCommitArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	if !s.checkPath(c, args.Output) { return }
	printArgs(s.c.Log, "Commit ", "\n", args)
	if args.Output!="" && !composite.IsSupportedOutput(args.Output) {
		badRequest(c, errors.Errorf("unsupported output format '%s'", args.Output))
		return
	}

	// detached from the request, so the aligner runs to completion if the client goes away
	start:=time.Now()
	img, err:=s.session.Commit(context.Background(), args.Output)
	if err!=nil {
		abortWithError(c, err)
		return
	}
	composeDuration.Observe(time.Since(start).Seconds())
	c.JSON(http.StatusOK, gin.H{"width": img.Width, "height": img.Height, "output": args.Output})
}

type postMaskArgs struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	File   string `json:"file"`
}

// Creates a new mask, blank or from a PNG file, with a fresh brush
func (s *Server) postMask(c *gin.Context) {
	var args postMaskArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	if !s.checkPath(c, args.File) { return }

	var canvas *mask.Canvas
	if args.File!="" {
		var err error
		if canvas, err=mask.LoadCanvas(args.File); err!=nil {
			badRequest(c, err)
			return
		}
	} else {
		if args.Width<=0 || args.Height<=0 || args.Width*args.Height>1<<28 {
			badRequest(c, errors.Errorf("invalid mask size %dx%d", args.Width, args.Height))
			return
		}
		canvas=mask.NewCanvas(args.Width, args.Height)
	}

	s.maskMu.Lock()
	defer s.maskMu.Unlock()
	s.canvas=canvas
	s.view=&mask.FixedView{Scale:1}
	s.brush=mask.NewBrush(canvas, s.view, &s.maskBus, true)
	if err:=s.applyBrushDefaultsLocked(); err!=nil {
		abortWithError(c, err)
		return
	}
	b:=canvas.BoundingRect()
	c.JSON(http.StatusOK, gin.H{"width": b.Dx(), "height": b.Dy()})
}

func (s *Server) applyBrushDefaultsLocked() error {
	bc:=s.cfg.Brush
	if bc.Size>0 { s.brush.SetSize(bc.Size) }
	if bc.Color!="" {
		col, err:=wizard.ParseColor(bc.Color)
		if err!=nil { return err }
		s.brush.SetColor(color.NRGBA{col.R, col.G, col.B, 255})
	}
	if bc.Strength>0 { s.brush.SetStrength(bc.Strength) }
	return nil
}

type putBrushArgs struct {
	Size     *int     `json:"size"`
	Strength *int     `json:"strength"`
	Color    *string  `json:"color"`
	Mode     *string  `json:"mode"`
	Zoom     *float64 `json:"zoom"`
}

type brushJSON struct {
	Size     int     `json:"size"`
	Strength int     `json:"strength"`
	Color    string  `json:"color"`
	Alpha    uint8   `json:"alpha"`
	Additive bool    `json:"additive"`
	Zoom     float64 `json:"zoom"`
}

func (s *Server) putBrush(c *gin.Context) {
	var args putBrushArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	s.maskMu.Lock()
	defer s.maskMu.Unlock()
	if s.brush==nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no mask"})
		return
	}

	if args.Mode!=nil {
		switch strings.ToLower(*args.Mode) {
		case "add":    s.brush.SetMode(false)
		case "remove": s.brush.SetMode(true)
		default:
			badRequest(c, errors.Errorf("unknown brush mode '%s'", *args.Mode))
			return
		}
	}
	if args.Size!=nil {
		if *args.Size<=0 {
			badRequest(c, errors.Errorf("invalid brush size %d", *args.Size))
			return
		}
		s.brush.SetSize(*args.Size)
	}
	if args.Color!=nil {
		col, err:=wizard.ParseColor(*args.Color)
		if err!=nil {
			badRequest(c, err)
			return
		}
		s.brush.SetColor(color.NRGBA{col.R, col.G, col.B, s.brush.Color().A})
	}
	if args.Strength!=nil { s.brush.SetStrength(*args.Strength) }
	if args.Zoom!=nil && *args.Zoom>0 { s.view.Scale=*args.Zoom }

	col:=s.brush.Color()
	c.JSON(http.StatusOK, brushJSON{
		Size:     s.brush.Size(),
		Strength: s.brush.Strength(),
		Color:    wizard.FormatColor(color.RGBA{col.R, col.G, col.B, 255}),
		Alpha:    col.A,
		Additive: s.brush.Additive(),
		Zoom:     s.view.Scale,
	})
}

type postStrokeArgs struct {
	Points []struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"points" binding:"required"`
}

// Paints one gesture through the given points in mask coordinates
func (s *Server) postStroke(c *gin.Context) {
	var args postStrokeArgs
	if err:=c.ShouldBindJSON(&args); err!=nil {
		badRequest(c, err)
		return
	}
	s.maskMu.Lock()
	defer s.maskMu.Unlock()
	if s.brush==nil {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no mask"})
		return
	}
	if len(args.Points)==0 {
		badRequest(c, errors.New("no points"))
		return
	}

	s.view.Pointer=gg.Point{X:args.Points[0].X, Y:args.Points[0].Y}
	s.brush.Press(mask.ButtonPrimary)
	for _,p:=range args.Points {
		s.view.Pointer=gg.Point{X:p.X, Y:p.Y}
		s.brush.Tick()
	}
	s.brush.Release(mask.ButtonPrimary)
	c.JSON(http.StatusOK, gin.H{"coverage": s.canvas.Coverage()})
}

func (s *Server) getMask(c *gin.Context) {
	s.maskMu.Lock()
	defer s.maskMu.Unlock()
	if s.canvas==nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no mask"})
		return
	}
	var buf bytes.Buffer
	if err:=s.canvas.EncodePNG(&buf); err!=nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// Writes the arguments of a request to the log, for debugging
func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}
