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
	"time"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/mlnoga/fitsmerge/internal/wizard"
)

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "fitsmerge_http_response_time_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitsmerge_http_requests_total",
		Help: "Number of HTTP requests.",
	}, []string{"path", "code"})
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitsmerge_loads_total",
		Help: "Number of channel batch loads, by result.",
	}, []string{"result"})
	alignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fitsmerge_alignments_total",
		Help: "Number of alignments, by result.",
	}, []string{"result"})
	composeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fitsmerge_compose_duration_seconds",
		Help:    "Duration of full resolution commits, including alignment.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	strokesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitsmerge_mask_strokes_total",
		Help: "Number of brush strokes painted onto the mask.",
	})
)

// Records request durations and counts per route
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start:=time.Now()
		c.Next()
		path:=c.FullPath()
		if path=="" { path="unmatched" }
		httpDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
		httpRequests.WithLabelValues(path, statusClass(c.Writer.Status())).Inc()
	}
}

func statusClass(code int) string {
	switch {
	case code>=500: return "5xx"
	case code>=400: return "4xx"
	case code>=300: return "3xx"
	}
	return "2xx"
}

// Counts session outcomes from its events
func observeSession(s *wizard.Session) (unsubscribe func()) {
	return s.Subscribe(func(e wizard.Event) {
		switch e.Kind {
		case wizard.Loaded:
			loadsTotal.WithLabelValues("ok").Inc()
		case wizard.Aligned:
			alignmentsTotal.WithLabelValues("ok").Inc()
		case wizard.Error:
			switch e.Op {
			case "load":  loadsTotal.WithLabelValues("error").Inc()
			case "align": alignmentsTotal.WithLabelValues("error").Inc()
			}
		}
	})
}
