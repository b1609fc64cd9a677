package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"tailscale.com/tsweb"

	"github.com/banshee-data/fabric.inspect/internal/analyser"
	"github.com/banshee-data/fabric.inspect/internal/capture"
	"github.com/banshee-data/fabric.inspect/internal/monitoring"
	"github.com/banshee-data/fabric.inspect/internal/version"
	"github.com/banshee-data/fabric.inspect/internal/workpool"
)

// Source is the analyser surface the status page reads.
type Source interface {
	State() analyser.State
	Ticks() int64
	Skipped() int64
	Frame() int64
	PoolStats() (publish, capture workpool.Stats)
}

// Server renders the debug pages.
type Server struct {
	board    *StatusBoard
	source   Source
	captures func() capture.Stats
}

func NewServer(board *StatusBoard, source Source) *Server {
	return &Server{board: board, source: source}
}

// WithCaptureStats adds capture counters to the status page.
func (s *Server) WithCaptureStats(f func() capture.Stats) *Server {
	s.captures = f
	return s
}

// Status is the JSON body of the status page.
type Status struct {
	Version        string         `json:"version"`
	State          string         `json:"state"`
	Ticks          int64          `json:"ticks"`
	Skipped        int64          `json:"skipped"`
	Frame          int64          `json:"frame"`
	Velocity       float64        `json:"velocity"`
	Displacement   float64        `json:"displacement"`
	MeanVelocity   float64        `json:"mean_velocity"`
	StdDevVelocity float64        `json:"stddev_velocity"`
	Samples        int            `json:"samples"`
	Publish        workpool.Stats `json:"publish_pool"`
	Capture        workpool.Stats `json:"capture_pool"`
	Captures       *capture.Stats `json:"captures,omitempty"`
}

// Snapshot assembles the current status.
func (s *Server) Snapshot() Status {
	samples := s.board.Samples()
	st := Status{
		Version: version.Version,
		State:   s.source.State().String(),
		Ticks:   s.source.Ticks(),
		Skipped: s.source.Skipped(),
		Frame:   s.source.Frame(),
		Samples: len(samples),
	}
	st.Publish, st.Capture = s.source.PoolStats()
	if latest, ok := s.board.Latest(); ok {
		st.Velocity = latest.Velocity
		st.Displacement = latest.Displacement
	}
	if len(samples) > 0 {
		v := make([]float64, len(samples))
		for i, smp := range samples {
			v[i] = smp.Velocity
		}
		if len(v) > 1 {
			st.MeanVelocity, st.StdDevVelocity = stat.MeanStdDev(v, nil)
		} else {
			st.MeanVelocity = v[0]
		}
	}
	if s.captures != nil {
		c := s.captures()
		st.Captures = &c
	}
	return st
}

// AttachAdminRoutes mounts the status and chart pages on mux's debug page.
func (s *Server) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.KVFunc("Analyser state", func() any { return s.source.State().String() })
	debug.KVFunc("Frame", func() any { return s.source.Frame() })
	debug.HandleFunc("status", "Inspector status (JSON)", s.handleStatus)
	debug.HandleFunc("velocity-chart", "Recent velocity and displacement", s.handleChart)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		monitoring.Logf("failed to encode status: %v", err)
	}
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	samples := s.board.Samples()
	x := make([]string, len(samples))
	vel := make([]opts.LineData, len(samples))
	disp := make([]opts.LineData, len(samples))
	for i, smp := range samples {
		x[i] = strconv.FormatInt(smp.Seq, 10)
		vel[i] = opts.LineData{Value: smp.Velocity}
		disp[i] = opts.LineData{Value: smp.Displacement}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fabric movement", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Fabric movement", Subtitle: fmt.Sprintf("state=%s frame=%d samples=%d", s.source.State(), s.source.Frame(), len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "velocity"}),
	)
	line.ExtendYAxis(opts.YAxis{Name: "displacement"})
	line.SetXAxis(x).
		AddSeries("velocity", vel).
		AddSeries("displacement", disp, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, fmt.Sprintf("failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
