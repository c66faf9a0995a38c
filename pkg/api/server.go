package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Borislavv/traffic-governor/pkg/governor"
	"github.com/VictoriaMetrics/metrics"
	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// Server exposes runtime statistics of a governor instance: the metric
// exposition endpoint and a JSON snapshot of every cluster node.
type Server struct {
	gov  *governor.Governor
	srv  *fasthttp.Server
	port string
}

func NewServer(gov *governor.Governor, port string) *Server {
	s := &Server{gov: gov, port: port}

	r := router.New()
	r.GET("/metrics", s.handleMetrics)
	r.GET("/stats", s.handleStats)
	r.POST("/reset", s.handleReset)

	s.srv = &fasthttp.Server{Handler: r.Handler, Name: "traffic-governor"}
	return s
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		if err := s.srv.Shutdown(); err != nil {
			log.Err(err).Msg("[api] shutdown failed")
		}
	}()
	log.Info().Str("port", s.port).Msg("[api] stats server listening")
	if err := s.srv.ListenAndServe(":" + s.port); err != nil {
		log.Err(err).Msg("[api] server stopped")
	}
}

func (s *Server) handleMetrics(ctx *fasthttp.RequestCtx) {
	metrics.WritePrometheus(ctx, true)
}

type resourceStats struct {
	Resource     string  `json:"resource"`
	PassQps      float64 `json:"pass_qps"`
	BlockQps     float64 `json:"block_qps"`
	SuccessQps   float64 `json:"success_qps"`
	ExceptionQps float64 `json:"exception_qps"`
	AvgRtMs      float64 `json:"avg_rt_ms"`
	MinRtMs      float64 `json:"min_rt_ms"`
	Concurrency  int64   `json:"concurrency"`
	TotalPass    int64   `json:"total_pass"`
	TotalBlock   int64   `json:"total_block"`
}

func (s *Server) handleStats(ctx *fasthttp.RequestCtx) {
	nodes := s.gov.Tree().ClusterNodes()
	out := make([]resourceStats, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, resourceStats{
			Resource:     n.ResourceName(),
			PassQps:      n.PassQps(),
			BlockQps:     n.BlockQps(),
			SuccessQps:   n.SuccessQps(),
			ExceptionQps: n.ExceptionQps(),
			AvgRtMs:      n.AvgRt(),
			MinRtMs:      n.MinRt(),
			Concurrency:  n.CurThreadNum(),
			TotalPass:    n.TotalPass(),
			TotalBlock:   n.TotalBlock(),
		})
	}
	payload, err := json.Marshal(out)
	if err != nil {
		ctx.SetStatusCode(http.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(payload)
}

func (s *Server) handleReset(ctx *fasthttp.RequestCtx) {
	s.gov.Tree().ResetClusterNodes()
	ctx.SetStatusCode(http.StatusNoContent)
}
