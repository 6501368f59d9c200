// Package httpapi serves the conversational endpoints over gin.
//
// Information Hiding:
//   - Session resolution (registered vs ephemeral) and per-session turn locking
//   - Reconciliation of client-supplied history before each answer
//   - Mapping of engine errors to HTTP status codes and Italian messages
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GianmarcoBramucci/cri/config"
	"github.com/GianmarcoBramucci/cri/index"
	"github.com/GianmarcoBramucci/cri/metrics"
	"github.com/GianmarcoBramucci/cri/rag"
	"github.com/GianmarcoBramucci/cri/session"
)

// IndexStats is the slice of the document index the health endpoint reads.
type IndexStats interface {
	Stats() index.Stats
}

// Deps are the collaborators of a Server. Engine and Sessions are
// required; the rest may be nil.
type Deps struct {
	Engine   rag.Answerer
	Sessions *session.Store
	Index    IndexStats
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Contact  config.ContactConfig
	Logger   *zap.Logger
}

// Server holds the handlers.
type Server struct {
	engine   rag.Answerer
	sessions *session.Store
	index    IndexStats
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	contact  config.ContactConfig
	logger   *zap.Logger
}

// New creates a server from deps.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   deps.Engine,
		sessions: deps.Sessions,
		index:    deps.Index,
		metrics:  deps.Metrics,
		gatherer: deps.Gatherer,
		contact:  deps.Contact,
		logger:   logger,
	}
}

// SetupRouter registers the routes on e.
func (s *Server) SetupRouter(e *gin.Engine) {
	e.POST("/query", s.handleQuery)
	e.POST("/reset", s.handleReset)
	e.GET("/transcript", s.handleTranscript)
	e.GET("/contact", s.handleContact)
	e.GET("/health", s.handleHealth)
	if s.gatherer != nil {
		e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// Handler returns a gin engine with recovery, request logging and every
// route registered.
func (s *Server) Handler() http.Handler {
	e := gin.New()
	e.Use(recovery(s.logger), requestLogger(s.logger))
	s.SetupRouter(e)
	return e
}
