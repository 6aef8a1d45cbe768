// Package web provides the HTTP status server for the heating controller:
// an HTML page, a JSON API, the event history and a websocket stream.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/heating-control/internal/logger"
	"github.com/sweeney/heating-control/internal/repository"
	"github.com/sweeney/heating-control/internal/status"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// EventLister reads the event history.
type EventLister interface {
	List(ctx context.Context, f repository.Filter) ([]repository.Event, error)
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	events     EventLister
	log        *logger.Logger
}

// New creates a Server that reads state from the given tracker. events may
// be nil, in which case the history endpoint reports it as unavailable.
func New(addr string, tracker *status.Tracker, events EventLister, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{tracker: tracker, events: events, log: log}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleIndex)
	r.GET("/index.html", s.handleIndex)
	r.GET("/index.json", s.handleStatus)

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/zones/:name", s.handleZone)
		api.GET("/events", s.handleEvents)
	}

	r.GET("/ws", s.handleWS)
	return r
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := renderHTML(c.Writer, s.tracker.Snapshot()); err != nil {
		s.log.Warnw("render status page", "error", err)
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleZone(c *gin.Context) {
	name := c.Param("name")
	z, ok := s.tracker.Snapshot().Zone(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown zone " + name})
		return
	}
	c.JSON(http.StatusOK, status.NewZoneJSON(z))
}
