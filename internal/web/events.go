package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/heating-control/internal/repository"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000

	layoutDateTime = "2006-01-02 15:04:05"
	layoutDate     = "2006-01-02"
)

// handleEvents lists the event history. Query parameters: zone, kind,
// from and to (RFC3339, "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD"; a date-only
// "to" covers the whole day) and limit.
func (s *Server) handleEvents(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event history disabled"})
		return
	}

	f := repository.Filter{
		Zone:  strings.TrimSpace(c.Query("zone")),
		Kind:  repository.EventKind(strings.ToUpper(strings.TrimSpace(c.Query("kind")))),
		Limit: defaultEventLimit,
	}
	var err error
	if q := c.Query("from"); q != "" {
		if f.From, err = parseQueryTime(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from': " + err.Error()})
			return
		}
	}
	if q := c.Query("to"); q != "" {
		if f.To, err = parseQueryTime(q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to': " + err.Error()})
			return
		}
		if isDateOnly(q) {
			f.To = f.To.Add(24*time.Hour - time.Millisecond)
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'from' must be <= 'to'"})
		return
	}
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxEventLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("limit must be 1..%d", maxEventLimit)})
			return
		}
		f.Limit = n
	}

	events, err := s.events.List(c.Request.Context(), f)
	if err != nil {
		s.log.Errorw("list events", "error", err, "zone", f.Zone, "kind", f.Kind)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	if events == nil {
		events = []repository.Event{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":  len(events),
		"events": events,
	})
}

func isDateOnly(s string) bool {
	return !strings.ContainsAny(s, "T ")
}

func parseQueryTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, layoutDateTime, layoutDate} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not RFC3339, 'YYYY-MM-DD HH:MM:SS' or 'YYYY-MM-DD'", s)
}
