package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-council/internal/application"
)

// sseSink writes council events as server-sent events. Headers are sent
// with the first event so earlier failures can still answer with JSON.
type sseSink struct {
	c       *gin.Context
	started bool
}

var _ application.EventSink = (*sseSink)(nil)

func newSSESink(c *gin.Context) *sseSink { return &sseSink{c: c} }

func (s *sseSink) Emit(ctx context.Context, ev application.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.started {
		h := s.c.Writer.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.c.Status(http.StatusOK)
		s.started = true
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	s.c.Writer.Flush()
	return nil
}
