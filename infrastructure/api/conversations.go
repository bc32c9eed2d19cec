package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ahrav/go-council/internal/application"
)

func (s *Server) listConversations(c *gin.Context) {
	list, err := s.Store.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) createConversation(c *gin.Context) {
	conv, err := s.Store.Create(c.Request.Context(), uuid.NewString())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) getConversation(c *gin.Context) {
	conv, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func bindMessage(c *gin.Context) (application.SendMessageRequest, bool) {
	var req application.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return req, false
	}
	return req, true
}

// sendMessage runs a turn and returns every stage at once.
func (s *Server) sendMessage(c *gin.Context) {
	req, ok := bindMessage(c)
	if !ok {
		return
	}
	result, err := s.Turns.SendMessage(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// streamMessage runs a turn and streams its events. Errors found before
// the first event are ordinary JSON error responses.
func (s *Server) streamMessage(c *gin.Context) {
	req, ok := bindMessage(c)
	if !ok {
		return
	}
	sink := newSSESink(c)
	if err := s.Turns.StreamMessage(c.Request.Context(), c.Param("id"), req, sink); err != nil {
		if sink.started {
			s.Logger.Error().Err(err).Msg("stream failed after start")
			return
		}
		s.fail(c, err)
	}
}
