package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-council/internal/application"
	"github.com/ahrav/go-council/internal/domain"
)

func (s *Server) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, domain.AvailableModels())
}

func (s *Server) listPricing(c *gin.Context) {
	c.JSON(http.StatusOK, domain.Pricing())
}

func (s *Server) listTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, s.Templates.List())
}

type renderRequest struct {
	Values map[string]string `json:"values"`
}

func (s *Server) renderTemplate(c *gin.Context) {
	var req renderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			detail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	prompt, err := s.Templates.Render(c.Param("id"), req.Values)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"system_prompt": prompt})
}

type toolView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listTools(c *gin.Context) {
	views := []toolView{}
	if s.Tools != nil {
		for _, t := range s.Tools.Tools() {
			views = append(views, toolView{Name: t.Name, Description: t.Description})
		}
	}
	c.JSON(http.StatusOK, views)
}

func (s *Server) listConnectors(c *gin.Context) {
	defs := []domain.ConnectorDefinition{}
	if s.Connectors != nil {
		defs = append(defs, s.Connectors.Connectors()...)
	}
	c.JSON(http.StatusOK, defs)
}

func (s *Server) optimizePrompt(c *gin.Context) {
	var req application.OptimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	optimized, err := s.Optimizer.Optimize(c.Request.Context(), req)
	if errors.Is(err, application.ErrOptimizationFailed) {
		detail(c, http.StatusInternalServerError, "Failed to optimize prompt")
		return
	}
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"optimized_prompt": optimized})
}
