package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/edirooss/zmux-restream/internal/engine"
	"github.com/edirooss/zmux-restream/internal/http/dto"
	"github.com/gin-gonic/gin"
)

// TemplatesHandler serves output templates. Builtin templates are listed
// first and cannot be deleted.
type TemplatesHandler struct {
	m *engine.Manager
}

func NewTemplatesHandler(m *engine.Manager) *TemplatesHandler {
	return &TemplatesHandler{m: m}
}

// GetTemplateList handles GET /templates.
func (h *TemplatesHandler) GetTemplateList(c *gin.Context) {
	ts := h.m.Templates()
	c.Header("X-Total-Count", strconv.Itoa(len(ts)))
	c.JSON(http.StatusOK, ts)
}

// GetTemplate handles GET /templates/{id}.
func (h *TemplatesHandler) GetTemplate(c *gin.Context) {
	t, err := h.m.Template(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// CreateTemplate handles POST /templates.
//
// Status Codes:
//   - 201 Created → JSON of the template
//   - 409 Conflict → id taken or reserved for builtins
//   - 422 Unprocessable Entity → Validation failed
func (h *TemplatesHandler) CreateTemplate(c *gin.Context) {
	var req dto.TemplateCreate
	if !bind(c, &req) {
		return
	}
	t, err := h.m.CreateTemplate(c.Request.Context(), req.ToTemplate())
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/templates/%s", t.ID))
	c.JSON(http.StatusCreated, t)
}

// DeleteTemplate handles DELETE /templates/{id}.
func (h *TemplatesHandler) DeleteTemplate(c *gin.Context) {
	if err := h.m.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
