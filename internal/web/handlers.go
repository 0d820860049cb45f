package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ananasregina/fnord/internal/core"
	"github.com/ananasregina/fnord/internal/fnord"
	"github.com/ananasregina/fnord/internal/storage"
)

// sightingRequest is the JSON body for create.
type sightingRequest struct {
	When             string         `json:"when"`
	WherePlaceName   string         `json:"where_place_name"`
	Source           string         `json:"source"`
	Summary          string         `json:"summary"`
	Notes            map[string]any `json:"notes"`
	LogicalFallacies []string       `json:"logical_fallacies"`
}

// updateRequest is the JSON body for update; absent keys leave the field
// unchanged.
type updateRequest struct {
	When             *string         `json:"when"`
	WherePlaceName   *string         `json:"where_place_name"`
	Source           *string         `json:"source"`
	Summary          *string         `json:"summary"`
	Notes            *map[string]any `json:"notes"`
	LogicalFallacies *[]string       `json:"logical_fallacies"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req sightingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}

	var when time.Time
	if req.When != "" {
		parsed, err := fnord.ParseWhen(req.When)
		if err != nil {
			renderError(c, err)
			return
		}
		when = parsed
	}

	res, err := s.engine.Create(c.Request.Context(), &fnord.Sighting{
		When:             when,
		WherePlaceName:   req.WherePlaceName,
		Source:           req.Source,
		Summary:          req.Summary,
		Notes:            req.Notes,
		LogicalFallacies: req.LogicalFallacies,
	})
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleGet(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := s.engine.Get(c.Request.Context(), id)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUpdate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}

	upd := fnord.Update{
		WherePlaceName:   req.WherePlaceName,
		Source:           req.Source,
		Summary:          req.Summary,
		Notes:            req.Notes,
		LogicalFallacies: req.LogicalFallacies,
	}
	if req.When != nil {
		parsed, err := fnord.ParseWhen(*req.When)
		if err != nil {
			renderError(c, err)
			return
		}
		upd.When = &parsed
	}

	res, err := s.engine.Update(c.Request.Context(), id, upd)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDelete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.engine.Delete(c.Request.Context(), id); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

func (s *Server) handleList(c *gin.Context) {
	offset, limit := parsePage(c)
	recs, err := s.engine.List(c.Request.Context(), offset, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fnords": recs, "count": len(recs)})
}

func (s *Server) handleSearch(c *gin.Context) {
	offset, limit := parsePage(c)
	if limit <= 0 {
		limit = fnord.DefaultPageSize
	}

	res, err := s.engine.Search(c.Request.Context(), c.Query("q"), offset, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleCount(c *gin.Context) {
	n, err := s.engine.Count(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func parsePage(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "0"))
	if offset < 0 {
		offset = 0
	}
	return offset, limit
}

// renderError maps the error taxonomy onto status codes.
func renderError(c *gin.Context, err error) {
	switch {
	case core.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case core.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case core.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, storage.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
