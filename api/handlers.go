package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CRISalid-esr/crisalid-ikg/errors"
	"github.com/CRISalid-esr/crisalid-ikg/model"
)

type handlers struct {
	deps   Dependencies
	logger *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

// status maps the domain taxonomy onto HTTP status codes
func status(err error) int {
	switch {
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsValidation(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	code := status(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, errorResponse{Error: err.Error()})
}

func (h *handlers) bind(c *gin.Context, out any) bool {
	if err := c.ShouldBindJSON(out); err != nil {
		h.fail(c, errors.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}

func (h *handlers) createPerson(c *gin.Context) {
	var person model.Person
	if !h.bind(c, &person) {
		return
	}
	created, err := h.deps.People.CreatePerson(c.Request.Context(), person)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Person created successfully", "person": created})
}

func (h *handlers) updatePerson(c *gin.Context) {
	var person model.Person
	if !h.bind(c, &person) {
		return
	}
	updated, err := h.deps.People.UpdatePerson(c.Request.Context(), person)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Person with id %s updated successfully", updated.UID),
		"person":  updated,
	})
}

func (h *handlers) getPerson(c *gin.Context) {
	person, err := h.deps.People.GetPerson(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, person)
}

func (h *handlers) createStructure(c *gin.Context) {
	var structure model.ResearchStructure
	if !h.bind(c, &structure) {
		return
	}
	created, err := h.deps.Structures.CreateStructure(c.Request.Context(), structure)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Research structure created successfully", "structure": created})
}

func (h *handlers) updateStructure(c *gin.Context) {
	var structure model.ResearchStructure
	if !h.bind(c, &structure) {
		return
	}
	updated, err := h.deps.Structures.UpdateStructure(c.Request.Context(), structure)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   fmt.Sprintf("Research structure with id %s updated successfully", updated.UID),
		"structure": updated,
	})
}

func (h *handlers) getStructure(c *gin.Context) {
	structure, err := h.deps.Structures.GetStructure(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, structure)
}

func (h *handlers) getSourceRecord(c *gin.Context) {
	record, err := h.deps.SourceRecords.GetSourceRecord(c.Request.Context(), c.Param("uid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *handlers) health(c *gin.Context) {
	st := h.deps.Health.Check(c.Request.Context(), "crisalid-ikg")
	code := http.StatusOK
	if st.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}
