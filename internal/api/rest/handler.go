package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/ff-patronage-indexer/internal/api/shared/executor"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// GetSteward retrieves a steward by id
	// GET /api/v1/stewards/:id
	GetSteward(c *gin.Context)

	// ListStewardPatrons lists every patron that held the steward
	// GET /api/v1/stewards/:id/patrons?limit=<limit>&offset=<offset>
	ListStewardPatrons(c *gin.Context)

	// ListStewardEvents lists the events recorded under the steward in chain order
	// GET /api/v1/stewards/:id/events?limit=<limit>&offset=<offset>
	ListStewardEvents(c *gin.Context)

	// ListPatronStewards lists every steward the patron held
	// GET /api/v1/patrons/:id/stewards?limit=<limit>&offset=<offset>
	ListPatronStewards(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	executor executor.Executor
}

// NewHandler creates a new REST API handler using the shared executor
func NewHandler(exec executor.Executor) Handler {
	return &handler{
		executor: exec,
	}
}

// GetSteward retrieves a steward by id
func (h *handler) GetSteward(c *gin.Context) {
	id, ok := addressParam(c, "id")
	if !ok {
		respondBadRequest(c, "Invalid steward id")
		return
	}

	steward, err := h.executor.GetSteward(c.Request.Context(), id)
	if err != nil {
		respondExecutorError(c, err, zap.String("steward", id))
		return
	}
	if steward == nil {
		respondNotFound(c, "Steward not found")
		return
	}

	c.JSON(http.StatusOK, steward)
}

// ListStewardPatrons lists the patrons of a steward
func (h *handler) ListStewardPatrons(c *gin.Context) {
	id, ok := addressParam(c, "id")
	if !ok {
		respondBadRequest(c, "Invalid steward id")
		return
	}

	page, err := ParsePageQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.executor.GetStewardPatrons(c.Request.Context(), id, page.Limit, page.Offset)
	if err != nil {
		respondExecutorError(c, err, zap.String("steward", id))
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListStewardEvents lists the journaled events of a steward
func (h *handler) ListStewardEvents(c *gin.Context) {
	id, ok := addressParam(c, "id")
	if !ok {
		respondBadRequest(c, "Invalid steward id")
		return
	}

	page, err := ParsePageQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.executor.GetStewardEvents(c.Request.Context(), id, page.Limit, page.Offset)
	if err != nil {
		respondExecutorError(c, err, zap.String("steward", id))
		return
	}

	c.JSON(http.StatusOK, result)
}

// ListPatronStewards lists the stewards of a patron
func (h *handler) ListPatronStewards(c *gin.Context) {
	id, ok := addressParam(c, "id")
	if !ok {
		respondBadRequest(c, "Invalid patron id")
		return
	}

	page, err := ParsePageQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	result, err := h.executor.GetPatronStewards(c.Request.Context(), id, page.Limit, page.Offset)
	if err != nil {
		respondExecutorError(c, err, zap.String("patron", id))
		return
	}

	c.JSON(http.StatusOK, result)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ff-patronage-api",
	})
}
