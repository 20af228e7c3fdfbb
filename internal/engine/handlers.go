package engine

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
	"github.com/RoiLaboratories/Tower-Exchange/pkg/response"
)

// GinHandlers contains HTTP handlers for operator endpoints
type GinHandlers struct {
	engine *Engine
}

func NewGinHandlers(engine *Engine) *GinHandlers {
	return &GinHandlers{
		engine: engine,
	}
}

// TriggerRunHandler handles POST requests that start a run outside the
// regular clock cadence. Internal use only.
func (h *GinHandlers) TriggerRunHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.engine.Run(c.Request.Context())
		if errors.Is(err, ErrRunInProgress) {
			response.Conflict(c, "A run is already in progress")
			return
		}
		if err != nil {
			response.InternalError(c, "Run failed")
			return
		}

		response.Success(c, types.RunSummaryResponse{
			RunID:       summary.RunID,
			Processed:   summary.Processed,
			Succeeded:   summary.Succeeded,
			Failed:      summary.Failed,
			Skipped:     summary.Skipped,
			StoreErrors: summary.StoreErrors,
			TotalVolume: summary.TotalVolume,
			ElapsedMs:   summary.Duration.Milliseconds(),
		})
	}
}
