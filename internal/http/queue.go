package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/hookrelay/webhook-relay/internal/repository"
)

type resubmitRequest struct {
	IDs []string `json:"ids"`
}

// resubmitHandler resets failed queue entries to pending with a fresh
// attempt budget. No ids means every failed entry.
func resubmitHandler(queueRepo repository.QueueRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req resubmitRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid body"})
		}

		n, err := queueRepo.ResubmitFailed(c.Request().Context(), req.IDs)
		if err != nil {
			c.Logger().Errorf("resubmit failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "resubmit failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{"resubmitted": n})
	}
}
