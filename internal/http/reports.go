package http

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/hookrelay/webhook-relay/internal/repository"
)

func listDeliveriesHandler(logRepo repository.DeliveryLogRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		subID, err := strconv.ParseInt(c.QueryParam("subscription_id"), 10, 64)
		if err != nil || subID <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "subscription_id required"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		recs, err := logRepo.ListBySubscription(c.Request().Context(), subID, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"subscription_id": subID,
			"limit":           limit,
			"offset":          offset,
			"count":           len(recs),
			"results":         recs,
		})
	}
}
