package http

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/hookrelay/webhook-relay/internal/model"
	"github.com/hookrelay/webhook-relay/internal/repository"
)

// subscriptionView is the ops-facing shape; the signing secret never
// leaves the database through this surface.
type subscriptionView struct {
	ID                  int64           `json:"id"`
	URL                 string          `json:"url"`
	Events              model.EventList `json:"events"`
	Active              bool            `json:"active"`
	ConsecutiveFailures int             `json:"consecutive_failures"`
	LastSuccessAt       *time.Time      `json:"last_success_at,omitempty"`
	LastFailureAt       *time.Time      `json:"last_failure_at,omitempty"`
	LastTriggeredAt     *time.Time      `json:"last_triggered_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func viewOf(s model.Subscription) subscriptionView {
	return subscriptionView{
		ID:                  s.ID,
		URL:                 s.URL,
		Events:              s.Events,
		Active:              s.Active,
		ConsecutiveFailures: s.ConsecutiveFailures,
		LastSuccessAt:       s.LastSuccessAt,
		LastFailureAt:       s.LastFailureAt,
		LastTriggeredAt:     s.LastTriggeredAt,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func getSubscriptionHandler(subs repository.SubscriptionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}

		s, err := subs.GetByID(c.Request().Context(), id)
		if err != nil {
			c.Logger().Errorf("subscription lookup failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		}
		if s == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		return c.JSON(http.StatusOK, viewOf(*s))
	}
}

// reactivateHandler re-enables a suspended subscription and zeroes its
// failure counter. Operator action after the destination is fixed.
func reactivateHandler(subs repository.SubscriptionsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}

		s, err := subs.GetByID(c.Request().Context(), id)
		if err != nil {
			c.Logger().Errorf("subscription lookup failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		}
		if s == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		if err := subs.Reactivate(c.Request().Context(), id); err != nil {
			c.Logger().Errorf("reactivate failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "reactivate failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{"id": id, "active": true})
	}
}
