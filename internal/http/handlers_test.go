package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookrelay/webhook-relay/internal/http/middleware"
	"github.com/hookrelay/webhook-relay/internal/model"

	"github.com/jmoiron/sqlx"
)

type fakeQueueRepo struct {
	resubmitIDs []string
	resubmitN   int64
	resubmitErr error
}

func (f *fakeQueueRepo) Insert(context.Context, *sqlx.Tx, model.QueueEntry) error { return nil }
func (f *fakeQueueRepo) ClaimBatch(context.Context, int) ([]model.QueueEntry, error) {
	return nil, nil
}
func (f *fakeQueueRepo) Complete(context.Context, string) error { return nil }
func (f *fakeQueueRepo) Fail(context.Context, string, time.Duration, string) error {
	return nil
}
func (f *fakeQueueRepo) DeleteTerminalBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeQueueRepo) ReclaimStale(context.Context, time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeQueueRepo) ResubmitFailed(_ context.Context, ids []string) (int64, error) {
	f.resubmitIDs = ids
	return f.resubmitN, f.resubmitErr
}

type fakeSubsRepo struct {
	byID        map[int64]*model.Subscription
	reactivated []int64
}

func (f *fakeSubsRepo) Match(context.Context, string) ([]model.Subscription, error) {
	return nil, nil
}
func (f *fakeSubsRepo) GetByID(_ context.Context, id int64) (*model.Subscription, error) {
	return f.byID[id], nil
}
func (f *fakeSubsRepo) RecordSuccess(context.Context, int64) error { return nil }
func (f *fakeSubsRepo) RecordFailure(context.Context, int64) (int, bool, error) {
	return 0, true, nil
}
func (f *fakeSubsRepo) Reactivate(_ context.Context, id int64) error {
	f.reactivated = append(f.reactivated, id)
	return nil
}
func (f *fakeSubsRepo) Insert(context.Context, model.Subscription) (int64, error) { return 0, nil }

func TestResubmitHandler(t *testing.T) {
	repo := &fakeQueueRepo{resubmitN: 4}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/queue/resubmit", strings.NewReader(`{"ids":["a","b"]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, resubmitHandler(repo)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a", "b"}, repo.resubmitIDs)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body["resubmitted"])
}

func TestGetSubscriptionHandler_RedactsSecret(t *testing.T) {
	repo := &fakeSubsRepo{byID: map[int64]*model.Subscription{
		7: {
			ID:     7,
			URL:    "https://example.com/hooks",
			Secret: "whsec_deadbeef",
			Events: model.EventList{"contact.created"},
			Active: true,
		},
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, getSubscriptionHandler(repo)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "whsec_")
	assert.Contains(t, rec.Body.String(), "https://example.com/hooks")
}

func TestGetSubscriptionHandler_NotFound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("99")

	require.NoError(t, getSubscriptionHandler(&fakeSubsRepo{})(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReactivateHandler(t *testing.T) {
	repo := &fakeSubsRepo{byID: map[int64]*model.Subscription{
		3: {ID: 3, Active: false, ConsecutiveFailures: 10},
	}}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("3")

	require.NoError(t, reactivateHandler(repo)(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{3}, repo.reactivated)
}

func TestTokenMiddleware(t *testing.T) {
	e := echo.New()
	next := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	h := middleware.TokenMiddleware("s3cret")(next)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{"valid", "s3cret", http.StatusOK},
		{"wrong", "guess", http.StatusUnauthorized},
		{"missing", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.token != "" {
				req.Header.Set("X-Ops-Token", tc.token)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, h(e.NewContext(req, rec)))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestTokenMiddleware_UnconfiguredRejects(t *testing.T) {
	e := echo.New()
	h := middleware.TokenMiddleware("")(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Ops-Token", "anything")
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
