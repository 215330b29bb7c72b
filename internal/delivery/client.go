package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hookrelay/webhook-relay/internal/config"
	"github.com/hookrelay/webhook-relay/internal/retry"
	"github.com/hookrelay/webhook-relay/internal/signature"
)

// Outcome classifies one HTTP attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeTerminal
)

// Classify maps a response status to an outcome: any 2xx succeeds,
// 408/429 and the retryable 5xx family may recover, everything else is
// permanent and must not be retried.
func Classify(status int) Outcome {
	switch {
	case status/100 == 2:
		return OutcomeSuccess
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return OutcomeRetry
	default:
		return OutcomeTerminal
	}
}

// Request is one logical delivery to one destination.
type Request struct {
	URL        string
	Secret     string
	EventType  string
	DeliveryID string
	Body       []byte // byte-for-byte what gets signed
}

// Result is the outcome of the full attempt group.
type Result struct {
	Success    bool
	Terminal   bool // stopped on a non-retryable error
	StatusCode int  // last status; 0 when no response was received
	Attempts   int
	Duration   time.Duration
	Body       string // size-bounded response body
	Err        string
}

// Client executes one logical delivery with its own bounded retry loop,
// independent of queue-level retries. Every attempt carries a fresh
// timestamp and signature.
type Client struct {
	http           *http.Client
	maxAttempts    int
	backoff        retry.Backoff
	attemptTimeout time.Duration
	maxBodyBytes   int64
}

func NewClient(cfg config.DeliveryConfig) *Client {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 4 << 10
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := cfg.BackoffMax
	if max <= 0 {
		max = 10 * time.Second
	}

	return &Client{
		http:           &http.Client{},
		maxAttempts:    maxAttempts,
		backoff:        retry.Backoff{Base: base, Max: max},
		attemptTimeout: timeout,
		maxBodyBytes:   maxBody,
	}
}

// Deliver posts the body until it succeeds, hits a terminal error, or
// exhausts the attempt budget. A timeout counts as a network failure.
func (c *Client) Deliver(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		res.Attempts = attempt

		status, body, err := c.post(ctx, req)
		res.StatusCode = status
		res.Body = body

		if err == nil && Classify(status) == OutcomeSuccess {
			res.Success = true
			res.Err = ""
			break
		}

		if err != nil {
			res.Err = err.Error()
			if _, ok := err.(*destinationError); ok {
				res.Terminal = true
				break
			}
			// network error or timeout: retryable
		} else {
			res.Err = fmt.Sprintf("destination returned status %d", status)
			if Classify(status) == OutcomeTerminal {
				res.Terminal = true
				break
			}
		}

		if attempt == c.maxAttempts {
			break
		}
		if !sleep(ctx, c.backoff.JitteredDelay(attempt, nil)) {
			res.Err = ctx.Err().Error()
			break
		}
	}

	res.Duration = time.Since(start)
	return res
}

// destinationError marks malformed destinations; never retried.
type destinationError struct{ err error }

func (e *destinationError) Error() string { return e.err.Error() }
func (e *destinationError) Unwrap() error { return e.err }

func (c *Client) post(ctx context.Context, req Request) (int, string, error) {
	actx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(actx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return 0, "", &destinationError{err: err}
	}

	ts := time.Now().UnixMilli()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(signature.HeaderSignature, signature.Sign(req.Secret, ts, req.Body))
	httpReq.Header.Set(signature.HeaderTimestamp, strconv.FormatInt(ts, 10))
	httpReq.Header.Set(signature.HeaderEvent, req.EventType)
	httpReq.Header.Set(signature.HeaderDelivery, req.DeliveryID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	return resp.StatusCode, string(body), nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
