package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxRetries = 3

// backoffBase is doubled on each retry.
var backoffBase = time.Second

type retryableError struct {
	msg string
}

func (e *retryableError) Error() string {
	return e.msg
}

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// withRetry runs call until it succeeds, fails with a non-retryable error or
// runs out of attempts.
func withRetry(ctx context.Context, call func() (*InferResult, error)) (*InferResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoffBase << attempt):
			}
		}

		result, err := call()
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, lastErr)
}

// readResponse reads the body and turns rate limiting and server errors into
// retryable errors.
func readResponse(resp *http.Response, backend string) ([]byte, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &retryableError{msg: "rate limited by " + backend}
	case resp.StatusCode >= 500:
		return nil, &retryableError{msg: fmt.Sprintf("%s server error (HTTP %d)", backend, resp.StatusCode)}
	}
	return body, nil
}
