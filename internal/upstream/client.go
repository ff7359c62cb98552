package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrUnavailable marks a collaborator that failed or timed out. The request
// boundary maps it to a failed /usage call; it is never treated as an empty
// result.
var ErrUnavailable = errors.New("upstream unavailable")

// errNotFound is internal to the package: a 404 from the report service
// means "this id does not exist", not "the service is down".
var errNotFound = errors.New("not found")

// client carries the HTTP and retry settings shared by both collaborators.
type client struct {
	httpClient *http.Client
	maxElapsed time.Duration
}

func newClient(timeout, maxElapsed time.Duration) client {
	return client{
		httpClient: &http.Client{Timeout: timeout},
		maxElapsed: maxElapsed,
	}
}

// getJSON issues a GET and decodes the body into v, retrying network errors
// and 5xx responses with exponential backoff. 404 surfaces as errNotFound;
// any other status is permanent.
func (c client) getJSON(ctx context.Context, url string, v any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err // retryable: network failure or per-attempt timeout
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
				return backoff.Permanent(fmt.Errorf("decoding %s: %w", url, err))
			}
			return nil
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(errNotFound)
		case resp.StatusCode >= 500:
			return fmt.Errorf("upstream status %d from %s", resp.StatusCode, url)
		default:
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("upstream status %d from %s: %s", resp.StatusCode, url, body))
		}
	}

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxInterval = 2 * time.Second
	retry.MaxElapsedTime = c.maxElapsed

	return backoff.Retry(op, backoff.WithContext(retry, ctx))
}
