package server

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// WaitForHealthy polls baseURL/health until it answers 200 OK or ctx is
// done. baseURL is the server root, e.g. "http://localhost:8080".
func WaitForHealthy(ctx context.Context, baseURL string) error {
	healthURL := baseURL + "/health"
	client := &http.Client{Timeout: time.Second}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last error
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
		if err != nil {
			return errors.Wrap(err, "health request")
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			err = errors.Errorf("health returned %s", resp.Status)
		}
		last = err

		select {
		case <-ctx.Done():
			if last != nil {
				return errors.Wrap(last, "server not healthy")
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
