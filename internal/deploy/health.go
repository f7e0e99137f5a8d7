package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrNotHealthy = errors.New("not healthy")

// poll calls check every interval until it reports done, returns an error
// that is not ErrNotHealthy, or timeout elapses. The first check runs
// immediately.
func poll(ctx context.Context, interval, timeout time.Duration, check func(context.Context) error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		last = check(ctx)
		if last == nil {
			return nil
		}
		if !errors.Is(last, ErrNotHealthy) {
			return last
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %s: %w", timeout, last)
		case <-ticker.C:
		}
	}
}

// WaitForHTTP polls url until it answers 2xx.
func WaitForHTTP(ctx context.Context, url string, interval, timeout time.Duration) error {
	client := &http.Client{Timeout: interval}
	if interval < time.Second {
		client.Timeout = time.Second
	}
	return poll(ctx, interval, timeout, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrNotHealthy, url, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: %s answered %d", ErrNotHealthy, url, resp.StatusCode)
		}
		return nil
	})
}

const inspectFormat = "{{if .State.Health}}{{.State.Health.Status}}{{else}}{{.State.Status}}{{end}}"

// WaitForContainer polls docker until the container's healthcheck passes,
// or until it is running when it has no healthcheck. A container that
// exits is reported at once.
func WaitForContainer(ctx context.Context, runner Runner, name string, interval, timeout time.Duration) error {
	return poll(ctx, interval, timeout, func(ctx context.Context) error {
		out, err := runner.Run(ctx, "docker", "inspect", "-f", inspectFormat, name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrNotHealthy, err)
		}
		switch state := strings.TrimSpace(out); state {
		case "healthy", "running":
			return nil
		case "exited", "dead":
			return fmt.Errorf("container %s is %s", name, state)
		default:
			return fmt.Errorf("%w: container %s is %s", ErrNotHealthy, name, state)
		}
	})
}
