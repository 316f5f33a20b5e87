// Package volumeclient is the HTTP client the coordinator uses to talk to
// dumb volume servers: PUT/GET/HEAD/DELETE against a volume id and a
// key2path-shaped path, with separate timeout tiers for probes vs transfers.
package volumeclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to volume servers over plain HTTP. HEAD probes use a short,
// configurable timeout (voltimeout); PUT/GET/DELETE use a longer, fixed one,
// since those carry object bodies and a fast HEAD timeout would abort a
// legitimate large transfer.
type Client struct {
	probe    *http.Client
	transfer *http.Client
}

// transferTimeout bounds PUT/GET/DELETE requests. Grounded on the teacher's
// own ingress server timeout (pkg/ingress/proxy.go uses a 30s upstream
// deadline).
const transferTimeout = 30 * time.Second

// New returns a Client whose HEAD probes honor voltimeout.
func New(voltimeout time.Duration) *Client {
	return &Client{
		probe:    &http.Client{Timeout: voltimeout},
		transfer: &http.Client{Timeout: transferTimeout},
	}
}

func url(volume, path string) string {
	return fmt.Sprintf("http://%s%s", volume, path)
}

// Head reports whether volume holds the object at path. Any non-200
// response, transport error, or timeout is treated as absent.
func (c *Client) Head(ctx context.Context, volume, path string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url(volume, path), nil)
	if err != nil {
		return false
	}
	resp, err := c.probe.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Get fetches the object body from volume. The caller must close the
// returned ReadCloser.
func (c *Client) Get(ctx context.Context, volume, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url(volume, path), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.transfer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("volumeclient: GET %s: %w", volume, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("volumeclient: GET %s: status %d", volume, resp.StatusCode)
	}
	return resp.Body, nil
}

// Put writes body (exactly size bytes) to volume at path. body is consumed
// but not closed.
func (c *Client) Put(ctx context.Context, volume, path string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url(volume, path), body)
	if err != nil {
		return err
	}
	req.ContentLength = size
	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("volumeclient: PUT %s: %w", volume, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("volumeclient: PUT %s: status %d", volume, resp.StatusCode)
	}
	return nil
}

// Delete removes the object at path from volume. A 404 counts as success:
// the end state (object absent) is what matters.
func (c *Client) Delete(ctx context.Context, volume, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url(volume, path), nil)
	if err != nil {
		return err
	}
	resp, err := c.transfer.Do(req)
	if err != nil {
		return fmt.Errorf("volumeclient: DELETE %s: %w", volume, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("volumeclient: DELETE %s: status %d", volume, resp.StatusCode)
	}
	return nil
}
