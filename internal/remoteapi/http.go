package remoteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// Retry parameters, grounded on the teacher's internal/graph/client.go
// doRetry loop: base 1s, factor 2x, max 30s, jitter, bounded attempts.
const (
	maxRetries    = 5
	baseBackoff   = 1 * time.Second
	maxBackoff    = 30 * time.Second
	backoffFactor = 2.0
	jitterFrac    = 0.25
)

// TransientStatusError wraps an HTTP response whose status code indicates a
// transient failure (429, 5xx), so callers can classify it with errors.As
// per the taxonomy of spec.md §7.
type TransientStatusError struct {
	StatusCode int
}

func (e *TransientStatusError) Error() string {
	return fmt.Sprintf("remoteapi: transient HTTP status %d", e.StatusCode)
}

// PermanentStatusError wraps an HTTP response whose status code indicates a
// permanent failure (401, 403, 404, 409 on a non-retryable operation).
type PermanentStatusError struct {
	StatusCode int
}

func (e *PermanentStatusError) Error() string {
	return fmt.Sprintf("remoteapi: permanent HTTP status %d", e.StatusCode)
}

// HTTPClient is an http-based Client implementation, standing in for the
// content-repository service's real wire protocol (SPEC_FULL.md §6). It
// talks JSON over a REST-shaped API: GET /tree, GET /files/{id},
// PUT /files, POST /folders, POST /move, DELETE /nodes/{id},
// GET /nodes/{id}/hash.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	token      oauth2.TokenSource
	logger     *slog.Logger
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// NewHTTPClient builds an HTTPClient. httpClient defaults to
// http.DefaultClient if nil.
func NewHTTPClient(baseURL string, httpClient *http.Client, token oauth2.TokenSource, logger *slog.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		sleepFunc:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	var attempt int

	for {
		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("remoteapi: acquiring token: %w", err)
		}

		var bodyBytes []byte
		if body != nil {
			bodyBytes, err = io.ReadAll(body)
			if err != nil {
				return nil, fmt.Errorf("remoteapi: buffering request body: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("remoteapi: building request: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		req.Header.Set("User-Agent", "syncd/dev")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt >= maxRetries {
				return nil, fmt.Errorf("remoteapi: %s %s: %w", method, path, err)
			}

			if sleepErr := c.backoff(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}

			attempt++
			body = bytes.NewReader(bodyBytes)

			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()

			if attempt >= maxRetries {
				return nil, &TransientStatusError{StatusCode: resp.StatusCode}
			}

			if sleepErr := c.backoff(ctx, attempt); sleepErr != nil {
				return nil, sleepErr
			}

			attempt++
			body = bytes.NewReader(bodyBytes)

			continue
		}

		if resp.StatusCode >= http.StatusBadRequest {
			resp.Body.Close()

			return nil, &PermanentStatusError{StatusCode: resp.StatusCode}
		}

		return resp, nil
	}
}

func (c *HTTPClient) backoff(ctx context.Context, attempt int) error {
	d := time.Duration(float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt)))
	if d > maxBackoff {
		d = maxBackoff
	}

	jitter := 1 + jitterFrac*(2*rand.Float64()-1)
	d = time.Duration(float64(d) * jitter)

	c.logger.Warn("remoteapi: retrying after transient error",
		slog.Int("attempt", attempt),
		slog.Duration("backoff", d),
	)

	return c.sleepFunc(ctx, d)
}

func (c *HTTPClient) ListTree(ctx context.Context, project string) ([]Entry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/tree?project="+url.QueryEscape(project), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("remoteapi: decoding tree listing: %w", err)
	}

	return entries, nil
}

func (c *HTTPClient) FetchFile(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

func (c *HTTPClient) Upload(ctx context.Context, project, path string, content io.Reader) (Entry, error) {
	q := "?project=" + url.QueryEscape(project) + "&path=" + url.QueryEscape(path)

	resp, err := c.do(ctx, http.MethodPut, "/files"+q, content)
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	var e Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("remoteapi: decoding upload response: %w", err)
	}

	return e, nil
}

func (c *HTTPClient) CreateFolder(ctx context.Context, project, path string) (Entry, error) {
	payload, _ := json.Marshal(map[string]string{"project": project, "path": path})

	resp, err := c.do(ctx, http.MethodPost, "/folders", bytes.NewReader(payload))
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	var e Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("remoteapi: decoding folder-create response: %w", err)
	}

	return e, nil
}

func (c *HTTPClient) Move(ctx context.Context, project, id, newPath string) (Entry, error) {
	payload, _ := json.Marshal(map[string]string{"project": project, "id": id, "new_path": newPath})

	resp, err := c.do(ctx, http.MethodPost, "/move", bytes.NewReader(payload))
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	var e Entry
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return Entry{}, fmt.Errorf("remoteapi: decoding move response: %w", err)
	}

	return e, nil
}

func (c *HTTPClient) Delete(ctx context.Context, project, id string) error {
	q := "?project=" + url.QueryEscape(project)

	resp, err := c.do(ctx, http.MethodDelete, "/nodes/"+url.PathEscape(id)+q, nil)
	if err != nil {
		return err
	}

	return resp.Body.Close()
}

func (c *HTTPClient) ContentHash(ctx context.Context, project, id string) (string, error) {
	q := "?project=" + url.QueryEscape(project)

	resp, err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(id)+"/hash"+q, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Hash string `json:"hash"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("remoteapi: decoding hash response: %w", err)
	}

	return out.Hash, nil
}

var _ Client = (*HTTPClient)(nil)
