package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mdwatch/regpulse/pkg/domain"
)

// FetchCause classifies why a fetch failed
type FetchCause string

// fetch failure causes
const (
	CauseTimeout FetchCause = "timeout"
	CauseStatus  FetchCause = "http_status"
	CauseNetwork FetchCause = "network"
)

// FetchError describes a failed retrieval. The fetcher never retries;
// retry policy belongs to the coordinator.
type FetchError struct {
	URL        string
	Cause      FetchCause
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Cause == CauseStatus {
		return fmt.Sprintf("fetch %s: unexpected status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Cause, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher performs single HTTP retrievals with timeout, user-agent and
// content-type negotiation appropriate to the source kind.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	maxBodySize int64
}

// NewFetcher creates an HTTP fetcher
func NewFetcher(timeout time.Duration, userAgent string, maxBodySize int64) *Fetcher {
	if maxBodySize <= 0 {
		maxBodySize = 5 << 20
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent:   userAgent,
		maxBodySize: maxBodySize,
	}
}

// Fetch retrieves the body and content type from the given URL. Non-2xx
// status, timeout and transport failures all surface as *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, url string, kind domain.SourceKind) (body []byte, contentType string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	addBrowserHeaders(req, kind)

	resp, err := f.client.Do(req)
	if err != nil {
		cause := CauseNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			cause = CauseTimeout
		}
		return nil, "", &FetchError{URL: url, Cause: cause, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &FetchError{URL: url, Cause: CauseStatus, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		cause := CauseNetwork
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			cause = CauseTimeout
		}
		return nil, "", &FetchError{URL: url, Cause: cause, Err: err}
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// isTimeout reports whether err carries a network timeout
func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
