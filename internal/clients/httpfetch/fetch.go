package httpfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tigerphoto/photobooth-backend/internal/apperr"
)

// Fetcher downloads third-party image bytes (source photos, webhook result
// urls). Failures classify as ExternalServiceFailure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

type fetcher struct {
	httpClient *http.Client
}

func New() Fetcher {
	return &fetcher{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

func (f *fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperr.Externalf(err, "building fetch request for %s", url)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", apperr.Externalf(err, "fetching %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", apperr.Externalf(fmt.Errorf("http %d", resp.StatusCode), "fetching %s", url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperr.Externalf(err, "reading body of %s", url)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
