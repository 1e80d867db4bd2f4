package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
)

const userAgent = "FeedbackLens/1.0 (review importer)"

// minPageText is the shortest extracted page text accepted as a review body.
const minPageText = 40

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%d %s", e.code, http.StatusText(e.code))
}

// pageFetcher extracts the readable text of review pages. A host that
// answered with an HTTP error is not contacted again by the same fetcher.
type pageFetcher struct {
	client        *http.Client
	failedDomains map[string]struct{}
}

func newPageFetcher(client *http.Client) *pageFetcher {
	return &pageFetcher{client: client, failedDomains: make(map[string]struct{})}
}

// fetch returns the page text, or "" when nothing usable was extracted.
// Only HTTP error statuses are returned as errors.
func (f *pageFetcher) fetch(ctx context.Context, pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", nil
	}
	domain := strings.ToLower(u.Host)
	if _, failed := f.failedDomains[domain]; failed {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		f.failedDomains[domain] = struct{}{}
		return "", &statusError{code: resp.StatusCode}
	}

	article, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return "", nil
	}

	text := strings.Join(strings.Fields(article.TextContent), " ")
	if len(text) < minPageText {
		return "", nil
	}
	return text, nil
}
