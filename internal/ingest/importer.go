// Package ingest imports customer reviews from RSS and Atom feeds so they can
// be analysed like submitted feedback.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/config"
)

// DefaultLimit caps the reviews taken from a single feed.
const DefaultLimit = 20

// Importer reads reviews from feeds, filling in missing bodies from the
// review page.
type Importer struct {
	client *http.Client
	limit  int
	log    *zap.Logger
}

// NewImporter creates an Importer. A non-positive limit uses DefaultLimit.
func NewImporter(limit int, timeout time.Duration, log *zap.Logger) *Importer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Importer{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		limit: limit,
		log:   log,
	}
}

// NewImporterFromConfig creates an Importer from the import settings.
func NewImporterFromConfig(cfg config.Import, log *zap.Logger) *Importer {
	return NewImporter(cfg.MaxPerFeed, cfg.FetchTimeout, log)
}

// Import returns the reviews of every feed in order. Feeds that fail are
// logged and skipped; reviews that end up without any text are dropped.
func (im *Importer) Import(ctx context.Context, feeds []config.Feed) ([]Review, error) {
	parser := gofeed.NewParser()
	parser.Client = im.client
	parser.UserAgent = userAgent
	pages := newPageFetcher(im.client)

	var all []Review
	for _, fc := range feeds {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		name := fc.Name
		if name == "" {
			name = sourceName(fc.URL)
		}

		reviews, err := parseFeed(ctx, parser, fc.URL, name, im.limit)
		if err != nil {
			im.log.Warn("failed to parse feed", zap.String("url", fc.URL), zap.Error(err))
			continue
		}

		kept := 0
		for _, r := range reviews {
			if r.Body == "" {
				body, err := pages.fetch(ctx, r.URL)
				if err != nil {
					im.log.Warn("review page unavailable", zap.String("url", r.URL), zap.Error(err))
				}
				r.Body = body
			}
			if r.Text() == "" {
				continue
			}
			all = append(all, r)
			kept++
		}
		im.log.Info("parsed feed", zap.String("source", name), zap.Int("reviews", kept))
	}
	return all, nil
}

// Submitter analyses one feedback text into a store.
type Submitter interface {
	SubmitFeedback(ctx context.Context, store analysis.Store, text string) (analysis.Submission, error)
}

// Result summarises a SubmitAll run.
type Result struct {
	Submitted      int `json:"submitted"`
	UpstreamFailed int `json:"upstream_failed"`
	Causes         int `json:"causes"`
}

// SubmitAll submits reviews one at a time. It stops at the first store error
// or when ctx is done.
func SubmitAll(ctx context.Context, sub Submitter, store analysis.Store, reviews []Review) (Result, error) {
	var res Result
	for _, r := range reviews {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, err := sub.SubmitFeedback(ctx, store, r.Text())
		if errors.Is(err, analysis.ErrEmptyFeedback) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("submitting review %s: %w", r.URL, err)
		}
		res.Submitted++
		res.Causes += len(s.Record.MainCauses)
		if s.UpstreamErr != nil {
			res.UpstreamFailed++
		}
	}
	return res, nil
}
