package ingest

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Review is one customer review taken from a feed.
type Review struct {
	URL       string
	Title     string
	Author    string
	Source    string
	Published time.Time // zero when the feed gave no date
	Body      string
}

// Text is the feedback text submitted for analysis.
func (r Review) Text() string {
	switch {
	case r.Title == "" || strings.Contains(r.Body, r.Title):
		return r.Body
	case r.Body == "":
		return r.Title
	default:
		return r.Title + "\n" + r.Body
	}
}

func parseFeed(ctx context.Context, parser *gofeed.Parser, feedURL, source string, limit int) ([]Review, error) {
	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var reviews []Review
	for _, item := range feed.Items {
		if limit > 0 && len(reviews) >= limit {
			break
		}
		review, ok := parseItem(item, source)
		if !ok {
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

func parseItem(item *gofeed.Item, source string) (Review, bool) {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}

	r := Review{
		URL:    itemURL,
		Title:  strings.TrimSpace(item.Title),
		Source: source,
	}
	if item.Author != nil {
		r.Author = item.Author.Name
	}
	if item.PublishedParsed != nil {
		r.Published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		r.Published = *item.UpdatedParsed
	}

	if item.Content != "" {
		r.Body = stripHTML(item.Content)
	} else if item.Description != "" {
		r.Body = stripHTML(item.Description)
	}

	if r.Body == "" && r.URL == "" {
		return Review{}, false
	}
	return r, true
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	return strings.Join(strings.Fields(s), " ")
}

func sourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Hostname() == "" {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "rss.", "feeds.", "itunes."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		host = parts[len(parts)-2]
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
