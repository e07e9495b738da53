// Package footprint scrapes the newest case-footprint bulletin from the
// disease control site and returns the paths of its images.
package footprint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/money626/epidemic-servey-chatbot/common/retry"
)

const (
	DefaultOrigin   = "https://www.cdc.gov.tw"
	DefaultListPath = "/Bulletin/List/MmgtpeidAR5Ooai4-fgHzQ"
	DefaultKeyword  = "確診者足跡"

	// uploadsPrefix selects bulletin images among all <img> tags.
	uploadsPrefix = "/Uploads/"

	maxPageBytes = 4 << 20
)

// ErrFetch wraps every network or parse failure.
var ErrFetch = errors.New("footprint fetch failed")

// Config configures a Fetcher. Zero values fall back to the defaults above.
type Config struct {
	// ListURL is the bulletin search page; the keyword is POSTed to it.
	ListURL string
	// Origin resolves the article link found on the list page.
	Origin     string
	Keyword    string
	HTTPClient *http.Client
	Retry      retry.Policy
}

// Fetcher implements the two-step scrape: search the bulletin list, then
// collect the upload images of the first article.
type Fetcher struct {
	listURL string
	origin  string
	keyword string
	client  *http.Client
	retry   retry.Policy
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	f := &Fetcher{
		listURL: cfg.ListURL,
		origin:  strings.TrimRight(cfg.Origin, "/"),
		keyword: cfg.Keyword,
		client:  cfg.HTTPClient,
		retry:   cfg.Retry,
	}
	if f.origin == "" {
		f.origin = DefaultOrigin
	}
	if f.listURL == "" {
		f.listURL = f.origin + DefaultListPath
	}
	if f.keyword == "" {
		f.keyword = DefaultKeyword
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 20 * time.Second}
	}
	if f.retry.Attempts == 0 {
		f.retry = retry.Default
	}
	return f
}

// Fetch returns the relative /Uploads/ image paths of the newest matching
// bulletin, in page order. An article without such images yields an empty
// slice and no error.
func (f *Fetcher) Fetch(ctx context.Context) ([]string, error) {
	form := url.Values{"keyword": {f.keyword}}
	list, err := f.document(ctx, http.MethodPost, f.listURL, form)
	if err != nil {
		return nil, err
	}

	href, ok := list.Find("div.content-boxes-v3 a").First().Attr("href")
	if !ok || href == "" {
		return nil, fmt.Errorf("%w: no bulletin link on list page", ErrFetch)
	}
	articleURL := href
	if strings.HasPrefix(href, "/") {
		articleURL = f.origin + href
	}

	article, err := f.document(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return nil, err
	}

	paths := []string{}
	article.Find("img").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.HasPrefix(src, uploadsPrefix) {
			paths = append(paths, src)
		}
	})
	slog.Debug("footprint fetched", "article", articleURL, "images", len(paths))
	return paths, nil
}

func (f *Fetcher) document(ctx context.Context, method, target string, form url.Values) (*goquery.Document, error) {
	var doc *goquery.Document
	err := retry.Do(ctx, f.retry, func(ctx context.Context) error {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return retry.Permanent(err)
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("%s %s: status %d", method, target, resp.StatusCode)
			if resp.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		d, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
		if err != nil {
			return retry.Permanent(err)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return doc, nil
}
