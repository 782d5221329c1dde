// Package collyfetcher fetches last-played listing pages using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
)

// DefaultUserAgent is the browser identity sent when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:58.0) Gecko/20100101 Firefox/58.0"

// ErrEmptyBaseURL is returned by New when no listing URL is configured.
var ErrEmptyBaseURL = errors.New("base url is required")

// Config controls collector behavior.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.PageFetcher and crawler.Warmer using the Colly collector.
type Fetcher struct {
	cfg           Config
	base          *url.URL
	baseCollector *colly.Collector
	logger        *zap.Logger
}

var (
	_ crawler.PageFetcher = (*Fetcher)(nil)
	_ crawler.Warmer      = (*Fetcher)(nil)
)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// StatusError reports a non-2xx answer from the listing.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.BaseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = true

	return &Fetcher{
		cfg:           cfg,
		base:          base,
		baseCollector: c,
		logger:        logger,
	}, nil
}

// PageURL returns the listing URL for the given page number.
func (f *Fetcher) PageURL(page int) string {
	u := *f.base
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Warm issues one plain GET of the listing root so the site sets its cookies
// before the first page request.
func (f *Fetcher) Warm(ctx context.Context) error {
	if _, err := f.get(ctx, f.base.String(), false); err != nil {
		return fmt.Errorf("warm-up: %w", err)
	}
	f.logger.Debug("Warm-up request done", zap.String("url", f.base.String()))
	return nil
}

// FetchPage downloads and parses one listing page.
func (f *Fetcher) FetchPage(ctx context.Context, page int) ([]crawler.Row, error) {
	listing, err := f.fetchListing(ctx, page)
	if errors.Is(err, ErrBadPagination) {
		// Only page 1 needs the pagination summary.
		f.logger.Debug("Ignoring unreadable pagination", zap.Int("page", page), zap.Error(err))
		err = nil
	}
	if err != nil {
		return nil, err
	}
	return listing.Rows, nil
}

// FetchFirstPage downloads page 1 together with its pagination summary.
func (f *Fetcher) FetchFirstPage(ctx context.Context) (crawler.Listing, error) {
	listing, err := f.fetchListing(ctx, 1)
	if err != nil {
		return crawler.Listing{}, err
	}
	if listing.Newest == "" {
		return crawler.Listing{}, fmt.Errorf("page 1 lists no songs")
	}
	return listing, nil
}

func (f *Fetcher) fetchListing(ctx context.Context, page int) (crawler.Listing, error) {
	target := f.PageURL(page)
	body, err := f.get(ctx, target, true)
	if err != nil {
		return crawler.Listing{}, err
	}
	listing, err := ParseListing(bytes.NewReader(body))
	if err != nil {
		return listing, fmt.Errorf("parse %s: %w", target, err)
	}
	return listing, nil
}

func (f *Fetcher) get(ctx context.Context, target string, xhr bool) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, xhr, &body, &fetchErr)

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, xhr bool, body *[]byte, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		if !xhr {
			return
		}
		r.Headers.Set("Accept", "text/html, */*; q=0.01")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("Referer", f.PageURL(1))
		r.Headers.Set("X-Requested-With", "XMLHttpRequest")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = &StatusError{URL: r.Request.URL.String(), StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
