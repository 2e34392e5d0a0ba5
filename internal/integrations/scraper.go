package integrations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/apichanges/internal/httputil"
	"github.com/TobiSchelling/apichanges/internal/jsonfile"
	"github.com/TobiSchelling/apichanges/internal/model"
)

// IndexEntry is one row of the site's integration index.
type IndexEntry struct {
	URL string `json:"url"`
}

// LoadIndex reads the integration index and resolves each entry against siteURL.
func LoadIndex(path, siteURL string) ([]string, error) {
	var entries []IndexEntry
	if err := jsonfile.Read(path, &entries); err != nil {
		return nil, err
	}
	base, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("parsing site url: %w", err)
	}

	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.TrimSpace(e.URL) == "" {
			continue
		}
		ref, err := url.Parse(strings.TrimPrefix(e.URL, "/"))
		if err != nil {
			log.Warn().Str("url", e.URL).Err(err).Msg("skipping malformed index entry")
			continue
		}
		urls = append(urls, base.ResolveReference(ref).String())
	}
	return urls, nil
}

// CanonicalAPI is the identifier recorded for a page URL.
func CanonicalAPI(pageURL string) string {
	return strings.TrimSuffix(pageURL, "/")
}

// Options configures a Scraper.
type Options struct {
	UserAgent         string
	RequestsPerSecond float64
	Timeout           time.Duration
	RobotsTTL         time.Duration
	MaxRetries        int
}

// Report summarises one scrape.
type Report struct {
	Fetched    int // pages parsed into an integration
	Structure  int // pages skipped for missing page structure
	Failed     int // pages that could not be fetched
	Disallowed int // pages excluded by robots.txt
	Kept       int // integrations passing the save filter
}

// Scraper fetches integration pages politely and extracts their metadata.
type Scraper struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	robots     *robotsChecker

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
}

// NewScraper builds a scraper from opts.
func NewScraper(opts Options) *Scraper {
	if opts.UserAgent == "" {
		opts.UserAgent = "apichanges/1.0"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RobotsTTL == 0 {
		opts.RobotsTTL = time.Hour
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	client := &http.Client{Timeout: opts.Timeout}
	return &Scraper{
		client:     client,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		robots:     newRobotsChecker(client, opts.UserAgent, opts.RobotsTTL),
		limiters:   make(map[string]*rate.Limiter),
		limit:      limit,
	}
}

// Scrape visits every page in order and returns the integrations that pass
// the save filter. Per-page failures are logged and skipped; only context
// cancellation aborts the scrape.
func (s *Scraper) Scrape(ctx context.Context, pages []string) ([]model.Integration, Report, error) {
	var report Report
	var all []model.Integration

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}

		ok, delay := s.robots.allowed(ctx, page)
		if !ok {
			report.Disallowed++
			log.Warn().Str("url", page).Msg("disallowed by robots.txt")
			continue
		}

		integration, err := s.FetchPage(ctx, page, delay)
		switch {
		case err == nil:
			report.Fetched++
			all = append(all, integration)
			log.Debug().Str("api", integration.API).Str("iot_class", integration.IoTClass).Msg("scraped integration")
		case ctx.Err() != nil:
			return nil, report, ctx.Err()
		case errors.Is(err, ErrMissingSidebar), errors.Is(err, ErrMissingIntro):
			report.Structure++
			log.Warn().Str("url", page).Err(err).Msg("skipping page")
		default:
			report.Failed++
			log.Warn().Str("url", page).Err(err).Msg("fetch failed")
		}
	}

	kept := Keep(all)
	report.Kept = len(kept)
	log.Info().Int("fetched", report.Fetched).Int("kept", report.Kept).
		Int("structure", report.Structure).Int("failed", report.Failed).Msg("scrape complete")
	return kept, report, nil
}

// FetchPage downloads and extracts a single page after waiting for the
// host's rate limit and crawl delay.
func (s *Scraper) FetchPage(ctx context.Context, page string, crawlDelay time.Duration) (model.Integration, error) {
	u, err := url.Parse(page)
	if err != nil {
		return model.Integration{}, fmt.Errorf("parsing %s: %w", page, err)
	}
	if err := s.limiter(u.Host).Wait(ctx); err != nil {
		return model.Integration{}, err
	}
	if crawlDelay > 0 {
		select {
		case <-ctx.Done():
			return model.Integration{}, ctx.Err()
		case <-time.After(crawlDelay):
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return model.Integration{}, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := httputil.DoWithRetry(ctx, s.client, req, s.maxRetries)
	if err != nil {
		return model.Integration{}, fmt.Errorf("fetching %s: %w", page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Integration{}, fmt.Errorf("fetching %s: %s", page, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Integration{}, fmt.Errorf("reading %s: %w", page, err)
	}
	return Extract(string(body), CanonicalAPI(page))
}

func (s *Scraper) limiter(host string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[host]
	if !ok {
		l = rate.NewLimiter(s.limit, 1)
		s.limiters[host] = l
	}
	return l
}
