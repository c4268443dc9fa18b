// Package scraper discovers podcast episodes on the show's directory
// page and extracts transcripts from individual episode pages.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	colly "github.com/gocolly/colly/v2"

	"github.com/koopa0/podrag/internal/log"
)

// ErrNoTranscript is returned when an episode page yields no transcript
// text even after the readability fallback.
var ErrNoTranscript = errors.New("no transcript found")

const (
	defaultDirectoryPath = "/podcast-directory"
	defaultUserAgent     = "podrag/1.0"
	defaultTimeout       = 30 * time.Second
	defaultParallelism   = 2
)

// episodePathRE matches episode links like /podcast/123.
var episodePathRE = regexp.MustCompile(`/podcast/(\d+)$`)

// Config controls crawling behavior.
type Config struct {
	// BaseURL is the show's site root, e.g. https://rationalreminder.ca.
	BaseURL string

	// DirectoryPath is the episode directory page path.
	// Default: /podcast-directory.
	DirectoryPath string

	// Parallelism caps concurrent requests per domain.
	Parallelism int

	// Delay is the politeness delay between requests to the same domain.
	Delay time.Duration

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// UserAgent identifies the crawler.
	UserAgent string
}

// EpisodeRef is one episode link found on the directory page.
type EpisodeRef struct {
	Number int64
	Title  string
	URL    string
}

// EpisodeDetails is the content extracted from an episode page.
type EpisodeDetails struct {
	Transcript    []string
	PublishedDate *time.Time
}

// Scraper crawls the podcast site.
type Scraper struct {
	baseURL       *url.URL
	directoryPath string
	parallelism   int
	delay         time.Duration
	timeout       time.Duration
	userAgent     string
	client        *http.Client
	logger        log.Logger
}

// New creates a scraper for the configured site.
func New(cfg Config, logger log.Logger) (*Scraper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute, got %q", cfg.BaseURL)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	s := &Scraper{
		baseURL:       base,
		directoryPath: cfg.DirectoryPath,
		parallelism:   cfg.Parallelism,
		delay:         cfg.Delay,
		timeout:       cfg.Timeout,
		userAgent:     cfg.UserAgent,
		logger:        logger.With("component", "scraper"),
	}
	if s.directoryPath == "" {
		s.directoryPath = defaultDirectoryPath
	}
	if s.parallelism <= 0 {
		s.parallelism = defaultParallelism
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.userAgent == "" {
		s.userAgent = defaultUserAgent
	}
	s.client = &http.Client{Timeout: s.timeout}
	return s, nil
}

// DiscoverEpisodes crawls the directory page and returns every episode
// link found, deduplicated by episode number and sorted ascending. The
// anchor text becomes the episode title.
func (s *Scraper) DiscoverEpisodes(ctx context.Context) ([]EpisodeRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := colly.NewCollector(
		colly.AllowedDomains(s.baseURL.Hostname()),
		colly.UserAgent(s.userAgent),
	)
	c.SetRequestTimeout(s.timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.parallelism,
		Delay:       s.delay,
	}); err != nil {
		return nil, fmt.Errorf("configuring rate limit: %w", err)
	}

	var (
		mu   sync.Mutex
		seen = make(map[int64]EpisodeRef)
	)
	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		match := episodePathRE.FindStringSubmatch(strings.TrimSuffix(link.Path, "/"))
		if match == nil {
			return
		}
		number, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return
		}

		title := strings.TrimSpace(e.Text)
		mu.Lock()
		defer mu.Unlock()
		if existing, ok := seen[number]; ok && existing.Title != "" {
			return
		}
		seen[number] = EpisodeRef{Number: number, Title: title, URL: href}
	})

	var crawlErr error
	c.OnError(func(r *colly.Response, err error) {
		crawlErr = fmt.Errorf("fetching %s: %w", r.Request.URL, err)
	})

	directoryURL := s.baseURL.JoinPath(s.directoryPath).String()
	if err := c.Visit(directoryURL); err != nil {
		return nil, fmt.Errorf("visiting directory page: %w", err)
	}
	c.Wait()
	if crawlErr != nil {
		return nil, crawlErr
	}

	refs := make([]EpisodeRef, 0, len(seen))
	for _, ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Number < refs[j].Number })

	s.logger.Info("discovered episodes", "count", len(refs), "url", directoryURL)
	return refs, nil
}

// FetchDetails downloads an episode page and extracts its transcript
// and publication date. The structured transcript section is preferred;
// when the page layout does not match, readability extraction of the
// article body is used instead.
func (s *Scraper) FetchDetails(ctx context.Context, episodeURL string) (*EpisodeDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, episodeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", episodeURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %d", episodeURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", episodeURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", episodeURL, err)
	}

	details := &EpisodeDetails{
		Transcript:    extractTranscript(doc),
		PublishedDate: extractPublishedDate(doc),
	}

	if len(details.Transcript) == 0 {
		details.Transcript = s.readabilityFallback(body, episodeURL)
	}
	if len(details.Transcript) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTranscript, episodeURL)
	}

	s.logger.Debug("fetched episode details",
		"url", episodeURL, "segments", len(details.Transcript))
	return details, nil
}

// extractTranscript pulls paragraphs from the content block whose
// heading announces the transcript.
func extractTranscript(doc *goquery.Document) []string {
	var segments []string
	doc.Find("div.sqs-html-content").Each(func(_ int, block *goquery.Selection) {
		if len(segments) > 0 {
			return
		}
		isTranscript := false
		block.Find("h1, h2, h3").EachWithBreak(func(_ int, heading *goquery.Selection) bool {
			if strings.Contains(strings.ToLower(heading.Text()), "read the transcript") {
				isTranscript = true
				return false
			}
			return true
		})
		if !isTranscript {
			return
		}
		block.Find("p").Each(func(_ int, p *goquery.Selection) {
			text := strings.TrimSpace(p.Text())
			if text != "" {
				segments = append(segments, text)
			}
		})
	})
	return segments
}

// extractPublishedDate reads the page's datePublished microdata.
func extractPublishedDate(doc *goquery.Document) *time.Time {
	value, ok := doc.Find(`meta[itemprop="datePublished"]`).Attr("content")
	if !ok {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}

// readabilityFallback extracts the article body when the structured
// transcript block is missing and splits it into paragraphs.
func (s *Scraper) readabilityFallback(body []byte, episodeURL string) []string {
	pageURL, err := url.Parse(episodeURL)
	if err != nil {
		return nil
	}
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		s.logger.Warn("readability extraction failed", "url", episodeURL, "error", err)
		return nil
	}

	var segments []string
	for _, para := range strings.Split(article.TextContent, "\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			segments = append(segments, para)
		}
	}
	return segments
}
