// Package scrape implements link metadata scraping using gocolly. Outbound
// hyperlinks found in post content are previewed with the target page's
// title, description and social image.
package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/jaehyun-p/notion-ingest/internal/ingest"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Scraper fetches page metadata for outbound links.
type Scraper struct {
	cfg           Config
	baseCollector *colly.Collector
	log           *zap.Logger
}

// New builds a Scraper.
func New(cfg Config, log *zap.Logger) *Scraper {
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	return &Scraper{cfg: cfg, baseCollector: c, log: log}
}

// Scrape visits url and extracts its title, description and preview image.
// Open Graph tags win over the plain HTML equivalents when both exist.
func (s *Scraper) Scrape(ctx context.Context, url string) (ingest.LinkMetadata, error) {
	meta := ingest.LinkMetadata{URL: url}
	var fetchErr error

	collector := s.baseCollector.Clone()
	if s.cfg.UserAgent != "" {
		collector.UserAgent = s.cfg.UserAgent
	}
	timeout := s.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnHTML("title", func(e *colly.HTMLElement) {
		if meta.Title == "" {
			meta.Title = strings.TrimSpace(e.Text)
		}
	})
	collector.OnHTML(`meta[name="description"]`, func(e *colly.HTMLElement) {
		if meta.Description == "" {
			meta.Description = e.Attr("content")
		}
	})
	collector.OnHTML(`meta[property="og:title"]`, func(e *colly.HTMLElement) {
		if content := e.Attr("content"); content != "" {
			meta.Title = content
		}
	})
	collector.OnHTML(`meta[property="og:description"]`, func(e *colly.HTMLElement) {
		if content := e.Attr("content"); content != "" {
			meta.Description = content
		}
	})
	collector.OnHTML(`meta[property="og:image"]`, func(e *colly.HTMLElement) {
		meta.Image = e.Attr("content")
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := s.visit(ctx, collector, url); err != nil {
		return ingest.LinkMetadata{}, err
	}
	if fetchErr != nil {
		return ingest.LinkMetadata{}, fmt.Errorf("scrape %q: %w", url, fetchErr)
	}
	return meta, nil
}

func (s *Scraper) visit(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("scrape canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %q: %w", url, err)
		}
		return nil
	}
}
