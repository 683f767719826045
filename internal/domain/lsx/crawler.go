package lsx

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/gocolly/colly/v2"
)

// ReportLink is a published Kursblatt file.
type ReportLink struct {
	URL  string
	Name string
}

// ReportCrawler discovers Kursblatt PDFs on the report page.
type ReportCrawler struct {
	client *Client
	logger *slog.Logger
}

// NewReportCrawler creates a crawler that shares the client's throttle and user agent.
func NewReportCrawler(client *Client, logger *slog.Logger) *ReportCrawler {
	return &ReportCrawler{client: client, logger: logger}
}

// Links returns every link on the report page whose target ends in "pdf", in page order
// without duplicates.
func (c *ReportCrawler) Links(ctx context.Context) ([]ReportLink, error) {
	if err := c.client.Wait(ctx); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.MaxDepth(1),
		colly.Async(false),
	)
	collector.SetRequestTimeout(c.client.http.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if c.client.userAgent != "" {
			r.Headers.Set("User-Agent", c.client.userAgent)
		}
	})

	seen := make(map[string]bool)
	var links []ReportLink
	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		href := strings.TrimSpace(e.Attr("href"))
		if !strings.HasSuffix(strings.ToLower(href), "pdf") {
			return
		}
		abs := e.Request.AbsoluteURL(href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		links = append(links, ReportLink{URL: abs, Name: reportName(abs)})
	})

	var visitErr error
	collector.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("failed to crawl %s (status %d): %w", r.Request.URL, r.StatusCode, err)
	})

	pageURL := c.client.URL(ReportsPath)
	if err := collector.Visit(pageURL); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("failed to visit %s: %w", pageURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if visitErr != nil {
		return nil, visitErr
	}

	c.logger.Info("report links discovered", slog.Int("links", len(links)))
	return links, nil
}

// reportName is the last path segment of the link, unescaped.
func reportName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return path.Base(rawURL)
	}
	name := path.Base(u.Path)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	return name
}
