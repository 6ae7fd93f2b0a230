// Package wiki queries the Stardew Valley wiki: full-text search with
// disambiguation, infobox text extraction, and page screenshots.
package wiki

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/Moitr/stardew-qq-wikibot/pkg/config"
)

// Kind tags a search outcome.
type Kind int

const (
	// KindEmpty means the query matched nothing.
	KindEmpty Kind = iota
	// KindDirect means the wiki redirected straight to one entry.
	KindDirect
	// KindDisambiguation means multiple candidates need a user pick.
	KindDisambiguation
)

// Candidate is one search hit.
type Candidate struct {
	Title string
	URL   string
}

// Result is a classified search outcome with its user-facing text.
type Result struct {
	Kind       Kind
	Text       string
	Candidates []Candidate
}

// Client talks to the wiki over HTTP and drives the screenshot browser.
type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
	shotDir string

	mu      sync.Mutex
	browser browserHandle
}

// New builds a wiki client from config.
func New(cfg config.WikiConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpc:   &http.Client{Timeout: 20 * time.Second},
		log:     log.With("component", "wiki"),
		shotDir: cfg.ScreenshotDir,
	}
}

// Search runs a full-text query. The wiki either lists result headings,
// redirects straight to an entry page, or shows an empty result page;
// the three cases map onto the three result kinds.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	searchURL := c.baseURL + "/index.php?search=" + url.QueryEscape(query)
	c.log.Info("Searching", "query", query)

	doc, finalURL, err := c.fetchDocument(ctx, searchURL)
	if err != nil {
		return Result{}, fmt.Errorf("search %q: %w", query, err)
	}

	headings := elementsByClass(doc, "mw-search-result-heading")
	if len(headings) == 0 {
		return c.classifyNoHeadings(ctx, query, searchURL, finalURL, doc)
	}

	candidates := make([]Candidate, 0, len(headings))
	for _, heading := range headings {
		link := firstElement(heading, "a")
		if link == nil {
			continue
		}
		title := strings.TrimSpace(nodeText(link))
		href := attrValue(link, "href")
		if title == "" || href == "" {
			continue
		}
		if strings.HasPrefix(href, "/") {
			href = c.baseURL + href
		}
		candidates = append(candidates, Candidate{Title: title, URL: href})
	}

	if len(candidates) == 0 {
		return c.emptyResult(query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "'%s' 的搜索结果：", query)
	for i, candidate := range candidates {
		fmt.Fprintf(&sb, "\n%d.%s", i+1, candidate.Title)
	}

	c.log.Info("Search returned candidates", "query", query, "count", len(candidates))
	return Result{Kind: KindDisambiguation, Text: sb.String(), Candidates: candidates}, nil
}

// classifyNoHeadings decides between a direct redirect hit and a true
// empty result when the search page carries no result headings.
func (c *Client) classifyNoHeadings(ctx context.Context, query, searchURL, finalURL string, doc *html.Node) (Result, error) {
	if finalURL == searchURL {
		return c.emptyResult(query), nil
	}

	heading := elementByID(doc, "firstHeading")
	if heading == nil {
		return c.emptyResult(query), nil
	}

	title := strings.TrimSpace(nodeText(heading))
	if title == "" || strings.Contains(title, "搜索结果") || strings.Contains(title, "Search results") {
		return c.emptyResult(query), nil
	}

	entryURL := finalURL
	if idx := strings.Index(finalURL, "/index.php?title="); idx >= 0 {
		param := finalURL[idx+len("/index.php?title="):]
		if amp := strings.Index(param, "&"); amp >= 0 {
			param = param[:amp]
		}
		entryURL = c.baseURL + "/index.php?title=" + param
	}

	c.log.Info("Search redirected to entry", "query", query, "title", title, "url", entryURL)

	infobox, err := c.InfoboxText(ctx, entryURL)
	if err != nil {
		c.log.Error("Infobox fetch failed", "url", entryURL, "error", err)
		infobox = ""
	}

	return Result{
		Kind:       KindDirect,
		Text:       fmt.Sprintf("%s\n更多信息：%s", infobox, entryURL),
		Candidates: []Candidate{{Title: title, URL: entryURL}},
	}, nil
}

func (c *Client) emptyResult(query string) Result {
	c.log.Info("Search returned nothing", "query", query)
	return Result{
		Kind: KindEmpty,
		Text: fmt.Sprintf("乌啦啦，呀～没有找到与 '%s' 相关的Wiki条目。", query),
	}
}

// fetchDocument GETs a page and parses it, returning the final URL after
// any redirects.
func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*html.Node, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}

	return doc, resp.Request.URL.String(), nil
}
