// Package smapi validates smapi.io/log share links and downloads a
// cleaned copy of the raw game log for analysis.
package smapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Moitr/stardew-qq-wikibot/pkg/config"
)

var (
	fetchURIPattern = regexp.MustCompile(`fetchUri:\s*"([^"]+)"`)
	logIDPattern    = regexp.MustCompile(`/log/([a-f0-9]+)`)
)

// ErrUnparsable means the log service could not parse the shared log.
var ErrUnparsable = errors.New("log could not be parsed")

// browserHeaders mimic a desktop browser; the log service rejects bare
// client requests.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
	"Cache-Control":   "no-cache, no-store, must-revalidate",
	"Pragma":          "no-cache",
}

// logPayload is the JSON the log service returns from its fetch URI.
type logPayload struct {
	Error           string `json:"Error"`
	RawText         string `json:"RawText"`
	IsSplitScreen   *bool  `json:"IsSplitScreen"`
	GamePath        string `json:"GamePath"`
	OperatingSystem string `json:"OperatingSystem"`
	GameVersion     string `json:"GameVersion"`
}

// Client downloads and cleans shared logs.
type Client struct {
	httpc      *http.Client
	saveDir    string
	fetchDelay time.Duration
	log        *slog.Logger
}

// New builds a log client from config.
func New(cfg config.SmapiConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		httpc:      &http.Client{Timeout: 10 * time.Second},
		saveDir:    cfg.SaveDir,
		fetchDelay: 3 * time.Second,
		log:        log.With("component", "smapi"),
	}
}

// FetchLog validates a share link, downloads the raw log, strips the
// noise levels (TRACE/INFO/DEBUG), appends the environment summary
// fields, saves the result under the save directory, and returns the
// file path. ErrUnparsable wraps the service-side parse failure.
func (c *Client) FetchLog(ctx context.Context, shareURL string) (string, error) {
	page, err := c.get(ctx, shareURL)
	if err != nil {
		return "", fmt.Errorf("fetch log page: %w", err)
	}

	match := fetchURIPattern.FindStringSubmatch(string(page))
	if match == nil {
		return "", ErrUnparsable
	}
	fetchURI := match[1]

	// The service populates the fetch endpoint shortly after rendering
	// the page; an immediate request races it.
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(c.fetchDelay):
	}

	body, err := c.get(ctx, fetchURI)
	if err != nil {
		return "", fmt.Errorf("fetch log body: %w", err)
	}

	var payload logPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode log payload: %w", err)
	}
	if payload.Error != "" {
		c.log.Info("Log service reported parse error", "url", shareURL, "error", payload.Error)
		return "", ErrUnparsable
	}
	if payload.RawText == "" {
		return "", ErrUnparsable
	}

	cleaned := cleanLogText(payload.RawText)
	if summary := payload.summary(); summary != "" {
		cleaned += "\n\n" + summary
	}

	if err := os.MkdirAll(c.saveDir, 0o755); err != nil {
		return "", fmt.Errorf("create save dir: %w", err)
	}
	path := filepath.Join(c.saveDir, fileName(shareURL))
	if err := os.WriteFile(path, []byte(cleaned), 0o644); err != nil {
		return "", fmt.Errorf("save log: %w", err)
	}

	c.log.Info("Log saved", "url", shareURL, "path", path, "bytes", len(cleaned))
	return path, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for key, value := range browserHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// cleanLogText drops TRACE/INFO/DEBUG lines, trims trailing whitespace,
// and collapses runs of blank lines.
func cleanLogText(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		if strings.Contains(line, "TRACE") || strings.Contains(line, "INFO") || strings.Contains(line, "DEBUG") {
			continue
		}
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if prevEmpty {
				continue
			}
			prevEmpty = true
		} else {
			prevEmpty = false
		}
		cleaned = append(cleaned, line)
	}

	return strings.Join(cleaned, "\n")
}

// summary renders the environment fields the analysis prompt wants to
// see alongside the errors.
func (p logPayload) summary() string {
	var lines []string
	if p.IsSplitScreen != nil {
		lines = append(lines, fmt.Sprintf("IsSplitScreen: %v", *p.IsSplitScreen))
	}
	if p.GamePath != "" {
		lines = append(lines, "GamePath: "+p.GamePath)
	}
	if p.OperatingSystem != "" {
		lines = append(lines, "OperatingSystem: "+p.OperatingSystem)
	}
	if p.GameVersion != "" {
		lines = append(lines, "GameVersion: "+p.GameVersion)
	}

	return strings.Join(lines, "\n")
}

func fileName(shareURL string) string {
	if match := logIDPattern.FindStringSubmatch(shareURL); match != nil {
		return "smapi_log_" + match[1] + ".txt"
	}
	return "smapi_log.txt"
}
