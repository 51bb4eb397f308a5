// Package parser extracts plain text from proposal documents on disk or
// behind a URL.
package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xhad/evaluator/internal/models"
	"golang.org/x/time/rate"
)

var ErrUnsupported = errors.New("unsupported document type")

var idPattern = regexp.MustCompile(`[^a-z0-9_-]+`)

type ParserConfig struct {
	Extensions []string
	RateLimit  float64 // remote fetches per second
	Timeout    time.Duration
	MaxBytes   int64
}

type Parser struct {
	config  ParserConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ParserConfig) *Parser {
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".pdf", ".html", ".htm", ".txt", ".md"}
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxBytes == 0 {
		config.MaxBytes = 64 << 20
	}

	return &Parser{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Supports reports whether name carries one of the configured extensions.
func (p *Parser) Supports(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range p.config.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// ProposalID derives a stable collection key from a file name.
func ProposalID(name string) string {
	stem := strings.TrimSuffix(path.Base(filepath.ToSlash(name)), filepath.Ext(name))
	id := idPattern.ReplaceAllString(strings.ToLower(stem), "-")
	return strings.Trim(id, "-")
}

func (p *Parser) ParseFile(filePath string) (*models.Proposal, error) {
	if !p.Supports(filePath) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, filePath)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, err
	}
	if info.Size() > p.config.MaxBytes {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d", filePath, info.Size(), p.config.MaxBytes)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	proposal, err := p.parse(filepath.Ext(filePath), data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	proposal.ID = ProposalID(filePath)
	proposal.Source = filePath
	proposal.Metadata["size"] = info.Size()
	proposal.Metadata["modified"] = info.ModTime().UTC().Format(time.RFC3339)
	return proposal, nil
}

// ParseURL fetches a single remote proposal, respecting the fetch rate limit.
func (p *Parser) ParseURL(ctx context.Context, rawURL string) (*models.Proposal, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid proposal URL: %s", rawURL)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rawURL, err)
	}

	ext := extForContentType(resp.Header.Get("Content-Type"))
	if ext == "" {
		ext = path.Ext(u.Path)
	}

	proposal, err := p.parse(ext, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", rawURL, err)
	}

	proposal.ID = ProposalID(u.Host + u.Path)
	proposal.Source = rawURL
	proposal.Metadata["contentType"] = resp.Header.Get("Content-Type")
	proposal.Metadata["lastModified"] = resp.Header.Get("Last-Modified")
	return proposal, nil
}

func extForContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "application/pdf":
		return ".pdf"
	case "text/html", "application/xhtml+xml":
		return ".html"
	case "text/plain":
		return ".txt"
	case "text/markdown":
		return ".md"
	}
	return ""
}

func (p *Parser) parse(ext string, data []byte) (*models.Proposal, error) {
	var (
		title, content string
		meta           = map[string]interface{}{}
		err            error
	)

	switch strings.ToLower(ext) {
	case ".pdf":
		var pages int
		content, pages, err = extractPDF(data)
		meta["pages"] = pages
		title = firstLine(content)
	case ".html", ".htm":
		title, content, err = extractHTML(bytes.NewReader(data))
	case ".txt", ".md":
		content = string(data)
		title = strings.TrimLeft(firstLine(content), "# ")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	if err != nil {
		return nil, err
	}

	content = cleanContent(content)
	if content == "" {
		return nil, errors.New("document contains no text")
	}

	return &models.Proposal{
		Title:    strings.TrimSpace(title),
		Content:  content,
		Metadata: meta,
	}, nil
}

const maxTitleLen = 200

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if len(line) > maxTitleLen {
				cut := maxTitleLen
				for cut > 0 && !utf8.RuneStart(line[cut]) {
					cut--
				}
				line = line[:cut]
			}
			return line
		}
	}
	return ""
}

func cleanContent(content string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(content), " "))
}
