// Package extract turns a document reference (a local path or an HTTP(S)
// URL) into plain text. PDFs are parsed with ledongthuc/pdf, web pages are
// reduced to their article body and converted to markdown so headings
// survive for structure-based chunking, and anything else is read as text.
package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// Kind classifies a document reference.
type Kind string

const (
	// KindPDF is a PDF file, local or remote.
	KindPDF Kind = "pdf"
	// KindWeb is an HTML page fetched over HTTP(S).
	KindWeb Kind = "web"
	// KindText is a local text or markdown file.
	KindText Kind = "text"
)

// DetectKind inspects ref and returns its kind. URLs whose path ends in
// .pdf are PDFs, other URLs are web pages, local .pdf files are PDFs, and
// everything else is text.
func DetectKind(ref string) Kind {
	if u, ok := parseHTTPURL(ref); ok {
		if strings.EqualFold(filepath.Ext(u.Path), ".pdf") {
			return KindPDF
		}
		return KindWeb
	}
	if strings.EqualFold(filepath.Ext(ref), ".pdf") {
		return KindPDF
	}
	return KindText
}

// parseHTTPURL returns the parsed URL when ref is an absolute http(s) URL.
func parseHTTPURL(ref string) (*url.URL, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return nil, false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, true
	}
	return nil, false
}

// Config holds the configuration for an Extractor.
type Config struct {
	// HTTPTimeout is the timeout for each fetch. Defaults to 30s if zero.
	HTTPTimeout time.Duration
	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
	// MaxBytes caps the size of a fetched or read document. Defaults to 50 MiB.
	MaxBytes int64
	// Root confines local documents to one directory tree. Relative
	// references resolve against it. Empty leaves local paths unrestricted.
	Root string
	// RemoteOnly rejects every local document reference. Takes precedence
	// over Root.
	RemoteOnly bool
}

// Extractor implements document text extraction. It is safe for concurrent use.
type Extractor struct {
	cfg        *Config
	httpClient *http.Client
	log        *slog.Logger
}

// New constructs an Extractor, filling in defaults for zero config values.
func New(cfg *Config, log *slog.Logger) *Extractor {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docqa-go/1.0 (document retrieval)"
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log,
	}
}

// Extract returns the plain text of the document identified by ref.
// Every failure wraps rag.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", fmt.Errorf("%w: extract: empty document reference", rag.ErrExtraction)
	}

	kind := DetectKind(ref)
	e.log.DebugContext(ctx, "extract: start", slog.String("document", ref), slog.String("kind", string(kind)))

	target := ref
	if _, remote := parseHTTPURL(ref); !remote {
		p, err := e.localPath(ref)
		if err != nil {
			e.log.WarnContext(ctx, "extract: local document refused", slog.String("document", ref), slog.Any("error", err))
			return "", err
		}
		target = p
	}

	var (
		text string
		err  error
	)
	switch kind {
	case KindPDF:
		text, err = e.extractPDF(ctx, target)
	case KindWeb:
		text, err = e.extractWeb(ctx, target)
	default:
		text, err = e.extractText(target)
	}
	if err != nil {
		return "", fmt.Errorf("%w: extract %s: %w", rag.ErrExtraction, ref, err)
	}

	e.log.InfoContext(ctx, "extract: done",
		slog.String("document", ref),
		slog.String("kind", string(kind)),
		slog.Int("chars", len(text)),
	)
	return text, nil
}

// extractText reads a local file as UTF-8 text.
func (e *Extractor) extractText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	b, err := io.ReadAll(io.LimitReader(f, e.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read: %w", err)
	}
	if int64(len(b)) > e.cfg.MaxBytes {
		return "", fmt.Errorf("file exceeds %d bytes", e.cfg.MaxBytes)
	}
	return string(b), nil
}

// fetch performs a GET and returns the response body, bounded by MaxBytes.
func (e *Extractor) fetch(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, e.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > e.cfg.MaxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", e.cfg.MaxBytes)
	}
	return body, nil
}
