package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// boilerplate lists elements dropped before conversion.
var boilerplate = []string{"script", "style", "noscript", "nav", "footer", "aside", "form", "iframe"}

// extractWeb fetches an HTML page and converts its main content to markdown.
func (e *Extractor) extractWeb(ctx context.Context, rawURL string) (string, error) {
	body, err := e.fetch(ctx, rawURL, "text/html, text/plain")
	if err != nil {
		return "", err
	}
	return HTMLToMarkdown(body, rawURL)
}

// HTMLToMarkdown reduces an HTML document to its article body (the first
// <article>, else <main>, else <body>) and converts it to markdown. base
// resolves relative links.
func HTMLToMarkdown(html []byte, base string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(strings.Join(boilerplate, ", ")).Remove()

	sel := doc.Find("article").First()
	if sel.Length() == 0 {
		sel = doc.Find("main").First()
	}
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}

	conv := md.NewConverter(domainOf(base), true, nil)
	return strings.TrimSpace(conv.Convert(sel)), nil
}

// domainOf returns the host of base, or "" when base is not a URL.
func domainOf(base string) string {
	u, ok := parseHTTPURL(base)
	if !ok {
		return ""
	}
	return u.Host
}
