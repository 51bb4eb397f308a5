package parser

import (
	"io"

	"github.com/PuerkitoBio/goquery"
)

func extractHTML(r io.Reader) (title, content string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	doc.Find("script, style, noscript, nav, footer").Remove()
	title = doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}

	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".proposal",
		"#proposal",
		".content",
		"#content",
	}
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return title, content, nil
}
