package analysis

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

// PlainTextReader indexes content as is.
type PlainTextReader struct{}

func (PlainTextReader) Read(content string) (Extracted, error) {
	return Extracted{Text: content}, nil
}

// HTMLReader indexes the visible text of an HTML page and takes the title
// from its <title> element. Tag stripping drops the title's text, so it is
// put back in front of the body to keep it searchable.
type HTMLReader struct{}

var stripTags = bluemonday.StripTagsPolicy()

func (HTMLReader) Read(content string) (Extracted, error) {
	title := extractTitle(content)
	text := html.UnescapeString(stripTags.Sanitize(content))
	if title != "" {
		text = title + "\n" + text
	}
	return Extracted{
		Title: title,
		Text:  text,
	}, nil
}

func extractTitle(content string) string {
	doc, err := xhtml.Parse(strings.NewReader(content))
	if err != nil {
		return ""
	}
	var title string
	var crawl func(n *xhtml.Node) bool
	crawl = func(n *xhtml.Node) bool {
		if n.Type == xhtml.ElementNode && n.Data == "title" {
			if n.FirstChild != nil && n.FirstChild.Type == xhtml.TextNode {
				title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
			}
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if crawl(c) {
				return true
			}
		}
		return false
	}
	crawl(doc)
	return title
}
