package parser

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// parseHTML extracts visible text from an HTML document, skipping script and
// style subtrees. Block-level elements produce line breaks so downstream
// chunking sees paragraph structure.
func parseHTML(data []byte) (string, error) {
	root, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", decodeFailure("text/html", "parse html: %v", err)
	}
	var b strings.Builder
	collectText(root, &b)
	return normalizeWhitespace(b.String()), nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "script", "style", "noscript", "head":
			return
		}
		if blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode && blockElements[n.Data] {
		b.WriteByte('\n')
	}
}

// normalizeWhitespace collapses runs of spaces within lines and drops blank
// lines left over from nested block elements.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
