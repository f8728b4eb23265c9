package extract

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// markdownFromNode walks a content subtree and renders it as markdown,
// collecting the image URLs it references in document order. Lazy-loaded
// images carry their real URL in data-src, which wins over src. Relative
// URLs are resolved against base when provided.
func markdownFromNode(root *html.Node, base *url.URL) (string, []string) {
	var b strings.Builder
	var images []string
	collect(&b, root, base, &images, false)
	return normalizeMarkdown(b.String()), images
}

func collect(b *strings.Builder, n *html.Node, base *url.URL, images *[]string, inPre bool) {
	if n.Type == html.ElementNode {
		if isBoilerplateContainer(n) {
			return
		}
		name := strings.ToLower(n.Data)
		switch name {
		case "script", "style", "noscript", "nav", "footer", "aside", "iframe", "svg", "form":
			return
		case "img":
			if src := imageSrc(n, base); src != "" {
				*images = append(*images, src)
				b.WriteString("\n\n![](" + src + ")\n\n")
			}
			return
		case "pre":
			inPre = true
			b.WriteString("\n\n```\n")
		case "br":
			b.WriteString("\n")
		case "hr":
			b.WriteString("\n\n---\n\n")
		case "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
			b.WriteString(strings.Repeat("#", int(name[1]-'0')))
			b.WriteString(" ")
		case "p", "section", "blockquote", "figure", "div":
			b.WriteString("\n\n")
		case "li":
			b.WriteString("\n- ")
		case "ul", "ol":
			b.WriteString("\n")
		}
	}

	if n.Type == html.TextNode {
		data := n.Data
		if !inPre {
			data = strings.ReplaceAll(data, "\t", " ")
			data = strings.ReplaceAll(data, "\r", " ")
			data = strings.ReplaceAll(data, "\n", " ")
		}
		b.WriteString(data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collect(b, c, base, images, inPre)
	}

	if n.Type == html.ElementNode {
		switch strings.ToLower(n.Data) {
		case "p", "section", "blockquote", "figure", "div", "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString("\n\n")
		case "li":
			b.WriteString("\n")
		case "pre":
			b.WriteString("\n```\n\n")
		}
	}
}

func imageSrc(n *html.Node, base *url.URL) string {
	var src, dataSrc string
	for _, attr := range n.Attr {
		switch strings.ToLower(attr.Key) {
		case "data-src":
			dataSrc = attr.Val
		case "src":
			src = attr.Val
		}
	}
	raw := dataSrc
	if raw == "" {
		raw = src
	}
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// isBoilerplateContainer flags cookie/consent banner containers by their
// id/class markers.
func isBoilerplateContainer(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		if key != "id" && key != "class" && key != "aria-label" && key != "role" && !strings.HasPrefix(key, "data-") {
			continue
		}
		val := strings.ToLower(attr.Val)
		for _, marker := range []string{"cookie", "consent", "gdpr"} {
			if strings.Contains(val, marker) {
				return true
			}
		}
	}
	return false
}

// normalizeMarkdown collapses runs of spaces inside lines and runs of blank
// lines between them. Fenced code blocks pass through untouched.
func normalizeMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	inFence := false
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			out = append(out, strings.TrimSpace(line))
			continue
		}
		if inFence {
			out = append(out, line)
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			out = append(out, "")
			continue
		}
		out = append(out, collapseSpaces(trimmed))
	}
	for len(out) > 0 && out[0] == "" {
		out = out[1:]
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	var b strings.Builder
	lastSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return b.String()
}
