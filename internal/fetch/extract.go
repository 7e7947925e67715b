package fetch

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Page is the readable form of an HTML document.
type Page struct {
	Title string
	Text  string
	Links []Link
}

// Link is an anchor found in a page.
type Link struct {
	Text string `json:"text,omitempty"`
	URL  string `json:"url"`
}

// Elements whose subtree never contributes text. Links inside them are
// still collected.
var chrome = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
}

var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Ul: true, atom.Ol: true, atom.Table: true,
	atom.Tr: true, atom.Dl: true, atom.Dt: true, atom.Dd: true, atom.Figure: true,
	atom.Figcaption: true, atom.Details: true, atom.Summary: true, atom.Hr: true,
}

var headingLevel = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// ParsePage parses raw HTML in a single pass. With a non-empty base,
// relative link targets are resolved against it.
func ParsePage(raw, base string) *Page {
	doc, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return &Page{Text: tokenText(raw)}
	}
	w := &pageWalker{seen: make(map[string]bool)}
	if base != "" {
		w.base, _ = url.Parse(base)
	}
	w.walk(doc, false)
	return &Page{
		Title: strings.Join(strings.Fields(w.title), " "),
		Text:  cleanWhitespace(w.text.String()),
		Links: w.links,
	}
}

// ExtractHTML returns the title and readable text of raw.
func ExtractHTML(raw string) (title, text string) {
	p := ParsePage(raw, "")
	return p.Title, p.Text
}

// ExtractLinks returns the unique hyperlinks in raw, in document order.
// Fragment-only and javascript: links are dropped.
func ExtractLinks(raw, base string) []Link {
	return ParsePage(raw, base).Links
}

type pageWalker struct {
	base  *url.URL
	title string
	text  strings.Builder
	links []Link
	seen  map[string]bool
}

func (w *pageWalker) walk(n *html.Node, hidden bool) {
	switch n.Type {
	case html.TextNode:
		if !hidden {
			if s := strings.TrimSpace(n.Data); s != "" {
				w.text.WriteString(s)
				w.text.WriteByte(' ')
			}
		}
		return
	case html.ElementNode:
		switch {
		case n.DataAtom == atom.Title:
			if w.title == "" {
				w.title = nodeText(n)
			}
			return
		case n.DataAtom == atom.A:
			w.addLink(n)
		}
		hidden = hidden || chrome[n.DataAtom]
		if !hidden {
			w.open(n.DataAtom)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c, hidden)
	}

	if n.Type == html.ElementNode && !hidden && (n.DataAtom == atom.Br || n.DataAtom == atom.Li) {
		w.text.WriteByte('\n')
	}
}

// open writes the separator that precedes an element's text.
func (w *pageWalker) open(a atom.Atom) {
	switch {
	case a == atom.Li:
		w.text.WriteString("\n- ")
	case blocks[a] && w.text.Len() > 0:
		w.text.WriteString("\n\n")
	}
	if lvl := headingLevel[a]; lvl > 0 {
		w.text.WriteString(strings.Repeat("#", lvl) + " ")
	}
}

func (w *pageWalker) addLink(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return
	}
	if w.base != nil {
		if ref, err := url.Parse(href); err == nil {
			href = w.base.ResolveReference(ref).String()
		}
	}
	if w.seen[href] {
		return
	}
	w.seen[href] = true
	w.links = append(w.links, Link{Text: strings.Join(strings.Fields(nodeText(n)), " "), URL: href})
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
		b.WriteByte(' ')
	}
	return b.String()
}

// cleanWhitespace collapses spaces within lines and runs of blank lines.
func cleanWhitespace(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" && blank {
			continue
		}
		blank = line == ""
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// tokenText keeps only the text tokens of s. Used when the document
// cannot be parsed as a tree.
func tokenText(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return cleanWhitespace(b.String())
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}
