package search

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// FormatResults renders results as a numbered list for the model.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, r.Title)
		for _, line := range []string{r.URL, r.Snippet} {
			if line != "" {
				b.WriteString("\n   ")
				b.WriteString(line)
			}
		}
	}
	return b.String()
}

// stripMarkup removes the highlight tags and entities some providers
// put in titles and snippets.
func stripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
