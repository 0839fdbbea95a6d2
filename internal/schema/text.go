package schema

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var markupRe = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*|/[a-zA-Z]|!--)`)

// PlainText collapses whitespace in a crawl text field. Custom extractions
// sometimes export raw HTML; those cells are reduced to their visible text.
func PlainText(s string) string {
	if markupRe.MatchString(s) {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			doc.Find("script,noscript,style,template").Remove()
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}
