package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"mvdan.cc/xurls/v2"
)

// ExtractURL returns the first http(s) URL found in free text, or "".
func ExtractURL(text string) string {
	re, err := xurls.StrictMatchingScheme(`https?://`)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(re.FindString(text))
}

// PlainText strips markup, collapses whitespace and truncates to maxChars
// runes, appending "..." when cut. maxChars <= 0 disables truncation.
func PlainText(html string, maxChars int) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}

	text := html
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("script, style").Remove()
		doc.Find("br").Each(func(_ int, br *goquery.Selection) {
			br.ReplaceWithHtml(" ")
		})
		text = doc.Text()
	}

	normalized := strings.Join(strings.Fields(text), " ")
	if maxChars <= 0 {
		return normalized
	}

	runes := []rune(normalized)
	if len(runes) <= maxChars {
		return normalized
	}

	return strings.TrimSpace(string(runes[:maxChars])) + "..."
}
