// Package ideatext turns raw multi-line chat input into the
// structured form a Trello card is built from: a title, embedded
// links, and detail bullets. It is pure string work, no I/O.
package ideatext

import (
	"regexp"
	"strings"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	bulletPattern     = regexp.MustCompile(`^(?:[-*•]|\d+\.)\s*`)
)

type Structured struct {
	Title               string
	URLs                []string
	DetailBullets       []string
	RenderedDescription string
}

// Structure separates URLs from prose, takes the first line as the
// title when several lines are present, and turns the remaining lines
// into detail bullets (list markers are normalized away; unmarked
// lines become bullets too). It operates on first-pass raw input
// only; re-feeding a rendered description is out of contract.
func Structure(raw string) Structured {
	var out Structured

	lines := strings.Split(raw, "\n")
	prose := make([]string, 0, len(lines))
	for _, line := range lines {
		line = urlPattern.ReplaceAllStringFunc(line, func(match string) string {
			out.URLs = append(out.URLs, strings.TrimRight(match, ".,;:!?"))
			return ""
		})
		prose = append(prose, line)
	}

	titleSet := false
	for _, line := range prose {
		line = strings.TrimSpace(line)
		if !titleSet {
			// The title is the first line of the input, URLs stripped;
			// when it carried only a URL it stays empty and a later
			// line is not promoted in its place.
			out.Title = whitespacePattern.ReplaceAllString(line, " ")
			titleSet = true
			continue
		}
		line = bulletPattern.ReplaceAllString(line, "")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out.DetailBullets = append(out.DetailBullets, line)
	}

	out.RenderedDescription = render(out.DetailBullets, out.URLs)
	return out
}

// render builds the card description: a Details block, then a Links
// block, each omitted when empty. The ordering is fixed.
func render(bullets, urls []string) string {
	var blocks []string
	if len(bullets) > 0 {
		b := make([]string, 0, len(bullets)+1)
		b = append(b, "Details:")
		for _, bullet := range bullets {
			b = append(b, "- "+bullet)
		}
		blocks = append(blocks, strings.Join(b, "\n"))
	}
	if len(urls) > 0 {
		b := make([]string, 0, len(urls)+1)
		b = append(b, "Links:")
		for _, u := range urls {
			b = append(b, "- "+u)
		}
		blocks = append(blocks, strings.Join(b, "\n"))
	}
	return strings.Join(blocks, "\n\n")
}
