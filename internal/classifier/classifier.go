// Package classifier matches CI output against the failure signature catalog.
//
// Evidence convention: the excerpt of a match starts at the beginning of the nearest lower
// bound occurrence ending at or before the match, and ends at the end of the nearest upper
// bound occurrence starting at or after the match. Both anchors are part of the excerpt.
// A bound that is unset or not found falls back to the start (or end, newline excluded) of
// the line holding the match. Only the first occurrence of a signature's pattern is used.
package classifier

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rhoci/rhoci/internal/catalog"
	"github.com/rhoci/rhoci/internal/models"
)

// DefaultMaxExcerpt bounds the stored evidence of a single match.
const DefaultMaxExcerpt = 4096

// Classifier is stateless apart from its excerpt bound and safe for concurrent use.
type Classifier struct {
	maxExcerpt int
}

// New returns a Classifier; a non-positive maxExcerpt selects DefaultMaxExcerpt.
func New(maxExcerpt int) *Classifier {
	if maxExcerpt <= 0 {
		maxExcerpt = DefaultMaxExcerpt
	}
	return &Classifier{maxExcerpt: maxExcerpt}
}

// Classify returns every signature that matches text, ordered by signature name.
func (c *Classifier) Classify(text string, cat *catalog.Catalog) []models.FailureMatch {
	if text == "" {
		return nil
	}
	var matches []models.FailureMatch
	for _, sig := range cat.Signatures() {
		if m, ok := c.match(text, sig); ok {
			matches = append(matches, m)
		}
	}
	sortMatches(matches)
	return matches
}

// ClassifyBuild classifies the console for build-level matches and the failure output of
// each failed test for test-level matches.
func (c *Classifier) ClassifyBuild(key models.BuildKey, console string, tests []models.Test, cat *catalog.Catalog) []models.FailureMatch {
	var out []models.FailureMatch
	for _, m := range c.Classify(console, cat) {
		m.Build = key
		out = append(out, m)
	}
	for _, t := range tests {
		if t.Status != models.TestFailure {
			continue
		}
		text := failureText(t)
		for _, m := range c.Classify(text, cat) {
			m.Build = key
			m.ClassName = t.ClassName
			m.TestName = t.Name
			out = append(out, m)
		}
	}
	sortMatches(out)
	return out
}

func (c *Classifier) match(text string, sig catalog.Signature) (models.FailureMatch, bool) {
	loc := sig.Match.FindStringIndex(text)
	if loc == nil {
		return models.FailureMatch{}, false
	}
	start, end := loc[0], loc[1]

	// Bounds are searched in the full text so anchors and word boundaries keep their meaning.
	evStart := lineStart(text, start)
	if sig.Lower != nil {
		for _, loc := range sig.Lower.FindAllStringIndex(text, -1) {
			if loc[1] > start {
				break
			}
			evStart = loc[0]
		}
	}
	evEnd := lineEnd(text, end)
	if sig.Upper != nil {
		for _, loc := range sig.Upper.FindAllStringIndex(text, -1) {
			if loc[0] >= end {
				evEnd = loc[1]
				break
			}
		}
	}
	evStart, evEnd = clampWindow(text, evStart, evEnd, start, end, c.maxExcerpt)

	return models.FailureMatch{
		Signature: sig.Name,
		Category:  sig.Category,
		Excerpt:   text[evStart:evEnd],
		Match:     models.Span{Start: start, End: end},
		Evidence:  models.Span{Start: evStart, End: evEnd},
	}, true
}

func lineStart(text string, pos int) int {
	return strings.LastIndexByte(text[:pos], '\n') + 1
}

func lineEnd(text string, pos int) int {
	if pos > 0 && text[pos-1] == '\n' {
		return pos - 1
	}
	if i := strings.IndexByte(text[pos:], '\n'); i >= 0 {
		return pos + i
	}
	return len(text)
}

// clampWindow shrinks [evStart, evEnd) to at most max bytes while keeping the match visible.
// Both cuts land on rune boundaries of text.
func clampWindow(text string, evStart, evEnd, start, end, max int) (int, int) {
	if max <= 0 || evEnd-evStart <= max {
		return evStart, evEnd
	}
	if end-start >= max {
		return start, runeFloor(text, start+max, start)
	}
	room := max - (end - start)
	s := start - room/2
	if s < evStart {
		s = evStart
	}
	e := s + max
	if e > evEnd {
		e = evEnd
		s = e - max
	}
	return runeCeil(text, s, start), runeFloor(text, e, end)
}

// runeFloor moves pos back to a rune boundary, never below min.
func runeFloor(text string, pos, min int) int {
	for pos > min && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}

// runeCeil moves pos forward to a rune boundary, never past max.
func runeCeil(text string, pos, max int) int {
	for pos < max && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}

func failureText(t models.Test) string {
	switch {
	case t.ErrorDetails == "":
		return t.StackTrace
	case t.StackTrace == "":
		return t.ErrorDetails
	default:
		return t.ErrorDetails + "\n" + t.StackTrace
	}
}

func sortMatches(matches []models.FailureMatch) {
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.ClassName != b.ClassName {
			return a.ClassName < b.ClassName
		}
		if a.TestName != b.TestName {
			return a.TestName < b.TestName
		}
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Match.Start < b.Match.Start
	})
}
