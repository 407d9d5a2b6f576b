package util

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/vrsandeep/mango-scraper/internal/models"
)

var (
	chapterPattern = regexp.MustCompile(`(?i)chapter[\s\-_/]*(\d+(?:\.\d+)?)`)
	shortPattern   = regexp.MustCompile(`(?i)\b(?:ch|cap|ep)\.?[\s\-_]*(\d+(?:\.\d+)?)`)
	numberPattern  = regexp.MustCompile(`(\d+(?:\.\d+)?)`)
)

// ParseChapterNumber extracts a chapter number from link text or a URL.
// "Chapter 10.5", "ch-12" and "/manga/x/chapter_7" are all recognized.
func ParseChapterNumber(text string) (float64, bool) {
	for _, re := range []*regexp.Regexp{chapterPattern, shortPattern} {
		if m := re.FindStringSubmatch(text); m != nil {
			if n, err := strconv.ParseFloat(m[1], 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// ParseBareNumber parses a value that is expected to be just a number, like
// MangaDex's "chapter" attribute. It falls back to the first number in the text.
func ParseBareNumber(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if n, err := strconv.ParseFloat(text, 64); err == nil {
		return n, true
	}
	if m := numberPattern.FindString(text); m != "" {
		if n, err := strconv.ParseFloat(m, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// FormatChapterNumber renders 10 as "10" and 10.5 as "10.5".
func FormatChapterNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// NormalizeListing sorts chapters ascending by number and drops repeated
// numbers, keeping the first occurrence.
func NormalizeListing(chapters []models.DiscoveredChapter) []models.DiscoveredChapter {
	slices.SortStableFunc(chapters, func(a, b models.DiscoveredChapter) int {
		switch {
		case a.Number < b.Number:
			return -1
		case a.Number > b.Number:
			return 1
		}
		return 0
	})
	return slices.CompactFunc(chapters, func(a, b models.DiscoveredChapter) bool {
		return a.Number == b.Number
	})
}
