package adapters

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	// Matched against whole words of the image path, so "uploads" is not an "ad".
	skipWords = map[string]bool{
		"logo": true, "banner": true, "ad": true, "ads": true, "avatar": true, "icon": true,
		"button": true, "bg": true, "background": true, "thumb": true, "thumbnail": true,
	}
	wordSplitter = regexp.MustCompile(`[^a-z0-9]+`)

	// lazySourceAttrs are checked in order; lazy-loading readers keep the real
	// URL in a data attribute and a spinner in src.
	lazySourceAttrs = []string{"data-src", "data-original", "data-lazy-src", "data-echo", "data-url", "src"}
)

// ResolveURL makes href absolute against base. Protocol-relative links get https.
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return b.ResolveReference(ref).String()
}

// IsMangaImage reports whether src looks like a page scan rather than site chrome.
func IsMangaImage(src string) bool {
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}
	p := strings.ToLower(src)
	if u, err := url.Parse(src); err == nil {
		p = strings.ToLower(u.Path)
	}
	hasExt := false
	for _, ext := range imageExtensions {
		if strings.HasSuffix(p, ext) || strings.Contains(p, ext+"/") {
			hasExt = true
			break
		}
	}
	if !hasExt {
		return false
	}
	for _, word := range wordSplitter.Split(path.Base(p), -1) {
		if skipWords[word] {
			return false
		}
	}
	for _, dir := range strings.Split(path.Dir(p), "/") {
		if skipWords[dir] {
			return false
		}
	}
	return true
}

// ImageSource returns the first usable image URL of an <img>, absolute.
func ImageSource(base string, img *goquery.Selection) string {
	for _, attr := range lazySourceAttrs {
		if v, ok := img.Attr(attr); ok {
			v = strings.TrimSpace(v)
			if IsMangaImage(v) {
				return ResolveURL(base, v)
			}
		}
	}
	return ""
}

// CollectImages returns the manga images under sel in document order, once each.
func CollectImages(base string, sel *goquery.Selection) []string {
	seen := make(map[string]bool)
	var pages []string
	sel.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src := ImageSource(base, img); src != "" && !seen[src] {
			seen[src] = true
			pages = append(pages, src)
		}
	})
	return pages
}
