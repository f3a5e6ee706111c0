package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"scrapinghorse/pkg/models"
)

const (
	maxTextBlocks   = 20
	maxReferences   = 10
	maxListItems    = 10
	maxInlineImages = 5
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	sectionRe    = regexp.MustCompile(`\n\s*\n+`)
	sentenceRe   = regexp.MustCompile(`(?:[.!?])\s+[A-Z]`)
	nonWordRe    = regexp.MustCompile(`[^\w\s]`)

	noisePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(Images|Videos|News|Shopping|Maps|Books|Tools|Settings|Sign in)(\s|$)`),
		regexp.MustCompile(`(?i)^\s*(Privacy|Terms|Advertising|About|Google)(\s|$)`),
		regexp.MustCompile(`(?i)^(All|Any time|Past hour|Past day|Past week)(\s|$)`),
		regexp.MustCompile(`(?i)^(Sort by|Clear)(\s|$)`),
		regexp.MustCompile(`(?i)^\s*(delete|click here|redirect|access|learn more)(\s|$)`),
		regexp.MustCompile(`(?i)^\s*(cookie|privacy policy|terms of service)`),
		regexp.MustCompile(`(?i)^\s*(search history|turn on|turn off)`),
		regexp.MustCompile(`(?i)^\s*(related searches|people also)`),
		regexp.MustCompile(`(?i)^\s*(Google apps|Google Account)`),
	}

	listPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\s*[•\-*]\s+`),
		regexp.MustCompile(`^\s*\d+\.\s+`),
		regexp.MustCompile(`\n\s*[•\-*]\s+`),
		regexp.MustCompile(`\n\s*\d+\.\s+`),
		regexp.MustCompile(`:\s*\n\s*[A-Z]`),
	}

	listSplitRe     = regexp.MustCompile(`\n\s*(?:[•\-*]|\d+\.)\s+`)
	snippetPrefixRe = regexp.MustCompile(`(?i)^(Learn more|Read more|Click here|Visit|Go to)\s*`)
	snippetSuffixRe = regexp.MustCompile(`(?i)\s*(Learn more|Read more|Click here)$`)
	trimEdgeRe      = regexp.MustCompile(`^[\s\-|•]+|[\s\-|•]+$`)
)

// Structured extracts text blocks, references and inline images from a
// rendered results page.
func Structured(html string) (*models.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	result := &models.SearchResult{
		TextBlocks:   parseTextBlocks(doc.Text()),
		References:   extractReferences(doc),
		InlineImages: extractInlineImages(doc),
	}
	return result, nil
}

// UnwrapGoogleURL resolves Google redirect URLs to their actual destination.
func UnwrapGoogleURL(href string) string {
	if href == "" {
		return ""
	}

	if strings.HasPrefix(href, "/url?") {
		if params, err := url.ParseQuery(href[5:]); err == nil {
			if q := params.Get("q"); q != "" {
				return q
			}
		}
		return href
	}

	if strings.HasPrefix(href, "https://www.google.com/url?") {
		parts := strings.SplitN(href, "?", 2)
		if params, err := url.ParseQuery(parts[1]); err == nil {
			if q := params.Get("q"); q != "" {
				return q
			}
		}
	}

	return href
}

func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

func cleanText(text string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// isUINoise reports whether text looks like navigation chrome rather than
// answer content. Large blocks are never filtered on starting patterns
// since they likely mix real content with UI fragments.
func isUINoise(text string) bool {
	if len(text) < 10 {
		return true
	}
	if len(text) > 1000 {
		return false
	}
	for _, pattern := range noisePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

func parseTextBlocks(text string) []models.TextBlock {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var paragraphs []string
	for _, section := range sectionRe.Split(text, -1) {
		section = strings.TrimSpace(section)
		if isUINoise(section) || len(section) < 30 {
			continue
		}
		// Skip sections that are mostly punctuation or navigation.
		if len(nonWordRe.ReplaceAllString(section, "")) < len(section)/2 {
			continue
		}
		paragraphs = append(paragraphs, section)
	}

	var blocks []models.TextBlock
	for _, paragraph := range paragraphs {
		if detectListPattern(paragraph) {
			if items := parseListItems(paragraph); len(items) > 0 {
				blocks = append(blocks, models.TextBlock{
					Type:  models.BlockTypeList,
					Items: items,
				})
			}
			continue
		}
		for _, sentence := range splitIntoSentences(paragraph) {
			if len(sentence) > 20 {
				blocks = append(blocks, models.TextBlock{
					Type:    models.BlockTypeParagraph,
					Snippet: sentence,
				})
			}
		}
	}

	blocks = deduplicateBlocks(blocks)

	// The first few paragraphs are almost always page chrome, drop them.
	removed := 0
	filtered := blocks[:0]
	for _, block := range blocks {
		if block.Type == models.BlockTypeParagraph && removed < 3 {
			removed++
			continue
		}
		filtered = append(filtered, block)
	}

	return filtered
}

func splitIntoSentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		// The match covers the terminator, the gap and the next capital:
		// split after the terminator so the capital starts the next sentence.
		end := loc[0] + 1
		sentences = append(sentences, text[start:end])
		start = loc[1] - 1
	}
	sentences = append(sentences, text[start:])

	var cleaned []string
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if len(sentence) > 20 && !isUINoise(sentence) {
			cleaned = append(cleaned, sentence)
		}
	}
	return cleaned
}

func detectListPattern(text string) bool {
	for _, pattern := range listPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}

	colonLines := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, ":") && len(line) > 10 {
			colonLines++
		}
	}
	return colonLines >= 2
}

func parseListItems(text string) []string {
	potential := listSplitRe.Split(text, -1)

	if strings.Contains(text, ":") {
		for _, line := range strings.Split(text, "\n") {
			if strings.Contains(line, ":") && len(line) > 15 {
				potential = append(potential, strings.TrimSpace(line))
			}
		}
	}

	var items []string
	seen := make(map[string]bool)
	for _, item := range potential {
		item = strings.TrimSpace(item)
		if len(item) < 10 || isUINoise(item) {
			continue
		}
		item = whitespaceRe.ReplaceAllString(item, " ")
		if !seen[item] {
			seen[item] = true
			items = append(items, item)
		}
	}

	if len(items) > maxListItems {
		items = items[:maxListItems]
	}
	return items
}

func deduplicateBlocks(blocks []models.TextBlock) []models.TextBlock {
	var unique []models.TextBlock
	var seen []string

	for _, block := range blocks {
		if block.Type != models.BlockTypeParagraph {
			unique = append(unique, block)
			continue
		}

		duplicate := false
		for _, prev := range seen {
			if len(block.Snippet) > 20 && len(prev) > 20 && snippetsOverlap(block.Snippet, prev) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, block)
			seen = append(seen, block.Snippet)
		}
	}

	if len(unique) > maxTextBlocks {
		unique = unique[:maxTextBlocks]
	}
	return unique
}

// snippetsOverlap checks containment or a >70% shared-word ratio.
func snippetsOverlap(a, b string) bool {
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	shared := 0
	for _, w := range wordsB {
		if setA[w] {
			shared++
		}
	}

	smaller := len(wordsA)
	if len(wordsB) < smaller {
		smaller = len(wordsB)
	}
	return smaller > 0 && shared*10 > smaller*7
}

func extractInlineImages(doc *goquery.Document) []models.InlineImage {
	var images []models.InlineImage

	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, _ := sel.Attr("src")
		alt, _ := sel.Attr("alt")

		if src == "" ||
			strings.HasPrefix(src, "data:image/svg") ||
			strings.Contains(strings.ToLower(src), "favicon") ||
			(strings.HasSuffix(src, ".svg") && len(src) < 100) {
			return true
		}

		lowerAlt := strings.ToLower(alt)
		if alt != "" && (strings.Contains(lowerAlt, "icon") ||
			(strings.Contains(lowerAlt, "logo") && len(alt) < 20) ||
			lowerAlt == "image" || lowerAlt == "photo" || lowerAlt == "picture" ||
			len(alt) < 3) {
			return true
		}

		lowerSrc := strings.ToLower(src)
		fromContent := !strings.Contains(lowerSrc, "gstatic") && !strings.Contains(lowerSrc, "google")
		if (alt != "" && len(alt) > 3) || fromContent {
			title := alt
			if title == "" {
				title = "Image"
			}
			images = append(images, models.InlineImage{Title: title, URL: src})
		}

		return len(images) < maxInlineImages
	})

	return images
}

func extractReferences(doc *goquery.Document) []models.Reference {
	var references []models.Reference
	seenURLs := make(map[string]bool)
	seenNodes := make(map[*goquery.Selection]bool)

	var candidates []*goquery.Selection

	// Google redirect links, then ping-tracked links, then plain external
	// links, in that order of preference.
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(href, "/url?") || strings.Contains(href, "google.com/url?") {
			candidates = append(candidates, sel)
		}
	})
	doc.Find("a[ping]").Each(func(_ int, sel *goquery.Selection) {
		candidates = append(candidates, sel)
	})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if strings.HasPrefix(href, "http") &&
			!strings.Contains(href, "google.com") &&
			!strings.Contains(href, "gstatic.com") {
			candidates = append(candidates, sel)
		}
	})

	for _, link := range candidates {
		if seenNodes[link] {
			continue
		}
		seenNodes[link] = true

		href, _ := link.Attr("href")
		text := cleanText(link.Text())

		// Links rendered as bare icons carry their title in the parent node.
		if len(text) < 3 {
			if parent := link.Parent(); parent.Length() > 0 {
				if parentText := cleanText(parent.Text()); len(parentText) > 10 {
					text = truncate(parentText, 100)
				}
			}
		}
		if len(text) < 3 {
			continue
		}

		actualURL := UnwrapGoogleURL(href)
		if actualURL == "" ||
			strings.HasPrefix(actualURL, "#") ||
			(actualURL == href && strings.HasPrefix(href, "/")) ||
			strings.Contains(actualURL, "google.com") ||
			strings.Contains(actualURL, "gstatic.com") {
			continue
		}
		if seenURLs[actualURL] {
			continue
		}
		seenURLs[actualURL] = true

		domain := extractDomain(actualURL)
		if domain == "" {
			continue
		}

		references = append(references, models.Reference{
			Title:   truncate(text, 100),
			Link:    actualURL,
			Snippet: truncate(extractLinkSnippet(link, text), 250),
			Source:  domain,
			Index:   len(references) + 1,
		})

		if len(references) >= maxReferences {
			break
		}
	}

	return references
}

// extractLinkSnippet pulls contextual text surrounding a reference link from
// its parent or grandparent element.
func extractLinkSnippet(link *goquery.Selection, linkText string) string {
	var snippet string

	parent := link.Parent()
	if parent.Length() > 0 {
		parentText := cleanText(parent.Text())
		if len(parentText) > len(linkText)+30 {
			snippet = trimSnippetEdges(strings.Replace(parentText, linkText, "", 1))
		}
	}

	if len(snippet) < 30 && parent.Length() > 0 {
		grandparent := parent.Parent()
		if grandparent.Length() > 0 {
			gpText := cleanText(grandparent.Text())
			if len(gpText) > len(linkText)+50 {
				snippet = trimSnippetEdges(strings.Replace(gpText, linkText, "", 1))
			}
		}
	}

	if snippet != "" {
		snippet = snippetPrefixRe.ReplaceAllString(snippet, "")
		snippet = snippetSuffixRe.ReplaceAllString(snippet, "")
		if isUINoise(snippet) {
			snippet = ""
		}
	}

	return snippet
}

func trimSnippetEdges(s string) string {
	return trimEdgeRe.ReplaceAllString(strings.TrimSpace(s), "")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
