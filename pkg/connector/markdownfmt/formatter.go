// Copyright 2024-2026 Aiku AI

// Package markdownfmt renders the markdown typed by the user as Matrix HTML,
// turning user and room identifiers into mention pills.
package markdownfmt

import (
	"cmp"
	"html"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

// Pill is an identifier to render as a matrix.to mention link.
type Pill struct {
	// ID is a user ID, room ID or room alias as it appears in the body.
	ID string
	// Display is the link text.
	Display string
}

// ParsedMessage holds the result of converting markdown to Matrix format.
type ParsedMessage struct {
	Body          string
	Format        event.Format
	FormattedBody string
	// Mentions lists the user IDs that were rendered as pills, in order of
	// first appearance.
	Mentions []string
}

var (
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicRe     = regexp.MustCompile(`(^|[^*\w])_(.+?)_([^*\w]|$)`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	codeRe       = regexp.MustCompile("`([^`]+)`")
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w+)?\\n?(.*?)```")
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	headingRe    = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)
	ulRe         = regexp.MustCompile(`(?m)^[-*]\s+(.+)$`)
	olRe         = regexp.MustCompile(`(?m)^\d+\.\s+(.+)$`)
	blockquoteRe = regexp.MustCompile(`(?m)^>\s+(.+)$`)
)

type codeBlock struct {
	lang    string
	content string
}

func placeholder(kind string, idx int) string {
	return "\x00" + kind + strconv.Itoa(idx) + "\x00"
}

// PillHTML renders one mention pill.
func PillHTML(p Pill) string {
	return `<a href="https://matrix.to/#/` + url.PathEscape(p.ID) + `">` + html.EscapeString(p.Display) + `</a>`
}

// Parse converts markdown text to Matrix event content. Any pill whose ID
// occurs in text outside code blocks is rendered as a link.
func Parse(text string, pills ...Pill) *ParsedMessage {
	if text == "" {
		return &ParsedMessage{}
	}

	// Longest IDs first so one ID never splits a longer one.
	pills = slices.Clone(pills)
	slices.SortStableFunc(pills, func(a, b Pill) int {
		return cmp.Compare(len(b.ID), len(a.ID))
	})

	// Extract code blocks into placeholders.
	var codeBlocks []codeBlock
	processed := codeBlockRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := codeBlockRe.FindStringSubmatch(match)
		codeBlocks = append(codeBlocks, codeBlock{lang: parts[1], content: parts[2]})
		return placeholder("CODEBLOCK", len(codeBlocks)-1)
	})

	// Then pills, so markdown rules never see the identifiers.
	var used []Pill
	var mentions []string
	for _, p := range pills {
		if p.ID == "" || !strings.Contains(processed, p.ID) {
			continue
		}
		processed = strings.ReplaceAll(processed, p.ID, placeholder("PILL", len(used)))
		used = append(used, p)
		if strings.HasPrefix(p.ID, "@") {
			mentions = append(mentions, p.ID)
		}
	}
	if len(mentions) > 1 {
		slices.SortStableFunc(mentions, func(a, b string) int {
			return cmp.Compare(strings.Index(text, a), strings.Index(text, b))
		})
	}

	hasFormatting := len(used) > 0 ||
		len(codeBlocks) > 0 ||
		boldRe.MatchString(processed) ||
		italicRe.MatchString(processed) ||
		strikeRe.MatchString(processed) ||
		codeRe.MatchString(processed) ||
		linkRe.MatchString(processed) ||
		headingRe.MatchString(processed) ||
		blockquoteRe.MatchString(processed) ||
		ulRe.MatchString(processed) ||
		olRe.MatchString(processed)
	if !hasFormatting {
		return &ParsedMessage{Body: text}
	}

	// Structural elements, line by line.
	lines := strings.Split(processed, "\n")
	var result []string
	var listType string
	var listItems []string

	flushList := func() {
		if len(listItems) == 0 {
			return
		}
		result = append(result, "<"+listType+">"+strings.Join(listItems, "")+"</"+listType+">")
		listItems = nil
		listType = ""
	}
	addItem := func(kind, item string) {
		if listType != kind {
			flushList()
			listType = kind
		}
		listItems = append(listItems, "<li>"+html.EscapeString(item)+"</li>")
	}

	for _, line := range lines {
		if m := blockquoteRe.FindStringSubmatch(line); m != nil {
			flushList()
			result = append(result, "<blockquote>"+html.EscapeString(m[1])+"</blockquote>")
		} else if m := headingRe.FindStringSubmatch(line); m != nil {
			flushList()
			lvl := strconv.Itoa(len(m[1]))
			result = append(result, "<h"+lvl+">"+html.EscapeString(m[2])+"</h"+lvl+">")
		} else if m := ulRe.FindStringSubmatch(line); m != nil {
			addItem("ul", m[1])
		} else if m := olRe.FindStringSubmatch(line); m != nil {
			addItem("ol", m[1])
		} else {
			flushList()
			result = append(result, html.EscapeString(line))
		}
	}
	flushList()

	formatted := strings.Join(result, "\n")

	// Inline formatting.
	formatted = codeRe.ReplaceAllString(formatted, "<code>$1</code>")
	formatted = boldRe.ReplaceAllString(formatted, "<strong>$1</strong>")
	formatted = italicRe.ReplaceAllString(formatted, "$1<em>$2</em>$3")
	formatted = strikeRe.ReplaceAllString(formatted, "<del>$1</del>")

	// Links, only with safe URL schemes.
	formatted = linkRe.ReplaceAllStringFunc(formatted, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		label, href := parts[1], parts[2]
		lower := strings.ToLower(strings.TrimSpace(href))
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "mailto:") {
			return `<a href="` + href + `">` + label + `</a>`
		}
		return label
	})

	for i, p := range used {
		formatted = strings.ReplaceAll(formatted, placeholder("PILL", i), PillHTML(p))
	}
	formatted = strings.ReplaceAll(formatted, "\n\n", "</p><p>")
	formatted = strings.ReplaceAll(formatted, "\n", "<br/>")
	if strings.Contains(formatted, "</p><p>") {
		formatted = "<p>" + formatted + "</p>"
	}

	for i, cb := range codeBlocks {
		content := html.EscapeString(cb.content)
		var replacement string
		if cb.lang != "" {
			replacement = `<pre><code class="language-` + html.EscapeString(cb.lang) + `">` + content + `</code></pre>`
		} else {
			replacement = `<pre><code>` + content + `</code></pre>`
		}
		formatted = strings.Replace(formatted, placeholder("CODEBLOCK", i), replacement, 1)
	}

	return &ParsedMessage{
		Body:          text,
		Format:        event.FormatHTML,
		FormattedBody: formatted,
		Mentions:      mentions,
	}
}
