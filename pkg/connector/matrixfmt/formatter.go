// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrixfmt converts Matrix HTML message bodies to plain markdown.
// Mention pills become the raw identifier they point at (a user ID, room ID
// or room alias) so that a later rewrite pass can turn them into names.
package matrixfmt

import (
	"html"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"maunium.net/go/mautrix/event"
)

const matrixToPrefix = "https://matrix.to/#/"

var (
	replyRe      = regexp.MustCompile(`(?s)<mx-reply>.*?</mx-reply>`)
	strongRe     = regexp.MustCompile(`<(?:strong|b)>(.*?)</(?:strong|b)>`)
	emRe         = regexp.MustCompile(`<(?:em|i)>(.*?)</(?:em|i)>`)
	delRe        = regexp.MustCompile(`<(?:del|s)>(.*?)</(?:del|s)>`)
	codeRe       = regexp.MustCompile(`<code[^>]*>(.*?)</code>`)
	preRe        = regexp.MustCompile(`(?s)<pre><code[^>]*>(.*?)</code></pre>`)
	pillRe       = regexp.MustCompile(`<a href="https://matrix\.to/#/([^"]+)"[^>]*>.*?</a>`)
	linkRe       = regexp.MustCompile(`<a href="([^"]+)"[^>]*>(.*?)</a>`)
	brRe         = regexp.MustCompile(`<br\s*/?>`)
	blockquoteRe = regexp.MustCompile(`(?s)<blockquote>(.*?)</blockquote>`)
	headingRe    = regexp.MustCompile(`<h([1-6])>(.*?)</h[1-6]>`)
	ulRe         = regexp.MustCompile(`(?s)<ul>(.*?)</ul>`)
	olRe         = regexp.MustCompile(`(?s)<ol>(.*?)</ol>`)
	liRe         = regexp.MustCompile(`(?s)<li>(.*?)</li>`)
	pRe          = regexp.MustCompile(`(?s)<p>(.*?)</p>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
)

// PillTarget extracts the identifier from a matrix.to link, dropping any
// query such as ?via=. It returns false for links that are not matrix.to.
func PillTarget(href string) (string, bool) {
	rest, ok := strings.CutPrefix(href, matrixToPrefix)
	if !ok {
		return "", false
	}
	rest, _, _ = strings.Cut(rest, "?")
	// Event permalinks point inside a room; keep the room part.
	if strings.HasPrefix(rest, "!") || strings.HasPrefix(rest, "#") {
		rest, _, _ = strings.Cut(rest, "/")
	}
	target, err := url.PathUnescape(rest)
	if err != nil || target == "" {
		return "", false
	}
	return target, true
}

// Parse converts Matrix message content to markdown text with HTML entities
// decoded. Plain bodies are returned unchanged.
func Parse(content *event.MessageEventContent) string {
	if content == nil {
		return ""
	}

	// If no HTML format, return plain text body.
	if content.Format != event.FormatHTML || content.FormattedBody == "" {
		return content.Body
	}

	text := replyRe.ReplaceAllString(content.FormattedBody, "")

	// Code blocks first (preserve content inside).
	text = preRe.ReplaceAllString(text, "```\n$1\n```")
	text = codeRe.ReplaceAllString(text, "`$1`")

	text = strongRe.ReplaceAllString(text, "**$1**")
	text = emRe.ReplaceAllString(text, "_${1}_")
	text = delRe.ReplaceAllString(text, "~~$1~~")

	// Pills before ordinary links.
	text = pillRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := pillRe.FindStringSubmatch(match)
		if target, ok := PillTarget(matrixToPrefix + html.UnescapeString(parts[1])); ok {
			return html.EscapeString(target)
		}
		return match
	})
	text = linkRe.ReplaceAllString(text, "[$2]($1)")

	text = headingRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := headingRe.FindStringSubmatch(match)
		level, _ := strconv.Atoi(parts[1])
		return strings.Repeat("#", level) + " " + parts[2]
	})

	text = blockquoteRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := blockquoteRe.FindStringSubmatch(match)
		lines := strings.Split(strings.TrimSpace(parts[1]), "\n")
		for i, line := range lines {
			lines[i] = "> " + strings.TrimSpace(line)
		}
		return strings.Join(lines, "\n")
	})

	text = ulRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for _, item := range items {
			result = append(result, "- "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n")
	})
	text = olRe.ReplaceAllStringFunc(text, func(match string) string {
		items := liRe.FindAllStringSubmatch(match, -1)
		result := make([]string, 0, len(items))
		for i, item := range items {
			result = append(result, strconv.Itoa(i+1)+". "+strings.TrimSpace(item[1]))
		}
		return strings.Join(result, "\n")
	})

	text = pRe.ReplaceAllString(text, "$1\n\n")
	text = brRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, "")

	return strings.TrimSpace(html.UnescapeString(text))
}
