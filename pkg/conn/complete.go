// Copyright 2024-2026 Aiku AI

package conn

import (
	"slices"
	"strings"
)

// emojiByShortcode maps the shortcodes offered for completion to the emoji
// they render as.
var emojiByShortcode = map[string]string{
	"+1":               "\U0001f44d",
	"-1":               "\U0001f44e",
	"heart":            "\u2764\ufe0f",
	"smile":            "\U0001f604",
	"laughing":         "\U0001f606",
	"thumbsup":         "\U0001f44d",
	"thumbsdown":       "\U0001f44e",
	"wave":             "\U0001f44b",
	"clap":             "\U0001f44f",
	"fire":             "\U0001f525",
	"100":              "\U0001f4af",
	"tada":             "\U0001f389",
	"eyes":             "\U0001f440",
	"thinking":         "\U0001f914",
	"white_check_mark": "\u2705",
	"x":                "\u274c",
	"warning":          "\u26a0\ufe0f",
	"rocket":           "\U0001f680",
	"star":             "\u2b50",
	"pray":             "\U0001f64f",
}

var emojiShortcodes = func() []string {
	names := make([]string, 0, len(emojiByShortcode))
	for name := range emojiByShortcode {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}()

// ExpandEmoji replaces every known :shortcode: in text with its emoji.
// Unknown shortcodes are left as typed.
func ExpandEmoji(text string) string {
	var sb strings.Builder
	for {
		i := strings.IndexByte(text, ':')
		if i < 0 {
			break
		}
		j := strings.IndexByte(text[i+1:], ':')
		if j < 0 {
			break
		}
		j += i + 1
		if e, ok := emojiByShortcode[text[i+1:j]]; ok {
			sb.WriteString(text[:i])
			sb.WriteString(e)
			text = text[j+1:]
			continue
		}
		sb.WriteString(text[:j])
		text = text[j:]
	}
	sb.WriteString(text)
	return sb.String()
}

// Complete completes one sigil-prefixed word against a connection's tables:
//
//	#chan    channel names
//	@us      user names
//	:smi     emoji shortcodes, completed to :smile:
//	+:smi    emoji reaction form, completed to +:smile:
//
// The lexically smallest candidate starting with the typed prefix wins. It
// returns false when the sigil is unknown or nothing matches.
func Complete(partial string, channels, users []string) (string, bool) {
	switch {
	case strings.HasPrefix(partial, "#"):
		return completeFrom("#", "", partial[1:], channels)
	case strings.HasPrefix(partial, "@"):
		return completeFrom("@", "", partial[1:], users)
	case strings.HasPrefix(partial, "+:"):
		return completeFrom("+:", ":", strings.TrimSuffix(partial[2:], ":"), emojiShortcodes)
	case strings.HasPrefix(partial, ":"):
		return completeFrom(":", ":", strings.TrimSuffix(partial[1:], ":"), emojiShortcodes)
	default:
		return "", false
	}
}

func completeFrom(prefix, suffix, typed string, candidates []string) (string, bool) {
	best, found := "", false
	for _, c := range candidates {
		if !strings.HasPrefix(c, typed) {
			continue
		}
		if !found || c < best {
			best, found = c, true
		}
	}
	if !found {
		return "", false
	}
	return prefix + best + suffix, true
}
